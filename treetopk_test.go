package treetopk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/treetopk/blobstore"
	"github.com/hupe1980/treetopk/node"
	"github.com/hupe1980/treetopk/record"
	"github.com/hupe1980/treetopk/resource"
	"github.com/hupe1980/treetopk/testutil"
	"github.com/hupe1980/treetopk/topk"
	"github.com/hupe1980/treetopk/topology"
	"github.com/hupe1980/treetopk/transport"
	"github.com/hupe1980/treetopk/wire"
)

func seed(t *testing.T, store blobstore.BlobStore, values []int64, shards int) {
	t.Helper()
	for key, part := range testutil.Split(values, shards) {
		data, err := record.Encode(part, record.CompressionNone)
		require.NoError(t, err)
		require.NoError(t, store.Put(context.Background(), fmt.Sprint(key), data))
	}
}

func TestRunLocal(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	rng := testutil.NewRNG(99)
	values := rng.Values(1000, -1_000_000, 1_000_000)
	seed(t, store, values, 10)

	metrics := &BasicMetricsCollector{}
	res, err := RunLocal(ctx, Config{Selectors: 10}, 11, store, WithMetricsCollector(metrics))
	require.NoError(t, err)

	assert.Equal(t, topology.RoleRoot, res.Role)
	assert.Equal(t, testutil.TopK(values, topk.DefaultK), res.Values)
	require.NotNil(t, res.Aggregator)
	assert.Len(t, res.Aggregator.Senders, 10)

	stats := metrics.GetFetchStats()
	assert.Equal(t, int64(10), stats.Count)
	assert.Zero(t, stats.Missing)
	assert.Equal(t, int64(10), metrics.SendCount.Load())
	assert.Equal(t, int64(10), metrics.ReceiveCount.Load())
	assert.Equal(t, int64(1000), metrics.FoldValues.Load())
}

func TestRunLocal_MissingShardAndIdleRanks(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	rng := testutil.NewRNG(5)
	values := rng.Values(1000, 0, 1<<20)
	seed(t, store, values, 10)
	require.NoError(t, store.Delete(ctx, "9"))

	metrics := &BasicMetricsCollector{}
	cfg := Config{Selectors: 4, Aggregators: 2, KeyHigh: 10, K: 5, Slots: 2}
	res, err := RunLocal(ctx, cfg, 9, store, WithMetricsCollector(metrics), WithLogger(NoopLogger()))
	require.NoError(t, err)

	assert.Equal(t, testutil.TopK(values[:900], 5), res.Values)
	assert.Equal(t, int64(1), metrics.GetFetchStats().Missing)
}

func TestRunLocal_SharedController(t *testing.T) {
	store := blobstore.NewMemoryStore()
	seed(t, store, []int64{1, 2, 3, 4}, 2)

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
	res, err := RunLocal(context.Background(), Config{Selectors: 2, K: 2, Slots: 2, BufferSize: 1024}, 3, store,
		WithResourceController(rc))
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3}, res.Values)
	assert.Zero(t, rc.MemoryUsage())
}

func TestRunLocal_ConfigErrors(t *testing.T) {
	store := blobstore.NewMemoryStore()
	ctx := context.Background()

	tests := []struct {
		name  string
		cfg   Config
		procs int
	}{
		{"no selectors", Config{}, 4},
		{"too few processes", Config{Selectors: 4, Aggregators: 2}, 6},
		{"negative k", Config{Selectors: 1, K: -1}, 2},
		{"negative aggregators", Config{Selectors: 1, Aggregators: -1}, 2},
		{"k beyond frame payload", Config{Selectors: 1, K: 200_000}, 2},
		{"memory below slot buffers", Config{Selectors: 2, Slots: 4, BufferSize: 1024, MemoryLimitBytes: 1000}, 3},
		{"memory below default buffers", Config{Selectors: 1, MemoryLimitBytes: 1 << 20}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RunLocal(ctx, tt.cfg, tt.procs, store)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestConfig_ValidateLimits(t *testing.T) {
	maxK := (transport.DefaultMaxPayload - wire.FrameSize(0)) / 8
	require.NoError(t, Config{Selectors: 1, K: maxK}.Validate(2))
	require.ErrorIs(t, Config{Selectors: 1, K: maxK + 1}.Validate(2), ErrConfig)

	require.NoError(t, Config{Selectors: 2, Slots: 4, BufferSize: 1024, MemoryLimitBytes: 4096}.Validate(3))
	require.NoError(t, Config{Selectors: 2, Slots: 4, BufferSize: 1024}.Validate(3))
}

func TestRunLocal_ControllerBelowReservation(t *testing.T) {
	store := blobstore.NewMemoryStore()
	seed(t, store, []int64{1, 2, 3, 4}, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1000})
	start := time.Now()
	_, err := RunLocal(ctx, Config{Selectors: 2, Slots: 4, BufferSize: 1024}, 3, store, WithResourceController(rc))
	require.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRun_NoStoreForSelector(t *testing.T) {
	eps := transport.NewLocalGroup(2)
	_, err := Run(context.Background(), Config{Selectors: 1}, nil, eps[1])
	assert.ErrorIs(t, err, ErrConfig)
}

func TestRun_IdleRank(t *testing.T) {
	eps := transport.NewLocalGroup(4)
	res, err := Run(context.Background(), Config{Selectors: 2}, nil, eps[3])
	require.NoError(t, err)
	assert.Equal(t, topology.RoleIdle, res.Role)
	assert.Nil(t, res.Values)
}

func TestRun_TCP(t *testing.T) {
	store := blobstore.NewMemoryStore()
	rng := testutil.NewRNG(11)
	values := rng.Values(300, -500, 500)
	seed(t, store, values, 3)

	const n = 4
	listeners := make([]net.Listener, n)
	peers := make([]string, n)
	for i := range listeners {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[i] = ln
		peers[i] = ln.Addr().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := make([]*Result, n)
	g, gctx := errgroup.WithContext(ctx)
	for i, ln := range listeners {
		tr, err := transport.NewTCP(ln, transport.TCPConfig{Rank: i, Peers: peers, DialTimeout: 5 * time.Second, Logger: NoopLogger().Logger})
		require.NoError(t, err)
		t.Cleanup(func() { _ = tr.Close() })

		g.Go(func() error {
			res, err := Run(gctx, Config{Selectors: 3, K: 4}, store, tr)
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, testutil.TopK(values, 4), results[0].Values)
	for _, r := range results[1:] {
		require.NotNil(t, r.Selector)
		assert.Equal(t, uint64(1), r.Selector.Folded.GetCardinality())
	}
}

func TestRun_TransportFailure(t *testing.T) {
	eps := transport.NewLocalGroup(2)
	require.NoError(t, eps[0].Close())

	_, err := Run(context.Background(), Config{Selectors: 1}, blobstore.NewMemoryStore(), eps[1])
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"config", &topology.ConfigError{Field: "selectors", Reason: "x"}, ErrConfig},
		{"k", topk.ErrInvalidK, ErrConfig},
		{"role", node.ErrRole, ErrConfig},
		{"memory", fmt.Errorf("fetch: %w", resource.ErrMemoryLimitExceeded), ErrConfig},
		{"transport", &transport.Error{Op: "send", Err: transport.ErrClosed}, ErrTransport},
		{"wire", fmt.Errorf("decode: %w", wire.ErrChecksum), ErrTransport},
		{"fetch", &node.FetchError{Key: 1, Name: "1", Err: errors.New("boom")}, ErrFetch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	other := errors.New("other")
	assert.Equal(t, other, translateError(other))
	assert.ErrorIs(t, translateError(context.Canceled), context.Canceled)
}
