package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/treetopk/blobstore"
	"github.com/hupe1980/treetopk/resource"
)

// gatedStore blocks each read until its name is released.
type gatedStore struct {
	*blobstore.MemoryStore

	mu    sync.Mutex
	gates map[string]chan struct{}
	fail  map[string]error
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: blobstore.NewMemoryStore(),
		gates:       make(map[string]chan struct{}),
		fail:        make(map[string]error),
	}
}

func (s *gatedStore) gate(name string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[name]
	if !ok {
		g = make(chan struct{})
		s.gates[name] = g
	}
	return g
}

func (s *gatedStore) release(name string) { close(s.gate(name)) }

func (s *gatedStore) GetInto(ctx context.Context, name string, buf []byte) (int, bool, error) {
	select {
	case <-s.gate(name):
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
	s.mu.Lock()
	err := s.fail[name]
	s.mu.Unlock()
	if err != nil {
		return 0, false, err
	}
	return s.MemoryStore.GetInto(ctx, name, buf)
}

func newTestPool(t *testing.T, store blobstore.BlobStore, slots, bufSize int) *Pool {
	t.Helper()
	p, err := NewPool(context.Background(), store, Config{
		Slots:      slots,
		BufferSize: bufSize,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPool_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "0", []byte("1\n2\n")))
	require.NoError(t, store.Put(ctx, "1", []byte("0123456789")))

	p := newTestPool(t, store, 3, 8)
	assert.Equal(t, 3, p.Len())

	require.NoError(t, p.PendGet(ctx, 0, 0, "0"))
	require.NoError(t, p.PendGet(ctx, 1, 1, "1"))
	require.NoError(t, p.PendGet(ctx, 2, 2, "2"))

	seen := map[int64]Response{}
	for range 3 {
		i, err := p.WaitAny(ctx, 0, time.Second)
		require.NoError(t, err)
		resp, err := p.CompleteGet(i)
		require.NoError(t, err)
		seen[resp.Key] = resp
	}

	assert.True(t, seen[0].Found)
	assert.False(t, seen[0].Truncated)
	assert.Equal(t, "1\n2\n", string(seen[0].Data))

	assert.True(t, seen[1].Found)
	assert.True(t, seen[1].Truncated)
	assert.Equal(t, "01234567", string(seen[1].Data))

	assert.False(t, seen[2].Found)
	assert.NoError(t, seen[2].Err)
	assert.Equal(t, "2", seen[2].Name)

	_, err := p.WaitAny(ctx, 0, time.Second)
	assert.ErrorIs(t, err, ErrNoPending)
	assert.Zero(t, p.Pending())
}

func TestPool_SlotDiscipline(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore()
	p := newTestPool(t, store, 2, 16)

	require.NoError(t, p.PendGet(ctx, 0, 0, "a"))
	assert.ErrorIs(t, p.PendGet(ctx, 0, 1, "b"), ErrSlotBusy)

	_, err := p.CompleteGet(0)
	assert.ErrorIs(t, err, ErrNotCompleted)
	_, err = p.CompleteGet(1)
	assert.ErrorIs(t, err, ErrNotCompleted)
	_, err = p.CompleteGet(5)
	assert.Error(t, err)
	assert.Error(t, p.PendGet(ctx, -1, 0, "x"))

	store.release("a")
	i, err := p.WaitAny(ctx, 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	// Completed but not collected is still busy.
	assert.ErrorIs(t, p.PendGet(ctx, 0, 1, "b"), ErrSlotBusy)

	_, err = p.CompleteGet(0)
	require.NoError(t, err)
	_, err = p.CompleteGet(0)
	assert.ErrorIs(t, err, ErrNotCompleted)

	require.NoError(t, p.PendGet(ctx, 0, 1, "b"))
	assert.Equal(t, 1, p.Pending())
	store.release("b")
	i, err = p.WaitAny(ctx, 0, time.Second)
	require.NoError(t, err)
	resp, err := p.CompleteGet(i)
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Key)
}

func TestPool_WaitAnyRotation(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore()
	p := newTestPool(t, store, 3, 16)

	for i, name := range []string{"a", "b", "c"} {
		require.NoError(t, p.PendGet(ctx, i, int64(i), name))
		store.release(name)
	}

	// Wait until every slot has completed.
	require.Eventually(t, func() bool {
		for i := range p.slots {
			if slotState(p.slots[i].state.Load()) != stateCompleted {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	for _, start := range []int{0, 1, 2, 4} {
		i, err := p.WaitAny(ctx, start, time.Second)
		require.NoError(t, err)
		assert.Equal(t, start%3, i)
	}

	i, err := p.WaitAny(ctx, 2, time.Second)
	require.NoError(t, err)
	_, err = p.CompleteGet(i)
	require.NoError(t, err)

	i, err = p.WaitAny(ctx, 2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
}

func TestPool_WaitAnyTimeout(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore()
	p := newTestPool(t, store, 1, 16)

	require.NoError(t, p.PendGet(ctx, 0, 0, "slow"))

	_, err := p.WaitAny(ctx, 0, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.WaitAny(cctx, 0, 0)
	assert.ErrorIs(t, err, context.Canceled)

	// The slot is still pending and completes normally afterwards.
	store.release("slow")
	i, err := p.WaitAny(ctx, 0, time.Second)
	require.NoError(t, err)
	resp, err := p.CompleteGet(i)
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestPool_ReadError(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore()
	boom := errors.New("connection reset")
	store.fail["bad"] = boom
	store.release("bad")

	p := newTestPool(t, store, 1, 16)
	require.NoError(t, p.PendGet(ctx, 0, 9, "bad"))

	i, err := p.WaitAny(ctx, 0, time.Second)
	require.NoError(t, err)
	resp, err := p.CompleteGet(i)
	require.NoError(t, err)
	assert.ErrorIs(t, resp.Err, boom)
	assert.False(t, resp.Found)
}

func TestPool_MemoryReservation(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})

	p, err := NewPool(ctx, blobstore.NewMemoryStore(), Config{Slots: 4, BufferSize: 20, Controller: rc})
	require.NoError(t, err)
	assert.Equal(t, int64(80), rc.MemoryUsage())

	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = NewPool(tctx, blobstore.NewMemoryStore(), Config{Slots: 4, BufferSize: 20, Controller: rc})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Zero(t, rc.MemoryUsage())
	assert.ErrorIs(t, p.PendGet(ctx, 0, 0, "x"), ErrClosed)
}

func TestPool_ReservationAboveLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1000})

	_, err := NewPool(context.Background(), blobstore.NewMemoryStore(), Config{Slots: 4, BufferSize: 1024, Controller: rc})
	require.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Zero(t, rc.MemoryUsage())

	// Defaults count against the limit too.
	_, err = NewPool(context.Background(), blobstore.NewMemoryStore(), Config{Controller: rc})
	require.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
}

func TestPool_Defaults(t *testing.T) {
	p, err := NewPool(context.Background(), blobstore.NewMemoryStore(), Config{})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, DefaultSlots, p.Len())
	assert.Len(t, p.slots[0].buf, DefaultBufferSize)
}
