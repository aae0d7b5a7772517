package treetopk

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/treetopk/topology"
)

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	l.WithRank(3).WithRole(topology.RoleSelector).Info("hello")
	assert.Contains(t, buf.String(), "rank=3")
	assert.Contains(t, buf.String(), "role=selector")

	buf.Reset()
	l.LogPlan(ctx, topology.Assignment{Rank: 2, Role: topology.RoleSelector, Shard: topology.ShardRange{Low: 4, High: 8}, Parent: 0})
	assert.Contains(t, buf.String(), "shard=[4,8)")

	buf.Reset()
	l.LogPlan(ctx, topology.Assignment{Rank: 9, Role: topology.RoleIdle, Parent: topology.NoParent})
	assert.Contains(t, buf.String(), "no role assigned")

	buf.Reset()
	l.LogRun(ctx, nil, errors.New("boom"))
	assert.Contains(t, buf.String(), "run failed")

	buf.Reset()
	l.LogRun(ctx, &Result{Role: topology.RoleRoot, Values: []int64{1, 2}}, nil)
	assert.Contains(t, buf.String(), "k=2")
}

func TestLogger_Constructors(t *testing.T) {
	assert.NotNil(t, NewLogger(nil).Logger)
	assert.NotNil(t, NewJSONLogger(slog.LevelWarn).Logger)
	assert.NotNil(t, NewTextLogger(slog.LevelDebug).Logger)
	assert.False(t, NoopLogger().Enabled(context.Background(), slog.LevelError+100))
}

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}
	m.RecordFetch(2*time.Millisecond, 100, true, nil)
	m.RecordFetch(4*time.Millisecond, 0, false, nil)
	m.RecordFetch(0, 0, false, errors.New("x"))
	m.RecordFold(10, 1)
	m.RecordSend(96, nil)
	m.RecordReceive(96, errors.New("y"))

	stats := m.GetFetchStats()
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, int64(1), stats.Missing)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(100), stats.Bytes)
	assert.Equal(t, int64(2*time.Millisecond), stats.AvgLatencyNs)
	assert.Equal(t, int64(1), m.FoldMalformed.Load())
	assert.Equal(t, int64(1), m.ReceiveErrors.Load())

	var noop MetricsCollector = NoopMetricsCollector{}
	noop.RecordFetch(0, 0, true, nil)
	assert.Equal(t, FetchStats{}, (&BasicMetricsCollector{}).GetFetchStats())
}
