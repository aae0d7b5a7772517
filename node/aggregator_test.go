package node

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/treetopk/topk"
	"github.com/hupe1980/treetopk/topology"
	"github.com/hupe1980/treetopk/transport"
	"github.com/hupe1980/treetopk/wire"
)

type countingMetrics struct {
	fetches  atomic.Int64
	folds    atomic.Int64
	sends    atomic.Int64
	receives atomic.Int64
}

func (m *countingMetrics) RecordFetch(time.Duration, int, bool, error) { m.fetches.Add(1) }
func (m *countingMetrics) RecordFold(int, int)                         { m.folds.Add(1) }
func (m *countingMetrics) RecordSend(int, error)                       { m.sends.Add(1) }
func (m *countingMetrics) RecordReceive(int, error)                    { m.receives.Add(1) }

func TestAggregator_Root(t *testing.T) {
	ctx := context.Background()
	eps := transport.NewLocalGroup(3)

	require.NoError(t, eps[1].Send(ctx, 0, wire.Marshal(wire.Message{Sender: 1, Values: []int64{5, 9, topk.Sentinel}})))
	require.NoError(t, eps[2].Send(ctx, 0, wire.Marshal(wire.Message{Sender: 2, Values: []int64{7, 1, 8}})))

	metrics := &countingMetrics{}
	agg, err := NewAggregator(AggregatorConfig{
		Assignment: topology.Assignment{Rank: 0, Role: topology.RoleRoot, Parent: topology.NoParent, Expected: 2},
		K:          3, Transport: eps[0], Logger: discardLogger(), Metrics: metrics,
	})
	require.NoError(t, err)

	rep, err := agg.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 8, 7}, rep.Result)
	assert.ElementsMatch(t, []int{1, 2}, rep.Senders)
	assert.Equal(t, int64(2), metrics.receives.Load())
	assert.Zero(t, metrics.sends.Load())
}

func TestAggregator_InnerForwards(t *testing.T) {
	ctx := context.Background()
	eps := transport.NewLocalGroup(3)

	require.NoError(t, eps[1].Send(ctx, 2, wire.Marshal(wire.Message{Sender: 1, Values: []int64{4, 6}})))

	agg, err := NewAggregator(AggregatorConfig{
		Assignment: topology.Assignment{Rank: 2, Role: topology.RoleInnerAggregator, Parent: 0, Expected: 1},
		K:          2, Transport: eps[2], Logger: discardLogger(),
	})
	require.NoError(t, err)

	rep, err := agg.Run(ctx)
	require.NoError(t, err)
	assert.Nil(t, rep.Result)

	payload, err := eps[0].ReceiveAny(ctx)
	require.NoError(t, err)
	msg, err := wire.Unmarshal(payload, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, msg.Sender)
	assert.ElementsMatch(t, []int64{4, 6}, msg.Values)
}

func TestAggregator_ZeroExpected(t *testing.T) {
	ctx := context.Background()
	eps := transport.NewLocalGroup(2)

	agg, err := NewAggregator(AggregatorConfig{
		Assignment: topology.Assignment{Rank: 1, Role: topology.RoleInnerAggregator, Parent: 0, Expected: 0},
		K:          2, Transport: eps[1], Logger: discardLogger(),
	})
	require.NoError(t, err)

	_, err = agg.Run(ctx)
	require.NoError(t, err)

	payload, err := eps[0].ReceiveAny(ctx)
	require.NoError(t, err)
	msg, err := wire.Unmarshal(payload, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{topk.Sentinel, topk.Sentinel}, msg.Values)
}

func TestAggregator_BadFrame(t *testing.T) {
	ctx := context.Background()
	eps := transport.NewLocalGroup(2)

	require.NoError(t, eps[1].Send(ctx, 0, wire.Marshal(wire.Message{Sender: 1, Values: []int64{1, 2, 3}})))

	agg, err := NewAggregator(AggregatorConfig{
		Assignment: topology.Assignment{Rank: 0, Role: topology.RoleRoot, Parent: topology.NoParent, Expected: 1},
		K:          2, Transport: eps[0], Logger: discardLogger(),
	})
	require.NoError(t, err)

	_, err = agg.Run(ctx)
	var te *transport.Error
	require.ErrorAs(t, err, &te)
	var wm *wire.ErrWidthMismatch
	assert.ErrorAs(t, err, &wm)
}

func TestAggregator_ReceiveCanceled(t *testing.T) {
	eps := transport.NewLocalGroup(1)
	agg, err := NewAggregator(AggregatorConfig{
		Assignment: topology.Assignment{Rank: 0, Role: topology.RoleRoot, Parent: topology.NoParent, Expected: 1},
		K:          1, Transport: eps[0], Logger: discardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = agg.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewAggregator_Errors(t *testing.T) {
	tr := transport.NewLocalGroup(1)[0]

	_, err := NewAggregator(AggregatorConfig{Assignment: topology.Assignment{Role: topology.RoleSelector}, K: 1, Transport: tr})
	assert.ErrorIs(t, err, ErrRole)

	_, err = NewAggregator(AggregatorConfig{Assignment: topology.Assignment{Role: topology.RoleRoot}, K: -1, Transport: tr})
	assert.Error(t, err)

	_, err = NewAggregator(AggregatorConfig{Assignment: topology.Assignment{Role: topology.RoleRoot}, K: 1})
	assert.Error(t, err)
}
