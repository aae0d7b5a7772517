package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/treetopk/topk"
	"github.com/hupe1980/treetopk/topology"
	"github.com/hupe1980/treetopk/transport"
	"github.com/hupe1980/treetopk/wire"
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	Assignment topology.Assignment
	K          int
	Transport  transport.Transport
	Logger     *slog.Logger
	Metrics    Metrics
}

// AggregatorReport summarizes an aggregator run.
type AggregatorReport struct {
	Rank int
	Role topology.Role
	// Senders lists the ranks whose snapshots were merged, in arrival order.
	Senders []int
	// Result holds the merged values in descending order. It is set for the
	// root only and holds fewer than K values when the dataset is smaller.
	Result []int64
	// Snapshot is the payload an inner aggregator forwarded.
	Snapshot []int64
	Elapsed  time.Duration
}

// Aggregator merges the snapshots of its children.
type Aggregator struct {
	cfg    AggregatorConfig
	merger *topk.Merger
	logger *slog.Logger
}

// NewAggregator validates cfg and creates an Aggregator for a root or inner
// aggregator assignment.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	role := cfg.Assignment.Role
	if role != topology.RoleRoot && role != topology.RoleInnerAggregator {
		return nil, fmt.Errorf("%w: rank %d is %s, not an aggregator", ErrRole, cfg.Assignment.Rank, role)
	}
	if err := topk.ValidateK(cfg.K); err != nil {
		return nil, err
	}
	if cfg.Transport == nil {
		return nil, errors.New("node: aggregator needs a transport")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	return &Aggregator{
		cfg:    cfg,
		merger: topk.New(cfg.K),
		logger: cfg.Logger.With("rank", cfg.Assignment.Rank, "role", role.String()),
	}, nil
}

// Run receives exactly the expected number of snapshots and merges them.
// The root returns the result; an inner aggregator forwards its snapshot.
func (a *Aggregator) Run(ctx context.Context) (AggregatorReport, error) {
	start := time.Now()
	as := a.cfg.Assignment
	report := AggregatorReport{Rank: as.Rank, Role: as.Role}

	a.logger.InfoContext(ctx, "aggregator started", "expected", as.Expected, "parent", as.Parent)

	for len(report.Senders) < as.Expected {
		payload, err := a.cfg.Transport.ReceiveAny(ctx)
		a.cfg.Metrics.RecordReceive(len(payload), err)
		if err != nil {
			return report, fmt.Errorf("aggregator %d: receive %d of %d: %w", as.Rank, len(report.Senders)+1, as.Expected, err)
		}

		msg, err := wire.Unmarshal(payload, a.cfg.K)
		if err != nil {
			return report, &transport.Error{Op: "receive", Rank: as.Rank, Peer: -1, Err: err}
		}
		a.merger.Merge(msg.Values)
		report.Senders = append(report.Senders, msg.Sender)
		a.logger.DebugContext(ctx, "merged snapshot", "sender", msg.Sender, "received", len(report.Senders))
	}

	if as.Role == topology.RoleRoot {
		report.Result = a.merger.SortedDescending()
		report.Elapsed = time.Since(start)
		a.logger.InfoContext(ctx, "reduction complete", "values", len(report.Result), "elapsed", report.Elapsed)
		return report, nil
	}

	report.Snapshot = a.merger.Snapshot()
	payload := wire.Marshal(wire.Message{Sender: as.Rank, Values: report.Snapshot})
	err := a.cfg.Transport.Send(ctx, as.Parent, payload)
	a.cfg.Metrics.RecordSend(len(payload), err)
	if err != nil {
		return report, fmt.Errorf("aggregator %d: send snapshot: %w", as.Rank, err)
	}

	report.Elapsed = time.Since(start)
	a.logger.InfoContext(ctx, "aggregator finished", "received", len(report.Senders), "elapsed", report.Elapsed)
	return report, nil
}
