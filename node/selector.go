package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/treetopk/blobstore"
	"github.com/hupe1980/treetopk/fetch"
	"github.com/hupe1980/treetopk/record"
	"github.com/hupe1980/treetopk/resource"
	"github.com/hupe1980/treetopk/topk"
	"github.com/hupe1980/treetopk/topology"
	"github.com/hupe1980/treetopk/transport"
	"github.com/hupe1980/treetopk/wire"
)

const (
	// DefaultKeyFormat maps a shard key to its object name.
	DefaultKeyFormat = "%d"
	// DefaultWaitTimeout bounds a single wait for a fetch slot before the
	// selector logs and waits again.
	DefaultWaitTimeout = time.Second
)

// SelectorConfig configures a Selector.
type SelectorConfig struct {
	Assignment topology.Assignment
	K          int
	Store      blobstore.BlobStore
	Transport  transport.Transport

	// KeyFormat is a fmt format with a single integer verb. Defaults to "%d".
	KeyFormat string
	// Slots is the number of reads kept in flight. Defaults to fetch.DefaultSlots.
	Slots int
	// BufferSize is the per-slot buffer size. Defaults to fetch.DefaultBufferSize.
	BufferSize int
	// WaitTimeout defaults to DefaultWaitTimeout.
	WaitTimeout time.Duration

	Controller *resource.Controller
	Logger     *slog.Logger
	Metrics    Metrics
}

// SelectorReport summarizes a selector run.
type SelectorReport struct {
	Rank  int
	Shard topology.ShardRange
	// Folded holds the keys whose objects were decoded and merged.
	Folded *roaring64.Bitmap
	// Missing holds the keys whose objects do not exist.
	Missing *roaring64.Bitmap
	// Failed holds the keys whose objects could not be read or decoded.
	Failed *roaring64.Bitmap
	// Truncated counts objects larger than the fetch buffer.
	Truncated int
	// Values and Malformed count decoded lines across all objects.
	Values    int
	Malformed int
	// Bytes is the number of object bytes read.
	Bytes int64
	// Snapshot is the payload sent to the parent, padded to K.
	Snapshot []int64
	Elapsed  time.Duration
}

// Selector scans one shard range and reports its top-K to its parent.
type Selector struct {
	cfg    SelectorConfig
	merger *topk.Merger
	logger *slog.Logger
}

// NewSelector validates cfg and creates a Selector.
func NewSelector(cfg SelectorConfig) (*Selector, error) {
	if cfg.Assignment.Role != topology.RoleSelector {
		return nil, fmt.Errorf("%w: rank %d is %s, not selector", ErrRole, cfg.Assignment.Rank, cfg.Assignment.Role)
	}
	if err := topk.ValidateK(cfg.K); err != nil {
		return nil, err
	}
	if cfg.Store == nil || cfg.Transport == nil {
		return nil, errors.New("node: selector needs a store and a transport")
	}
	if cfg.KeyFormat == "" {
		cfg.KeyFormat = DefaultKeyFormat
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	return &Selector{
		cfg:    cfg,
		merger: topk.New(cfg.K),
		logger: cfg.Logger.With("rank", cfg.Assignment.Rank, "role", topology.RoleSelector.String()),
	}, nil
}

// ObjectName returns the object name of key.
func (s *Selector) ObjectName(key int64) string {
	return fmt.Sprintf(s.cfg.KeyFormat, key)
}

// Run fetches and folds every key of the shard, then sends the snapshot to
// the parent. Only transport failures and context cancellation are returned.
func (s *Selector) Run(ctx context.Context) (SelectorReport, error) {
	start := time.Now()
	a := s.cfg.Assignment
	report := SelectorReport{
		Rank:    a.Rank,
		Shard:   a.Shard,
		Folded:  roaring64.New(),
		Missing: roaring64.New(),
		Failed:  roaring64.New(),
	}

	s.logger.InfoContext(ctx, "selector started", "shard", a.Shard.String(), "parent", a.Parent)

	pool, err := fetch.NewPool(ctx, resource.Throttle(s.cfg.Store, s.cfg.Controller), fetch.Config{
		Slots:      s.cfg.Slots,
		BufferSize: s.cfg.BufferSize,
		Controller: s.cfg.Controller,
		Logger:     s.logger,
	})
	if err != nil {
		return report, err
	}
	defer func() { _ = pool.Close() }()

	next := int64(a.Shard.Low)
	high := int64(a.Shard.High)

	for slot := 0; slot < pool.Len() && next < high; slot++ {
		if err := pool.PendGet(ctx, slot, next, s.ObjectName(next)); err != nil {
			return report, err
		}
		next++
	}

	startFrom := 0
	for pool.Pending() > 0 {
		slot, err := pool.WaitAny(ctx, startFrom, s.cfg.WaitTimeout)
		if errors.Is(err, fetch.ErrWaitTimeout) {
			s.logger.DebugContext(ctx, "still waiting for fetches", "pending", pool.Pending(), "timeout", s.cfg.WaitTimeout)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("selector %d: wait for fetch: %w", a.Rank, err)
		}

		resp, err := pool.CompleteGet(slot)
		if err != nil {
			return report, err
		}
		// Fold before the slot buffer is reused.
		s.fold(ctx, &report, resp)
		startFrom = (slot + 1) % pool.Len()

		if next < high {
			if err := pool.PendGet(ctx, slot, next, s.ObjectName(next)); err != nil {
				return report, err
			}
			next++
		}
	}

	report.Snapshot = s.merger.Snapshot()
	payload := wire.Marshal(wire.Message{Sender: a.Rank, Values: report.Snapshot})
	err = s.cfg.Transport.Send(ctx, a.Parent, payload)
	s.cfg.Metrics.RecordSend(len(payload), err)
	if err != nil {
		return report, fmt.Errorf("selector %d: send snapshot: %w", a.Rank, err)
	}

	report.Elapsed = time.Since(start)
	s.logger.InfoContext(ctx, "selector finished",
		"folded", report.Folded.GetCardinality(),
		"missing", report.Missing.GetCardinality(),
		"failed", report.Failed.GetCardinality(),
		"values", report.Values,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

func (s *Selector) fold(ctx context.Context, report *SelectorReport, resp fetch.Response) {
	s.cfg.Metrics.RecordFetch(resp.Elapsed, len(resp.Data), resp.Found, resp.Err)
	key := uint64(resp.Key)

	if resp.Err != nil {
		report.Failed.Add(key)
		s.logger.ErrorContext(ctx, "fetch failed", "key", resp.Key, "object", resp.Name,
			"error", &FetchError{Key: resp.Key, Name: resp.Name, Err: resp.Err})
		return
	}
	if !resp.Found {
		report.Missing.Add(key)
		s.logger.WarnContext(ctx, "object not found", "key", resp.Key, "object", resp.Name)
		return
	}

	report.Bytes += int64(len(resp.Data))
	if resp.Truncated {
		report.Truncated++
		s.logger.WarnContext(ctx, "object larger than fetch buffer, folding complete records only",
			"key", resp.Key, "object", resp.Name, "buffer", len(resp.Data))
	}

	stats, err := record.Parse(resp.Data, resp.Truncated, s.merger.Observe)
	if err != nil {
		report.Failed.Add(key)
		s.logger.ErrorContext(ctx, "decode failed", "key", resp.Key, "object", resp.Name,
			"error", &FetchError{Key: resp.Key, Name: resp.Name, Err: err})
		return
	}
	if stats.Malformed > 0 {
		s.logger.WarnContext(ctx, "skipped malformed records", "key", resp.Key, "object", resp.Name, "malformed", stats.Malformed)
	}

	report.Values += stats.Values
	report.Malformed += stats.Malformed
	report.Folded.Add(key)
	s.cfg.Metrics.RecordFold(stats.Values, stats.Malformed)
}
