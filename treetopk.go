package treetopk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/treetopk/blobstore"
	"github.com/hupe1980/treetopk/fetch"
	"github.com/hupe1980/treetopk/node"
	"github.com/hupe1980/treetopk/resource"
	"github.com/hupe1980/treetopk/topk"
	"github.com/hupe1980/treetopk/topology"
	"github.com/hupe1980/treetopk/transport"
	"github.com/hupe1980/treetopk/wire"
)

// Config describes a run. Every process of a run must use the same Config.
type Config struct {
	// Selectors is the number of leaf selectors (S). Required.
	Selectors int
	// Aggregators is the number of inner aggregators (A).
	Aggregators int
	// KeyHigh is the exclusive upper bound of the shard keys. Zero means Selectors.
	KeyHigh int
	// K is the number of values to report. Zero means topk.DefaultK.
	K int
	// KeyFormat maps a key to an object name. Defaults to "%d".
	KeyFormat string
	// Slots is the number of reads each selector keeps in flight.
	Slots int
	// BufferSize is the per-slot fetch buffer size in bytes.
	BufferSize int
	// WaitTimeout is how long a selector waits for a read before logging and waiting again.
	WaitTimeout time.Duration
	// MemoryLimitBytes bounds fetch buffer memory per process. Zero is unlimited.
	MemoryLimitBytes int64
	// IOLimitBytesPerSec bounds read throughput per process. Zero is unlimited.
	IOLimitBytesPerSec int64
}

func (c Config) k() int {
	if c.K == 0 {
		return topk.DefaultK
	}
	return c.K
}

// Params returns the planner input for a group of the given size.
func (c Config) Params(processes int) topology.Params {
	return topology.Params{
		Processes:   processes,
		Selectors:   c.Selectors,
		Aggregators: c.Aggregators,
		KeyHigh:     c.KeyHigh,
	}
}

// reservation returns the fetch buffer memory one selector holds.
func (c Config) reservation() int64 {
	slots, size := c.Slots, c.BufferSize
	if slots <= 0 {
		slots = fetch.DefaultSlots
	}
	if size <= 0 {
		size = fetch.DefaultBufferSize
	}
	return int64(slots) * int64(size)
}

// Validate checks the configuration against a group of the given size.
func (c Config) Validate(processes int) error {
	if err := c.Params(processes).Validate(); err != nil {
		return translateError(err)
	}
	if err := topk.ValidateK(c.k()); err != nil {
		return translateError(err)
	}
	if n := wire.FrameSize(c.k()); n > transport.DefaultMaxPayload {
		return fmt.Errorf("%w: k %d needs %d byte frames, transport accepts at most %d",
			ErrConfig, c.k(), n, transport.DefaultMaxPayload)
	}
	if r := c.reservation(); c.MemoryLimitBytes > 0 && r > c.MemoryLimitBytes {
		return fmt.Errorf("%w: memory limit %d is below the %d bytes of fetch buffers one selector reserves",
			ErrConfig, c.MemoryLimitBytes, r)
	}
	return nil
}

// Result is the outcome of one rank's run.
type Result struct {
	Rank int
	Role topology.Role
	// Values holds the final top-K in descending order. Root only.
	Values []int64
	// Selector is set when the rank ran as a selector.
	Selector *node.SelectorReport
	// Aggregator is set when the rank ran as the root or an inner aggregator.
	Aggregator *node.AggregatorReport
}

// Run plans the role of tr.Rank() in a group of tr.Size() processes and
// performs it. The transport is not closed.
func Run(ctx context.Context, cfg Config, store blobstore.BlobStore, tr transport.Transport, optFns ...Option) (*Result, error) {
	o := applyOptions(optFns)
	rc := o.controller
	if rc == nil {
		rc = resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.MemoryLimitBytes,
			IOLimitBytesPerSec: cfg.IOLimitBytesPerSec,
		})
	}
	return run(ctx, cfg, store, tr, rc, o)
}

func run(ctx context.Context, cfg Config, store blobstore.BlobStore, tr transport.Transport, rc *resource.Controller, o options) (*Result, error) {
	if err := cfg.Validate(tr.Size()); err != nil {
		return nil, err
	}

	a, err := topology.Plan(cfg.Params(tr.Size()), tr.Rank())
	if err != nil {
		return nil, translateError(err)
	}

	logger := o.logger.WithRank(a.Rank)
	logger.LogPlan(ctx, a)

	res := &Result{Rank: a.Rank, Role: a.Role}

	switch a.Role {
	case topology.RoleIdle:
		return res, nil

	case topology.RoleSelector:
		if store == nil {
			return nil, fmt.Errorf("%w: selector rank %d has no blob store", ErrConfig, a.Rank)
		}
		sel, err := node.NewSelector(node.SelectorConfig{
			Assignment:  a,
			K:           cfg.k(),
			Store:       store,
			Transport:   tr,
			KeyFormat:   cfg.KeyFormat,
			Slots:       cfg.Slots,
			BufferSize:  cfg.BufferSize,
			WaitTimeout: cfg.WaitTimeout,
			Controller:  rc,
			Logger:      o.logger.Logger,
			Metrics:     o.metricsCollector,
		})
		if err != nil {
			return nil, translateError(err)
		}
		rep, err := sel.Run(ctx)
		res.Selector = &rep
		err = translateError(err)
		logger.LogRun(ctx, res, err)
		if err != nil {
			return nil, err
		}
		return res, nil

	default:
		agg, err := node.NewAggregator(node.AggregatorConfig{
			Assignment: a,
			K:          cfg.k(),
			Transport:  tr,
			Logger:     o.logger.Logger,
			Metrics:    o.metricsCollector,
		})
		if err != nil {
			return nil, translateError(err)
		}
		rep, err := agg.Run(ctx)
		res.Aggregator = &rep
		res.Values = rep.Result
		err = translateError(err)
		logger.LogRun(ctx, res, err)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

// RunLocal runs a whole group of the given size in this process, one
// goroutine per rank over an in-process transport, and returns the root's
// result. The first rank to fail cancels the others.
func RunLocal(ctx context.Context, cfg Config, processes int, store blobstore.BlobStore, optFns ...Option) (*Result, error) {
	if err := cfg.Validate(processes); err != nil {
		return nil, err
	}

	o := applyOptions(optFns)
	rc := o.controller
	if rc == nil {
		rc = resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.MemoryLimitBytes,
			IOLimitBytesPerSec: cfg.IOLimitBytesPerSec,
		})
	}

	eps := transport.NewLocalGroup(processes)
	defer func() {
		for _, ep := range eps {
			_ = ep.Close()
		}
	}()

	var root *Result
	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range eps {
		g.Go(func() error {
			res, err := run(gctx, cfg, store, ep, rc, o)
			if err != nil {
				return err
			}
			if res.Role == topology.RoleRoot {
				root = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.New("treetopk: root produced no result")
	}
	return root, nil
}
