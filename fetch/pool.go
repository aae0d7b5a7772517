package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/treetopk/blobstore"
	"github.com/hupe1980/treetopk/resource"
)

const (
	// DefaultSlots is the number of concurrent reads per selector.
	DefaultSlots = 16
	// DefaultBufferSize is the per-slot buffer size.
	DefaultBufferSize = 1 << 20
)

var (
	// ErrWaitTimeout is returned by WaitAny when no slot completed in time.
	ErrWaitTimeout = errors.New("fetch: wait timed out")
	// ErrNoPending is returned by WaitAny when no slot is pending or completed.
	ErrNoPending = errors.New("fetch: no pending slots")
	// ErrSlotBusy is returned by PendGet for a slot that is pending or not yet collected.
	ErrSlotBusy = errors.New("fetch: slot busy")
	// ErrNotCompleted is returned by CompleteGet for a slot that has not completed.
	ErrNotCompleted = errors.New("fetch: slot not completed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("fetch: pool closed")
)

type slotState int32

const (
	stateIdle slotState = iota
	statePending
	stateCompleted
	stateCollected
)

// Response is the outcome of one read.
type Response struct {
	// Key is the shard key passed to PendGet.
	Key int64
	// Name is the object name passed to PendGet.
	Name string
	// Found is false when the object does not exist.
	Found bool
	// Truncated reports that the object was larger than the slot buffer.
	Truncated bool
	// Data holds the bytes read. It aliases the slot buffer.
	Data []byte
	// Err is a read failure other than not-found.
	Err error
	// Elapsed is the wall time of the read.
	Elapsed time.Duration
}

type slot struct {
	state atomic.Int32
	buf   []byte
	resp  Response
}

// Config configures a Pool.
type Config struct {
	// Slots is the number of concurrent reads. Defaults to DefaultSlots.
	Slots int
	// BufferSize is the size of each slot buffer. Defaults to DefaultBufferSize.
	BufferSize int
	// Controller bounds buffer memory and read concurrency. May be nil.
	Controller *resource.Controller
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Pool is a fixed set of fetch slots reading from one store.
type Pool struct {
	store  blobstore.BlobStore
	rc     *resource.Controller
	logger *slog.Logger

	slots  []slot
	notify chan struct{}

	reserved int64
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// NewPool allocates the slot buffers, reserving them against the
// controller's memory budget.
func NewPool(ctx context.Context, store blobstore.BlobStore, cfg Config) (*Pool, error) {
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultSlots
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	reserved := int64(cfg.Slots) * int64(cfg.BufferSize)
	if limit := cfg.Controller.Config().MemoryLimitBytes; limit > 0 && reserved > limit {
		return nil, fmt.Errorf("fetch: %d bytes of slot buffers: %w (limit %d)", reserved, resource.ErrMemoryLimitExceeded, limit)
	}
	if err := cfg.Controller.AcquireMemory(ctx, reserved); err != nil {
		return nil, fmt.Errorf("fetch: reserve %d bytes of slot buffers: %w", reserved, err)
	}

	p := &Pool{
		store:    store,
		rc:       cfg.Controller,
		logger:   cfg.Logger,
		slots:    make([]slot, cfg.Slots),
		notify:   make(chan struct{}, cfg.Slots),
		reserved: reserved,
	}
	for i := range p.slots {
		p.slots[i].buf = make([]byte, cfg.BufferSize)
	}
	return p, nil
}

// Len returns the number of slots.
func (p *Pool) Len() int { return len(p.slots) }

// PendGet starts reading name into slot. The slot must be idle or collected.
func (p *Pool) PendGet(ctx context.Context, i int, key int64, name string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if i < 0 || i >= len(p.slots) {
		return fmt.Errorf("fetch: slot %d out of range [0,%d)", i, len(p.slots))
	}
	s := &p.slots[i]
	st := slotState(s.state.Load())
	if st != stateIdle && st != stateCollected {
		return fmt.Errorf("%w: slot %d", ErrSlotBusy, i)
	}

	s.resp = Response{Key: key, Name: name}
	s.state.Store(int32(statePending))

	p.wg.Add(1)
	go p.read(ctx, s)
	return nil
}

func (p *Pool) read(ctx context.Context, s *slot) {
	defer p.wg.Done()

	start := time.Now()
	resp := &s.resp

	if err := p.rc.AcquireFetch(ctx); err != nil {
		resp.Err = err
	} else {
		n, truncated, err := blobstore.ReadInto(ctx, p.store, resp.Name, s.buf)
		p.rc.ReleaseFetch()
		switch {
		case errors.Is(err, blobstore.ErrNotFound):
			resp.Found = false
		case err != nil:
			resp.Err = err
		default:
			resp.Found = true
			resp.Truncated = truncated
			resp.Data = s.buf[:n]
		}
	}
	resp.Elapsed = time.Since(start)

	s.state.Store(int32(stateCompleted))
	select {
	case p.notify <- struct{}{}:
	default:
		// Full: a waiter will wake on an earlier token and rescan.
	}
}

// WaitAny blocks until a slot has completed and returns its index. Slots are
// scanned starting at startFrom so that callers can rotate fairly. A
// non-positive timeout waits without limit.
func (p *Pool) WaitAny(ctx context.Context, startFrom int, timeout time.Duration) (int, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	n := len(p.slots)
	startFrom = ((startFrom % n) + n) % n
	for {
		outstanding := false
		for j := 0; j < n; j++ {
			i := (startFrom + j) % n
			switch slotState(p.slots[i].state.Load()) {
			case stateCompleted:
				return i, nil
			case statePending:
				outstanding = true
			}
		}
		if !outstanding {
			return -1, ErrNoPending
		}

		select {
		case <-p.notify:
		case <-deadline:
			return -1, ErrWaitTimeout
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
}

// CompleteGet collects the response of a completed slot.
func (p *Pool) CompleteGet(i int) (Response, error) {
	if i < 0 || i >= len(p.slots) {
		return Response{}, fmt.Errorf("fetch: slot %d out of range [0,%d)", i, len(p.slots))
	}
	s := &p.slots[i]
	if slotState(s.state.Load()) != stateCompleted {
		return Response{}, fmt.Errorf("%w: slot %d", ErrNotCompleted, i)
	}
	s.state.Store(int32(stateCollected))
	return s.resp, nil
}

// Pending returns the number of slots that are pending or completed but not collected.
func (p *Pool) Pending() int {
	count := 0
	for i := range p.slots {
		switch slotState(p.slots[i].state.Load()) {
		case statePending, stateCompleted:
			count++
		}
	}
	return count
}

// Close waits for in-flight reads and releases the buffer reservation.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.wg.Wait()
	p.rc.ReleaseMemory(p.reserved)
	return nil
}
