// Package topk implements the bounded top-K set shared by every node of the
// reduction tree.
//
// A Merger retains the K largest values it has observed. Merging is
// commutative and associative: for any partition of a value sequence and any
// shape of reduction tree, merging partial results yields the same set as a
// single linear scan. This is what makes the branching factor and depth of
// the tree irrelevant to correctness.
package topk

import (
	"errors"
	"math"
	"slices"

	"github.com/hupe1980/treetopk/internal/queue"
)

// Sentinel pads under-filled snapshots to exactly K values. It is the minimum
// representable value, it is never retained by Observe and it is skipped by Merge,
// so padding can never displace an observed value.
const Sentinel int64 = math.MinInt64

// DefaultK is the number of values reported when no K is configured.
const DefaultK = 10

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// ValidateK returns ErrInvalidK when k cannot size a Merger.
func ValidateK(k int) error {
	if k <= 0 {
		return ErrInvalidK
	}
	return nil
}

// Merger holds the K largest values seen via Observe and Merge.
//
// Invariant: Len() <= K, and once Len() == K every observed value that was
// not retained is <= Min().
//
// A Merger is not safe for concurrent use; it is owned by a single node.
type Merger struct {
	k    int
	heap *queue.MinHeap
}

// New creates an empty Merger for k values. It panics if k is not positive;
// callers validate user input with ValidateK first.
func New(k int) *Merger {
	if err := ValidateK(k); err != nil {
		panic(err)
	}
	return &Merger{k: k, heap: queue.NewMin(k)}
}

// K returns the capacity of the set.
func (m *Merger) K() int { return m.k }

// Len returns the number of retained values.
func (m *Merger) Len() int { return m.heap.Len() }

// Min returns the smallest retained value.
func (m *Merger) Min() (int64, bool) { return m.heap.TopItem() }

// Observe offers v to the set in amortized O(log K).
func (m *Merger) Observe(v int64) {
	if v == Sentinel {
		return
	}
	m.heap.PushBounded(v)
}

// Merge observes every value of a snapshot, skipping padding.
func (m *Merger) Merge(values []int64) {
	for _, v := range values {
		m.Observe(v)
	}
}

// MergeFrom merges the retained values of other.
func (m *Merger) MergeFrom(other *Merger) {
	m.Merge(other.heap.Values())
}

// Snapshot returns exactly K values in no particular order: the retained
// values followed by Sentinel padding.
func (m *Merger) Snapshot() []int64 {
	out := make([]int64, m.k)
	n := copy(out, m.heap.Values())
	for i := n; i < m.k; i++ {
		out[i] = Sentinel
	}
	return out
}

// SortedDescending returns the retained values from largest to smallest.
// Order among equal values is unspecified. Padding is not included, so the
// result is shorter than K when fewer than K values were observed.
func (m *Merger) SortedDescending() []int64 {
	out := slices.Clone(m.heap.Values())
	slices.SortFunc(out, func(a, b int64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Reset empties the set.
func (m *Merger) Reset() { m.heap.Reset() }
