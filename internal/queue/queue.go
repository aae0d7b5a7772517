// Package queue provides the bounded binary heap behind topk.Merger.
package queue

// MinHeap is a binary min-heap of int64 values with a fixed capacity.
// Value-based storage; the backing slice is allocated once.
type MinHeap struct {
	items    []int64
	capacity int
}

// NewMin creates an empty heap that holds at most capacity values.
func NewMin(capacity int) *MinHeap {
	return &MinHeap{
		items:    make([]int64, 0, capacity),
		capacity: capacity,
	}
}

// TopItem returns the smallest value in the heap.
func (h *MinHeap) TopItem() (int64, bool) {
	if len(h.items) == 0 {
		return 0, false
	}
	return h.items[0], true
}

// PushBounded inserts v while the heap has room. Once full, v replaces the
// minimum only if it is strictly larger. It reports whether v was retained.
func (h *MinHeap) PushBounded(v int64) bool {
	if len(h.items) < h.capacity {
		h.items = append(h.items, v)
		h.siftUp(len(h.items) - 1)
		return true
	}
	if h.capacity == 0 || v <= h.items[0] {
		return false
	}
	h.items[0] = v
	h.siftDown(0)
	return true
}

// Values returns the heap contents in heap order. The slice aliases the
// heap's storage and is only valid until the next mutation.
func (h *MinHeap) Values() []int64 { return h.items }

// Len returns the number of values in the heap.
func (h *MinHeap) Len() int { return len(h.items) }

// Reset empties the heap for reuse.
func (h *MinHeap) Reset() { h.items = h.items[:0] }

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !h.less(i, p) {
			return
		}
		h.swap(i, p)
		i = p
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && h.less(r, l) {
			best = r
		}
		if !h.less(best, i) {
			return
		}
		h.swap(i, best)
		i = best
	}
}

func (h *MinHeap) less(i, j int) bool { return h.items[i] < h.items[j] }

func (h *MinHeap) swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
