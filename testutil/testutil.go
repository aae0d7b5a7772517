package testutil

import (
	"math/rand"
	"slices"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Values returns n values drawn uniformly from [lo, hi).
// Locks only once per call.
func (r *RNG) Values(n int, lo, hi int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	span := hi - lo
	out := make([]int64, n)
	for i := range out {
		out[i] = lo + r.rand.Int63n(span)
	}
	return out
}

// Perm returns the values 0..n-1 in random order.
func (r *RNG) Perm(n int) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int64, n)
	for i, v := range r.rand.Perm(n) {
		out[i] = int64(v)
	}
	return out
}

// TopK returns the k largest values in descending order by sorting a copy.
// It is the ground truth the bounded merger is checked against.
func TopK(values []int64, k int) []int64 {
	sorted := make([]int64, len(values))
	copy(sorted, values)
	slices.Sort(sorted)
	slices.Reverse(sorted)
	return sorted[:min(k, len(sorted))]
}

// Split cuts values into n contiguous shards of nearly equal size.
func Split(values []int64, n int) [][]int64 {
	out := make([][]int64, n)
	per := (len(values) + n - 1) / n
	for i := range out {
		lo := min(i*per, len(values))
		hi := min(lo+per, len(values))
		out[i] = values[lo:hi]
	}
	return out
}
