package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValues(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.Values(100, -5, 5)

	assert.Len(t, v, 100)
	for _, x := range v {
		assert.GreaterOrEqual(t, x, int64(-5))
		assert.Less(t, x, int64(5))
	}

	rng.Reset()
	assert.Equal(t, v, rng.Values(100, -5, 5))
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestPerm(t *testing.T) {
	rng := NewRNG(1)
	p := rng.Perm(10)
	assert.ElementsMatch(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, p)
}

func TestTopK(t *testing.T) {
	values := []int64{3, -1, 9, 9, 0, 4}

	assert.Equal(t, []int64{9, 9, 4}, TopK(values, 3))
	assert.Equal(t, []int64{9, 9, 4, 3, 0, -1}, TopK(values, 10))
	assert.Equal(t, []int64{}, TopK(nil, 3))
	// Input is not reordered.
	assert.Equal(t, []int64{3, -1, 9, 9, 0, 4}, values)
}

func TestSplit(t *testing.T) {
	values := []int64{1, 2, 3, 4, 5, 6, 7}
	shards := Split(values, 3)

	assert.Equal(t, [][]int64{{1, 2, 3}, {4, 5, 6}, {7}}, shards)
	assert.Len(t, Split(values[:2], 4), 4)
}
