package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/treetopk/blobstore"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	err := c.AcquireMemory(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.MemoryUsage())

	err = c.AcquireMemory(context.Background(), 40)
	require.NoError(t, err)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// TryAcquire 20 (should fail)
	ok := c.TryAcquireMemory(20)
	assert.False(t, ok)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Acquire 20 (should block/timeout)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = c.AcquireMemory(ctx, 20)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	err = c.AcquireMemory(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_MemoryAboveLimit(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 1000})

	err := c.AcquireMemory(context.Background(), 4096)
	require.ErrorIs(t, err, ErrMemoryLimitExceeded)
	assert.Zero(t, c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(context.Background(), 1000))
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 0})

	err := c.AcquireMemory(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	ctx := context.Background()

	require.NoError(t, c.AcquireMemory(ctx, 10))
	assert.True(t, c.TryAcquireMemory(10))
	c.ReleaseMemory(10)
	assert.Zero(t, c.MemoryUsage())
	require.NoError(t, c.AcquireFetch(ctx))
	c.ReleaseFetch()
	require.NoError(t, c.AcquireIO(ctx, 1<<30))
	assert.Equal(t, Config{}, c.Config())
}

func TestController_Fetches(t *testing.T) {
	c := NewController(Config{MaxConcurrentFetches: 2})

	require.NoError(t, c.AcquireFetch(context.Background()))
	require.NoError(t, c.AcquireFetch(context.Background()))

	assert.False(t, c.TryAcquireFetch())

	c.ReleaseFetch()

	assert.True(t, c.TryAcquireFetch())
}

func TestController_IOChunked(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// Larger than the burst; a single WaitN would fail immediately.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.AcquireIO(ctx, 1<<20+1))
}

func TestThrottle(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, "a", []byte("12345")))

	assert.Same(t, mem, Throttle(mem, nil))
	assert.Same(t, mem, Throttle(mem, NewController(Config{})))

	throttled := Throttle(mem, NewController(Config{IOLimitBytesPerSec: 1024}))
	_, ok := throttled.(*ThrottledStore)
	require.True(t, ok)

	buf := make([]byte, 3)
	n, truncated, err := blobstore.ReadInto(ctx, throttled, "a", buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, truncated)

	_, _, err = blobstore.ReadInto(ctx, throttled, "missing", buf)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
