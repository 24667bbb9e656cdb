package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachChunkCoversRange(t *testing.T) {
	l := NewLimiter(4)
	var mu sync.Mutex
	seen := make([]int, 1000)

	err := ForEachChunk(context.Background(), l, len(seen), 10, func(_ context.Context, lo, hi int) error {
		mu.Lock()
		defer mu.Unlock()
		for i := lo; i < hi; i++ {
			seen[i]++
		}
		return nil
	})
	require.NoError(t, err)
	for i, n := range seen {
		require.Equal(t, 1, n, "index %d", i)
	}
	assert.Zero(t, l.CurrentActive())
	assert.LessOrEqual(t, l.GetMetrics().PeakConcurrent, int64(4))
}

func TestForEachChunkSmallInputRunsInline(t *testing.T) {
	l := NewLimiter(8)
	var calls atomic.Int32
	err := ForEachChunk(context.Background(), l, 5, 1024, func(_ context.Context, lo, hi int) error {
		calls.Add(1)
		assert.Equal(t, 0, lo)
		assert.Equal(t, 5, hi)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Zero(t, l.GetMetrics().TotalAcquired)
}

func TestForEachChunkReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := ForEachChunk(context.Background(), NewLimiter(2), 100, 10, func(_ context.Context, lo, _ int) error {
		if lo == 0 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestLimiterAcquireHonoursContext(t *testing.T) {
	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
	assert.False(t, l.TryAcquire())

	l.Release()
	assert.True(t, l.TryAcquire())
	l.Release()
	assert.Zero(t, l.CurrentActive())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_PARALLEL", "3")
	t.Setenv("DAEDALUS_MIN_CHUNK", "16")
	cfg := LoadConfig()
	assert.Equal(t, 3, cfg.MaxParallel)
	assert.Equal(t, 16, cfg.MinChunk)
	assert.Equal(t, ConfigSourceEnvVar, cfg.Source)
}
