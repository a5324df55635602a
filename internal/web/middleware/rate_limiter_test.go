package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T) (*InMemoryRateLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewInMemoryRateLimiter(time.Hour)
	rl.now = clock.now
	t.Cleanup(func() { _ = rl.Close() })
	return rl, clock
}

func TestInMemoryRateLimiter_Allow(t *testing.T) {
	rateLimiter, clock := newTestLimiter(t)
	ctx := context.Background()
	key := "test-key"
	limit := 3
	window := time.Second

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := 0; i < limit; i++ {
			allowed, err := rateLimiter.Allow(ctx, key, limit, window)
			require.NoError(t, err)
			assert.True(t, allowed, "request %d should be allowed", i+1)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		allowed, err := rateLimiter.Allow(ctx, key, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		allowed, err := rateLimiter.Allow(ctx, "test-key-2", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("allows requests after window expires", func(t *testing.T) {
		clock.advance(window)
		allowed, err := rateLimiter.Allow(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestInMemoryRateLimiter_Remaining(t *testing.T) {
	rateLimiter, _ := newTestLimiter(t)
	ctx := context.Background()

	remaining, err := rateLimiter.Remaining(ctx, "new-key", 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	for i := 0; i < 3; i++ {
		_, err := rateLimiter.Allow(ctx, "key", 5, time.Second)
		require.NoError(t, err)
	}
	remaining, err = rateLimiter.Remaining(ctx, "key", 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestInMemoryRateLimiter_Reset(t *testing.T) {
	rateLimiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = rateLimiter.Allow(ctx, "key", 2, time.Second)
	}
	allowed, _ := rateLimiter.Allow(ctx, "key", 2, time.Second)
	require.False(t, allowed)

	require.NoError(t, rateLimiter.Reset(ctx, "key"))

	allowed, err := rateLimiter.Allow(ctx, "key", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestInMemoryRateLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	rateLimiter, clock := newTestLimiter(t)
	ctx := context.Background()

	_, _ = rateLimiter.Allow(ctx, "key", 2, time.Second)
	clock.advance(3 * time.Second)
	rateLimiter.cleanup()

	rateLimiter.mutex.Lock()
	defer rateLimiter.mutex.Unlock()
	assert.Empty(t, rateLimiter.buckets)
}

func TestTokenBucket_Take(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket := NewTokenBucket(4, time.Second, now)

	for i := 0; i < 4; i++ {
		assert.True(t, bucket.Take(now), "token %d should be available", i+1)
	}
	assert.False(t, bucket.Take(now))

	half := now.Add(500 * time.Millisecond)
	assert.Equal(t, 2, bucket.Tokens(half), "refills in proportion to elapsed time")
}

func BenchmarkInMemoryRateLimiter_Allow(b *testing.B) {
	rateLimiter := NewInMemoryRateLimiter(time.Minute)
	defer rateLimiter.Close()
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = rateLimiter.Allow(ctx, "bench-key", 1000, time.Minute)
		}
	})
}
