package middleware

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter decides whether one more request fits the limit of a key.
type RateLimiter interface {
	// Allow takes one request from the key's budget. false means the limit
	// is exhausted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Remaining returns what is left of the key's budget without taking any.
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)

	// Reset clears every budget of the key.
	Reset(ctx context.Context, key string) error
}

// TokenBucket refills capacity tokens per window, proportionally to the
// elapsed time.
type TokenBucket struct {
	mutex    sync.Mutex
	tokens   int
	capacity int
	refillAt time.Time
	lastUsed time.Time
	window   time.Duration
}

func NewTokenBucket(capacity int, window time.Duration, now time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		refillAt: now,
		lastUsed: now,
		window:   window,
	}
}

// Take attempts to take a token from the bucket
func (tb *TokenBucket) Take(now time.Time) bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refillLocked(now)
	tb.lastUsed = now

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Tokens returns the current number of available tokens
func (tb *TokenBucket) Tokens(now time.Time) int {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refillLocked(now)
	return tb.tokens
}

func (tb *TokenBucket) idleSince(now time.Time) time.Duration {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	return now.Sub(tb.lastUsed)
}

func (tb *TokenBucket) refillLocked(now time.Time) {
	if !now.Before(tb.refillAt.Add(tb.window)) {
		tb.tokens = tb.capacity
		tb.refillAt = now
		return
	}

	elapsed := now.Sub(tb.refillAt)
	tokensToAdd := int(elapsed.Nanoseconds() * int64(tb.capacity) / tb.window.Nanoseconds())
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.refillAt = now
	}
}

// InMemoryRateLimiter keeps one token bucket per key, limit and window.
type InMemoryRateLimiter struct {
	mutex   sync.Mutex
	buckets map[string]*TokenBucket
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewInMemoryRateLimiter starts a limiter whose idle buckets are swept every
// cleanupInterval.
func NewInMemoryRateLimiter(cleanupInterval time.Duration) *InMemoryRateLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	rl := &InMemoryRateLimiter{
		buckets: make(map[string]*TokenBucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.janitor(cleanupInterval)
	return rl
}

func bucketKey(key string, limit int, window time.Duration) string {
	return key + "|" + window.String() + "|" + strconv.Itoa(limit)
}

func (rl *InMemoryRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := rl.now()
	bk := bucketKey(key, limit, window)

	rl.mutex.Lock()
	bucket, exists := rl.buckets[bk]
	if !exists {
		bucket = NewTokenBucket(limit, window, now)
		rl.buckets[bk] = bucket
	}
	rl.mutex.Unlock()

	return bucket.Take(now), nil
}

func (rl *InMemoryRateLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	rl.mutex.Lock()
	bucket, exists := rl.buckets[bucketKey(key, limit, window)]
	rl.mutex.Unlock()

	if !exists {
		return limit, nil
	}
	return bucket.Tokens(rl.now()), nil
}

func (rl *InMemoryRateLimiter) Reset(ctx context.Context, key string) error {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for bk := range rl.buckets {
		if strings.HasPrefix(bk, key+"|") {
			delete(rl.buckets, bk)
		}
	}
	return nil
}

// Close stops the cleanup goroutine
func (rl *InMemoryRateLimiter) Close() error {
	rl.once.Do(func() { close(rl.stop) })
	return nil
}

func (rl *InMemoryRateLimiter) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup drops buckets unused for two windows; they would be full again.
func (rl *InMemoryRateLimiter) cleanup() {
	now := rl.now()

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for bk, bucket := range rl.buckets {
		if bucket.idleSince(now) > bucket.window*2 {
			delete(rl.buckets, bk)
		}
	}
}
