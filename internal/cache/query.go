package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenKey is the query key of the hydrated session token of sid.
func TokenKey(sid string) string {
	return sid + ":token"
}

// UserPollsKey is the query key of the poll list owned by the user of sid.
func UserPollsKey(sid string) string {
	return sid + ":userPolls"
}

// PollKey is the query key of a single public poll.
func PollKey(id string) string {
	return "poll:" + id
}

// SessionPrefix matches every query key scoped to sid.
func SessionPrefix(sid string) string {
	return sid + ":"
}

// Query caches the results of remote reads under semantic keys. Concurrent
// fetches of one key share a single call. Failed calls are neither retried
// nor cached.
type Query struct {
	manager *Manager
	logger  *slog.Logger
	group   singleflight.Group

	mu       sync.Mutex
	inflight map[string]*flight
}

// flight is one running load of a key. stale is set when the key is
// invalidated before the load stores its result.
type flight struct {
	mu    sync.Mutex
	stale bool
}

func NewQuery(manager *Manager, logger *slog.Logger) *Query {
	return &Query{
		manager:  manager,
		logger:   logger,
		inflight: make(map[string]*flight),
	}
}

// Fetch returns the cached value of key or loads it with fn. fn keeps the
// caller's context values but not its cancellation.
func Fetch[T any](ctx context.Context, q *Query, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var cached T
	if err := q.manager.Get(ctx, key, &cached, ttl); err == nil {
		return cached, nil
	} else if !IsMiss(err) {
		q.logger.WarnContext(ctx, "Query cache read failed", "key", key, "error", err)
	}

	detached := context.WithoutCancel(ctx)

	v, err, shared := q.group.Do(key, func() (any, error) {
		f := q.begin(key)
		defer q.end(key, f)

		value, err := fn(detached)
		if err != nil {
			return value, err
		}
		q.store(detached, key, f, value, ttl)
		return value, nil
	})
	if shared {
		q.logger.DebugContext(ctx, "Query fetch shared", "key", key)
	}

	value, _ := v.(T)
	return value, err
}

// Invalidate drops keys so the next Fetch loads them again. A fetch already
// in flight for one of the keys no longer stores its result.
func (q *Query) Invalidate(ctx context.Context, keys ...string) {
	var running []*flight
	q.mu.Lock()
	for _, key := range keys {
		if f, ok := q.inflight[key]; ok {
			running = append(running, f)
		}
	}
	q.mu.Unlock()

	// Waits for a store in progress; the Delete below then removes it
	for _, f := range running {
		f.mu.Lock()
		f.stale = true
		f.mu.Unlock()
	}

	for _, key := range keys {
		q.group.Forget(key)
	}

	if err := q.manager.Delete(ctx, keys...); err != nil {
		q.logger.WarnContext(ctx, "Query invalidation failed", "keys", keys, "error", err)
	}
}

// InvalidateSession drops every key scoped to sid.
func (q *Query) InvalidateSession(ctx context.Context, sid string) {
	q.Invalidate(ctx, TokenKey(sid), UserPollsKey(sid))
	if err := q.manager.DeletePrefix(ctx, SessionPrefix(sid)); err != nil {
		q.logger.WarnContext(ctx, "Query session invalidation failed", "error", err)
	}
}

func (q *Query) begin(key string) *flight {
	f := &flight{}
	q.mu.Lock()
	q.inflight[key] = f
	q.mu.Unlock()
	return f
}

func (q *Query) end(key string, f *flight) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight[key] == f {
		delete(q.inflight, key)
	}
}

// store caches value unless f went stale. f stays locked for the write.
func (q *Query) store(ctx context.Context, key string, f *flight, value any, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stale {
		return
	}
	if err := q.manager.Set(ctx, key, value, ttl); err != nil {
		q.logger.WarnContext(ctx, "Query cache write failed", "key", key, "error", err)
	}
}
