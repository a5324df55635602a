package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/freekieb7/go-polls/internal/cache"
)

// CachedStore reads sessions through the redis cache before asking the
// backing store.
type CachedStore struct {
	cache      *cache.Service
	baseStore  Store
	logger     *slog.Logger
	sessionTTL time.Duration
}

func NewCachedStore(cacheService *cache.Service, baseStore Store, logger *slog.Logger, sessionTTL time.Duration) *CachedStore {
	if sessionTTL <= 0 {
		sessionTTL = 30 * time.Minute
	}
	return &CachedStore{
		cache:      cacheService,
		baseStore:  baseStore,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

func (s *CachedStore) NewSession() (Session, error) {
	return s.baseStore.NewSession()
}

func (s *CachedStore) GetSessionByToken(ctx context.Context, token string) (Session, error) {
	cacheKey := sessionCacheKey(token)

	var cached Session
	err := s.cache.Get(ctx, cacheKey, &cached)
	if err == nil && !cached.IsExpired(time.Now()) {
		s.logger.DebugContext(ctx, "Session cache hit", "token", MaskToken(token))
		return cached, nil
	}
	if err != nil && !cache.IsMiss(err) {
		s.logger.WarnContext(ctx, "Session cache error", "error", err, "token", MaskToken(token))
	}

	sess, err := s.baseStore.GetSessionByToken(ctx, token)
	if err != nil {
		return Session{}, err
	}

	s.store(ctx, sess)
	return sess, nil
}

func (s *CachedStore) SaveSession(ctx context.Context, sess Session) (Session, error) {
	saved, err := s.baseStore.SaveSession(ctx, sess)
	if err != nil {
		return Session{}, err
	}

	s.store(ctx, saved)
	return saved, nil
}

func (s *CachedStore) RegenerateSession(ctx context.Context, sess Session) (Session, error) {
	oldToken := sess.Token
	regenerated, err := s.baseStore.RegenerateSession(ctx, sess)
	if err != nil {
		return Session{}, err
	}

	s.forget(ctx, oldToken)
	return regenerated, nil
}

func (s *CachedStore) DeleteSession(ctx context.Context, token string) error {
	if err := s.baseStore.DeleteSession(ctx, token); err != nil {
		return err
	}

	s.forget(ctx, token)
	return nil
}

func (s *CachedStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.baseStore.DeleteExpired(ctx)
}

// store caches sess until its own expiry or sessionTTL, whichever is first.
func (s *CachedStore) store(ctx context.Context, sess Session) {
	ttl := min(s.sessionTTL, time.Until(sess.ExpiresAt))
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, sessionCacheKey(sess.Token), sess, ttl); err != nil {
		s.logger.WarnContext(ctx, "Failed to cache session", "error", err, "token", MaskToken(sess.Token))
	}
}

func (s *CachedStore) forget(ctx context.Context, token string) {
	if err := s.cache.Delete(ctx, sessionCacheKey(token)); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete session from cache", "error", err, "token", MaskToken(token))
	}
}

// sessionCacheKey never embeds the raw token in a redis key
func sessionCacheKey(token string) string {
	return "session:" + hashToken(token)
}

// MaskToken masks a token for logging (shows only first 8 characters)
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "***"
}
