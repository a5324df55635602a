package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 8 * time.Hour

var ErrSessionNotFound = errors.New("session not found")

// Store persists browser sessions. GetSessionByToken never returns an
// expired session.
type Store interface {
	NewSession() (Session, error)
	GetSessionByToken(ctx context.Context, token string) (Session, error)
	SaveSession(ctx context.Context, sess Session) (Session, error)
	RegenerateSession(ctx context.Context, sess Session) (Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// newSession builds an unsaved session that expires ttl from now.
func newSession(ttl time.Duration, now time.Time) (Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate session token: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return Session{
		Token:     token,
		Data:      map[string]string{},
		ExpiresAt: now.Add(ttl).UTC(),
	}, nil
}

// GenerateToken returns 32 random bytes, base64url encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MemoryStore keeps sessions in this process.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]Session),
	}
}

func (s *MemoryStore) NewSession() (Session, error) {
	return newSession(s.ttl, s.now())
}

func (s *MemoryStore) GetSessionByToken(_ context.Context, token string) (Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok || sess.IsExpired(s.now()) {
		return Session{}, ErrSessionNotFound
	}
	sess.Data = maps.Clone(sess.Data)
	return sess, nil
}

func (s *MemoryStore) SaveSession(_ context.Context, sess Session) (Session, error) {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
		sess.CreatedAt = s.now().UTC()
	}
	if sess.Data == nil {
		sess.Data = map[string]string{}
	}

	stored := sess
	stored.Data = maps.Clone(sess.Data)

	s.mu.Lock()
	s.sessions[sess.Token] = stored
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) RegenerateSession(_ context.Context, sess Session) (Session, error) {
	if sess.ID == uuid.Nil {
		return Session{}, fmt.Errorf("cannot regenerate token for new session")
	}

	newToken, err := GenerateToken()
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate new session token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sess.Token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	delete(s.sessions, sess.Token)
	stored.Token = newToken
	s.sessions[newToken] = stored

	sess.Token = newToken
	return sess, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	now := s.now()
	var deleted int64

	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.sessions {
		if sess.IsExpired(now) {
			delete(s.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}
