package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/freekieb7/go-polls/internal/cache"
)

// Mirror holds the hydrated token of each browser session in process memory.
// It is never written to a session store or to redis.
type Mirror struct {
	manager *cache.Manager
	maxTTL  time.Duration
	now     func() time.Time
	parser  *jwt.Parser
}

func NewMirror(manager *cache.Manager, maxTTL time.Duration) *Mirror {
	if maxTTL <= 0 {
		maxTTL = DefaultTTL
	}
	return &Mirror{
		manager: manager,
		maxTTL:  maxTTL,
		now:     time.Now,
		parser:  jwt.NewParser(),
	}
}

// Get returns the mirrored token of sid, or "" when there is none or it
// expired.
func (m *Mirror) Get(sid string) string {
	var token string
	if err := m.manager.GetLocal(cache.TokenKey(sid), &token); err != nil {
		return ""
	}
	return token
}

// Set mirrors token for sid until the token's exp claim, capped at maxTTL.
// A token that already expired clears the mirror instead.
func (m *Mirror) Set(sid, token string) {
	if token == "" {
		m.Clear(sid)
		return
	}

	ttl := m.maxTTL
	if exp, ok := m.expiresAt(token); ok {
		ttl = min(ttl, exp.Sub(m.now()))
	}
	if ttl <= 0 {
		m.Clear(sid)
		return
	}
	_ = m.manager.SetLocal(cache.TokenKey(sid), token, ttl)
}

func (m *Mirror) Clear(sid string) {
	m.manager.DeleteLocal(cache.TokenKey(sid))
}

// expiresAt reads the exp claim without verifying the signature. The remote
// API verifies the token; the claim only bounds how long it is mirrored.
func (m *Mirror) expiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := m.parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
