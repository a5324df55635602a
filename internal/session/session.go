package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	CookieName = "SID"

	csrfTokenKey = "csrf_token"
	flashPrefix  = "flash:"
)

type contextKey struct{}

// Session is the browser session behind the SID cookie. Credential is the
// remote API's cookie value, kept the way a browser cookie jar would keep it.
type Session struct {
	ID         uuid.UUID         `json:"id"`
	Token      string            `json:"token"`
	Credential string            `json:"credential,omitempty"`
	Data       map[string]string `json:"data"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Key scopes per-session state such as query keys and pending submissions.
func (s Session) Key() string {
	return s.ID.String()
}

func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s Session) CSRFToken() string {
	return s.Data[csrfTokenKey]
}

func (s *Session) SetCSRFToken(token string) {
	s.ensureData()
	s.Data[csrfTokenKey] = token
}

// SetFlash stores a one-shot message under name.
func (s *Session) SetFlash(name, message string) {
	s.ensureData()
	s.Data[flashPrefix+name] = message
}

// PopFlash returns and removes the message stored under name. ok is false
// when there was none.
func (s *Session) PopFlash(name string) (message string, ok bool) {
	message, ok = s.Data[flashPrefix+name]
	if ok {
		delete(s.Data, flashPrefix+name)
	}
	return message, ok
}

func (s *Session) ensureData() {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
}

// WithContext returns ctx carrying sess.
func WithContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session stored by the session middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok && sess != nil
}
