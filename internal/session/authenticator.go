package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/freekieb7/go-polls/internal/api"
)

type Status int

const (
	StatusPending Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// State is the authentication state of one browser session.
type State struct {
	Status Status
	Token  string
}

func (s State) IsAuthenticated() bool {
	return s.Token != ""
}

// RemoteAuth is the part of the remote API the authenticator needs.
type RemoteAuth interface {
	Me(ctx context.Context, credential string) (api.MeResult, error)
	Signout(ctx context.Context, credential string) error
}

type outcome struct {
	sent       string
	token      string
	credential string
	err        error
	stale      bool
}

// Authenticator hydrates the token mirror from the remote "who am I"
// endpoint. At most one hydration runs per session and credential at a time.
type Authenticator struct {
	remote RemoteAuth
	mirror *Mirror
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.Mutex
	outcomes map[string]outcome
	// current is the credential whose hydration may still write the mirror.
	current map[string]string
}

func NewAuthenticator(remote RemoteAuth, mirror *Mirror, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		remote:   remote,
		mirror:   mirror,
		logger:   logger,
		outcomes: make(map[string]outcome),
		current:  make(map[string]string),
	}
}

// Resolve returns the authentication state of sess, hydrating it when the
// mirror holds no token. It waits at most wait for the hydration; after that
// the state is pending and the hydration settles in the background. sess is
// updated with a refreshed or cleared credential, the caller persists it.
func (a *Authenticator) Resolve(ctx context.Context, sess *Session, wait time.Duration) State {
	sid := sess.Key()
	credential := sess.Credential

	// A hydration that settled after an earlier request stopped waiting
	if settled, ok := a.takeOutcome(sid, credential); ok {
		return a.apply(sess, settled)
	}

	if token := a.mirror.Get(sid); token != "" {
		return State{Status: StatusAuthenticated, Token: token}
	}

	if credential == "" {
		return State{Status: StatusUnauthenticated}
	}

	a.mu.Lock()
	a.current[sid] = credential
	a.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := a.group.DoChan(sid+"|"+credential, func() (any, error) {
		return a.hydrate(detached, sid, credential), nil
	})

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-ch:
		result := res.Val.(outcome)
		if result.stale {
			// The session changed credential while this hydration ran
			return State{Status: StatusPending}
		}
		a.takeOutcome(sid, credential)
		return a.apply(sess, result)
	case <-timer.C:
	case <-ctx.Done():
	}

	a.logger.DebugContext(ctx, "Session hydration pending", "session_id", sid)
	return State{Status: StatusPending}
}

// hydrate asks the remote for a token. The result only touches the mirror
// while credential is still the session's current credential.
func (a *Authenticator) hydrate(ctx context.Context, sid, credential string) outcome {
	result, err := a.remote.Me(ctx, credential)
	if err == nil && result.Token == "" {
		err = &api.Problem{Type: api.TypeInvalidResponse, Title: "No token in response"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current[sid] != credential {
		a.logger.DebugContext(ctx, "Discarding stale session hydration", "session_id", sid)
		return outcome{sent: credential, stale: true}
	}

	var settled outcome
	if err != nil {
		a.mirror.Clear(sid)
		a.logger.InfoContext(ctx, "Session hydration failed", "session_id", sid, "error", err)
		settled = outcome{sent: credential, err: err}
	} else {
		a.mirror.Set(sid, result.Token)
		settled = outcome{sent: credential, token: result.Token, credential: result.Credential}
	}
	a.outcomes[sid] = settled
	return settled
}

func (a *Authenticator) apply(sess *Session, result outcome) State {
	if result.err != nil {
		sess.Credential = ""
		return State{Status: StatusUnauthenticated}
	}
	if result.credential != "" {
		sess.Credential = result.credential
	}
	return State{Status: StatusAuthenticated, Token: result.token}
}

// takeOutcome removes the settled outcome of sid. It reports ok only when
// the outcome was produced for credential; outcomes of a replaced
// credential are dropped.
func (a *Authenticator) takeOutcome(sid, credential string) (outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	result, ok := a.outcomes[sid]
	if !ok {
		return outcome{}, false
	}
	delete(a.outcomes, sid)
	if result.sent != credential {
		return outcome{}, false
	}
	if a.current[sid] == credential {
		delete(a.current, sid)
	}
	return result, true
}

// forget drops every outcome and in-flight claim of sid.
func (a *Authenticator) forget(sid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.outcomes, sid)
	delete(a.current, sid)
}

// Adopt stores the credential captured at sign-in. The token itself is
// mirrored by the next hydration.
func (a *Authenticator) Adopt(sess *Session, credential string) {
	sid := sess.Key()
	a.forget(sid)
	a.mirror.Clear(sid)
	sess.Credential = credential
}

// SignOut clears the mirror, tells the remote to drop its cookie and forgets
// the credential. A failed remote call is logged; the local sign-out still
// happens.
func (a *Authenticator) SignOut(ctx context.Context, sess *Session) {
	sid := sess.Key()
	a.forget(sid)
	a.mirror.Clear(sid)

	if sess.Credential != "" {
		if err := a.remote.Signout(ctx, sess.Credential); err != nil {
			a.logger.WarnContext(ctx, "Remote sign-out failed", "session_id", sid, "error", err)
		}
	}
	sess.Credential = ""
}
