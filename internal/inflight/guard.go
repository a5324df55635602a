// Package inflight refuses a submission while an identical one is pending.
package inflight

import (
	"sync"
)

const (
	KeySignin     = "signin"
	KeySignup     = "signup"
	KeyDeletePoll = "deletePoll"
)

// VoteKey is the submission key of a vote on pollID.
func VoteKey(pollID string) string {
	return "vote:" + pollID
}

// Guard tracks pending submissions. Keys are scoped by the browser session
// they belong to.
type Guard struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{pending: make(map[string]struct{})}
}

// TryAcquire marks key pending for scope. ok is false when it already is; the
// caller must then refuse the submission. release is idempotent.
func (g *Guard) TryAcquire(scope, key string) (release func(), ok bool) {
	full := scope + "|" + key

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.pending[full]; busy {
		return func() {}, false
	}
	g.pending[full] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.pending, full)
			g.mu.Unlock()
		})
	}, true
}

func (g *Guard) Pending(scope, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.pending[scope+"|"+key]
	return busy
}
