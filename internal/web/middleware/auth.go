package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/freekieb7/go-polls/internal/session"
)

type stateKey struct{}

// StateFromContext returns the authentication state stored by Authenticated.
func StateFromContext(ctx context.Context) (session.State, bool) {
	state, ok := ctx.Value(stateKey{}).(session.State)
	return state, ok
}

// Authenticated resolves the session's authentication state. While it is
// pending the pending handler answers; an unauthenticated session is sent to
// the sign-in view. It must run after Session.
func Authenticated(logger *slog.Logger, authenticator *session.Authenticator, sessionStore session.Store, wait time.Duration, pending http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sess, ok := session.FromContext(ctx)
			if !ok {
				logger.WarnContext(ctx, "User not authenticated")
				http.Redirect(w, r, "/signin", http.StatusSeeOther)
				return
			}

			credential := sess.Credential
			state := authenticator.Resolve(ctx, sess, wait)

			if sess.Credential != credential {
				saved, err := sessionStore.SaveSession(ctx, *sess)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to save session credential", "error", err)
				} else {
					*sess = saved
				}
			}

			switch state.Status {
			case session.StatusPending:
				pending.ServeHTTP(w, r)
			case session.StatusUnauthenticated:
				logger.InfoContext(ctx, "User not signed in", "path", r.URL.Path)
				http.Redirect(w, r, "/signin", http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, stateKey{}, state)))
			}
		})
	}
}
