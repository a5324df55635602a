package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/freekieb7/go-polls/internal/config"
	apperrors "github.com/freekieb7/go-polls/internal/errors"
	"github.com/freekieb7/go-polls/internal/session"
	"github.com/freekieb7/go-polls/internal/web/response"
)

// Session loads the browser session named by the SID cookie, or starts a new
// one, and puts it in the request context. Handlers persist changes with
// SaveSession before they write the response.
func Session(cfg *config.Config, logger *slog.Logger, sessionStore session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var sess session.Session
			var err error
			found := false

			if cookie, cookieErr := r.Cookie(session.CookieName); cookieErr == nil && cookie.Value != "" {
				sess, err = sessionStore.GetSessionByToken(ctx, cookie.Value)
				switch {
				case err == nil:
					found = true
				case errors.Is(err, session.ErrSessionNotFound):
					logger.DebugContext(ctx, "Session cookie did not match a live session")
				default:
					response.ErrorResponse(w, apperrors.Wrap(err, apperrors.CodeDatabaseError, "Failed to load session"), logger)
					return
				}
			}

			if !found {
				sess, err = sessionStore.NewSession()
				if err != nil {
					response.ErrorResponse(w, apperrors.InternalError("Failed to create session", err), logger)
					return
				}

				sess, err = sessionStore.SaveSession(ctx, sess)
				if err != nil {
					response.ErrorResponse(w, apperrors.Wrap(err, apperrors.CodeDatabaseError, "Failed to save session"), logger)
					return
				}

				SetSessionCookie(w, cfg, sess)
			}

			next.ServeHTTP(w, r.WithContext(session.WithContext(ctx, &sess)))
		})
	}
}

// SetSessionCookie points the browser at sess.
func SetSessionCookie(w http.ResponseWriter, cfg *config.Config, sess session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   cfg.Server.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the SID cookie from the browser.
func ClearSessionCookie(w http.ResponseWriter, cfg *config.Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Server.IsProduction(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
