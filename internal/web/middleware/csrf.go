package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	apperrors "github.com/freekieb7/go-polls/internal/errors"
	"github.com/freekieb7/go-polls/internal/session"
	"github.com/freekieb7/go-polls/internal/web/response"
)

const CSRFFieldName = "csrf_token"

// CSRF gives every session a token on safe requests and rejects unsafe
// requests whose form field does not match it. It must run after Session.
func CSRF(logger *slog.Logger, sessionStore session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sess, ok := session.FromContext(ctx)
			if !ok {
				response.ErrorResponse(w, apperrors.InternalError("Session not found in context", nil), logger)
				return
			}

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if sess.CSRFToken() == "" {
					token, err := session.GenerateToken()
					if err != nil {
						response.ErrorResponse(w, apperrors.InternalError("Failed to generate CSRF token", err), logger)
						return
					}
					sess.SetCSRFToken(token)

					saved, err := sessionStore.SaveSession(ctx, *sess)
					if err != nil {
						response.ErrorResponse(w, apperrors.Wrap(err, apperrors.CodeDatabaseError, "Failed to save session"), logger)
						return
					}
					*sess = saved
				}
				next.ServeHTTP(w, r)

			case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
				if err := r.ParseForm(); err != nil {
					response.ErrorResponse(w, apperrors.InvalidRequestError("Malformed form body", err), logger)
					return
				}

				received := r.PostFormValue(CSRFFieldName)
				expected := sess.CSRFToken()
				if received == "" || expected == "" {
					logger.WarnContext(ctx, "Missing CSRF token", "path", r.URL.Path)
					response.ErrorResponse(w, apperrors.ForbiddenError("Missing CSRF token", nil), logger)
					return
				}
				if subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
					logger.WarnContext(ctx, "Invalid CSRF token", "path", r.URL.Path, "method", r.Method)
					response.ErrorResponse(w, apperrors.ForbiddenError("Invalid CSRF token", nil), logger)
					return
				}
				next.ServeHTTP(w, r)

			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		})
	}
}
