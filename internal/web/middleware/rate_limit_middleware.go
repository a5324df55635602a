package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/freekieb7/go-polls/internal/config"
	apperrors "github.com/freekieb7/go-polls/internal/errors"
	"github.com/freekieb7/go-polls/internal/session"
	"github.com/freekieb7/go-polls/internal/web/response"
)

// RateLimit defines rate limiting parameters for a group of routes
type RateLimit struct {
	Name     string
	Requests int
	Window   time.Duration
	KeyFunc  KeyFunction
}

// KeyFunction defines how to generate the rate limiting key from the request
type KeyFunction func(r *http.Request) string

var (
	// KeyByIP keys on the client address. chi's RealIP has already folded
	// proxy headers into RemoteAddr.
	KeyByIP KeyFunction = func(r *http.Request) string {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}

	// KeyBySession keys on the browser session and falls back to the IP.
	KeyBySession KeyFunction = func(r *http.Request) string {
		if sess, ok := session.FromContext(r.Context()); ok {
			return "sid:" + sess.Key()
		}
		return KeyByIP(r)
	}
)

// Limits are the route groups the router rate limits.
type Limits struct {
	Auth RateLimit
	Vote RateLimit
}

// LimitsFromConfig builds the sign-in/sign-up and vote limits.
func LimitsFromConfig(cfg config.RateLimit) Limits {
	return Limits{
		Auth: RateLimit{Name: "auth", Requests: cfg.AuthRequests, Window: cfg.WindowDuration, KeyFunc: KeyByIP},
		Vote: RateLimit{Name: "vote", Requests: cfg.VoteRequests, Window: cfg.WindowDuration, KeyFunc: KeyBySession},
	}
}

// RateLimitMiddleware refuses requests over the limit with 429. Only unsafe
// methods count; rendering a form is never limited.
func RateLimitMiddleware(rateLimiter RateLimiter, limit RateLimit, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || limit.Requests <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := limit.KeyFunc(r)
			if key == "" {
				key = "unknown"
			}
			key = limit.Name + ":" + key

			allowed, err := rateLimiter.Allow(r.Context(), key, limit.Requests, limit.Window)
			if err != nil {
				logger.WarnContext(r.Context(), "Rate limiter failed, allowing request", "limit", limit.Name, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining, _ := rateLimiter.Remaining(r.Context(), key, limit.Requests, limit.Window)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Window", limit.Window.String())

			if !allowed {
				logger.InfoContext(r.Context(), "Rate limit exceeded", "limit", limit.Name, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
				response.ErrorResponse(w, apperrors.RateLimitedError("Too many requests. Please try again later.", nil), logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
