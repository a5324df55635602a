package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/freekieb7/go-polls/internal/web/middleware"
	"github.com/freekieb7/go-polls/web"
)

const (
	requestTimeout = 30 * time.Second
	slowRequest    = 2 * time.Second
)

// NewRouter wires the page, static and health routes.
func NewRouter(ui *UIHandler, healthHandler HealthHandler, rateLimiter middleware.RateLimiter) http.Handler {
	cfg := ui.Config
	limits := middleware.LimitsFromConfig(cfg.RateLimit)
	if !cfg.RateLimit.Enabled {
		limits.Auth.Requests, limits.Vote.Requests = 0, 0
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.MetricsMiddleware(middleware.NewLogMetricsCollector(ui.Logger, slowRequest)))
	r.Use(chimiddleware.Recoverer)

	r.With(middleware.StaticCacheMiddleware()).
		Handle("/static/*", http.StripPrefix("/static/", web.NewStaticHandler()))

	healthHandler.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SecureMiddleware(middleware.SecurityHeadersFromConfig(cfg.Security)))
		r.Use(middleware.NoCache())
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Use(middleware.Session(cfg, ui.Logger, ui.SessionStore))
		r.Use(middleware.CSRF(ui.Logger, ui.SessionStore))

		authLimit := middleware.RateLimitMiddleware(rateLimiter, limits.Auth, ui.Logger)
		voteLimit := middleware.RateLimitMiddleware(rateLimiter, limits.Vote, ui.Logger)

		r.Get("/", ui.HandleRoot)

		r.Get(routeSignin, ui.HandleSigninGet)
		r.With(authLimit).Post(routeSignin, ui.HandleSigninPost)
		r.Get(routeSignup, ui.HandleSignupGet)
		r.With(authLimit).Post(routeSignup, ui.HandleSignupPost)
		r.Post("/logout", ui.HandleLogout)

		r.Get("/polls/{pollId}", ui.HandleVoteGet)
		r.With(voteLimit).Post("/polls/{pollId}/vote", ui.HandleVotePost)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticated(ui.Logger, ui.Authenticator, ui.SessionStore,
				cfg.Session.HydrationWait, http.HandlerFunc(ui.HandleLoading)))

			r.Get(routeHome, ui.HandleHome)
			r.Post(routeHome+"/polls", ui.HandleCreatePoll)
			r.Post(routeHome+"/polls/{pollId}/delete", ui.HandleDeletePoll)
		})

		r.NotFound(ui.HandleNotFound)
	})

	return r
}
