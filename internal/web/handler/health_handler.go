package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/freekieb7/go-polls/internal/health"
	"github.com/freekieb7/go-polls/internal/web/response"
)

type HealthHandler struct {
	HealthChecker *health.Checker
}

func NewHealthHandler(healthChecker *health.Checker) HealthHandler {
	return HealthHandler{
		HealthChecker: healthChecker,
	}
}

// RegisterRoutes sets up Kubernetes-compatible health endpoints
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
	r.Get("/health/startup", h.HandleStartup)
}

// HandleHealth reports every component, including the remote API breaker
// and cache stats.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	writeHealth(w, h.HealthChecker.CheckHealth(ctx))
}

// HandleLiveness only reports that the process serves requests.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	writeHealth(w, h.HealthChecker.CheckLiveness(ctx))
}

// HandleReadiness checks the dependencies a request needs.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	writeHealth(w, h.HealthChecker.CheckReadiness(ctx))
}

// HandleStartup is the readiness check with a longer timeout
func (h *HealthHandler) HandleStartup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	writeHealth(w, h.HealthChecker.CheckReadiness(ctx))
}

func writeHealth(w http.ResponseWriter, status health.HealthStatus) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	httpStatus := http.StatusOK
	if status.Status == health.StatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	response.JSONResponse(w, httpStatus, status)
}
