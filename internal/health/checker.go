package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/freekieb7/go-polls/internal/breaker"
	"github.com/freekieb7/go-polls/internal/cache"
	"github.com/freekieb7/go-polls/internal/database"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Upstream is the remote polls API as the checker sees it.
type Upstream interface {
	Ping(ctx context.Context) error
	BreakerState() breaker.State
}

// Checker provides Kubernetes-ready health checks
type Checker struct {
	DB          *database.Database
	Cache       *cache.Manager
	API         Upstream
	Logger      *slog.Logger
	Version     string
	Environment string

	started time.Time
	now     func() time.Time
}

// NewChecker builds a checker. db is nil unless sessions live in SQL.
func NewChecker(db *database.Database, cacheManager *cache.Manager, upstream Upstream, logger *slog.Logger) *Checker {
	return &Checker{
		DB:      db,
		Cache:   cacheManager,
		API:     upstream,
		Logger:  logger,
		Version: "1.0.0",
		started: time.Now(),
		now:     time.Now,
	}
}

// HealthStatus represents comprehensive health information for Kubernetes
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
	Details    *HealthDetails             `json:"details,omitempty"`
}

// ComponentHealth represents individual component health
type ComponentHealth struct {
	Status      string  `json:"status"`
	Message     string  `json:"message,omitempty"`
	LatencyMS   float64 `json:"latency_ms"`
	LastChecked string  `json:"last_checked"`
	Critical    bool    `json:"critical"`
}

type HealthDetails struct {
	UptimeSeconds float64        `json:"uptime_seconds"`
	Environment   string         `json:"environment,omitempty"`
	Cache         map[string]any `json:"cache,omitempty"`
}

// CheckHealth reports every component plus cache statistics.
func (h *Checker) CheckHealth(ctx context.Context) HealthStatus {
	components := map[string]ComponentHealth{
		"api":   h.checkAPI(ctx),
		"cache": h.checkCache(ctx),
	}
	if h.DB != nil {
		components["database"] = h.checkDatabase(ctx)
	}

	details := &HealthDetails{
		UptimeSeconds: h.now().Sub(h.started).Seconds(),
		Environment:   h.Environment,
	}
	if h.Cache != nil {
		details.Cache = h.Cache.Stats()
	}

	return HealthStatus{
		Status:     determineOverallStatus(components),
		Timestamp:  h.timestamp(),
		Version:    h.Version,
		Components: components,
		Details:    details,
	}
}

// CheckLiveness only proves the process answers.
func (h *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusHealthy,
		Timestamp: h.timestamp(),
		Components: map[string]ComponentHealth{
			"process": {
				Status:      StatusHealthy,
				Message:     "service is responsive",
				LastChecked: h.timestamp(),
				Critical:    true,
			},
		},
	}
}

// CheckReadiness checks what a request needs: the remote API and, for the
// sql backend, the session database.
func (h *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	components := map[string]ComponentHealth{
		"api": h.checkAPI(ctx),
	}
	if h.DB != nil {
		components["database"] = h.checkDatabase(ctx)
	}

	status := StatusHealthy
	for _, component := range components {
		if component.Status == StatusUnhealthy {
			status = StatusUnhealthy
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  h.timestamp(),
		Components: components,
	}
}

func (h *Checker) checkAPI(ctx context.Context) ComponentHealth {
	start := h.now()

	if h.API == nil {
		return h.component(StatusUnhealthy, "polls API not configured", start, true)
	}

	if state := h.API.BreakerState(); state == breaker.StateOpen {
		return h.component(StatusUnhealthy, "circuit breaker open", start, true)
	}

	if err := h.API.Ping(ctx); err != nil {
		h.Logger.ErrorContext(ctx, "Polls API health check failed", "error", err)
		return h.component(StatusUnhealthy, "polls API unreachable: "+err.Error(), start, true)
	}

	if state := h.API.BreakerState(); state == breaker.StateHalfOpen {
		return h.component(StatusDegraded, "circuit breaker half-open", start, true)
	}
	return h.component(StatusHealthy, "polls API reachable", start, true)
}

func (h *Checker) checkDatabase(ctx context.Context) ComponentHealth {
	start := h.now()

	if err := h.DB.Health(ctx); err != nil {
		h.Logger.ErrorContext(ctx, "Database health check failed", "error", err)
		return h.component(StatusUnhealthy, "database connection failed: "+err.Error(), start, true)
	}

	latency := h.now().Sub(start)
	switch {
	case latency > 5*time.Second:
		return h.component(StatusUnhealthy, "database response time too slow", start, true)
	case latency > 100*time.Millisecond:
		return h.component(StatusDegraded, "database response time elevated", start, true)
	}
	return h.component(StatusHealthy, "database connection successful", start, true)
}

// checkCache never fails the service; without redis the in-memory layer
// keeps serving.
func (h *Checker) checkCache(ctx context.Context) ComponentHealth {
	start := h.now()

	if h.Cache == nil {
		return h.component(StatusDegraded, "cache not configured", start, false)
	}

	for layer, err := range h.Cache.Health(ctx) {
		if err != nil {
			h.Logger.WarnContext(ctx, "Cache health check failed", "layer", layer, "error", err)
			return h.component(StatusDegraded, layer+" cache degraded: "+err.Error(), start, false)
		}
	}
	return h.component(StatusHealthy, "cache operational", start, false)
}

func (h *Checker) component(status, message string, start time.Time, critical bool) ComponentHealth {
	return ComponentHealth{
		Status:      status,
		Message:     message,
		LatencyMS:   float64(h.now().Sub(start).Nanoseconds()) / 1e6,
		LastChecked: h.timestamp(),
		Critical:    critical,
	}
}

func (h *Checker) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

func determineOverallStatus(components map[string]ComponentHealth) string {
	hasUnhealthy := false
	hasDegraded := false

	for _, component := range components {
		if component.Critical && component.Status == StatusUnhealthy {
			hasUnhealthy = true
		}
		if component.Status == StatusDegraded {
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		return StatusUnhealthy
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
