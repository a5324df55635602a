package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// MetricsCollector receives one record per completed request.
type MetricsCollector interface {
	RecordRequest(ctx context.Context, record RequestRecord)
}

type RequestRecord struct {
	RequestID  string
	Method     string
	Path       string
	StatusCode int
	Size       int
	Duration   time.Duration
}

// LogMetricsCollector implements MetricsCollector using structured logging
type LogMetricsCollector struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

func NewLogMetricsCollector(logger *slog.Logger, slowThreshold time.Duration) *LogMetricsCollector {
	if slowThreshold <= 0 {
		slowThreshold = time.Second
	}
	return &LogMetricsCollector{logger: logger, slowThreshold: slowThreshold}
}

func (c *LogMetricsCollector) RecordRequest(ctx context.Context, record RequestRecord) {
	level := slog.LevelInfo
	switch {
	case record.StatusCode >= 500:
		level = slog.LevelError
	case record.StatusCode >= 400, record.Duration > c.slowThreshold:
		level = slog.LevelWarn
	}

	c.logger.Log(ctx, level, "HTTP request completed",
		slog.String("request_id", record.RequestID),
		slog.String("method", record.Method),
		slog.String("path", record.Path),
		slog.Int("status_code", record.StatusCode),
		slog.Int("response_size", record.Size),
		slog.Float64("duration_ms", float64(record.Duration.Nanoseconds())/1e6),
		slog.Bool("slow_request", record.Duration > c.slowThreshold))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// MetricsMiddleware creates middleware that collects HTTP request metrics
func MetricsMiddleware(collector MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			collector.RecordRequest(r.Context(), RequestRecord{
				RequestID:  chimiddleware.GetReqID(r.Context()),
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: wrapper.statusCode,
				Size:       wrapper.size,
				Duration:   time.Since(start),
			})
		})
	}
}
