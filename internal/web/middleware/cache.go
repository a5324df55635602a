package middleware

import (
	"fmt"
	"net/http"
	"strings"
)

// CacheConfig represents caching configuration options
type CacheConfig struct {
	MaxAge         int  // Cache duration in seconds
	Public         bool // Whether cache is public or private
	MustRevalidate bool
	NoStore        bool
	Immutable      bool
}

func (c CacheConfig) header() string {
	if c.NoStore {
		return "no-store"
	}

	var cacheControl []string
	if c.Public {
		cacheControl = append(cacheControl, "public")
	} else {
		cacheControl = append(cacheControl, "private")
	}
	if c.MaxAge > 0 {
		cacheControl = append(cacheControl, fmt.Sprintf("max-age=%d", c.MaxAge))
	}
	if c.MustRevalidate {
		cacheControl = append(cacheControl, "must-revalidate")
	}
	if c.Immutable {
		cacheControl = append(cacheControl, "immutable")
	}
	return strings.Join(cacheControl, ", ")
}

// CacheMiddleware sets Cache-Control unless the handler chain already did.
func CacheMiddleware(config CacheConfig) func(http.Handler) http.Handler {
	value := config.header()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if w.Header().Get("Cache-Control") == "" {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StaticCacheMiddleware caches embedded assets for a week.
func StaticCacheMiddleware() func(http.Handler) http.Handler {
	return CacheMiddleware(CacheConfig{
		MaxAge: 86400 * 7,
		Public: true,
	})
}

// NoCache keeps session-specific pages out of shared and browser caches.
func NoCache() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}
