// Package router wires the HTTP middleware chain and mounts the category
// API, the health check and the Prometheus endpoint.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"knowtree/internal/api"
	"knowtree/internal/handlers"
	"knowtree/internal/middleware"
)

// Options configures the router.
type Options struct {
	// RequestTimeout bounds each request; zero disables the bound.
	RequestTimeout time.Duration
	AllowedOrigins []string
	// WriteLimiter, when set, rate-limits mutating category requests.
	WriteLimiter *middleware.RateLimiter
	// Ping reports backend health for /health; nil means always healthy.
	Ping func(ctx context.Context) error
}

// New creates the configured Chi router.
func New(categories *handlers.Categories, opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler(opts.Ping))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/categories", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(opts.RequestTimeout))
		}
		if opts.WriteLimiter != nil {
			r.Use(opts.WriteLimiter.Middleware)
		}
		r.Mount("/", categories.Routes())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	return r
}

// healthHandler answers 200 while ping succeeds and 503 otherwise.
func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				api.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", "backend unreachable")
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
