// Package api provides the HTTP API of the vehicle signal service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autosd-vss-mw/vss-lib/config"
	"github.com/autosd-vss-mw/vss-lib/pkg/api/handlers"
	"github.com/autosd-vss-mw/vss-lib/pkg/api/middleware"
	"github.com/autosd-vss-mw/vss-lib/pkg/api/response"
	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Health handles GET /health.
	Health *handlers.HealthHandler

	// Signals handles the /api/v1/signals routes.
	Signals *handlers.SignalHandler

	// Stream handles GET /api/v1/signals/stream, if set.
	Stream http.Handler

	// Metrics is the optional HTTP metrics recorder.
	Metrics middleware.MetricsRecorder

	// MetricsHandler serves the Prometheus exposition, if set.
	MetricsHandler http.Handler
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing("/health", cfg.Metrics.Path))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics, cfg.Metrics.Path))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound,
			"route not found", middleware.GetRequestID(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed,
			"method not allowed", middleware.GetRequestID(r.Context()))
	})

	RegisterRoutes(r, cfg, h)
	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, cfg *config.Config, h *Handlers) {
	if h.Signals != nil {
		r.Route("/api/v1/signals", func(r chi.Router) {
			r.Get("/", h.Signals.ListSignals)
			if h.Stream != nil {
				r.Method(http.MethodGet, "/stream", h.Stream)
			}
			r.Get("/{name}", h.Signals.GetSignal)
		})
	}

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
	}

	if h.MetricsHandler != nil && cfg.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Metrics.Path, h.MetricsHandler)
	}
}
