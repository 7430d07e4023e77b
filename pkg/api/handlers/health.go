// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/autosd-vss-mw/vss-lib/pkg/api/response"
	"github.com/autosd-vss-mw/vss-lib/pkg/storage"
)

// HealthChecker reports the health of each downstream relay by name.
type HealthChecker interface {
	Health() map[string]bool
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string          `json:"status"`
	Storage bool            `json:"storage"`
	Relays  map[string]bool `json:"relays,omitempty"`
	Version string          `json:"version,omitempty"`
	Uptime  string          `json:"uptime"`
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	store   storage.Store
	relays  HealthChecker
	version string
	started time.Time
}

// NewHealthHandler creates a new health handler. relays may be nil.
func NewHealthHandler(store storage.Store, relays HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		store:   store,
		relays:  relays,
		version: version,
		started: time.Now(),
	}
}

// Health reports "ok" when the store answers. A failing relay degrades the
// status but keeps 200, since readings are still accepted and stored.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:  "ok",
		Storage: true,
		Version: h.version,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	}

	if _, err := h.store.List(ctx); err != nil {
		status.Status = "unhealthy"
		status.Storage = false
		response.JSON(w, http.StatusServiceUnavailable, status)
		return
	}

	if h.relays != nil {
		status.Relays = h.relays.Health()
		for _, ok := range status.Relays {
			if !ok {
				status.Status = "degraded"
			}
		}
	}

	response.JSON(w, http.StatusOK, status)
}
