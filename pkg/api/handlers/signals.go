package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autosd-vss-mw/vss-lib/pkg/api/middleware"
	"github.com/autosd-vss-mw/vss-lib/pkg/api/response"
	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
	"github.com/autosd-vss-mw/vss-lib/pkg/storage"
)

// SignalList is the body of GET /api/v1/signals.
type SignalList struct {
	Signals []*storage.Reading `json:"signals"`
	Total   int                `json:"total"`
}

// SignalHandler serves the last reading of each signal.
type SignalHandler struct {
	store storage.Store
	log   logger.Logger
}

// NewSignalHandler creates a new signal handler.
func NewSignalHandler(store storage.Store, log logger.Logger) *SignalHandler {
	return &SignalHandler{store: store, log: log}
}

// ListSignals handles GET /api/v1/signals.
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	readings, err := h.store.List(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list signals", "error", err)
		response.HandleError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	response.JSON(w, http.StatusOK, SignalList{Signals: readings, Total: len(readings)})
}

// GetSignal handles GET /api/v1/signals/{name}.
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest,
			"signal name is required", middleware.GetRequestID(r.Context()))
		return
	}

	reading, err := h.store.Get(r.Context(), name)
	if err != nil {
		response.HandleError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	response.JSON(w, http.StatusOK, reading)
}
