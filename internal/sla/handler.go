package sla

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opsdrill/opsdrill/internal/pkg/httputil"
)

// Handler handles HTTP requests for the SLA monitor.
type Handler struct {
	monitor *Monitor
}

// NewHandler creates a new SLA handler.
func NewHandler(monitor *Monitor) *Handler {
	return &Handler{monitor: monitor}
}

// RegisterInstructorRoutes registers the manual breach-check trigger. The
// scheduler drives the same pass on its own cadence.
func (h *Handler) RegisterInstructorRoutes(r chi.Router) {
	r.Post("/games/{gameID}/sla/check", h.CheckBreaches)
}

// CheckBreaches handles POST /games/{gameID}/sla/check.
func (h *Handler) CheckBreaches(w http.ResponseWriter, r *http.Request) {
	result, err := h.monitor.CheckAndProcessBreaches(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, result)
}
