package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opsdrill/opsdrill/internal/pkg/httputil"
)

// Handler handles HTTP requests for service health.
type Handler struct {
	aggregator *Aggregator
}

// NewHandler creates a new health handler.
func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{aggregator: aggregator}
}

// RegisterRoutes registers read-only health routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/games/{gameID}/health", h.GetGameHealth)
}

// RegisterInstructorRoutes registers recompute trigger routes.
func (h *Handler) RegisterInstructorRoutes(r chi.Router) {
	r.Post("/services/{serviceID}/recompute", h.RecomputeService)
	r.Post("/games/{gameID}/recompute", h.RecomputeGame)
}

// GetGameHealth handles GET /games/{gameID}/health.
func (h *Handler) GetGameHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := h.aggregator.GameHealth(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, summary)
}

// RecomputeService handles POST /services/{serviceID}/recompute.
func (h *Handler) RecomputeService(w http.ResponseWriter, r *http.Request) {
	status, err := h.aggregator.Recompute(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.Success(w, http.StatusOK, map[string]string{"status": string(status)})
}

// RecomputeGame handles POST /games/{gameID}/recompute.
func (h *Handler) RecomputeGame(w http.ResponseWriter, r *http.Request) {
	result, err := h.aggregator.RecomputeAll(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, result)
}
