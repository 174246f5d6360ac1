package cascade

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opsdrill/opsdrill/internal/pkg/httputil"
)

// Handler handles HTTP requests for cascade propagation.
type Handler struct {
	propagator *Propagator
}

// NewHandler creates a new cascade handler.
func NewHandler(propagator *Propagator) *Handler {
	return &Handler{propagator: propagator}
}

// RegisterRoutes registers the read-only impact preview route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/services/{serviceID}/impact", h.GetImpact)
}

// RegisterInstructorRoutes registers the mutating apply route.
func (h *Handler) RegisterInstructorRoutes(r chi.Router) {
	r.Post("/services/{serviceID}/cascade", h.ApplyCascade)
}

// GetImpact handles GET /services/{serviceID}/impact.
func (h *Handler) GetImpact(w http.ResponseWriter, r *http.Request) {
	impacts, err := h.propagator.ImpactOf(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.Success(w, http.StatusOK, impacts)
}

// ApplyCascade handles POST /services/{serviceID}/cascade.
func (h *Handler) ApplyCascade(w http.ResponseWriter, r *http.Request) {
	impacts, err := h.propagator.Apply(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.Success(w, http.StatusOK, impacts)
}
