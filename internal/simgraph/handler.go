package simgraph

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/pkg/httputil"
)

// Handler handles HTTP requests for the dependency graph.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new graph handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers read-only graph routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/games/{gameID}/graph", h.GetGraph)
	r.Get("/services/{serviceID}/ancestors", h.GetAncestors)
	r.Get("/services/{serviceID}/descendants", h.GetDescendants)
}

// RegisterInstructorRoutes registers graph mutation routes.
func (h *Handler) RegisterInstructorRoutes(r chi.Router) {
	r.Post("/dependencies", h.AddDependency)
	r.Delete("/dependencies/{id}", h.RemoveDependency)
}

// AddDependencyRequest represents the request body for creating an edge.
type AddDependencyRequest struct {
	ServiceID          string `json:"service_id" validate:"required"`
	DependsOnID        string `json:"depends_on_id" validate:"required"`
	Type               string `json:"type" validate:"required,oneof=hard soft"`
	ImpactDelayMinutes int    `json:"impact_delay_minutes" validate:"gte=0"`
}

// AddDependency handles POST /dependencies.
func (h *Handler) AddDependency(w http.ResponseWriter, r *http.Request) {
	var req AddDependencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	dep, err := h.service.AddDependency(r.Context(), AddDependencyInput{
		ServiceID:          req.ServiceID,
		DependsOnID:        req.DependsOnID,
		Type:               domain.DependencyType(req.Type),
		ImpactDelayMinutes: req.ImpactDelayMinutes,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrCycle, Status: http.StatusConflict, Message: "would create a circular dependency"},
			{Error: ErrDepthExceeded, Status: http.StatusConflict},
			{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		})
		return
	}

	httputil.Success(w, http.StatusCreated, dep)
}

// RemoveDependency handles DELETE /dependencies/{id}.
func (h *Handler) RemoveDependency(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveDependency(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrDependencyNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.JSON(w, http.StatusNoContent, nil)
}

// GetGraph handles GET /games/{gameID}/graph.
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	edges, err := h.service.Graph(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, edges)
}

// GetAncestors handles GET /services/{serviceID}/ancestors.
func (h *Handler) GetAncestors(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.AncestorsOf(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.Success(w, http.StatusOK, ids)
}

// GetDescendants handles GET /services/{serviceID}/descendants.
func (h *Handler) GetDescendants(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.DescendantsOf(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.Success(w, http.StatusOK, ids)
}
