package escalation

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opsdrill/opsdrill/internal/pkg/httputil"
)

// Handler handles HTTP requests for the escalation engine.
type Handler struct {
	engine    *Engine
	validator *validator.Validate
}

// NewHandler creates a new escalation handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{
		engine:    engine,
		validator: validator.New(),
	}
}

// RegisterRoutes registers read-only escalation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/games/{gameID}/escalations/check", h.CheckEscalations)
	r.Get("/incidents/{incidentID}/escalations", h.ListEscalations)
}

// RegisterInstructorRoutes registers mutating escalation routes.
func (h *Handler) RegisterInstructorRoutes(r chi.Router) {
	r.Post("/incidents/{incidentID}/escalate", h.EscalateIncident)
	r.Post("/games/{gameID}/escalations/process", h.ProcessAutoEscalations)
	r.Post("/escalations/{escalationID}/acknowledge", h.AcknowledgeEscalation)
}

// CheckEscalations handles GET /games/{gameID}/escalations/check.
func (h *Handler) CheckEscalations(w http.ResponseWriter, r *http.Request) {
	checks, err := h.engine.CheckEscalations(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, checks)
}

// ListEscalations handles GET /incidents/{incidentID}/escalations.
func (h *Handler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.ListEscalations(r.Context(), chi.URLParam(r, "incidentID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, records)
}

// EscalateRequest represents the request body for a manual escalation.
type EscalateRequest struct {
	Reason   string  `json:"reason" validate:"required,max=500"`
	ToTeamID *string `json:"to_team_id,omitempty"`
}

// EscalateIncident handles POST /incidents/{incidentID}/escalate. Manual
// escalations skip rule gating entirely.
func (h *Handler) EscalateIncident(w http.ResponseWriter, r *http.Request) {
	var req EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	actor := httputil.GetSubject(r.Context())
	if actor == "" {
		actor = "instructor"
	}

	record, err := h.engine.EscalateIncident(r.Context(), EscalateInput{
		IncidentID:  chi.URLParam(r, "incidentID"),
		Reason:      req.Reason,
		EscalatedBy: actor,
		ToTeamID:    req.ToTeamID,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
			{Error: ErrIncidentClosed, Status: http.StatusConflict},
		})
		return
	}

	httputil.Success(w, http.StatusCreated, record)
}

// ProcessAutoEscalations handles POST /games/{gameID}/escalations/process.
func (h *Handler) ProcessAutoEscalations(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.ProcessAutoEscalations(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]int{"escalated": count})
}

// AcknowledgeEscalation handles POST /escalations/{escalationID}/acknowledge.
func (h *Handler) AcknowledgeEscalation(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.AcknowledgeEscalation(r.Context(), chi.URLParam(r, "escalationID")); err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrEscalationNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.JSON(w, http.StatusNoContent, nil)
}
