package events

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/pkg/httputil"
)

// Handler handles HTTP requests for the event log.
type Handler struct {
	repo Repository
}

// NewHandler creates a new event log handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers read-only event log routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/games/{gameID}/events", h.ListEvents)
}

// ListEvents handles GET /games/{gameID}/events. Supported query parameters:
// type, since (RFC 3339), limit.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Type: domain.GameEventType(r.URL.Query().Get("type")),
	}

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		filter.Since = t
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	out, err := h.repo.ListEvents(r.Context(), chi.URLParam(r, "gameID"), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, out)
}
