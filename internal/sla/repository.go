package sla

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
)

// Repository defines the storage interface for the SLA monitor.
type Repository interface {
	// ListBreachCandidates returns open incidents whose SLA deadline is
	// before now and that have not been marked breached yet.
	ListBreachCandidates(ctx context.Context, gameID string, now time.Time) ([]domain.Incident, error)

	// Transaction support.
	BeginTx(ctx context.Context) (pgx.Tx, error)
	// GetIncidentForUpdateTx re-reads an incident with a row lock.
	GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error)
	// MarkBreachedTx sets sla_breached and the escalated priority.
	MarkBreachedTx(ctx context.Context, tx pgx.Tx, incidentID string, priority domain.IncidentPriority) error
	// AdjustTeamMoraleTx adds delta to a team's morale, clamped at zero.
	AdjustTeamMoraleTx(ctx context.Context, tx pgx.Tx, teamID string, delta int) error
	AppendEventTx(ctx context.Context, tx pgx.Tx, event *domain.GameEvent) error
}
