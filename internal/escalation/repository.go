package escalation

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
)

// Repository defines the storage interface for the escalation engine.
type Repository interface {
	ListOpenIncidents(ctx context.Context, gameID string) ([]domain.Incident, error)
	ListRules(ctx context.Context, gameID string) ([]domain.EscalationRule, error)
	ListEscalationsByIncident(ctx context.Context, incidentID string) ([]domain.IncidentEscalation, error)
	AcknowledgeEscalation(ctx context.Context, escalationID string) error

	// Transaction support.
	BeginTx(ctx context.Context) (pgx.Tx, error)
	// GetIncidentForUpdateTx re-reads an incident with a row lock.
	GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error)
	GetRuleTx(ctx context.Context, tx pgx.Tx, id string) (*domain.EscalationRule, error)
	FindTeamByRoleTx(ctx context.Context, tx pgx.Tx, gameID, role string) (*domain.Team, error)
	InsertEscalationTx(ctx context.Context, tx pgx.Tx, record *domain.IncidentEscalation) error
	// UpdateIncidentEscalationTx bumps the level and count and reassigns the
	// incident when a target team was resolved.
	UpdateIncidentEscalationTx(ctx context.Context, tx pgx.Tx, incidentID string, level int, assignedTeamID *string) error
	// AdjustTeamScoreTx adds delta to a team's score, clamped at zero.
	AdjustTeamScoreTx(ctx context.Context, tx pgx.Tx, teamID string, delta int) error
	AppendEventTx(ctx context.Context, tx pgx.Tx, event *domain.GameEvent) error
}
