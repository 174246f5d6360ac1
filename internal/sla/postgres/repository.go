// Package postgres provides PostgreSQL implementation of the SLA repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/sla"
)

const incidentColumns = `
	id, game_id, title, description, priority, severity, status,
	affected_service, affected_service_id, sla_deadline, sla_breached,
	current_escalation_level, escalation_count, assigned_team_id,
	created_at, updated_at, resolved_at
`

// Repository implements sla.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID, &inc.GameID, &inc.Title, &inc.Description, &inc.Priority, &inc.Severity, &inc.Status,
		&inc.AffectedService, &inc.AffectedServiceID, &inc.SLADeadline, &inc.SLABreached,
		&inc.CurrentEscalationLevel, &inc.EscalationCount, &inc.AssignedTeamID,
		&inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// ListBreachCandidates returns open incidents whose deadline has passed and
// that are not yet marked breached.
func (r *Repository) ListBreachCandidates(ctx context.Context, gameID string, now time.Time) ([]domain.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE game_id = $1
		  AND status IN ('open', 'in_progress')
		  AND sla_breached = false
		  AND sla_deadline IS NOT NULL
		  AND sla_deadline < $2
		ORDER BY sla_deadline
	`
	rows, err := r.db.Query(ctx, query, gameID, now)
	if err != nil {
		return nil, fmt.Errorf("list breach candidates: %w", err)
	}
	defer rows.Close()

	incidents := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	return incidents, rows.Err()
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// GetIncidentForUpdateTx re-reads an incident with a row lock so concurrent
// monitor passes serialize on it.
func (r *Repository) GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 FOR UPDATE`
	inc, err := scanIncident(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sla.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// MarkBreachedTx sets the breach flag and the escalated priority.
func (r *Repository) MarkBreachedTx(ctx context.Context, tx pgx.Tx, incidentID string, priority domain.IncidentPriority) error {
	query := `
		UPDATE incidents
		SET sla_breached = true, priority = $2, updated_at = now()
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, query, incidentID, priority)
	if err != nil {
		return fmt.Errorf("mark breached: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sla.ErrIncidentNotFound
	}
	return nil
}

// AdjustTeamMoraleTx adds delta to a team's morale, clamped at zero.
func (r *Repository) AdjustTeamMoraleTx(ctx context.Context, tx pgx.Tx, teamID string, delta int) error {
	query := `
		UPDATE teams
		SET morale_level = GREATEST(morale_level + $2, 0), updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, teamID, delta); err != nil {
		return fmt.Errorf("adjust team morale: %w", err)
	}
	return nil
}

// AppendEventTx appends a game event within a transaction.
func (r *Repository) AppendEventTx(ctx context.Context, tx pgx.Tx, event *domain.GameEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	query := `
		INSERT INTO game_events (game_id, event_type, severity, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := tx.QueryRow(ctx, query, event.GameID, event.Type, event.Severity, payload).Scan(&event.ID, &event.CreatedAt); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
