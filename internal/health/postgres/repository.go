// Package postgres provides PostgreSQL implementation of the health repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/health"
)

// Repository implements health.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const serviceColumns = `id, game_id, name, type, description, criticality, status, created_at, updated_at`

func scanService(row pgx.Row) (*domain.Service, error) {
	var s domain.Service
	err := row.Scan(&s.ID, &s.GameID, &s.Name, &s.Type, &s.Description, &s.Criticality, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetServiceByID retrieves a service by ID.
func (r *Repository) GetServiceByID(ctx context.Context, id string) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`
	svc, err := scanService(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, health.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

// ListServices returns all services of a game.
func (r *Repository) ListServices(ctx context.Context, gameID string) ([]domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE game_id = $1 ORDER BY name`
	rows, err := r.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

// ListOpenIncidents returns all open and in-progress incidents of a game.
func (r *Repository) ListOpenIncidents(ctx context.Context, gameID string) ([]domain.Incident, error) {
	query := `
		SELECT id, game_id, title, description, priority, severity, status,
			affected_service, affected_service_id, sla_deadline, sla_breached,
			current_escalation_level, escalation_count, assigned_team_id,
			created_at, updated_at, resolved_at
		FROM incidents
		WHERE game_id = $1 AND status IN ('open', 'in_progress')
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]domain.Incident, 0)
	for rows.Next() {
		var inc domain.Incident
		err := rows.Scan(
			&inc.ID, &inc.GameID, &inc.Title, &inc.Description, &inc.Priority, &inc.Severity, &inc.Status,
			&inc.AffectedService, &inc.AffectedServiceID, &inc.SLADeadline, &inc.SLABreached,
			&inc.CurrentEscalationLevel, &inc.EscalationCount, &inc.AssignedTeamID,
			&inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// UpdateServiceStatusTx updates a service's status within a transaction.
func (r *Repository) UpdateServiceStatusTx(ctx context.Context, tx pgx.Tx, serviceID string, status domain.ServiceStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE services SET status = $2, updated_at = now() WHERE id = $1`, serviceID, status)
	if err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return health.ErrServiceNotFound
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
