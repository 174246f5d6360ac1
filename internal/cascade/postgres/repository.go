// Package postgres provides PostgreSQL implementation of the cascade repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdrill/opsdrill/internal/cascade"
	"github.com/opsdrill/opsdrill/internal/domain"
)

// Repository implements cascade.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetServiceByID retrieves a service by ID.
func (r *Repository) GetServiceByID(ctx context.Context, id string) (*domain.Service, error) {
	query := `
		SELECT id, game_id, name, type, description, criticality, status, created_at, updated_at
		FROM services
		WHERE id = $1
	`
	var s domain.Service
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.GameID, &s.Name, &s.Type, &s.Description, &s.Criticality, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cascade.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &s, nil
}

// ListServices returns all services of a game.
func (r *Repository) ListServices(ctx context.Context, gameID string) ([]domain.Service, error) {
	query := `
		SELECT id, game_id, name, type, description, criticality, status, created_at, updated_at
		FROM services
		WHERE game_id = $1
	`
	rows, err := r.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		var s domain.Service
		if err := rows.Scan(&s.ID, &s.GameID, &s.Name, &s.Type, &s.Description, &s.Criticality, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// ListDependencies returns all dependency edges of a game.
func (r *Repository) ListDependencies(ctx context.Context, gameID string) ([]domain.ServiceDependency, error) {
	query := `
		SELECT id, game_id, service_id, depends_on_id, dependency_type, impact_delay_minutes, created_at
		FROM service_dependencies
		WHERE game_id = $1
	`
	rows, err := r.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	deps := make([]domain.ServiceDependency, 0)
	for rows.Next() {
		var d domain.ServiceDependency
		if err := rows.Scan(&d.ID, &d.GameID, &d.ServiceID, &d.DependsOnID, &d.Type, &d.ImpactDelayMinutes, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// GetServiceStatusTx reads a service's status with a row lock so concurrent
// applies against the same service serialize.
func (r *Repository) GetServiceStatusTx(ctx context.Context, tx pgx.Tx, serviceID string) (domain.ServiceStatus, error) {
	var status domain.ServiceStatus
	err := tx.QueryRow(ctx, `SELECT status FROM services WHERE id = $1 FOR UPDATE`, serviceID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", cascade.ErrServiceNotFound
		}
		return "", fmt.Errorf("get service status: %w", err)
	}
	return status, nil
}

// UpdateServiceStatusTx updates a service's status within a transaction.
func (r *Repository) UpdateServiceStatusTx(ctx context.Context, tx pgx.Tx, serviceID string, status domain.ServiceStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE services SET status = $2, updated_at = now() WHERE id = $1`, serviceID, status)
	if err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cascade.ErrServiceNotFound
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
