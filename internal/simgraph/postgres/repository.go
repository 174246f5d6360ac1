// Package postgres provides PostgreSQL implementation of the simgraph repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/simgraph"
)

// Repository implements simgraph.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListDependencies returns all dependency edges of a game.
func (r *Repository) ListDependencies(ctx context.Context, gameID string) ([]domain.ServiceDependency, error) {
	query := `
		SELECT id, game_id, service_id, depends_on_id, dependency_type, impact_delay_minutes, created_at
		FROM service_dependencies
		WHERE game_id = $1
		ORDER BY created_at
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

// GetDependency retrieves a dependency edge by ID.
func (r *Repository) GetDependency(ctx context.Context, id string) (*domain.ServiceDependency, error) {
	query := `
		SELECT id, game_id, service_id, depends_on_id, dependency_type, impact_delay_minutes, created_at
		FROM service_dependencies
		WHERE id = $1
	`
	var d domain.ServiceDependency
	err := r.db.QueryRow(ctx, query, id).Scan(&d.ID, &d.GameID, &d.ServiceID, &d.DependsOnID, &d.Type, &d.ImpactDelayMinutes, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simgraph.ErrDependencyNotFound
		}
		return nil, fmt.Errorf("get dependency: %w", err)
	}
	return &d, nil
}

// UpsertDependency inserts an edge or, for an existing ordered pair, updates
// its type and delay (last write wins).
func (r *Repository) UpsertDependency(ctx context.Context, dep *domain.ServiceDependency) error {
	query := `
		INSERT INTO service_dependencies (game_id, service_id, depends_on_id, dependency_type, impact_delay_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service_id, depends_on_id) DO UPDATE
		SET dependency_type = EXCLUDED.dependency_type,
		    impact_delay_minutes = EXCLUDED.impact_delay_minutes
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		dep.GameID,
		dep.ServiceID,
		dep.DependsOnID,
		dep.Type,
		dep.ImpactDelayMinutes,
	).Scan(&dep.ID, &dep.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert dependency: %w", err)
	}
	return nil
}

// DeleteDependency removes an edge by ID.
func (r *Repository) DeleteDependency(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM service_dependencies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dependency: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return simgraph.ErrDependencyNotFound
	}
	return nil
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
			return nil, simgraph.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &s, nil
}
