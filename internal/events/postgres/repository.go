// Package postgres provides PostgreSQL implementation of the event log
// repository.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/events"
)

// Repository implements events.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListEvents returns a game's events, newest first.
func (r *Repository) ListEvents(ctx context.Context, gameID string, filter events.ListFilter) ([]domain.GameEvent, error) {
	query := `
		SELECT id, game_id, event_type, severity, payload, delivered_at, created_at
		FROM game_events
		WHERE game_id = $1
	`
	args := []any{gameID}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]domain.GameEvent, 0)
	for rows.Next() {
		var e domain.GameEvent
		if err := rows.Scan(&e.ID, &e.GameID, &e.Type, &e.Severity, &e.Payload, &e.DeliveredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FetchUndelivered returns the oldest undelivered events.
func (r *Repository) FetchUndelivered(ctx context.Context, limit int) ([]domain.GameEvent, error) {
	query := `
		SELECT id, game_id, event_type, severity, payload, delivered_at, created_at
		FROM game_events
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch undelivered events: %w", err)
	}
	defer rows.Close()

	out := make([]domain.GameEvent, 0)
	for rows.Next() {
		var e domain.GameEvent
		if err := rows.Scan(&e.ID, &e.GameID, &e.Type, &e.Severity, &e.Payload, &e.DeliveredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkDelivered stamps delivery time on the given events.
func (r *Repository) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE game_events SET delivered_at = now() WHERE id = ANY($1)`
	if _, err := r.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("mark events delivered: %w", err)
	}
	return nil
}
