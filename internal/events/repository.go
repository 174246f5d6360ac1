// Package events exposes the engine's append-only event log and drains
// undelivered entries to external sinks.
package events

import (
	"context"
	"time"

	"github.com/opsdrill/opsdrill/internal/domain"
)

// ListFilter narrows an event log query.
type ListFilter struct {
	Type  domain.GameEventType
	Since time.Time
	Limit int
}

// Repository defines the storage interface for the event log.
type Repository interface {
	ListEvents(ctx context.Context, gameID string, filter ListFilter) ([]domain.GameEvent, error)

	// Outbox operations. Events are written by the engine packages inside
	// their own transactions; the worker only reads and marks.
	FetchUndelivered(ctx context.Context, limit int) ([]domain.GameEvent, error)
	MarkDelivered(ctx context.Context, ids []string) error
}
