package health

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
)

// Repository defines the storage interface for the health aggregator.
type Repository interface {
	GetServiceByID(ctx context.Context, id string) (*domain.Service, error)
	ListServices(ctx context.Context, gameID string) ([]domain.Service, error)
	ListOpenIncidents(ctx context.Context, gameID string) ([]domain.Incident, error)

	// Transaction support. Status writes and their audit events commit
	// together or not at all.
	BeginTx(ctx context.Context) (pgx.Tx, error)
	UpdateServiceStatusTx(ctx context.Context, tx pgx.Tx, serviceID string, status domain.ServiceStatus) error
	AppendEventTx(ctx context.Context, tx pgx.Tx, event *domain.GameEvent) error
}
