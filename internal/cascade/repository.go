package cascade

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
)

// Repository defines the storage interface for the cascade propagator.
type Repository interface {
	GetServiceByID(ctx context.Context, id string) (*domain.Service, error)
	ListServices(ctx context.Context, gameID string) ([]domain.Service, error)
	ListDependencies(ctx context.Context, gameID string) ([]domain.ServiceDependency, error)

	// Transaction support.
	BeginTx(ctx context.Context) (pgx.Tx, error)
	// GetServiceStatusTx reads a service's status with a row lock.
	GetServiceStatusTx(ctx context.Context, tx pgx.Tx, serviceID string) (domain.ServiceStatus, error)
	UpdateServiceStatusTx(ctx context.Context, tx pgx.Tx, serviceID string, status domain.ServiceStatus) error
	AppendEventTx(ctx context.Context, tx pgx.Tx, event *domain.GameEvent) error
}
