package simgraph

import (
	"context"

	"github.com/opsdrill/opsdrill/internal/domain"
)

// Repository defines the interface for dependency edge storage.
type Repository interface {
	ListDependencies(ctx context.Context, gameID string) ([]domain.ServiceDependency, error)
	GetDependency(ctx context.Context, id string) (*domain.ServiceDependency, error)
	UpsertDependency(ctx context.Context, dep *domain.ServiceDependency) error
	DeleteDependency(ctx context.Context, id string) error

	GetServiceByID(ctx context.Context, id string) (*domain.Service, error)
}
