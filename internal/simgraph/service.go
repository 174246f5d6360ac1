package simgraph

import (
	"context"
	"fmt"

	"github.com/opsdrill/opsdrill/internal/domain"
)

// Service implements dependency graph business logic.
type Service struct {
	repo Repository
}

// NewService creates a new graph service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AddDependencyInput holds data for creating a dependency edge.
type AddDependencyInput struct {
	ServiceID          string
	DependsOnID        string
	Type               domain.DependencyType
	ImpactDelayMinutes int
}

// AddDependency inserts a directed edge "ServiceID depends on DependsOnID"
// after verifying the edge keeps the graph acyclic. A duplicate edge between
// the same ordered pair upserts type and delay instead of erroring.
func (s *Service) AddDependency(ctx context.Context, in AddDependencyInput) (*domain.ServiceDependency, error) {
	if !in.Type.IsValid() {
		return nil, fmt.Errorf("invalid dependency type: %s", in.Type)
	}

	from, err := s.repo.GetServiceByID(ctx, in.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	to, err := s.repo.GetServiceByID(ctx, in.DependsOnID)
	if err != nil {
		return nil, fmt.Errorf("get depends-on service: %w", err)
	}
	if from.GameID != to.GameID {
		return nil, fmt.Errorf("%w: services belong to different games", ErrServiceNotFound)
	}

	edges, err := s.repo.ListDependencies(ctx, from.GameID)
	if err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}

	cycle, truncated := NewGraph(edges).WouldCycle(in.ServiceID, in.DependsOnID)
	if cycle {
		return nil, ErrCycle
	}
	if truncated {
		return nil, ErrDepthExceeded
	}

	dep := &domain.ServiceDependency{
		GameID:             from.GameID,
		ServiceID:          in.ServiceID,
		DependsOnID:        in.DependsOnID,
		Type:               in.Type,
		ImpactDelayMinutes: in.ImpactDelayMinutes,
	}
	if err := s.repo.UpsertDependency(ctx, dep); err != nil {
		return nil, fmt.Errorf("upsert dependency: %w", err)
	}

	return dep, nil
}

// RemoveDependency deletes an edge by ID.
func (s *Service) RemoveDependency(ctx context.Context, id string) error {
	return s.repo.DeleteDependency(ctx, id)
}

// Graph returns all dependency edges of a game.
func (s *Service) Graph(ctx context.Context, gameID string) ([]domain.ServiceDependency, error) {
	return s.repo.ListDependencies(ctx, gameID)
}

// AncestorsOf returns the IDs of every service the given service transitively
// depends on.
func (s *Service) AncestorsOf(ctx context.Context, serviceID string) ([]string, error) {
	g, err := s.loadGraphFor(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return g.Ancestors(serviceID), nil
}

// DescendantsOf returns the IDs of every service transitively depending on
// the given service.
func (s *Service) DescendantsOf(ctx context.Context, serviceID string) ([]string, error) {
	g, err := s.loadGraphFor(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return g.Descendants(serviceID), nil
}

func (s *Service) loadGraphFor(ctx context.Context, serviceID string) (*Graph, error) {
	svc, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	edges, err := s.repo.ListDependencies(ctx, svc.GameID)
	if err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}
	return NewGraph(edges), nil
}
