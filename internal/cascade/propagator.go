// Package cascade propagates a failing service's state to the services that
// depend on it, directly or transitively.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/simgraph"
)

// Relation tags how a dependent is affected relative to the failing service.
type Relation string

// Relations: depth-1 dependents are direct, everything deeper is cascade.
const (
	RelationDirect  Relation = "direct"
	RelationCascade Relation = "cascade"
)

// Impact describes the eventual state of one dependent of a failing service.
type Impact struct {
	ServiceID    string               `json:"service_id"`
	ServiceName  string               `json:"service_name"`
	Relation     Relation             `json:"relation"`
	Depth        int                  `json:"depth"`
	Status       domain.ServiceStatus `json:"status"`
	DelayMinutes int                  `json:"delay_minutes"` // cumulative along the path that reached the service
	Applied      bool                 `json:"applied,omitempty"`
}

// Propagator implements failure propagation over the dependency graph.
type Propagator struct {
	repo Repository
}

// NewPropagator creates a new cascade propagator.
func NewPropagator(repo Repository) *Propagator {
	return &Propagator{repo: repo}
}

// ImpactOf computes, without writing anything, the eventual state of every
// service reachable from the failing service over inverse dependency edges.
// Each dependent is collected once, at the depth it is first reached; the
// first edge reaching it decides whether it goes down (hard) or degraded
// (soft). Traversal stops at the graph depth bound.
func (p *Propagator) ImpactOf(ctx context.Context, serviceID string) ([]Impact, error) {
	origin, err := p.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}

	edges, err := p.repo.ListDependencies(ctx, origin.GameID)
	if err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}

	names, err := p.serviceNames(ctx, origin.GameID)
	if err != nil {
		return nil, err
	}

	graph := simgraph.NewGraph(edges)
	impacts := make([]Impact, 0)
	visited := map[string]bool{serviceID: true}

	type frame struct {
		id    string
		depth int
		delay int
	}
	queue := []frame{{id: serviceID}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= simgraph.MaxDepth {
			continue
		}

		for _, e := range graph.DependentsOf(cur.id) {
			if visited[e.ServiceID] {
				continue
			}
			visited[e.ServiceID] = true

			depth := cur.depth + 1
			relation := RelationCascade
			if depth == 1 {
				relation = RelationDirect
			}

			impacts = append(impacts, Impact{
				ServiceID:    e.ServiceID,
				ServiceName:  names[e.ServiceID],
				Relation:     relation,
				Depth:        depth,
				Status:       e.Type.ImpactedStatus(),
				DelayMinutes: cur.delay + e.ImpactDelayMinutes,
			})
			queue = append(queue, frame{id: e.ServiceID, depth: depth, delay: cur.delay + e.ImpactDelayMinutes})
		}
	}

	return impacts, nil
}

// Apply computes the impact of a failing service and persists it. A dependent
// is only ever moved to a strictly worse status, which makes application
// monotone and idempotent: re-running Apply on an already-cascaded graph is a
// no-op. All writes and their audit events commit in one transaction.
func (p *Propagator) Apply(ctx context.Context, serviceID string) ([]Impact, error) {
	impacts, err := p.ImpactOf(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if len(impacts) == 0 {
		return impacts, nil
	}

	origin, err := p.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	batchID := uuid.New().String()
	applied := 0
	for i := range impacts {
		imp := &impacts[i]
		// Row-locked read: the strictly-worse check must not interleave
		// with a concurrent apply touching the same service.
		current, err := p.repo.GetServiceStatusTx(ctx, tx, imp.ServiceID)
		if err != nil {
			return nil, fmt.Errorf("get dependent %s: %w", imp.ServiceID, err)
		}
		if !imp.Status.WorseThan(current) {
			continue
		}

		if err := p.repo.UpdateServiceStatusTx(ctx, tx, imp.ServiceID, imp.Status); err != nil {
			return nil, fmt.Errorf("update dependent %s: %w", imp.ServiceID, err)
		}

		event := &domain.GameEvent{
			GameID:   origin.GameID,
			Type:     domain.GameEventServiceStatusChanged,
			Severity: domain.GameEventSeverityWarning,
			Payload: map[string]any{
				"service_id": imp.ServiceID,
				"old_status": current,
				"new_status": imp.Status,
				"origin_id":  serviceID,
				"relation":   imp.Relation,
				"batch_id":   batchID,
			},
		}
		if err := p.repo.AppendEventTx(ctx, tx, event); err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}

		imp.Applied = true
		applied++
	}

	if applied > 0 {
		event := &domain.GameEvent{
			GameID:   origin.GameID,
			Type:     domain.GameEventCascadeApplied,
			Severity: domain.GameEventSeverityWarning,
			Payload: map[string]any{
				"origin_id":   serviceID,
				"origin_name": origin.Name,
				"affected":    applied,
				"batch_id":    batchID,
			},
		}
		if err := p.repo.AppendEventTx(ctx, tx, event); err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	recordCascade(applied)
	return impacts, nil
}

func (p *Propagator) serviceNames(ctx context.Context, gameID string) (map[string]string, error) {
	services, err := p.repo.ListServices(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	names := make(map[string]string, len(services))
	for i := range services {
		names[services[i].ID] = services[i].Name
	}
	return names, nil
}
