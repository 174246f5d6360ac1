// Package health derives service statuses from the incidents currently
// affecting them and computes criticality-weighted game health.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
)

// Aggregator implements service health aggregation.
type Aggregator struct {
	repo Repository
}

// NewAggregator creates a new health aggregator.
func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Recompute derives the status of one service from the open incidents
// matching it and persists the status if it changed. Every transition appends
// one audit event; an unchanged status writes nothing.
func (a *Aggregator) Recompute(ctx context.Context, serviceID string) (domain.ServiceStatus, error) {
	svc, err := a.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return "", fmt.Errorf("get service: %w", err)
	}

	incidents, err := a.repo.ListOpenIncidents(ctx, svc.GameID)
	if err != nil {
		return "", fmt.Errorf("list open incidents: %w", err)
	}

	status, count := DeriveStatus(svc, incidents)
	if status == svc.Status {
		return status, nil
	}

	if err := a.writeTransition(ctx, svc, status, count); err != nil {
		return "", err
	}
	return status, nil
}

// RecomputeResult summarizes a whole-game recompute pass.
type RecomputeResult struct {
	Evaluated int `json:"evaluated"`
	Changed   int `json:"changed"`
}

// RecomputeAll re-derives the status of every service in a game. Services are
// evaluated independently; a failure on one service aborts the pass so the
// scheduler can retry it whole.
func (a *Aggregator) RecomputeAll(ctx context.Context, gameID string) (*RecomputeResult, error) {
	services, err := a.repo.ListServices(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	incidents, err := a.repo.ListOpenIncidents(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}

	result := &RecomputeResult{Evaluated: len(services)}
	for i := range services {
		svc := &services[i]
		status, count := DeriveStatus(svc, incidents)
		if status == svc.Status {
			continue
		}
		if err := a.writeTransition(ctx, svc, status, count); err != nil {
			return nil, err
		}
		result.Changed++
	}
	return result, nil
}

// writeTransition persists a status change and its audit event in one
// transaction.
func (a *Aggregator) writeTransition(ctx context.Context, svc *domain.Service, status domain.ServiceStatus, incidentCount int) error {
	tx, err := a.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := a.repo.UpdateServiceStatusTx(ctx, tx, svc.ID, status); err != nil {
		return fmt.Errorf("update service status: %w", err)
	}

	event := &domain.GameEvent{
		GameID:   svc.GameID,
		Type:     domain.GameEventServiceStatusChanged,
		Severity: transitionSeverity(status),
		Payload: map[string]any{
			"service_id":     svc.ID,
			"service_name":   svc.Name,
			"old_status":     svc.Status,
			"new_status":     status,
			"incident_count": incidentCount,
		},
	}
	if err := a.repo.AppendEventTx(ctx, tx, event); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	recordStatusTransition(svc.Status, status)
	return nil
}

// DeriveStatus computes the status implied by the open incidents matching a
// service, along with the number of matches:
//
//	no matches                     -> operational
//	any critical-severity incident -> down
//	severity >= medium or >1 match -> degraded
//	single low-severity incident   -> operational
func DeriveStatus(svc *domain.Service, incidents []domain.Incident) (domain.ServiceStatus, int) {
	maxRank := 0
	count := 0
	for i := range incidents {
		inc := &incidents[i]
		if !inc.Status.IsOpen() {
			continue
		}
		if Match(inc, svc) == MatchNone {
			continue
		}
		count++
		if r := inc.Severity.Rank(); r > maxRank {
			maxRank = r
		}
	}

	switch {
	case count == 0:
		return domain.ServiceStatusOperational, 0
	case maxRank == 4:
		return domain.ServiceStatusDown, count
	case maxRank >= 2 || count >= 2:
		return domain.ServiceStatusDegraded, count
	default:
		return domain.ServiceStatusOperational, count
	}
}

// Summary is the criticality-weighted health of a whole game.
type Summary struct {
	Score       int `json:"score"` // 0..100
	Total       int `json:"total"`
	Operational int `json:"operational"`
	Degraded    int `json:"degraded"`
	Down        int `json:"down"`
}

// GameHealth computes the weighted health score of a game:
// round(100 * Σ(criticality × weight(status)) / Σ(criticality)).
func (a *Aggregator) GameHealth(ctx context.Context, gameID string) (*Summary, error) {
	services, err := a.repo.ListServices(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	summary := &Summary{Score: 100, Total: len(services)}
	var weighted, totalCriticality float64
	for i := range services {
		svc := &services[i]
		switch svc.Status {
		case domain.ServiceStatusDegraded:
			summary.Degraded++
		case domain.ServiceStatusDown:
			summary.Down++
		default:
			summary.Operational++
		}
		weighted += float64(svc.Criticality) * svc.Status.HealthWeight()
		totalCriticality += float64(svc.Criticality)
	}

	if totalCriticality > 0 {
		summary.Score = int(math.Round(100 * weighted / totalCriticality))
	}

	recordGameHealth(gameID, summary.Score)
	return summary, nil
}

func transitionSeverity(status domain.ServiceStatus) domain.GameEventSeverity {
	switch status {
	case domain.ServiceStatusDown:
		return domain.GameEventSeverityCritical
	case domain.ServiceStatusDegraded:
		return domain.GameEventSeverityWarning
	default:
		return domain.GameEventSeverityInfo
	}
}
