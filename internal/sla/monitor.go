// Package sla detects incidents whose resolution deadline has passed, marks
// them breached exactly once and escalates their priority one step.
package sla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/pkg/ctxlog"
)

// DefaultMoralePenalty is subtracted from the assigned team's morale when a
// breach actually escalates the incident's priority.
const DefaultMoralePenalty = 5

// Breach describes one incident processed during a monitor pass.
type Breach struct {
	IncidentID  string                  `json:"incident_id"`
	Title       string                  `json:"title"`
	OldPriority domain.IncidentPriority `json:"old_priority"`
	NewPriority domain.IncidentPriority `json:"new_priority"`
	Escalated   bool                    `json:"escalated"`
	TeamID      *string                 `json:"team_id,omitempty"`
}

// Result summarizes a single CheckAndProcessBreaches pass.
type Result struct {
	Breached  int      `json:"breached"`
	Escalated int      `json:"escalated"`
	Breaches  []Breach `json:"breaches"`
}

// Monitor implements the SLA breach pass.
type Monitor struct {
	repo          Repository
	moralePenalty int
	now           func() time.Time
}

// NewMonitor creates a new SLA monitor. A non-positive moralePenalty falls
// back to the default.
func NewMonitor(repo Repository, moralePenalty int) *Monitor {
	if moralePenalty <= 0 {
		moralePenalty = DefaultMoralePenalty
	}
	return &Monitor{repo: repo, moralePenalty: moralePenalty, now: time.Now}
}

// CheckAndProcessBreaches scans a game's open incidents for passed SLA
// deadlines. Each breached incident is processed in its own transaction:
// the sla_breached flag is set, priority moves one step up the fixed order
// and, when the priority actually changed, the assigned team takes a morale
// penalty. The flag gates the selection query, so re-running the pass against
// unchanged state writes nothing.
func (m *Monitor) CheckAndProcessBreaches(ctx context.Context, gameID string) (*Result, error) {
	candidates, err := m.repo.ListBreachCandidates(ctx, gameID, m.now())
	if err != nil {
		return nil, fmt.Errorf("list breach candidates: %w", err)
	}

	result := &Result{Breaches: make([]Breach, 0, len(candidates))}
	for i := range candidates {
		breach, err := m.processBreach(ctx, candidates[i].ID)
		if err != nil {
			return nil, fmt.Errorf("process breach %s: %w", candidates[i].ID, err)
		}
		if breach == nil {
			// A concurrent pass got there first.
			continue
		}

		result.Breached++
		if breach.Escalated {
			result.Escalated++
		}
		result.Breaches = append(result.Breaches, *breach)
	}

	if result.Breached > 0 {
		ctxlog.FromContext(ctx).Info("processed SLA breaches",
			"game_id", gameID,
			"breached", result.Breached,
			"escalated", result.Escalated,
		)
	}
	recordBreaches(result.Breached, result.Escalated)
	return result, nil
}

// processBreach handles a single incident inside one transaction. The incident
// is re-read under a row lock so the exactly-once gate holds against
// concurrent passes; it returns nil if the gate no longer matches.
func (m *Monitor) processBreach(ctx context.Context, incidentID string) (*Breach, error) {
	tx, err := m.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	inc, err := m.repo.GetIncidentForUpdateTx(ctx, tx, incidentID)
	if err != nil {
		if errors.Is(err, ErrIncidentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if inc.SLABreached || !inc.Status.IsOpen() || inc.SLADeadline == nil || !inc.SLADeadline.Before(m.now()) {
		return nil, nil
	}

	oldPriority := inc.Priority
	newPriority := oldPriority.Escalated()
	escalated := newPriority != oldPriority

	if err := m.repo.MarkBreachedTx(ctx, tx, inc.ID, newPriority); err != nil {
		return nil, err
	}

	event := &domain.GameEvent{
		GameID:   inc.GameID,
		Type:     domain.GameEventSLABreached,
		Severity: domain.GameEventSeverityCritical,
		Payload: map[string]any{
			"incident_id":  inc.ID,
			"title":        inc.Title,
			"old_priority": oldPriority,
			"new_priority": newPriority,
		},
	}
	if err := m.repo.AppendEventTx(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	if escalated {
		event := &domain.GameEvent{
			GameID:   inc.GameID,
			Type:     domain.GameEventIncidentEscalated,
			Severity: domain.GameEventSeverityWarning,
			Payload: map[string]any{
				"incident_id":  inc.ID,
				"old_priority": oldPriority,
				"new_priority": newPriority,
				"cause":        "sla_breach",
			},
		}
		if err := m.repo.AppendEventTx(ctx, tx, event); err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}

		if inc.AssignedTeamID != nil {
			if err := m.repo.AdjustTeamMoraleTx(ctx, tx, *inc.AssignedTeamID, -m.moralePenalty); err != nil {
				return nil, fmt.Errorf("adjust team morale: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &Breach{
		IncidentID:  inc.ID,
		Title:       inc.Title,
		OldPriority: oldPriority,
		NewPriority: newPriority,
		Escalated:   escalated,
		TeamID:      inc.AssignedTeamID,
	}, nil
}
