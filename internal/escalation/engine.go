// Package escalation matches open incidents against instructor-authored rules
// and hands them off to higher-tier teams.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/pkg/ctxlog"
)

// DefaultLevelPenalty is multiplied by the new escalation level and subtracted
// from the previous team's score on every escalation.
const DefaultLevelPenalty = 25

// SystemActor is recorded as the escalating actor for scheduled passes.
const SystemActor = "system"

// Check is the outcome of evaluating one open incident against the game's
// rules.
type Check struct {
	IncidentID     string                  `json:"incident_id"`
	Title          string                  `json:"title"`
	Priority       domain.IncidentPriority `json:"priority"`
	CurrentLevel   int                     `json:"current_level"`
	AgeMinutes     int                     `json:"age_minutes"`
	ShouldEscalate bool                    `json:"should_escalate"`
	NextLevel      int                     `json:"next_level,omitempty"`
	Rule           *domain.EscalationRule  `json:"rule,omitempty"`
}

// EscalateInput carries the parameters of one escalation.
type EscalateInput struct {
	IncidentID  string
	RuleID      *string // nil for manual escalations
	Reason      string
	EscalatedBy string
	ToTeamID    *string // explicit target, wins over the rule's role lookup
}

// Engine implements rule matching and incident hand-offs.
type Engine struct {
	repo         Repository
	levelPenalty int
	now          func() time.Time
}

// NewEngine creates a new escalation engine. A non-positive levelPenalty falls
// back to the default.
func NewEngine(repo Repository, levelPenalty int) *Engine {
	if levelPenalty <= 0 {
		levelPenalty = DefaultLevelPenalty
	}
	return &Engine{repo: repo, levelPenalty: levelPenalty, now: time.Now}
}

// CheckEscalations evaluates every open incident of a game against the game's
// rules without writing anything. For each incident, candidate rules are those
// triggered by its current priority with a level above its current one, taken
// in ascending level order; the first whose time threshold has elapsed since
// the incident was created is the next rule to fire.
func (e *Engine) CheckEscalations(ctx context.Context, gameID string) ([]Check, error) {
	incidents, err := e.repo.ListOpenIncidents(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}
	rules, err := e.repo.ListRules(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	checks := make([]Check, 0, len(incidents))
	for i := range incidents {
		checks = append(checks, e.check(&incidents[i], rules))
	}
	return checks, nil
}

func (e *Engine) check(inc *domain.Incident, rules []domain.EscalationRule) Check {
	age := e.now().Sub(inc.CreatedAt)
	result := Check{
		IncidentID:   inc.ID,
		Title:        inc.Title,
		Priority:     inc.Priority,
		CurrentLevel: inc.CurrentEscalationLevel,
		AgeMinutes:   int(age.Minutes()),
	}

	candidates := make([]domain.EscalationRule, 0)
	for _, r := range rules {
		if r.PriorityTrigger == inc.Priority && r.EscalationLevel > inc.CurrentEscalationLevel {
			candidates = append(candidates, r)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EscalationLevel < candidates[j].EscalationLevel
	})

	for i := range candidates {
		if age >= time.Duration(candidates[i].TimeThresholdMinutes)*time.Minute {
			result.ShouldEscalate = true
			result.NextLevel = inc.CurrentEscalationLevel + 1
			result.Rule = &candidates[i]
			break
		}
	}
	return result
}

// EscalateIncident advances an incident exactly one escalation level and
// records the hand-off. The target team is resolved in precedence order:
// explicit ToTeamID, then the rule's auto-reassign role lookup, then
// unchanged. The previous team is penalized by newLevel times the configured
// penalty. Time thresholds are not re-checked here; that gating belongs to
// CheckEscalations, and manual escalations bypass it entirely.
func (e *Engine) EscalateIncident(ctx context.Context, in EscalateInput) (*domain.IncidentEscalation, error) {
	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	inc, err := e.repo.GetIncidentForUpdateTx(ctx, tx, in.IncidentID)
	if err != nil {
		return nil, err
	}
	// Resolved and closed incidents are out of the engine's reach. The
	// row-locked re-read makes this hold even against a concurrent resolve.
	if !inc.Status.IsOpen() {
		return nil, ErrIncidentClosed
	}

	newLevel := inc.CurrentEscalationLevel + 1
	toTeamID, err := e.resolveTarget(ctx, tx, inc, in)
	if err != nil {
		return nil, err
	}

	record := &domain.IncidentEscalation{
		GameID:          inc.GameID,
		IncidentID:      inc.ID,
		RuleID:          in.RuleID,
		FromTeamID:      inc.AssignedTeamID,
		ToTeamID:        toTeamID,
		EscalationLevel: newLevel,
		Reason:          in.Reason,
		EscalatedBy:     in.EscalatedBy,
	}
	if err := e.repo.InsertEscalationTx(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("insert escalation: %w", err)
	}

	assigned := inc.AssignedTeamID
	if toTeamID != nil {
		assigned = toTeamID
	}
	if err := e.repo.UpdateIncidentEscalationTx(ctx, tx, inc.ID, newLevel, assigned); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	if inc.AssignedTeamID != nil {
		if err := e.repo.AdjustTeamScoreTx(ctx, tx, *inc.AssignedTeamID, -newLevel*e.levelPenalty); err != nil {
			return nil, fmt.Errorf("adjust team score: %w", err)
		}
	}

	cause := "manual"
	if in.RuleID != nil {
		cause = "rule"
	}
	event := &domain.GameEvent{
		GameID:   inc.GameID,
		Type:     domain.GameEventIncidentEscalated,
		Severity: domain.GameEventSeverityWarning,
		Payload: map[string]any{
			"incident_id":  inc.ID,
			"level":        newLevel,
			"reason":       in.Reason,
			"escalated_by": in.EscalatedBy,
			"cause":        cause,
		},
	}
	if in.RuleID != nil {
		event.Payload["rule_id"] = *in.RuleID
	}
	if err := e.repo.AppendEventTx(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	recordEscalation(in.EscalatedBy == SystemActor)
	return record, nil
}

// resolveTarget picks the receiving team: explicit argument first, then the
// rule's role lookup when auto-reassign is on. A missing role match leaves the
// assignment unchanged rather than failing the escalation.
func (e *Engine) resolveTarget(ctx context.Context, tx pgx.Tx, inc *domain.Incident, in EscalateInput) (*string, error) {
	if in.ToTeamID != nil {
		return in.ToTeamID, nil
	}
	if in.RuleID == nil {
		return nil, nil
	}

	rule, err := e.repo.GetRuleTx(ctx, tx, *in.RuleID)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !rule.AutoReassign || rule.TargetTeamRole == "" {
		return nil, nil
	}

	team, err := e.repo.FindTeamByRoleTx(ctx, tx, inc.GameID, rule.TargetTeamRole)
	if err != nil {
		if errors.Is(err, ErrTeamNotFound) {
			ctxlog.FromContext(ctx).Warn("no team for escalation role, keeping assignment",
				"game_id", inc.GameID,
				"role", rule.TargetTeamRole,
			)
			return nil, nil
		}
		return nil, err
	}
	return &team.ID, nil
}

// ProcessAutoEscalations runs CheckEscalations and escalates every incident
// whose next rule has fired, with a system-generated reason. It returns the
// number of incidents escalated.
func (e *Engine) ProcessAutoEscalations(ctx context.Context, gameID string) (int, error) {
	checks, err := e.CheckEscalations(ctx, gameID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, c := range checks {
		if !c.ShouldEscalate {
			continue
		}

		reason := fmt.Sprintf("rule %q fired after %d minutes", c.Rule.Name, c.AgeMinutes)
		_, err := e.EscalateIncident(ctx, EscalateInput{
			IncidentID:  c.IncidentID,
			RuleID:      &c.Rule.ID,
			Reason:      reason,
			EscalatedBy: SystemActor,
		})
		if err != nil {
			// The incident may have been deleted or resolved since the
			// check; either way there is nothing left to escalate.
			if errors.Is(err, ErrIncidentNotFound) || errors.Is(err, ErrIncidentClosed) {
				continue
			}
			return count, fmt.Errorf("escalate incident %s: %w", c.IncidentID, err)
		}
		count++
	}

	if count > 0 {
		ctxlog.FromContext(ctx).Info("processed automatic escalations",
			"game_id", gameID,
			"escalated", count,
		)
	}
	return count, nil
}

// AcknowledgeEscalation marks a hand-off as acknowledged by the receiving
// team.
func (e *Engine) AcknowledgeEscalation(ctx context.Context, escalationID string) error {
	return e.repo.AcknowledgeEscalation(ctx, escalationID)
}

// ListEscalations returns an incident's full hand-off history, oldest first.
func (e *Engine) ListEscalations(ctx context.Context, incidentID string) ([]domain.IncidentEscalation, error) {
	return e.repo.ListEscalationsByIncident(ctx, incidentID)
}
