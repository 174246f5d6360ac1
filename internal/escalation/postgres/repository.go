// Package postgres provides PostgreSQL implementation of the escalation
// repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/escalation"
)

const incidentColumns = `
	id, game_id, title, description, priority, severity, status,
	affected_service, affected_service_id, sla_deadline, sla_breached,
	current_escalation_level, escalation_count, assigned_team_id,
	created_at, updated_at, resolved_at
`

const ruleColumns = `
	id, game_id, name, priority_trigger, time_threshold_minutes,
	escalation_level, auto_reassign, target_team_role, created_at, updated_at
`

// Repository implements escalation.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID, &inc.GameID, &inc.Title, &inc.Description, &inc.Priority, &inc.Severity, &inc.Status,
		&inc.AffectedService, &inc.AffectedServiceID, &inc.SLADeadline, &inc.SLABreached,
		&inc.CurrentEscalationLevel, &inc.EscalationCount, &inc.AssignedTeamID,
		&inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func scanRule(row pgx.Row) (*domain.EscalationRule, error) {
	var r domain.EscalationRule
	err := row.Scan(
		&r.ID, &r.GameID, &r.Name, &r.PriorityTrigger, &r.TimeThresholdMinutes,
		&r.EscalationLevel, &r.AutoReassign, &r.TargetTeamRole, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListOpenIncidents returns a game's open and in-progress incidents.
func (r *Repository) ListOpenIncidents(ctx context.Context, gameID string) ([]domain.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE game_id = $1 AND status IN ('open', 'in_progress')
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	return incidents, rows.Err()
}

// ListRules returns a game's escalation rules.
func (r *Repository) ListRules(ctx context.Context, gameID string) ([]domain.EscalationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM escalation_rules
		WHERE game_id = $1
		ORDER BY escalation_level, time_threshold_minutes
	`
	rows, err := r.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	rules := make([]domain.EscalationRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// ListEscalationsByIncident returns an incident's hand-off history, oldest
// first.
func (r *Repository) ListEscalationsByIncident(ctx context.Context, incidentID string) ([]domain.IncidentEscalation, error) {
	query := `
		SELECT id, game_id, incident_id, rule_id, from_team_id, to_team_id,
		       escalation_level, reason, escalated_by, acknowledged, created_at
		FROM incident_escalations
		WHERE incident_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	records := make([]domain.IncidentEscalation, 0)
	for rows.Next() {
		var rec domain.IncidentEscalation
		err := rows.Scan(
			&rec.ID, &rec.GameID, &rec.IncidentID, &rec.RuleID, &rec.FromTeamID, &rec.ToTeamID,
			&rec.EscalationLevel, &rec.Reason, &rec.EscalatedBy, &rec.Acknowledged, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AcknowledgeEscalation marks a hand-off record as acknowledged.
func (r *Repository) AcknowledgeEscalation(ctx context.Context, escalationID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE incident_escalations SET acknowledged = true WHERE id = $1`, escalationID)
	if err != nil {
		return fmt.Errorf("acknowledge escalation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return escalation.ErrEscalationNotFound
	}
	return nil
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// GetIncidentForUpdateTx re-reads an incident with a row lock so concurrent
// escalations of the same incident serialize.
func (r *Repository) GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 FOR UPDATE`
	inc, err := scanIncident(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escalation.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// GetRuleTx retrieves an escalation rule within a transaction.
func (r *Repository) GetRuleTx(ctx context.Context, tx pgx.Tx, id string) (*domain.EscalationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM escalation_rules WHERE id = $1`
	rule, err := scanRule(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escalation.ErrRuleNotFound
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// FindTeamByRoleTx finds a game's team by role. When several teams share the
// role the longest-standing one receives the hand-off.
func (r *Repository) FindTeamByRoleTx(ctx context.Context, tx pgx.Tx, gameID, role string) (*domain.Team, error) {
	query := `
		SELECT id, game_id, name, role, score, morale_level, created_at, updated_at
		FROM teams
		WHERE game_id = $1 AND role = $2
		ORDER BY created_at
		LIMIT 1
	`
	var t domain.Team
	err := tx.QueryRow(ctx, query, gameID, role).Scan(
		&t.ID, &t.GameID, &t.Name, &t.Role, &t.Score, &t.MoraleLevel, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escalation.ErrTeamNotFound
		}
		return nil, fmt.Errorf("find team by role: %w", err)
	}
	return &t, nil
}

// InsertEscalationTx writes a hand-off audit row within a transaction.
func (r *Repository) InsertEscalationTx(ctx context.Context, tx pgx.Tx, record *domain.IncidentEscalation) error {
	query := `
		INSERT INTO incident_escalations (
			game_id, incident_id, rule_id, from_team_id, to_team_id,
			escalation_level, reason, escalated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := tx.QueryRow(ctx, query,
		record.GameID, record.IncidentID, record.RuleID, record.FromTeamID, record.ToTeamID,
		record.EscalationLevel, record.Reason, record.EscalatedBy,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

// UpdateIncidentEscalationTx bumps the incident's level and count and
// reassigns it when a target team was resolved.
func (r *Repository) UpdateIncidentEscalationTx(ctx context.Context, tx pgx.Tx, incidentID string, level int, assignedTeamID *string) error {
	query := `
		UPDATE incidents
		SET current_escalation_level = $2,
		    escalation_count = escalation_count + 1,
		    assigned_team_id = $3,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, query, incidentID, level, assignedTeamID)
	if err != nil {
		return fmt.Errorf("update incident escalation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return escalation.ErrIncidentNotFound
	}
	return nil
}

// AdjustTeamScoreTx adds delta to a team's score, clamped at zero.
func (r *Repository) AdjustTeamScoreTx(ctx context.Context, tx pgx.Tx, teamID string, delta int) error {
	query := `
		UPDATE teams
		SET score = GREATEST(score + $2, 0), updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, teamID, delta); err != nil {
		return fmt.Errorf("adjust team score: %w", err)
	}
	return nil
}

// AppendEventTx appends a game event within a transaction.
func (r *Repository) AppendEventTx(ctx context.Context, tx pgx.Tx, event *domain.GameEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	query := `
		INSERT INTO game_events (game_id, event_type, severity, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := tx.QueryRow(ctx, query, event.GameID, event.Type, event.Severity, payload).Scan(&event.ID, &event.CreatedAt); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
