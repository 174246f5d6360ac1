package domain

import "time"

// EscalationRule defines an instructor-authored trigger for automatic
// incident hand-offs. Rules are matched by the escalation engine against open
// incidents on every pass.
type EscalationRule struct {
	ID                   string           `json:"id"`
	GameID               string           `json:"game_id"`
	Name                 string           `json:"name"`
	PriorityTrigger      IncidentPriority `json:"priority_trigger"`
	TimeThresholdMinutes int              `json:"time_threshold_minutes"`
	EscalationLevel      int              `json:"escalation_level"`
	AutoReassign         bool             `json:"auto_reassign"`
	TargetTeamRole       string           `json:"target_team_role"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// IncidentEscalation is an append-only audit record written for every
// escalation-level increase. The set of these rows for an incident is its
// full hand-off history.
type IncidentEscalation struct {
	ID              string    `json:"id"`
	GameID          string    `json:"game_id"`
	IncidentID      string    `json:"incident_id"`
	RuleID          *string   `json:"rule_id,omitempty"` // nil for manual escalations
	FromTeamID      *string   `json:"from_team_id,omitempty"`
	ToTeamID        *string   `json:"to_team_id,omitempty"`
	EscalationLevel int       `json:"escalation_level"`
	Reason          string    `json:"reason"`
	EscalatedBy     string    `json:"escalated_by"` // "system" for scheduled passes
	Acknowledged    bool      `json:"acknowledged"`
	CreatedAt       time.Time `json:"created_at"`
}
