package domain

import "time"

// IncidentStatus represents the triage state of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusOpen       IncidentStatus = "open"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusClosed     IncidentStatus = "closed"
)

// IsOpen reports whether the incident still participates in engine passes.
// Resolved and closed incidents are excluded from all passes.
func (s IncidentStatus) IsOpen() bool {
	return s == IncidentStatusOpen || s == IncidentStatusInProgress
}

// IncidentPriority represents the handling priority of an incident.
type IncidentPriority string

// Incident priorities.
const (
	IncidentPriorityLow      IncidentPriority = "low"
	IncidentPriorityMedium   IncidentPriority = "medium"
	IncidentPriorityHigh     IncidentPriority = "high"
	IncidentPriorityCritical IncidentPriority = "critical"
)

// IsValid checks if the priority is valid.
func (p IncidentPriority) IsValid() bool {
	switch p {
	case IncidentPriorityLow, IncidentPriorityMedium, IncidentPriorityHigh, IncidentPriorityCritical:
		return true
	}
	return false
}

// Escalated returns the next priority in the fixed escalation order
// low→medium→high→critical. Critical is the absorbing state.
func (p IncidentPriority) Escalated() IncidentPriority {
	switch p {
	case IncidentPriorityLow:
		return IncidentPriorityMedium
	case IncidentPriorityMedium:
		return IncidentPriorityHigh
	default:
		return IncidentPriorityCritical
	}
}

// IncidentSeverity represents the technical impact of an incident.
type IncidentSeverity string

// Incident severities.
const (
	IncidentSeverityLow      IncidentSeverity = "low"
	IncidentSeverityMedium   IncidentSeverity = "medium"
	IncidentSeverityHigh     IncidentSeverity = "high"
	IncidentSeverityCritical IncidentSeverity = "critical"
)

// Rank returns the severity ordinal used by the health aggregator:
// critical=4, high=3, medium=2, low=1, anything else 0.
func (s IncidentSeverity) Rank() int {
	switch s {
	case IncidentSeverityCritical:
		return 4
	case IncidentSeverityHigh:
		return 3
	case IncidentSeverityMedium:
		return 2
	case IncidentSeverityLow:
		return 1
	}
	return 0
}

// Incident is a triage ticket worked by a student team. Incidents are created
// by the scenario generator outside this engine; the engine mutates priority,
// escalation level, SLA breach state and team assignment.
type Incident struct {
	ID          string           `json:"id"`
	GameID      string           `json:"game_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Priority    IncidentPriority `json:"priority"`
	Severity    IncidentSeverity `json:"severity"`
	Status      IncidentStatus   `json:"status"`

	// AffectedService is a free-text service reference supplied by the
	// scenario generator. AffectedServiceID is set when the generator could
	// link the incident to a concrete service row.
	AffectedService   string  `json:"affected_service"`
	AffectedServiceID *string `json:"affected_service_id,omitempty"`

	SLADeadline *time.Time `json:"sla_deadline,omitempty"`
	SLABreached bool       `json:"sla_breached"`

	CurrentEscalationLevel int     `json:"current_escalation_level"`
	EscalationCount        int     `json:"escalation_count"`
	AssignedTeamID         *string `json:"assigned_team_id,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
