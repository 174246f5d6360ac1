package escalation

import "errors"

// Repository and business-rule errors.
var (
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrIncidentClosed     = errors.New("incident is not open")
	ErrRuleNotFound       = errors.New("escalation rule not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrEscalationNotFound = errors.New("escalation not found")
)
