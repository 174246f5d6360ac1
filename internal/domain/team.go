package domain

import "time"

// Team roles used for escalation targeting. The set is open-ended; these are
// the roles the default scenarios ship with.
const (
	TeamRoleServiceDesk      = "service_desk"
	TeamRoleTechnicalSupport = "technical_support"
	TeamRoleIncidentCommand  = "incident_command"
)

// Team is a scoring and morale holder for a student group. The engine mutates
// teams only as a side effect of penalties; everything else about teams is
// owned by the surrounding platform.
type Team struct {
	ID          string    `json:"id"`
	GameID      string    `json:"game_id"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Score       int       `json:"score"`
	MoraleLevel int       `json:"morale_level"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
