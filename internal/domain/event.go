package domain

import "time"

// GameEventType classifies entries in the append-only game event log.
type GameEventType string

// Game event types emitted by the engine.
const (
	GameEventServiceStatusChanged GameEventType = "service_status_changed"
	GameEventCascadeApplied       GameEventType = "cascade_applied"
	GameEventSLABreached          GameEventType = "sla_breached"
	GameEventIncidentEscalated    GameEventType = "incident_escalated"
)

// GameEventSeverity indicates how prominently dashboards should surface an
// event.
type GameEventSeverity string

// Game event severities.
const (
	GameEventSeverityInfo     GameEventSeverity = "info"
	GameEventSeverityWarning  GameEventSeverity = "warning"
	GameEventSeverityCritical GameEventSeverity = "critical"
)

// GameEvent is one row of the engine's observability log. Events are written
// inside the same transaction as the state change they describe and drained to
// external sinks by the outbox worker.
type GameEvent struct {
	ID          string            `json:"id"`
	GameID      string            `json:"game_id"`
	Type        GameEventType     `json:"type"`
	Severity    GameEventSeverity `json:"severity"`
	Payload     map[string]any    `json:"payload"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
