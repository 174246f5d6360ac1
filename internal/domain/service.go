package domain

import "time"

// ServiceStatus represents the operational status of a simulated service.
type ServiceStatus string

// Service statuses, ordered from healthy to failed.
const (
	ServiceStatusOperational ServiceStatus = "operational"
	ServiceStatusDegraded    ServiceStatus = "degraded"
	ServiceStatusDown        ServiceStatus = "down"
)

// IsValid checks if the service status is valid.
func (s ServiceStatus) IsValid() bool {
	switch s {
	case ServiceStatusOperational, ServiceStatusDegraded, ServiceStatusDown:
		return true
	}
	return false
}

// Rank returns the severity ordinal of the status: operational(0) <
// degraded(1) < down(2). Cascade application only ever moves a service to a
// strictly higher rank.
func (s ServiceStatus) Rank() int {
	switch s {
	case ServiceStatusDegraded:
		return 1
	case ServiceStatusDown:
		return 2
	default:
		return 0
	}
}

// WorseThan reports whether s is strictly less healthy than other.
func (s ServiceStatus) WorseThan(other ServiceStatus) bool {
	return s.Rank() > other.Rank()
}

// HealthWeight returns the contribution weight of the status to the
// criticality-weighted game health score.
func (s ServiceStatus) HealthWeight() float64 {
	switch s {
	case ServiceStatusOperational:
		return 1
	case ServiceStatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// Service represents a simulated IT component within a game.
type Service struct {
	ID          string        `json:"id"`
	GameID      string        `json:"game_id"`
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Criticality int           `json:"criticality"` // 1..10, instructor-assigned
	Status      ServiceStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DependencyType classifies how a failure of the depended-on service affects
// the dependent.
type DependencyType string

// Dependency types. A hard dependency forces dependents down; a soft one only
// degrades them.
const (
	DependencyTypeHard DependencyType = "hard"
	DependencyTypeSoft DependencyType = "soft"
)

// IsValid checks if the dependency type is valid.
func (t DependencyType) IsValid() bool {
	return t == DependencyTypeHard || t == DependencyTypeSoft
}

// ImpactedStatus returns the status a dependent is forced into when the
// depended-on service fails.
func (t DependencyType) ImpactedStatus() ServiceStatus {
	if t == DependencyTypeHard {
		return ServiceStatusDown
	}
	return ServiceStatusDegraded
}

// ServiceDependency is a directed edge "ServiceID depends on DependsOnID".
type ServiceDependency struct {
	ID                 string         `json:"id"`
	GameID             string         `json:"game_id"`
	ServiceID          string         `json:"service_id"`
	DependsOnID        string         `json:"depends_on_id"`
	Type               DependencyType `json:"type"`
	ImpactDelayMinutes int            `json:"impact_delay_minutes"`
	CreatedAt          time.Time      `json:"created_at"`
}
