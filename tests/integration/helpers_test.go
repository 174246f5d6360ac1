//go:build integration

package integration

import (
	"context"
	"testing"
	"time"
)

// seedGame creates an active game and returns its ID.
func seedGame(t *testing.T, name string) string {
	t.Helper()

	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO games (name, status) VALUES ($1, 'active') RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed game: %v", err)
	}
	return id
}

// seedTeam creates a team and returns its ID.
func seedTeam(t *testing.T, gameID, name, role string, score, morale int) string {
	t.Helper()

	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO teams (game_id, name, role, score, morale_level)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		gameID, name, role, score, morale,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed team: %v", err)
	}
	return id
}

// seedService creates a service and returns its ID.
func seedService(t *testing.T, gameID, name string, criticality int, status string) string {
	t.Helper()

	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO services (game_id, name, criticality, status)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		gameID, name, criticality, status,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed service: %v", err)
	}
	return id
}

type incidentSeed struct {
	Title           string
	Priority        string
	Severity        string
	Status          string
	AffectedService string
	SLADeadline     *time.Time
	AssignedTeamID  *string
	CreatedAt       time.Time
}

// seedIncident creates an incident and returns its ID.
func seedIncident(t *testing.T, gameID string, seed incidentSeed) string {
	t.Helper()

	if seed.Status == "" {
		seed.Status = "open"
	}
	if seed.Severity == "" {
		seed.Severity = "medium"
	}
	if seed.Priority == "" {
		seed.Priority = "medium"
	}
	if seed.CreatedAt.IsZero() {
		seed.CreatedAt = time.Now()
	}

	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO incidents (game_id, title, priority, severity, status,
		                        affected_service, sla_deadline, assigned_team_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		gameID, seed.Title, seed.Priority, seed.Severity, seed.Status,
		seed.AffectedService, seed.SLADeadline, seed.AssignedTeamID, seed.CreatedAt,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed incident: %v", err)
	}
	return id
}

// seedRule creates an escalation rule and returns its ID.
func seedRule(t *testing.T, gameID, name, priorityTrigger string, thresholdMinutes, level int, autoReassign bool, targetRole string) string {
	t.Helper()

	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO escalation_rules (game_id, name, priority_trigger, time_threshold_minutes,
		                               escalation_level, auto_reassign, target_team_role)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		gameID, name, priorityTrigger, thresholdMinutes, level, autoReassign, targetRole,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	return id
}

// getServiceStatus reads a service's current status.
func getServiceStatus(t *testing.T, serviceID string) string {
	t.Helper()

	var status string
	err := testDB.QueryRow(context.Background(),
		`SELECT status FROM services WHERE id = $1`, serviceID,
	).Scan(&status)
	if err != nil {
		t.Fatalf("get service status: %v", err)
	}
	return status
}

// getIncident reads back the fields the engine mutates.
func getIncident(t *testing.T, incidentID string) (priority string, breached bool, level, count int, teamID *string) {
	t.Helper()

	err := testDB.QueryRow(context.Background(),
		`SELECT priority, sla_breached, current_escalation_level, escalation_count, assigned_team_id
		 FROM incidents WHERE id = $1`, incidentID,
	).Scan(&priority, &breached, &level, &count, &teamID)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	return priority, breached, level, count, teamID
}

// getTeamScores reads a team's score and morale.
func getTeamScores(t *testing.T, teamID string) (score, morale int) {
	t.Helper()

	err := testDB.QueryRow(context.Background(),
		`SELECT score, morale_level FROM teams WHERE id = $1`, teamID,
	).Scan(&score, &morale)
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	return score, morale
}

// countEvents counts a game's events of one type.
func countEvents(t *testing.T, gameID, eventType string) int {
	t.Helper()

	var n int
	err := testDB.QueryRow(context.Background(),
		`SELECT count(*) FROM game_events WHERE game_id = $1 AND event_type = $2`,
		gameID, eventType,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}
