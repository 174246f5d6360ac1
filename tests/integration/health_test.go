//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/opsdrill/opsdrill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_RecomputeService(t *testing.T) {
	c := instructorClient(t)
	gameID := seedGame(t, "health-recompute")
	svc := seedService(t, gameID, "Authentication Service", 10, "operational")

	seedIncident(t, gameID, incidentSeed{
		Title:           "SSO outage",
		Severity:        "critical",
		AffectedService: "Authentication Service",
	})

	resp, err := c.POST("/api/v1/services/"+svc+"/recompute", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "down", body.Data.Status)
	assert.Equal(t, "down", getServiceStatus(t, svc))
	assert.Equal(t, 1, countEvents(t, gameID, "service_status_changed"))

	// Unchanged status writes no second event.
	resp, err = c.POST("/api/v1/services/"+svc+"/recompute", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, 1, countEvents(t, gameID, "service_status_changed"))
}

func TestHealth_RecomputeClearsAfterResolution(t *testing.T) {
	c := instructorClient(t)
	gameID := seedGame(t, "health-resolve")
	svc := seedService(t, gameID, "Mail Server", 5, "operational")

	incID := seedIncident(t, gameID, incidentSeed{
		Title:           "Mail queue backed up",
		Severity:        "high",
		AffectedService: "Mail Server",
	})

	resp, err := c.POST("/api/v1/services/"+svc+"/recompute", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "degraded", getServiceStatus(t, svc))

	_, err = testDB.Exec(context.Background(),
		`UPDATE incidents SET status = 'resolved', resolved_at = now() WHERE id = $1`, incID)
	require.NoError(t, err)

	resp, err = c.POST("/api/v1/services/"+svc+"/recompute", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "operational", getServiceStatus(t, svc))
}

func TestHealth_GameScoreIsCriticalityWeighted(t *testing.T) {
	c := observerClient(t)
	gameID := seedGame(t, "health-score")
	seedService(t, gameID, "Core DB", 10, "down")
	seedService(t, gameID, "Web Portal", 5, "degraded")
	seedService(t, gameID, "Wiki", 5, "operational")

	resp, err := c.GET("/api/v1/games/" + gameID + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Score       int `json:"score"`
			Total       int `json:"total"`
			Operational int `json:"operational"`
			Degraded    int `json:"degraded"`
			Down        int `json:"down"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &body)

	// round(100 * (10*0 + 5*0.5 + 5*1) / 20) = 38
	assert.Equal(t, 38, body.Data.Score)
	assert.Equal(t, 3, body.Data.Total)
	assert.Equal(t, 1, body.Data.Operational)
	assert.Equal(t, 1, body.Data.Degraded)
	assert.Equal(t, 1, body.Data.Down)
}

func TestHealth_CriticalityRangeEnforced(t *testing.T) {
	gameID := seedGame(t, "health-criticality")

	for _, bad := range []int{0, 11} {
		_, err := testDB.Exec(context.Background(),
			`INSERT INTO services (game_id, name, criticality) VALUES ($1, 'Out of Range', $2)`,
			gameID, bad,
		)
		assert.Error(t, err, "criticality %d", bad)
	}

	seedService(t, gameID, "In Range", 10, "operational")
}

func TestHealth_RecomputeGame(t *testing.T) {
	c := instructorClient(t)
	gameID := seedGame(t, "health-game-recompute")
	db := seedService(t, gameID, "Database Cluster", 10, "operational")
	vpn := seedService(t, gameID, "VPN Gateway", 5, "degraded")

	// One keyword-matched incident, and nothing open against the VPN
	// any longer, so both services change.
	seedIncident(t, gameID, incidentSeed{
		Title:           "Replica lag",
		Severity:        "medium",
		AffectedService: "db",
		CreatedAt:       time.Now().Add(-10 * time.Minute),
	})

	resp, err := c.POST("/api/v1/games/"+gameID+"/recompute", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Evaluated int `json:"evaluated"`
			Changed   int `json:"changed"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, 2, body.Data.Evaluated)
	assert.Equal(t, 2, body.Data.Changed)
	assert.Equal(t, "degraded", getServiceStatus(t, db))
	assert.Equal(t, "operational", getServiceStatus(t, vpn))
}
