//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/opsdrill/opsdrill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_MissingTokenIsUnauthorized(t *testing.T) {
	gameID := seedGame(t, "auth-missing")

	client := testutil.NewClient(testServer.URL)
	client.SetT(t)

	resp, err := client.GET("/api/v1/games/" + gameID + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_BadTokenIsUnauthorized(t *testing.T) {
	gameID := seedGame(t, "auth-bad")

	client := testutil.NewClient(testServer.URL)
	client.SetT(t)
	client.Token = testutil.SignToken(t, "wrong-secret", "observer@test", "observer")

	resp, err := client.GET("/api/v1/games/" + gameID + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_ObserverCannotMutate(t *testing.T) {
	gameID := seedGame(t, "auth-observer")
	svc := seedService(t, gameID, "Read Only Target", 1, "operational")

	c := observerClient(t)
	resp, err := c.POST("/api/v1/services/"+svc+"/recompute", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	// Reads remain open to observers.
	resp, err = c.GET("/api/v1/games/" + gameID + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_InstructorCanMutate(t *testing.T) {
	gameID := seedGame(t, "auth-instructor")
	svc := seedService(t, gameID, "Writable Target", 1, "operational")

	c := instructorClient(t)
	resp, err := c.POST("/api/v1/services/"+svc+"/recompute", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_HealthzIsPublic(t *testing.T) {
	resp, err := http.Get(testServer.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}
