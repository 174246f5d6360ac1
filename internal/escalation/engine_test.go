package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx for unit tests. Only Commit and Rollback are
// implemented; the repository fake never touches the connection.
type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(_ context.Context) error { t.committed = true; return nil }
func (t *fakeTx) Rollback(_ context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	return nil
}

// mockRepository implements Repository for testing.
type mockRepository struct {
	incidents   map[string]*domain.Incident
	rules       map[string]*domain.EscalationRule
	teams       map[string]*domain.Team
	escalations []domain.IncidentEscalation
	events      []*domain.GameEvent
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		incidents: make(map[string]*domain.Incident),
		rules:     make(map[string]*domain.EscalationRule),
		teams:     make(map[string]*domain.Team),
	}
}

func (m *mockRepository) addRule(r *domain.EscalationRule) { m.rules[r.ID] = r }

func (m *mockRepository) ListOpenIncidents(_ context.Context, gameID string) ([]domain.Incident, error) {
	out := make([]domain.Incident, 0)
	for _, inc := range m.incidents {
		if inc.GameID == gameID && inc.Status.IsOpen() {
			out = append(out, *inc)
		}
	}
	return out, nil
}

func (m *mockRepository) ListRules(_ context.Context, gameID string) ([]domain.EscalationRule, error) {
	out := make([]domain.EscalationRule, 0)
	for _, r := range m.rules {
		if r.GameID == gameID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRepository) ListEscalationsByIncident(_ context.Context, incidentID string) ([]domain.IncidentEscalation, error) {
	out := make([]domain.IncidentEscalation, 0)
	for _, rec := range m.escalations {
		if rec.IncidentID == incidentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockRepository) AcknowledgeEscalation(_ context.Context, escalationID string) error {
	for i := range m.escalations {
		if m.escalations[i].ID == escalationID {
			m.escalations[i].Acknowledged = true
			return nil
		}
	}
	return ErrEscalationNotFound
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (m *mockRepository) GetIncidentForUpdateTx(_ context.Context, _ pgx.Tx, id string) (*domain.Incident, error) {
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	cp := *inc
	return &cp, nil
}

func (m *mockRepository) GetRuleTx(_ context.Context, _ pgx.Tx, id string) (*domain.EscalationRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return r, nil
}

func (m *mockRepository) FindTeamByRoleTx(_ context.Context, _ pgx.Tx, gameID, role string) (*domain.Team, error) {
	for _, t := range m.teams {
		if t.GameID == gameID && t.Role == role {
			return t, nil
		}
	}
	return nil, ErrTeamNotFound
}

func (m *mockRepository) InsertEscalationTx(_ context.Context, _ pgx.Tx, record *domain.IncidentEscalation) error {
	record.ID = "esc-" + record.IncidentID
	record.CreatedAt = time.Now()
	m.escalations = append(m.escalations, *record)
	return nil
}

func (m *mockRepository) UpdateIncidentEscalationTx(_ context.Context, _ pgx.Tx, incidentID string, level int, assignedTeamID *string) error {
	inc, ok := m.incidents[incidentID]
	if !ok {
		return ErrIncidentNotFound
	}
	inc.CurrentEscalationLevel = level
	inc.EscalationCount++
	inc.AssignedTeamID = assignedTeamID
	return nil
}

func (m *mockRepository) AdjustTeamScoreTx(_ context.Context, _ pgx.Tx, teamID string, delta int) error {
	if team, ok := m.teams[teamID]; ok {
		team.Score += delta
		if team.Score < 0 {
			team.Score = 0
		}
	}
	return nil
}

func (m *mockRepository) AppendEventTx(_ context.Context, _ pgx.Tx, event *domain.GameEvent) error {
	m.events = append(m.events, event)
	return nil
}

func agedIncident(id string, priority domain.IncidentPriority, age time.Duration, level int) *domain.Incident {
	return &domain.Incident{
		ID:                     id,
		GameID:                 "g1",
		Title:                  "Email outage",
		Priority:               priority,
		Status:                 domain.IncidentStatusOpen,
		CurrentEscalationLevel: level,
		CreatedAt:              time.Now().Add(-age),
	}
}

func highRule(id string, thresholdMinutes, level int) *domain.EscalationRule {
	return &domain.EscalationRule{
		ID:                   id,
		GameID:               "g1",
		Name:                 id,
		PriorityTrigger:      domain.IncidentPriorityHigh,
		TimeThresholdMinutes: thresholdMinutes,
		EscalationLevel:      level,
	}
}

func TestCheckEscalations_LowestEligibleLevelFires(t *testing.T) {
	repo := newMockRepository()
	repo.incidents["i1"] = agedIncident("i1", domain.IncidentPriorityHigh, 45*time.Minute, 0)
	repo.addRule(highRule("r1", 30, 1))
	repo.addRule(highRule("r2", 60, 2))

	checks, err := NewEngine(repo, 0).CheckEscalations(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, checks, 1)

	c := checks[0]
	assert.True(t, c.ShouldEscalate)
	assert.Equal(t, 1, c.NextLevel)
	require.NotNil(t, c.Rule)
	assert.Equal(t, "r1", c.Rule.ID)
}

func TestCheckEscalations_NoRuleEligibleByTime(t *testing.T) {
	repo := newMockRepository()
	repo.incidents["i1"] = agedIncident("i1", domain.IncidentPriorityHigh, 10*time.Minute, 0)
	repo.addRule(highRule("r1", 30, 1))

	checks, err := NewEngine(repo, 0).CheckEscalations(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.False(t, checks[0].ShouldEscalate)
	assert.Nil(t, checks[0].Rule)
}

func TestCheckEscalations_SkipsConsumedLevels(t *testing.T) {
	repo := newMockRepository()
	// Already at level 1: r1 no longer qualifies, r2 does and its threshold
	// has elapsed.
	repo.incidents["i1"] = agedIncident("i1", domain.IncidentPriorityHigh, 90*time.Minute, 1)
	repo.addRule(highRule("r1", 30, 1))
	repo.addRule(highRule("r2", 60, 2))

	checks, err := NewEngine(repo, 0).CheckEscalations(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.True(t, checks[0].ShouldEscalate)
	assert.Equal(t, "r2", checks[0].Rule.ID)
	assert.Equal(t, 2, checks[0].NextLevel)
}

func TestCheckEscalations_PriorityMismatch(t *testing.T) {
	repo := newMockRepository()
	repo.incidents["i1"] = agedIncident("i1", domain.IncidentPriorityLow, 2*time.Hour, 0)
	repo.addRule(highRule("r1", 30, 1))

	checks, err := NewEngine(repo, 0).CheckEscalations(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.False(t, checks[0].ShouldEscalate)
}

func TestEscalateIncident_ManualAdvancesOneLevel(t *testing.T) {
	repo := newMockRepository()
	teamID := "t1"
	repo.teams[teamID] = &domain.Team{ID: teamID, GameID: "g1", Score: 100}
	inc := agedIncident("i1", domain.IncidentPriorityHigh, time.Hour, 0)
	inc.AssignedTeamID = &teamID
	repo.incidents["i1"] = inc

	record, err := NewEngine(repo, 0).EscalateIncident(context.Background(), EscalateInput{
		IncidentID:  "i1",
		Reason:      "stuck for an hour",
		EscalatedBy: "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, record.EscalationLevel)
	assert.Nil(t, record.RuleID)
	require.NotNil(t, record.FromTeamID)
	assert.Equal(t, teamID, *record.FromTeamID)
	assert.Nil(t, record.ToTeamID)

	assert.Equal(t, 1, repo.incidents["i1"].CurrentEscalationLevel)
	assert.Equal(t, 1, repo.incidents["i1"].EscalationCount)
	// No target resolved: assignment stays with the previous team.
	assert.Equal(t, teamID, *repo.incidents["i1"].AssignedTeamID)
	// Penalty is newLevel * 25 against the previous team.
	assert.Equal(t, 75, repo.teams[teamID].Score)
}

func TestEscalateIncident_RuleReassignsByRole(t *testing.T) {
	repo := newMockRepository()
	from, to := "t1", "t2"
	repo.teams[from] = &domain.Team{ID: from, GameID: "g1", Role: domain.TeamRoleServiceDesk, Score: 100}
	repo.teams[to] = &domain.Team{ID: to, GameID: "g1", Role: domain.TeamRoleIncidentCommand, Score: 100}
	inc := agedIncident("i1", domain.IncidentPriorityHigh, time.Hour, 0)
	inc.AssignedTeamID = &from
	repo.incidents["i1"] = inc

	rule := highRule("r1", 30, 1)
	rule.AutoReassign = true
	rule.TargetTeamRole = domain.TeamRoleIncidentCommand
	repo.addRule(rule)

	record, err := NewEngine(repo, 0).EscalateIncident(context.Background(), EscalateInput{
		IncidentID:  "i1",
		RuleID:      &rule.ID,
		Reason:      "rule fired",
		EscalatedBy: SystemActor,
	})
	require.NoError(t, err)

	require.NotNil(t, record.ToTeamID)
	assert.Equal(t, to, *record.ToTeamID)
	assert.Equal(t, to, *repo.incidents["i1"].AssignedTeamID)
	// The previous owner takes the penalty, not the receiver.
	assert.Equal(t, 75, repo.teams[from].Score)
	assert.Equal(t, 100, repo.teams[to].Score)
}

func TestEscalateIncident_MissingRoleKeepsAssignment(t *testing.T) {
	repo := newMockRepository()
	from := "t1"
	repo.teams[from] = &domain.Team{ID: from, GameID: "g1", Role: domain.TeamRoleServiceDesk, Score: 100}
	inc := agedIncident("i1", domain.IncidentPriorityHigh, time.Hour, 0)
	inc.AssignedTeamID = &from
	repo.incidents["i1"] = inc

	rule := highRule("r1", 30, 1)
	rule.AutoReassign = true
	rule.TargetTeamRole = domain.TeamRoleIncidentCommand
	repo.addRule(rule)

	record, err := NewEngine(repo, 0).EscalateIncident(context.Background(), EscalateInput{
		IncidentID:  "i1",
		RuleID:      &rule.ID,
		Reason:      "rule fired",
		EscalatedBy: SystemActor,
	})
	require.NoError(t, err)
	assert.Nil(t, record.ToTeamID)
	assert.Equal(t, from, *repo.incidents["i1"].AssignedTeamID)
}

func TestEscalateIncident_ExplicitTargetWins(t *testing.T) {
	repo := newMockRepository()
	to := "t9"
	repo.incidents["i1"] = agedIncident("i1", domain.IncidentPriorityHigh, time.Hour, 0)

	record, err := NewEngine(repo, 0).EscalateIncident(context.Background(), EscalateInput{
		IncidentID:  "i1",
		Reason:      "handing to the specialists",
		EscalatedBy: "alice",
		ToTeamID:    &to,
	})
	require.NoError(t, err)
	require.NotNil(t, record.ToTeamID)
	assert.Equal(t, to, *record.ToTeamID)
	assert.Equal(t, to, *repo.incidents["i1"].AssignedTeamID)
}

func TestEscalateIncident_RejectsClosedIncident(t *testing.T) {
	repo := newMockRepository()
	teamID := "t1"
	repo.teams[teamID] = &domain.Team{ID: teamID, GameID: "g1", Score: 100}

	for _, status := range []domain.IncidentStatus{domain.IncidentStatusResolved, domain.IncidentStatusClosed} {
		inc := agedIncident("i1", domain.IncidentPriorityHigh, time.Hour, 0)
		inc.Status = status
		inc.AssignedTeamID = &teamID
		repo.incidents["i1"] = inc

		_, err := NewEngine(repo, 0).EscalateIncident(context.Background(), EscalateInput{
			IncidentID:  "i1",
			Reason:      "too late",
			EscalatedBy: "alice",
		})
		assert.ErrorIs(t, err, ErrIncidentClosed, string(status))
	}

	// Refusal leaves no trace: no level bump, no audit row, no event, no
	// penalty.
	assert.Equal(t, 0, repo.incidents["i1"].CurrentEscalationLevel)
	assert.Empty(t, repo.escalations)
	assert.Empty(t, repo.events)
	assert.Equal(t, 100, repo.teams[teamID].Score)
}

// resolvingRepo resolves the incident between the rule check and the
// row-locked re-read, like a concurrent instructor closing it.
type resolvingRepo struct {
	*mockRepository
}

func (r *resolvingRepo) GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error) {
	r.incidents[id].Status = domain.IncidentStatusResolved
	return r.mockRepository.GetIncidentForUpdateTx(ctx, tx, id)
}

func TestProcessAutoEscalations_SkipsIncidentResolvedMidPass(t *testing.T) {
	repo := newMockRepository()
	repo.incidents["i1"] = agedIncident("i1", domain.IncidentPriorityHigh, 45*time.Minute, 0)
	repo.addRule(highRule("r1", 30, 1))

	count, err := NewEngine(&resolvingRepo{repo}, 0).ProcessAutoEscalations(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, repo.escalations)
	assert.Equal(t, 0, repo.incidents["i1"].CurrentEscalationLevel)
}

func TestEscalateIncident_EventCause(t *testing.T) {
	repo := newMockRepository()
	repo.incidents["i1"] = agedIncident("i1", domain.IncidentPriorityHigh, time.Hour, 0)
	engine := NewEngine(repo, 0)
	ctx := context.Background()

	_, err := engine.EscalateIncident(ctx, EscalateInput{
		IncidentID:  "i1",
		Reason:      "manual push",
		EscalatedBy: "alice",
	})
	require.NoError(t, err)

	rule := highRule("r1", 30, 2)
	repo.addRule(rule)
	_, err = engine.EscalateIncident(ctx, EscalateInput{
		IncidentID:  "i1",
		RuleID:      &rule.ID,
		Reason:      "rule fired",
		EscalatedBy: SystemActor,
	})
	require.NoError(t, err)

	require.Len(t, repo.events, 2)
	assert.Equal(t, "manual", repo.events[0].Payload["cause"])
	assert.Equal(t, "rule", repo.events[1].Payload["cause"])
	assert.Equal(t, "r1", repo.events[1].Payload["rule_id"])
}

func TestEscalateIncident_NotFound(t *testing.T) {
	_, err := NewEngine(newMockRepository(), 0).EscalateIncident(context.Background(), EscalateInput{
		IncidentID:  "missing",
		Reason:      "x",
		EscalatedBy: "alice",
	})
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestEscalateIncident_LevelHistoryMatchesAuditRows(t *testing.T) {
	repo := newMockRepository()
	repo.incidents["i1"] = agedIncident("i1", domain.IncidentPriorityHigh, time.Hour, 0)
	engine := NewEngine(repo, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.EscalateIncident(ctx, EscalateInput{
			IncidentID:  "i1",
			Reason:      "again",
			EscalatedBy: "alice",
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, repo.incidents["i1"].CurrentEscalationLevel)
	assert.Equal(t, 3, repo.incidents["i1"].EscalationCount)
	records, err := engine.ListEscalations(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.EscalationLevel)
	}
}

func TestProcessAutoEscalations(t *testing.T) {
	repo := newMockRepository()
	repo.incidents["i1"] = agedIncident("i1", domain.IncidentPriorityHigh, 45*time.Minute, 0)
	repo.incidents["i2"] = agedIncident("i2", domain.IncidentPriorityHigh, 10*time.Minute, 0)
	repo.addRule(highRule("r1", 30, 1))

	count, err := NewEngine(repo, 0).ProcessAutoEscalations(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, 1, repo.incidents["i1"].CurrentEscalationLevel)
	assert.Equal(t, 0, repo.incidents["i2"].CurrentEscalationLevel)
	require.Len(t, repo.escalations, 1)
	assert.Equal(t, SystemActor, repo.escalations[0].EscalatedBy)
	require.NotNil(t, repo.escalations[0].RuleID)
	assert.Equal(t, "r1", *repo.escalations[0].RuleID)
}
