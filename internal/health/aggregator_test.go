package health

import (
	"context"
	"testing"

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
	services  map[string]*domain.Service
	incidents []domain.Incident

	statusWrites map[string]domain.ServiceStatus
	events       []*domain.GameEvent
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		services:     make(map[string]*domain.Service),
		statusWrites: make(map[string]domain.ServiceStatus),
	}
}

func (m *mockRepository) addService(s *domain.Service) { m.services[s.ID] = s }

func (m *mockRepository) GetServiceByID(_ context.Context, id string) (*domain.Service, error) {
	if s, ok := m.services[id]; ok {
		return s, nil
	}
	return nil, ErrServiceNotFound
}

func (m *mockRepository) ListServices(_ context.Context, gameID string) ([]domain.Service, error) {
	out := make([]domain.Service, 0)
	for _, s := range m.services {
		if s.GameID == gameID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockRepository) ListOpenIncidents(_ context.Context, gameID string) ([]domain.Incident, error) {
	out := make([]domain.Incident, 0)
	for _, inc := range m.incidents {
		if inc.GameID == gameID && inc.Status.IsOpen() {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (m *mockRepository) UpdateServiceStatusTx(_ context.Context, _ pgx.Tx, serviceID string, status domain.ServiceStatus) error {
	m.statusWrites[serviceID] = status
	m.services[serviceID].Status = status
	return nil
}

func (m *mockRepository) AppendEventTx(_ context.Context, _ pgx.Tx, event *domain.GameEvent) error {
	m.events = append(m.events, event)
	return nil
}

func openIncident(gameID, ref string, severity domain.IncidentSeverity) domain.Incident {
	return domain.Incident{
		GameID:          gameID,
		Status:          domain.IncidentStatusOpen,
		Severity:        severity,
		AffectedService: ref,
		Priority:        domain.IncidentPriorityMedium,
	}
}

func TestDeriveStatus(t *testing.T) {
	svc := &domain.Service{ID: "s1", Name: "Customer Database"}

	tests := []struct {
		name      string
		incidents []domain.Incident
		want      domain.ServiceStatus
		wantCount int
	}{
		{
			name: "no incidents means operational",
			want: domain.ServiceStatusOperational,
		},
		{
			name:      "critical severity forces down",
			incidents: []domain.Incident{openIncident("g", "database", domain.IncidentSeverityCritical)},
			want:      domain.ServiceStatusDown,
			wantCount: 1,
		},
		{
			name:      "medium severity degrades",
			incidents: []domain.Incident{openIncident("g", "database", domain.IncidentSeverityMedium)},
			want:      domain.ServiceStatusDegraded,
			wantCount: 1,
		},
		{
			name: "two low severity incidents degrade",
			incidents: []domain.Incident{
				openIncident("g", "database", domain.IncidentSeverityLow),
				openIncident("g", "db", domain.IncidentSeverityLow),
			},
			want:      domain.ServiceStatusDegraded,
			wantCount: 2,
		},
		{
			name:      "single low severity stays operational",
			incidents: []domain.Incident{openIncident("g", "database", domain.IncidentSeverityLow)},
			want:      domain.ServiceStatusOperational,
			wantCount: 1,
		},
		{
			name:      "unmatched incidents are ignored",
			incidents: []domain.Incident{openIncident("g", "VPN Gateway", domain.IncidentSeverityCritical)},
			want:      domain.ServiceStatusOperational,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, count := DeriveStatus(svc, tt.incidents)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestRecompute_WritesOnlyOnChange(t *testing.T) {
	repo := newMockRepository()
	repo.addService(&domain.Service{ID: "s1", GameID: "g1", Name: "Customer Database", Status: domain.ServiceStatusOperational})
	repo.incidents = []domain.Incident{openIncident("g1", "database", domain.IncidentSeverityCritical)}

	agg := NewAggregator(repo)
	ctx := context.Background()

	status, err := agg.Recompute(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusDown, status)
	assert.Equal(t, domain.ServiceStatusDown, repo.statusWrites["s1"])
	require.Len(t, repo.events, 1)
	assert.Equal(t, domain.GameEventServiceStatusChanged, repo.events[0].Type)
	assert.Equal(t, domain.ServiceStatusOperational, repo.events[0].Payload["old_status"])
	assert.Equal(t, domain.ServiceStatusDown, repo.events[0].Payload["new_status"])

	// Second pass with no incident changes writes nothing further.
	_, err = agg.Recompute(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, repo.events, 1)
}

func TestRecompute_RecoversWhenIncidentsResolve(t *testing.T) {
	repo := newMockRepository()
	repo.addService(&domain.Service{ID: "s1", GameID: "g1", Name: "Customer Database", Status: domain.ServiceStatusDown})

	agg := NewAggregator(repo)

	status, err := agg.Recompute(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusOperational, status)
}

func TestRecomputeAll(t *testing.T) {
	repo := newMockRepository()
	repo.addService(&domain.Service{ID: "s1", GameID: "g1", Name: "Customer Database", Status: domain.ServiceStatusOperational})
	repo.addService(&domain.Service{ID: "s2", GameID: "g1", Name: "Payments API", Status: domain.ServiceStatusOperational})
	repo.incidents = []domain.Incident{openIncident("g1", "db", domain.IncidentSeverityHigh)}

	agg := NewAggregator(repo)

	result, err := agg.RecomputeAll(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Changed)
	assert.Equal(t, domain.ServiceStatusDegraded, repo.statusWrites["s1"])
}

func TestGameHealth_WeightedScore(t *testing.T) {
	repo := newMockRepository()
	repo.addService(&domain.Service{ID: "s1", GameID: "g1", Name: "A", Criticality: 10, Status: domain.ServiceStatusDown})
	repo.addService(&domain.Service{ID: "s2", GameID: "g1", Name: "B", Criticality: 5, Status: domain.ServiceStatusOperational})
	repo.addService(&domain.Service{ID: "s3", GameID: "g1", Name: "C", Criticality: 5, Status: domain.ServiceStatusDegraded})

	agg := NewAggregator(repo)

	summary, err := agg.GameHealth(context.Background(), "g1")
	require.NoError(t, err)
	// (10*0 + 5*1 + 5*0.5) / 20 = 0.375 -> 38
	assert.Equal(t, 38, summary.Score)
	assert.Equal(t, 1, summary.Down)
	assert.Equal(t, 1, summary.Degraded)
	assert.Equal(t, 1, summary.Operational)
}

func TestGameHealth_EmptyGame(t *testing.T) {
	agg := NewAggregator(newMockRepository())

	summary, err := agg.GameHealth(context.Background(), "empty")
	require.NoError(t, err)
	assert.Equal(t, 100, summary.Score)
	assert.Equal(t, 0, summary.Total)
}
