package participants

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type mockRepository struct {
	regions     map[int64]*Region
	agents      map[int64]*Agent
	paidEntries map[int64]int64
	monthSales  map[int64]float64
	monthOrders map[int64]int64
	nextID      int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		regions:     make(map[int64]*Region),
		agents:      make(map[int64]*Agent),
		paidEntries: make(map[int64]int64),
		monthSales:  make(map[int64]float64),
		monthOrders: make(map[int64]int64),
	}
}

func (m *mockRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockRepository) GetRegion(_ context.Context, id int64) (*Region, error) {
	r, ok := m.regions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepository) ListRegions(context.Context) ([]Region, error) {
	var out []Region
	for _, r := range m.regions {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRepository) CreateRegion(_ context.Context, r Region) (int64, error) {
	for _, existing := range m.regions {
		if existing.Code == r.Code {
			return 0, shared.ErrDuplicate
		}
	}
	r.ID = m.id()
	m.regions[r.ID] = &r
	return r.ID, nil
}

func (m *mockRepository) UpdateRegion(_ context.Context, r *Region) error {
	if _, ok := m.regions[r.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *r
	m.regions[r.ID] = &cp
	return nil
}

func (m *mockRepository) DeleteRegion(_ context.Context, id int64) error {
	if _, ok := m.regions[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.regions, id)
	return nil
}

func (m *mockRepository) CountAgentsInRegion(_ context.Context, regionID int64) (int64, error) {
	var count int64
	for _, a := range m.agents {
		if a.RegionID == regionID {
			count++
		}
	}
	return count, nil
}

func (m *mockRepository) GetAgent(_ context.Context, id int64) (*Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepository) ListAgents(_ context.Context, regionID *int64) ([]Agent, error) {
	var out []Agent
	for _, a := range m.agents {
		if regionID != nil && a.RegionID != *regionID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *mockRepository) CreateAgent(_ context.Context, a Agent) (int64, error) {
	a.ID = m.id()
	m.agents[a.ID] = &a
	return a.ID, nil
}

func (m *mockRepository) UpdateAgent(_ context.Context, a *Agent) error {
	if _, ok := m.agents[a.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *mockRepository) DeleteAgent(_ context.Context, id int64) error {
	if _, ok := m.agents[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.agents, id)
	return nil
}

func (m *mockRepository) CountPaidEntriesForAgent(_ context.Context, agentID int64) (int64, error) {
	return m.paidEntries[agentID], nil
}

func (m *mockRepository) AgentMonthSales(_ context.Context, agentID int64, _, _ time.Time) (float64, int64, error) {
	return m.monthSales[agentID], m.monthOrders[agentID], nil
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	return NewService(repo, slog.Default()), repo
}

func seedRegion(t *testing.T, svc *Service) *Region {
	t.Helper()
	r, err := svc.CreateRegion(context.Background(), CreateRegionRequest{
		Code:           "NORTH",
		Name:           "Northern Region",
		CommissionRate: 4.5,
		SalesTarget:    100000,
	})
	require.NoError(t, err)
	return r
}

// ============================================================================
// REGION TESTS
// ============================================================================

func TestCreateRegionDefaultsRate(t *testing.T) {
	svc, _ := newTestService()
	r, err := svc.CreateRegion(context.Background(), CreateRegionRequest{Code: "SOUTH", Name: "Southern"})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, r.CommissionRate, 0.001)
	assert.True(t, r.Active)
}

func TestCreateRegionDuplicateCode(t *testing.T) {
	svc, _ := newTestService()
	seedRegion(t, svc)

	_, err := svc.CreateRegion(context.Background(), CreateRegionRequest{Code: "NORTH", Name: "Other"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteRegionWithAgentsRefused(t *testing.T) {
	svc, _ := newTestService()
	r := seedRegion(t, svc)
	_, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Name: "Mina K", RegionID: r.ID})
	require.NoError(t, err)

	err = svc.DeleteRegion(context.Background(), r.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateRegionPartial(t *testing.T) {
	svc, _ := newTestService()
	r := seedRegion(t, svc)

	rate := 6.0
	updated, err := svc.UpdateRegion(context.Background(), r.ID, UpdateRegionRequest{CommissionRate: &rate})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, updated.CommissionRate, 0.001)
	assert.Equal(t, "Northern Region", updated.Name)
	assert.Equal(t, "NORTH", updated.Code)
}

func TestUpdateRegionRateOutOfRange(t *testing.T) {
	svc, _ := newTestService()
	r := seedRegion(t, svc)

	rate := 120.0
	_, err := svc.UpdateRegion(context.Background(), r.ID, UpdateRegionRequest{CommissionRate: &rate})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ============================================================================
// AGENT TESTS
// ============================================================================

func TestCreateAgentInheritsRegionRate(t *testing.T) {
	svc, _ := newTestService()
	r := seedRegion(t, svc)

	a, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Name: "Mina K", RegionID: r.ID})
	require.NoError(t, err)
	assert.InDelta(t, 4.5, a.CommissionRate, 0.001)
	assert.True(t, a.Active)
}

func TestCreateAgentExplicitRate(t *testing.T) {
	svc, _ := newTestService()
	r := seedRegion(t, svc)

	rate := 7.0
	a, err := svc.CreateAgent(context.Background(), CreateAgentRequest{
		Name: "Mina K", RegionID: r.ID, CommissionRate: &rate,
	})
	require.NoError(t, err)
	assert.InDelta(t, 7.0, a.CommissionRate, 0.001)
}

func TestCreateAgentUnknownRegion(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Name: "Mina K", RegionID: 42})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteAgentWithPaidEntriesRefused(t *testing.T) {
	svc, repo := newTestService()
	r := seedRegion(t, svc)
	a, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Name: "Mina K", RegionID: r.ID})
	require.NoError(t, err)
	repo.paidEntries[a.ID] = 3

	err = svc.DeleteAgent(context.Background(), a.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.GetAgent(context.Background(), a.ID)
	assert.NoError(t, err, "agent stays")
}

func TestDeleteAgentWithoutPaidEntries(t *testing.T) {
	svc, _ := newTestService()
	r := seedRegion(t, svc)
	a, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Name: "Mina K", RegionID: r.ID})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAgent(context.Background(), a.ID))
	_, err = svc.GetAgent(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestAgentProfileDirectory(t *testing.T) {
	svc, _ := newTestService()
	r := seedRegion(t, svc)
	a, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Name: "Mina K", RegionID: r.ID})
	require.NoError(t, err)

	profile, err := svc.AgentProfile(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, profile.ID)
	assert.Equal(t, r.ID, profile.RegionID)
	assert.InDelta(t, 4.5, profile.CommissionRate, 0.001)
	assert.True(t, profile.Active)
}

func TestAgentPerformance(t *testing.T) {
	svc, repo := newTestService()
	r := seedRegion(t, svc)
	a, err := svc.CreateAgent(context.Background(), CreateAgentRequest{
		Name: "Mina K", RegionID: r.ID, MonthlyTarget: 20000,
	})
	require.NoError(t, err)
	repo.monthSales[a.ID] = 15000
	repo.monthOrders[a.ID] = 12

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	perf, err := svc.Performance(context.Background(), a.ID, now)
	require.NoError(t, err)
	assert.Equal(t, "2025-06", perf.Month)
	assert.InDelta(t, 15000.0, perf.SalesTotal, 0.001)
	assert.Equal(t, int64(12), perf.OrderCount)
	assert.InDelta(t, 75.0, perf.TargetAchievement, 0.001)
}

func TestAgentPerformanceZeroTarget(t *testing.T) {
	svc, repo := newTestService()
	r := seedRegion(t, svc)
	a, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Name: "Mina K", RegionID: r.ID})
	require.NoError(t, err)
	repo.monthSales[a.ID] = 500

	perf, err := svc.Performance(context.Background(), a.ID, time.Now())
	require.NoError(t, err)
	assert.Zero(t, perf.TargetAchievement)
}
