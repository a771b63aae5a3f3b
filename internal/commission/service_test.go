package commission

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	entries map[int64]*Entry
	rules   map[int64]*Rule
	nextID  int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		entries: make(map[int64]*Entry),
		rules:   make(map[int64]*Rule),
		nextID:  1,
	}
}

func (m *mockRepository) GetEntry(_ context.Context, id int64) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepository) ListEntries(_ context.Context, req ListEntriesRequest) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if req.AgentID != nil && e.AgentID != *req.AgentID {
			continue
		}
		if req.State != nil && e.State != *req.State {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *mockRepository) ListEntriesByOrder(_ context.Context, orderID int64) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.OrderID == orderID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockRepository) CreateEntry(_ context.Context, e Entry) (int64, error) {
	e.ID = m.nextID
	m.nextID++
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	m.entries[e.ID] = &e
	return e.ID, nil
}

func (m *mockRepository) UpdateEntry(_ context.Context, e *Entry) error {
	if _, ok := m.entries[e.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *e
	cp.UpdatedAt = time.Now()
	m.entries[e.ID] = &cp
	return nil
}

func (m *mockRepository) NextEntryNumber(_ context.Context) (string, error) {
	return fmt.Sprintf("COMM-202506-%05d", len(m.entries)+1), nil
}

func (m *mockRepository) GetRule(_ context.Context, id int64) (*Rule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepository) ListRules(_ context.Context) ([]Rule, error) {
	var out []Rule
	for _, r := range m.rules {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRepository) CreateRule(_ context.Context, r Rule) (int64, error) {
	r.ID = m.nextID
	m.nextID++
	m.rules[r.ID] = &r
	return r.ID, nil
}

func (m *mockRepository) UpdateRule(_ context.Context, r *Rule) error {
	if _, ok := m.rules[r.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *mockRepository) DeleteRule(_ context.Context, id int64) error {
	if _, ok := m.rules[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *mockRepository) ActiveRules(_ context.Context, asOf time.Time) ([]Rule, error) {
	var out []Rule
	for _, r := range m.rules {
		if !r.Active || r.DateFrom.After(asOf) {
			continue
		}
		if r.DateTo != nil && r.DateTo.Before(asOf) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

type mockAgents struct {
	profiles map[int64]AgentProfile
}

func (m *mockAgents) AgentProfile(_ context.Context, agentID int64) (AgentProfile, error) {
	p, ok := m.profiles[agentID]
	if !ok {
		return AgentProfile{}, shared.ErrNotFound
	}
	return p, nil
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	agents := &mockAgents{profiles: map[int64]AgentProfile{
		7: {ID: 7, RegionID: 2, CommissionRate: 5, Active: true},
	}}
	svc := NewService(repo, agents, slog.Default())
	return svc, repo
}

var testActor = shared.Actor{ID: 1, Name: "tester"}

type mockRollups struct {
	bumps int
}

func (m *mockRollups) Invalidate(context.Context) error {
	m.bumps++
	return nil
}

func seedEntry(repo *mockRepository, state EntryState, qrConfirmed bool) int64 {
	e := Entry{
		EntryNumber: "COMM-202506-00042",
		AgentID:     7,
		RegionID:    2,
		OrderID:     100,
		CustomerID:  11,
		BaseAmount:  1000,
		Rate:        5,
		State:       state,
		Date:        time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		QRConfirmed: qrConfirmed,
	}
	e.Recompute()
	if state == EntryStatePaid {
		now := time.Now()
		e.PaymentDate = &now
	}
	id, _ := repo.CreateEntry(context.Background(), e)
	return id
}

// ============================================================================
// LIFECYCLE TESTS
// ============================================================================

func TestCreateEntryDefaultsToAgentRate(t *testing.T) {
	svc, _ := newTestService()

	e, err := svc.CreateEntry(context.Background(), testActor, CreateEntryRequest{
		AgentID:    7,
		OrderID:    100,
		BaseAmount: 1000,
	})
	require.NoError(t, err)

	assert.Equal(t, EntryStateDraft, e.State)
	assert.Equal(t, 5.0, e.Rate)
	assert.Equal(t, 50.0, e.Amount)
	assert.Equal(t, int64(2), e.RegionID)
	assert.NotEmpty(t, e.EntryNumber)
	assert.False(t, e.QRConfirmed)
}

func TestCreateEntryExplicitRate(t *testing.T) {
	svc, _ := newTestService()

	rate := 7.5
	e, err := svc.CreateEntry(context.Background(), testActor, CreateEntryRequest{
		AgentID:    7,
		OrderID:    100,
		BaseAmount: 2000,
		Rate:       &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, e.Amount)
}

func TestConfirmRequiresQRConfirmation(t *testing.T) {
	svc, repo := newTestService()
	id := seedEntry(repo, EntryStateDraft, false)

	_, err := svc.Confirm(context.Background(), testActor, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	e, err := svc.GetEntry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, EntryStateDraft, e.State)
}

func TestConfirmAfterQR(t *testing.T) {
	svc, repo := newTestService()
	id := seedEntry(repo, EntryStateDraft, true)

	e, err := svc.Confirm(context.Background(), testActor, id)
	require.NoError(t, err)
	assert.Equal(t, EntryStateConfirmed, e.State)
}

func TestConfirmQRAutoConfirmsDraft(t *testing.T) {
	svc, repo := newTestService()
	id := seedEntry(repo, EntryStateDraft, false)

	e, err := svc.ConfirmQR(context.Background(), testActor, id)
	require.NoError(t, err)
	assert.True(t, e.QRConfirmed)
	assert.NotNil(t, e.QRConfirmationDate)
	assert.Equal(t, EntryStateConfirmed, e.State)

	// Second scan is rejected.
	_, err = svc.ConfirmQR(context.Background(), testActor, id)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestPayRequiresConfirmed(t *testing.T) {
	svc, repo := newTestService()
	draftID := seedEntry(repo, EntryStateDraft, false)

	_, err := svc.Pay(context.Background(), testActor, draftID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	confirmedID := seedEntry(repo, EntryStateConfirmed, true)
	e, err := svc.Pay(context.Background(), testActor, confirmedID)
	require.NoError(t, err)
	assert.Equal(t, EntryStatePaid, e.State)
	require.NotNil(t, e.PaymentDate)
}

func TestLedgerWritesInvalidateRollups(t *testing.T) {
	svc, repo := newTestService()
	rollups := &mockRollups{}
	svc.SetRollupInvalidator(rollups)

	id := seedEntry(repo, EntryStateConfirmed, true)
	_, err := svc.Pay(context.Background(), testActor, id)
	require.NoError(t, err)
	assert.Equal(t, 1, rollups.bumps, "payment bumps the dashboard cache")

	_, err = svc.Pay(context.Background(), testActor, id)
	require.Error(t, err)
	assert.Equal(t, 1, rollups.bumps, "refused transitions leave the cache alone")
}

func TestPaidEntryNeverCancellable(t *testing.T) {
	svc, repo := newTestService()
	id := seedEntry(repo, EntryStatePaid, true)

	_, err := svc.Cancel(context.Background(), testActor, id)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	e, err := svc.GetEntry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, EntryStatePaid, e.State)
}

func TestCancelDraftAndConfirmed(t *testing.T) {
	svc, repo := newTestService()

	for _, state := range []EntryState{EntryStateDraft, EntryStateConfirmed} {
		id := seedEntry(repo, state, true)
		e, err := svc.Cancel(context.Background(), testActor, id)
		require.NoError(t, err)
		assert.Equal(t, EntryStateCancelled, e.State)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.GetEntry(context.Background(), 999)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// ACCRUAL TESTS
// ============================================================================

func TestNewAccrualResolvesRateAndConfirms(t *testing.T) {
	svc, repo := newTestService()
	repo.rules[50] = &Rule{
		ID: 50, Name: "regional", Sequence: 10, BaseRate: 6,
		DateFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Active: true,
	}

	e, err := svc.NewAccrual(context.Background(), AccrualInput{
		AgentID:      7,
		RegionID:     2,
		CustomerID:   11,
		CustomerType: CustomerRetail,
		OrderID:      100,
		OrderAmount:  1000,
		OrderDate:    time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		FallbackRate: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, EntryStateConfirmed, e.State)
	assert.Equal(t, 6.0, e.Rate)
	assert.Equal(t, 60.0, e.Amount)
	assert.True(t, e.QRConfirmed)
	require.NotNil(t, e.QRConfirmationDate)
}

func TestNewAccrualFallsBackToAgentRate(t *testing.T) {
	svc, _ := newTestService()

	e, err := svc.NewAccrual(context.Background(), AccrualInput{
		AgentID:      7,
		RegionID:     2,
		OrderID:      100,
		OrderAmount:  1000,
		OrderDate:    time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		FallbackRate: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, e.Rate)
	assert.Equal(t, 50.0, e.Amount)
}

// ============================================================================
// RETURN TESTS
// ============================================================================

func TestProcessReturnOnPaidCreatesAdjustment(t *testing.T) {
	svc, repo := newTestService()
	id := seedEntry(repo, EntryStatePaid, true)

	adj, err := svc.ProcessReturn(context.Background(), testActor, id, 10)
	require.NoError(t, err)

	assert.True(t, adj.IsAdjustment)
	assert.Equal(t, -10.0, adj.BaseAmount)
	assert.Equal(t, 5.0, adj.Rate)
	assert.Equal(t, EntryStateConfirmed, adj.State)
	assert.NotEqual(t, id, adj.ID)
	require.NotNil(t, adj.Notes)
	assert.Contains(t, *adj.Notes, "COMM-202506-00042")

	// The paid entry stays untouched.
	original, err := svc.GetEntry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, EntryStatePaid, original.State)
	assert.Equal(t, 50.0, original.Amount)
	assert.Zero(t, original.ReturnAmount)
}

func TestProcessReturnOnConfirmedRecordsInPlace(t *testing.T) {
	svc, repo := newTestService()
	id := seedEntry(repo, EntryStateConfirmed, true)

	e, err := svc.ProcessReturn(context.Background(), testActor, id, 10)
	require.NoError(t, err)

	assert.Equal(t, id, e.ID)
	assert.Equal(t, 10.0, e.ReturnAmount)
	assert.Equal(t, 40.0, e.AdjustedAmount)
	assert.Equal(t, EntryStateConfirmed, e.State)
}

func TestProcessReturnRejectsExcessAmount(t *testing.T) {
	svc, repo := newTestService()
	id := seedEntry(repo, EntryStatePaid, true)

	_, err := svc.ProcessReturn(context.Background(), testActor, id, 60)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ProcessReturn(context.Background(), testActor, id, 0)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestProcessReturnRejectsCancelledEntry(t *testing.T) {
	svc, repo := newTestService()
	id := seedEntry(repo, EntryStateCancelled, true)

	_, err := svc.ProcessReturn(context.Background(), testActor, id, 10)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

// ============================================================================
// RULE CRUD TESTS
// ============================================================================

func TestCreateRuleValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateRule(context.Background(), CreateRuleRequest{
		Name:     "overrange",
		BaseRate: 150,
		DateFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, shared.ErrValidation)

	rl, err := svc.CreateRule(context.Background(), CreateRuleRequest{
		Name:     "regional wholesale",
		Sequence: 10,
		BaseRate: 6,
		DateFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, rl.Active)
}

func TestUpdateRulePartial(t *testing.T) {
	svc, repo := newTestService()
	repo.rules[50] = &Rule{
		ID: 50, Name: "regional", Sequence: 10, BaseRate: 6,
		DateFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Active: true,
	}

	newRate := 8.0
	inactive := false
	rl, err := svc.UpdateRule(context.Background(), 50, UpdateRuleRequest{
		BaseRate: &newRate,
		Active:   &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, 8.0, rl.BaseRate)
	assert.False(t, rl.Active)
	assert.Equal(t, "regional", rl.Name)
}

func TestDeleteRuleNotFound(t *testing.T) {
	svc, _ := newTestService()
	err := svc.DeleteRule(context.Background(), 999)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

// ============================================================================
// DOMAIN TESTS
// ============================================================================

func TestEntryRecompute(t *testing.T) {
	e := Entry{BaseAmount: 1000, Rate: 5}
	e.Recompute()
	assert.Equal(t, 50.0, e.Amount)
	assert.Equal(t, 50.0, e.AdjustedAmount)

	e.ReturnAmount = 12.34
	e.Recompute()
	assert.Equal(t, 37.66, e.AdjustedAmount)
}

func TestEntryValidateRateRange(t *testing.T) {
	e := Entry{AgentID: 7, OrderID: 100, BaseAmount: 1000, Rate: 101, State: EntryStateDraft, Date: time.Now()}
	e.Recompute()
	assert.ErrorIs(t, e.Validate(), shared.ErrValidation)
}

func TestEntryValidateAdjustmentSign(t *testing.T) {
	adj := Entry{AgentID: 7, OrderID: 100, BaseAmount: 10, Rate: 5, State: EntryStateConfirmed, IsAdjustment: true}
	adj.Recompute()
	assert.ErrorIs(t, adj.Validate(), shared.ErrValidation, "adjustments must carry a negative base")

	regular := Entry{AgentID: 7, OrderID: 100, BaseAmount: -10, Rate: 5, State: EntryStateDraft}
	regular.Recompute()
	assert.ErrorIs(t, regular.Validate(), shared.ErrValidation, "regular entries must carry a non-negative base")
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.5, Round2(0.504))
	assert.Equal(t, 0.52, Round2(0.515))
	assert.Equal(t, -0.5, Round2(-0.504))
}
