package dashboard

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type mockRepository struct {
	sales       map[int64]SalesStats
	shipments   map[int64]ShipmentStats
	commissions map[int64]CommissionStats
	returns     map[int64]ReturnStats
	standings   map[int64][]AgentStanding
	loads       int
}

func newMockRepo() *mockRepository {
	return &mockRepository{
		sales:       make(map[int64]SalesStats),
		shipments:   make(map[int64]ShipmentStats),
		commissions: make(map[int64]CommissionStats),
		returns:     make(map[int64]ReturnStats),
		standings:   make(map[int64][]AgentStanding),
	}
}

func (m *mockRepository) RegionSales(_ context.Context, id int64, _, _ time.Time) (SalesStats, error) {
	m.loads++
	return m.sales[id], nil
}
func (m *mockRepository) RegionShipments(_ context.Context, id int64, _, _ time.Time) (ShipmentStats, error) {
	return m.shipments[id], nil
}
func (m *mockRepository) RegionCommissions(_ context.Context, id int64, _, _ time.Time) (CommissionStats, error) {
	return m.commissions[id], nil
}
func (m *mockRepository) RegionReturns(_ context.Context, id int64, _, _ time.Time) (ReturnStats, error) {
	return m.returns[id], nil
}
func (m *mockRepository) AgentSales(_ context.Context, id int64, _, _ time.Time) (SalesStats, error) {
	m.loads++
	return m.sales[id], nil
}
func (m *mockRepository) AgentShipments(_ context.Context, id int64, _, _ time.Time) (ShipmentStats, error) {
	return m.shipments[id], nil
}
func (m *mockRepository) AgentCommissions(_ context.Context, id int64, _, _ time.Time) (CommissionStats, error) {
	return m.commissions[id], nil
}
func (m *mockRepository) AgentReturns(_ context.Context, id int64, _, _ time.Time) (ReturnStats, error) {
	return m.returns[id], nil
}
func (m *mockRepository) AgentStandings(_ context.Context, regionID int64, _, _ time.Time) ([]AgentStanding, error) {
	m.loads++
	return m.standings[regionID], nil
}

func newCachedService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute), slog.Default())
}

var asOf = time.Date(2025, 6, 18, 15, 0, 0, 0, time.UTC)

// ============================================================================
// WINDOW BOUNDS
// ============================================================================

func TestWindowBounds(t *testing.T) {
	from, to, err := WindowMonth.Bounds(asOf)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, asOf, to)

	// 2025-06-18 is a Wednesday; the week starts Monday the 16th.
	from, _, err = WindowWeek.Bounds(asOf)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), from)

	// Sunday belongs to the week that started the previous Monday.
	sunday := time.Date(2025, 6, 22, 10, 0, 0, 0, time.UTC)
	from, _, err = WindowWeek.Bounds(sunday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), from)

	_, _, err = Window("year").Bounds(asOf)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ============================================================================
// SUMMARIES
// ============================================================================

func TestRegionSummary(t *testing.T) {
	repo := newMockRepo()
	repo.sales[2] = SalesStats{Total: 54321.5, OrderCount: 17}
	repo.shipments[2] = ShipmentStats{Total: 15, Delivered: 11, QRConfirmed: 9}
	repo.commissions[2] = CommissionStats{Accrued: 2716.08, Paid: 1200}
	repo.returns[2] = ReturnStats{Count: 2, Value: 890}
	svc := newCachedService(t, repo)

	sum, err := svc.RegionSummary(context.Background(), 2, WindowMonth, asOf)
	require.NoError(t, err)
	assert.Equal(t, WindowMonth, sum.Window)
	assert.InDelta(t, 54321.5, sum.Sales.Total, 0.001)
	assert.Equal(t, int64(17), sum.Sales.OrderCount)
	assert.Equal(t, int64(9), sum.Shipments.QRConfirmed)
	assert.InDelta(t, 2716.08, sum.Commissions.Accrued, 0.001)
	assert.InDelta(t, 1200.0, sum.Commissions.Paid, 0.001)
	assert.Equal(t, int64(2), sum.Returns.Count)
}

func TestRegionSummaryEmptyWindowIsZero(t *testing.T) {
	repo := newMockRepo()
	svc := newCachedService(t, repo)

	sum, err := svc.RegionSummary(context.Background(), 99, WindowWeek, asOf)
	require.NoError(t, err)
	assert.Zero(t, sum.Sales.Total)
	assert.Zero(t, sum.Sales.OrderCount)
	assert.Zero(t, sum.Shipments.Total)
	assert.Zero(t, sum.Commissions.Accrued)
	assert.Zero(t, sum.Returns.Count)
}

func TestSummaryCached(t *testing.T) {
	repo := newMockRepo()
	repo.sales[2] = SalesStats{Total: 100, OrderCount: 1}
	svc := newCachedService(t, repo)
	ctx := context.Background()

	_, err := svc.RegionSummary(ctx, 2, WindowMonth, asOf)
	require.NoError(t, err)
	_, err = svc.RegionSummary(ctx, 2, WindowMonth, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.loads, "second read served from cache")
}

func TestInvalidateBumpsVersion(t *testing.T) {
	repo := newMockRepo()
	repo.sales[2] = SalesStats{Total: 100, OrderCount: 1}
	svc := newCachedService(t, repo)
	ctx := context.Background()

	_, err := svc.RegionSummary(ctx, 2, WindowMonth, asOf)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx))

	repo.sales[2] = SalesStats{Total: 250, OrderCount: 2}
	sum, err := svc.RegionSummary(ctx, 2, WindowMonth, asOf)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, sum.Sales.Total, 0.001, "bump invalidates the old key")
	assert.Equal(t, 2, repo.loads)
}

func TestAgentSummary(t *testing.T) {
	repo := newMockRepo()
	repo.sales[7] = SalesStats{Total: 9000, OrderCount: 4}
	repo.commissions[7] = CommissionStats{Accrued: 450, Paid: 450}
	svc := newCachedService(t, repo)

	sum, err := svc.AgentSummary(context.Background(), 7, WindowWeek, asOf)
	require.NoError(t, err)
	assert.Equal(t, WindowWeek, sum.Window)
	assert.InDelta(t, 9000.0, sum.Sales.Total, 0.001)
	assert.InDelta(t, 450.0, sum.Commissions.Paid, 0.001)
}

// ============================================================================
// RANKING
// ============================================================================

func TestAgentRankingOrdersByAmount(t *testing.T) {
	repo := newMockRepo()
	repo.standings[2] = []AgentStanding{
		{AgentID: 9, AgentName: "Lena", Amount: 120},
		{AgentID: 7, AgentName: "Mina", Amount: 340},
		{AgentID: 8, AgentName: "Omar", Amount: 210},
	}
	svc := newCachedService(t, repo)

	standings, err := svc.AgentRanking(context.Background(), 2, asOf)
	require.NoError(t, err)
	require.Len(t, standings, 3)
	assert.Equal(t, int64(7), standings[0].AgentID)
	assert.Equal(t, 1, standings[0].Rank)
	assert.Equal(t, int64(8), standings[1].AgentID)
	assert.Equal(t, int64(9), standings[2].AgentID)
	assert.Equal(t, 3, standings[2].Rank)
}

func TestAgentRankingTieBreaksByAgentID(t *testing.T) {
	repo := newMockRepo()
	repo.standings[2] = []AgentStanding{
		{AgentID: 9, AgentName: "Lena", Amount: 200},
		{AgentID: 7, AgentName: "Mina", Amount: 200},
	}
	svc := newCachedService(t, repo)

	standings, err := svc.AgentRanking(context.Background(), 2, asOf)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, int64(7), standings[0].AgentID, "equal totals rank the lower agent id first")
	assert.Equal(t, int64(9), standings[1].AgentID)
}

func TestAgentRankingEmptyRegion(t *testing.T) {
	repo := newMockRepo()
	svc := newCachedService(t, repo)

	standings, err := svc.AgentRanking(context.Background(), 5, asOf)
	require.NoError(t, err)
	assert.Empty(t, standings)
	assert.NotNil(t, standings)
}
