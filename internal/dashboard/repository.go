package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository computes rollups straight from the fulfillment and ledger
// tables. All aggregates COALESCE to zero so empty windows stay quiet.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

// ============================================================================
// REGION ROLLUPS
// ============================================================================

func (r *PgRepository) RegionSales(ctx context.Context, regionID int64, from, to time.Time) (SalesStats, error) {
	var stats SalesStats
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_total), 0), count(*)
		FROM orders
		WHERE region_id = $1 AND order_date >= $2 AND order_date <= $3
	`, regionID, from, to).Scan(&stats.Total, &stats.OrderCount)
	return stats, err
}

func (r *PgRepository) RegionShipments(ctx context.Context, regionID int64, from, to time.Time) (ShipmentStats, error) {
	var stats ShipmentStats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE s.state = 'delivered'),
		       count(*) FILTER (WHERE s.qr_confirmed)
		FROM shipments s
		JOIN orders o ON o.id = s.order_id
		WHERE o.region_id = $1 AND s.created_at >= $2 AND s.created_at <= $3
	`, regionID, from, to).Scan(&stats.Total, &stats.Delivered, &stats.QRConfirmed)
	return stats, err
}

func (r *PgRepository) RegionCommissions(ctx context.Context, regionID int64, from, to time.Time) (CommissionStats, error) {
	var stats CommissionStats
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE state IN ('CONFIRMED', 'PAID')), 0),
		       COALESCE(SUM(amount) FILTER (WHERE state = 'PAID'), 0)
		FROM commission_entries
		WHERE region_id = $1 AND date >= $2 AND date <= $3
	`, regionID, from, to).Scan(&stats.Accrued, &stats.Paid)
	return stats, err
}

func (r *PgRepository) RegionReturns(ctx context.Context, regionID int64, from, to time.Time) (ReturnStats, error) {
	var stats ReturnStats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(SUM(rr.total_value), 0)
		FROM return_requests rr
		JOIN orders o ON o.id = rr.order_id
		WHERE o.region_id = $1 AND rr.return_date >= $2 AND rr.return_date <= $3
	`, regionID, from, to).Scan(&stats.Count, &stats.Value)
	return stats, err
}

// ============================================================================
// AGENT ROLLUPS
// ============================================================================

func (r *PgRepository) AgentSales(ctx context.Context, agentID int64, from, to time.Time) (SalesStats, error) {
	var stats SalesStats
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_total), 0), count(*)
		FROM orders
		WHERE agent_id = $1 AND order_date >= $2 AND order_date <= $3
	`, agentID, from, to).Scan(&stats.Total, &stats.OrderCount)
	return stats, err
}

func (r *PgRepository) AgentShipments(ctx context.Context, agentID int64, from, to time.Time) (ShipmentStats, error) {
	var stats ShipmentStats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE s.state = 'delivered'),
		       count(*) FILTER (WHERE s.qr_confirmed)
		FROM shipments s
		JOIN orders o ON o.id = s.order_id
		WHERE o.agent_id = $1 AND s.created_at >= $2 AND s.created_at <= $3
	`, agentID, from, to).Scan(&stats.Total, &stats.Delivered, &stats.QRConfirmed)
	return stats, err
}

func (r *PgRepository) AgentCommissions(ctx context.Context, agentID int64, from, to time.Time) (CommissionStats, error) {
	var stats CommissionStats
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE state IN ('CONFIRMED', 'PAID')), 0),
		       COALESCE(SUM(amount) FILTER (WHERE state = 'PAID'), 0)
		FROM commission_entries
		WHERE agent_id = $1 AND date >= $2 AND date <= $3
	`, agentID, from, to).Scan(&stats.Accrued, &stats.Paid)
	return stats, err
}

func (r *PgRepository) AgentReturns(ctx context.Context, agentID int64, from, to time.Time) (ReturnStats, error) {
	var stats ReturnStats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(SUM(rr.total_value), 0)
		FROM return_requests rr
		JOIN orders o ON o.id = rr.order_id
		WHERE o.agent_id = $1 AND rr.return_date >= $2 AND rr.return_date <= $3
	`, agentID, from, to).Scan(&stats.Count, &stats.Value)
	return stats, err
}

// ============================================================================
// RANKING
// ============================================================================

func (r *PgRepository) AgentStandings(ctx context.Context, regionID int64, from, to time.Time) ([]AgentStanding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.name, COALESCE(SUM(ce.amount) FILTER (WHERE ce.state IN ('CONFIRMED', 'PAID')), 0)
		FROM agents a
		LEFT JOIN commission_entries ce
		       ON ce.agent_id = a.id AND ce.date >= $2 AND ce.date <= $3
		WHERE a.region_id = $1 AND a.active
		GROUP BY a.id, a.name
	`, regionID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var standings []AgentStanding
	for rows.Next() {
		var s AgentStanding
		if err := rows.Scan(&s.AgentID, &s.AgentName, &s.Amount); err != nil {
			return nil, err
		}
		standings = append(standings, s)
	}
	return standings, rows.Err()
}
