package participants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PgRepository provides PostgreSQL backed persistence for regions and agents.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

// ============================================================================
// REGION OPERATIONS
// ============================================================================

const regionColumns = `id, code, name, commission_rate, sales_target, active, created_at, updated_at`

func scanRegion(row pgx.Row) (*Region, error) {
	var r Region
	err := row.Scan(&r.ID, &r.Code, &r.Name, &r.CommissionRate, &r.SalesTarget, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (r *PgRepository) GetRegion(ctx context.Context, id int64) (*Region, error) {
	query := fmt.Sprintf(`SELECT %s FROM regions WHERE id = $1`, regionColumns)
	return scanRegion(r.pool.QueryRow(ctx, query, id))
}

func (r *PgRepository) ListRegions(ctx context.Context) ([]Region, error) {
	query := fmt.Sprintf(`SELECT %s FROM regions ORDER BY code`, regionColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []Region
	for rows.Next() {
		reg, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		regions = append(regions, *reg)
	}
	return regions, rows.Err()
}

func (r *PgRepository) CreateRegion(ctx context.Context, reg Region) (int64, error) {
	query := `
		INSERT INTO regions (code, name, commission_rate, sales_target, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query, reg.Code, reg.Name, reg.CommissionRate, reg.SalesTarget, reg.Active).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

func (r *PgRepository) UpdateRegion(ctx context.Context, reg *Region) error {
	query := `
		UPDATE regions SET
			name = $2, commission_rate = $3, sales_target = $4, active = $5, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, reg.ID, reg.Name, reg.CommissionRate, reg.SalesTarget, reg.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PgRepository) DeleteRegion(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM regions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PgRepository) CountAgentsInRegion(ctx context.Context, regionID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM agents WHERE region_id = $1`, regionID).Scan(&count)
	return count, err
}

// ============================================================================
// AGENT OPERATIONS
// ============================================================================

const agentColumns = `id, name, region_id, phone, email, commission_rate, monthly_target, active, created_at, updated_at`

func scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.RegionID, &a.Phone, &a.Email, &a.CommissionRate, &a.MonthlyTarget, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PgRepository) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE id = $1`, agentColumns)
	return scanAgent(r.pool.QueryRow(ctx, query, id))
}

func (r *PgRepository) ListAgents(ctx context.Context, regionID *int64) ([]Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents`, agentColumns)
	var args []interface{}
	if regionID != nil {
		query += " WHERE region_id = $1"
		args = append(args, *regionID)
	}
	query += " ORDER BY name, id"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func (r *PgRepository) CreateAgent(ctx context.Context, a Agent) (int64, error) {
	query := `
		INSERT INTO agents (name, region_id, phone, email, commission_rate, monthly_target, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		a.Name, a.RegionID, a.Phone, a.Email, a.CommissionRate, a.MonthlyTarget, a.Active).Scan(&id)
	return id, err
}

func (r *PgRepository) UpdateAgent(ctx context.Context, a *Agent) error {
	query := `
		UPDATE agents SET
			name = $2, region_id = $3, phone = $4, email = $5,
			commission_rate = $6, monthly_target = $7, active = $8, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		a.ID, a.Name, a.RegionID, a.Phone, a.Email, a.CommissionRate, a.MonthlyTarget, a.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PgRepository) DeleteAgent(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PgRepository) CountPaidEntriesForAgent(ctx context.Context, agentID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM commission_entries WHERE agent_id = $1 AND state = 'PAID'`, agentID).Scan(&count)
	return count, err
}

func (r *PgRepository) AgentMonthSales(ctx context.Context, agentID int64, from, to time.Time) (float64, int64, error) {
	var (
		total  float64
		orders int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_total), 0), count(*)
		FROM orders
		WHERE agent_id = $1 AND order_date >= $2 AND order_date <= $3
	`, agentID, from, to).Scan(&total, &orders)
	return total, orders, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
