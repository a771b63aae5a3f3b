package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PgRepository provides PostgreSQL backed persistence for the commission ledger.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const entryColumns = `id, entry_number, agent_id, region_id, order_id, customer_id,
	       base_amount, rate, amount, state, date, payment_date,
	       qr_confirmed, qr_confirmation_date,
	       return_amount, adjusted_amount, is_adjustment,
	       notes, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.EntryNumber, &e.AgentID, &e.RegionID, &e.OrderID, &e.CustomerID,
		&e.BaseAmount, &e.Rate, &e.Amount, &e.State, &e.Date, &e.PaymentDate,
		&e.QRConfirmed, &e.QRConfirmationDate,
		&e.ReturnAmount, &e.AdjustedAmount, &e.IsAdjustment,
		&e.Notes, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ============================================================================
// ENTRY OPERATIONS
// ============================================================================

func (r *PgRepository) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM commission_entries WHERE id = $1`, entryColumns)
	return scanEntry(r.pool.QueryRow(ctx, query, id))
}

func (r *PgRepository) ListEntries(ctx context.Context, req ListEntriesRequest) ([]Entry, error) {
	var (
		conditions []string
		args       []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if req.AgentID != nil {
		conditions = append(conditions, "agent_id = "+arg(*req.AgentID))
	}
	if req.OrderID != nil {
		conditions = append(conditions, "order_id = "+arg(*req.OrderID))
	}
	if req.State != nil {
		conditions = append(conditions, "state = "+arg(string(*req.State)))
	}
	if req.DateFrom != nil {
		conditions = append(conditions, "date >= "+arg(*req.DateFrom))
	}
	if req.DateTo != nil {
		conditions = append(conditions, "date <= "+arg(*req.DateTo))
	}

	query := fmt.Sprintf(`SELECT %s FROM commission_entries`, entryColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + arg(limit) + " OFFSET " + arg(req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *PgRepository) ListEntriesByOrder(ctx context.Context, orderID int64) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM commission_entries WHERE order_id = $1 ORDER BY id`, entryColumns)
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *PgRepository) CreateEntry(ctx context.Context, e Entry) (int64, error) {
	return insertEntry(ctx, r.pool, e)
}

func insertEntry(ctx context.Context, q querier, e Entry) (int64, error) {
	query := `
		INSERT INTO commission_entries (
			entry_number, agent_id, region_id, order_id, customer_id,
			base_amount, rate, amount, state, date, payment_date,
			qr_confirmed, qr_confirmation_date,
			return_amount, adjusted_amount, is_adjustment,
			notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
		RETURNING id
	`
	var id int64
	err := q.QueryRow(ctx, query,
		e.EntryNumber, e.AgentID, e.RegionID, e.OrderID, e.CustomerID,
		e.BaseAmount, e.Rate, e.Amount, string(e.State), e.Date, e.PaymentDate,
		e.QRConfirmed, e.QRConfirmationDate,
		e.ReturnAmount, e.AdjustedAmount, e.IsAdjustment,
		e.Notes,
	).Scan(&id)
	return id, err
}

func (r *PgRepository) UpdateEntry(ctx context.Context, e *Entry) error {
	return updateEntry(ctx, r.pool, e)
}

func updateEntry(ctx context.Context, q querier, e *Entry) error {
	query := `
		UPDATE commission_entries SET
			base_amount = $2, rate = $3, amount = $4, state = $5,
			payment_date = $6, qr_confirmed = $7, qr_confirmation_date = $8,
			return_amount = $9, adjusted_amount = $10, notes = $11,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := q.Exec(ctx, query,
		e.ID, e.BaseAmount, e.Rate, e.Amount, string(e.State),
		e.PaymentDate, e.QRConfirmed, e.QRConfirmationDate,
		e.ReturnAmount, e.AdjustedAmount, e.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PgRepository) NextEntryNumber(ctx context.Context) (string, error) {
	return nextEntryNumber(ctx, r.pool)
}

func nextEntryNumber(ctx context.Context, q querier) (string, error) {
	// COMM-{YYYYMM}-{SEQ}
	var count int64
	err := q.QueryRow(ctx, "SELECT count(*) FROM commission_entries").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("COMM-%s-%05d", time.Now().Format("200601"), count+1), nil
}

// querier abstracts pool vs transaction for the shared insert/update paths.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ============================================================================
// RULE OPERATIONS
// ============================================================================

const ruleColumns = `id, name, sequence, region_id, agent_id, customer_type,
	       base_rate, min_amount, max_amount, bonus_rate, bonus_threshold,
	       date_from, date_to, active, created_at, updated_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var rl Rule
	err := row.Scan(
		&rl.ID, &rl.Name, &rl.Sequence, &rl.RegionID, &rl.AgentID, &rl.CustomerType,
		&rl.BaseRate, &rl.MinAmount, &rl.MaxAmount, &rl.BonusRate, &rl.BonusThreshold,
		&rl.DateFrom, &rl.DateTo, &rl.Active, &rl.CreatedAt, &rl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rl, nil
}

func (r *PgRepository) GetRule(ctx context.Context, id int64) (*Rule, error) {
	query := fmt.Sprintf(`SELECT %s FROM commission_rules WHERE id = $1`, ruleColumns)
	return scanRule(r.pool.QueryRow(ctx, query, id))
}

func (r *PgRepository) ListRules(ctx context.Context) ([]Rule, error) {
	query := fmt.Sprintf(`SELECT %s FROM commission_rules ORDER BY sequence, id`, ruleColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func (r *PgRepository) ActiveRules(ctx context.Context, asOf time.Time) ([]Rule, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM commission_rules
		WHERE active
		  AND date_from <= $1
		  AND (date_to IS NULL OR date_to >= $1)
		ORDER BY sequence, id
	`, ruleColumns)
	rows, err := r.pool.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	var rules []Rule
	for rows.Next() {
		rl, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rl)
	}
	return rules, rows.Err()
}

func (r *PgRepository) CreateRule(ctx context.Context, rl Rule) (int64, error) {
	query := `
		INSERT INTO commission_rules (
			name, sequence, region_id, agent_id, customer_type,
			base_rate, min_amount, max_amount, bonus_rate, bonus_threshold,
			date_from, date_to, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		rl.Name, rl.Sequence, rl.RegionID, rl.AgentID, rl.CustomerType,
		rl.BaseRate, rl.MinAmount, rl.MaxAmount, rl.BonusRate, rl.BonusThreshold,
		rl.DateFrom, rl.DateTo, rl.Active,
	).Scan(&id)
	return id, err
}

func (r *PgRepository) UpdateRule(ctx context.Context, rl *Rule) error {
	query := `
		UPDATE commission_rules SET
			name = $2, sequence = $3, region_id = $4, agent_id = $5, customer_type = $6,
			base_rate = $7, min_amount = $8, max_amount = $9,
			bonus_rate = $10, bonus_threshold = $11,
			date_from = $12, date_to = $13, active = $14,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		rl.ID, rl.Name, rl.Sequence, rl.RegionID, rl.AgentID, rl.CustomerType,
		rl.BaseRate, rl.MinAmount, rl.MaxAmount, rl.BonusRate, rl.BonusThreshold,
		rl.DateFrom, rl.DateTo, rl.Active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PgRepository) DeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM commission_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
