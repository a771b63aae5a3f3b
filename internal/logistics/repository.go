package logistics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/commission"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PgRepository provides PostgreSQL backed persistence for orders, shipments
// and return requests.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

// querier abstracts pool vs transaction for the shared read/write paths.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WithTx runs fn inside a repeatable read transaction. The transaction is
// rolled back when fn returns an error.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

// pgTx implements TxRepository over an open transaction.
type pgTx struct {
	tx pgx.Tx
}

var _ TxRepository = (*pgTx)(nil)

// ============================================================================
// ORDER OPERATIONS
// ============================================================================

const orderColumns = `id, order_number, customer_id, customer_name, customer_phone, customer_type,
	       region_id, agent_id, order_date, amount_total,
	       qr_confirmed, qr_confirmation_date, qr_confirmed_by,
	       delivery_status, urgent_delivery, special_instructions,
	       created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName, &o.CustomerPhone, &o.CustomerType,
		&o.RegionID, &o.AgentID, &o.OrderDate, &o.AmountTotal,
		&o.QRConfirmed, &o.QRConfirmationDate, &o.QRConfirmedBy,
		&o.DeliveryStatus, &o.UrgentDelivery, &o.SpecialInstructions,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *PgRepository) GetOrder(ctx context.Context, id int64) (*Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	return scanOrder(r.pool.QueryRow(ctx, query, id))
}

func (r *PgRepository) ListOrders(ctx context.Context, limit, offset int) ([]Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders ORDER BY order_date DESC, id DESC LIMIT $1 OFFSET $2`, orderColumns)
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (r *PgRepository) CreateOrder(ctx context.Context, o Order) (int64, error) {
	query := `
		INSERT INTO orders (
			order_number, customer_id, customer_name, customer_phone, customer_type,
			region_id, agent_id, order_date, amount_total,
			qr_confirmed, delivery_status, urgent_delivery, special_instructions,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		o.OrderNumber, o.CustomerID, o.CustomerName, o.CustomerPhone, string(o.CustomerType),
		o.RegionID, o.AgentID, o.OrderDate, o.AmountTotal,
		o.QRConfirmed, string(o.DeliveryStatus), o.UrgentDelivery, o.SpecialInstructions,
	).Scan(&id)
	return id, err
}

func (r *PgRepository) NextOrderNumber(ctx context.Context) (string, error) {
	// SO-{YYMM}-{SEQ}
	var count int64
	err := r.pool.QueryRow(ctx, "SELECT count(*) FROM orders").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SO-%s-%04d", time.Now().Format("0601"), count+1), nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1 FOR UPDATE`, orderColumns)
	return scanOrder(t.tx.QueryRow(ctx, query, id))
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *Order) error {
	query := `
		UPDATE orders SET
			qr_confirmed = $2, qr_confirmation_date = $3, qr_confirmed_by = $4,
			delivery_status = $5, updated_at = now()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		o.ID, o.QRConfirmed, o.QRConfirmationDate, o.QRConfirmedBy, string(o.DeliveryStatus))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ============================================================================
// SHIPMENT OPERATIONS
// ============================================================================

const shipmentColumns = `id, shipment_number, order_id, state,
	       shipment_date, expected_delivery_date, actual_delivery_date,
	       qr_payload, qr_confirmed, qr_confirmation_date, qr_confirmed_by,
	       carrier, tracking_number, shipping_cost,
	       delivery_address, delivery_contact, delivery_phone,
	       urgent_delivery, special_instructions, notes,
	       created_at, updated_at`

func scanShipment(row pgx.Row) (*Shipment, error) {
	var s Shipment
	err := row.Scan(
		&s.ID, &s.ShipmentNumber, &s.OrderID, &s.State,
		&s.ShipmentDate, &s.ExpectedDeliveryDate, &s.ActualDeliveryDate,
		&s.QRPayload, &s.QRConfirmed, &s.QRConfirmationDate, &s.QRConfirmedBy,
		&s.Carrier, &s.TrackingNumber, &s.ShippingCost,
		&s.DeliveryAddress, &s.DeliveryContact, &s.DeliveryPhone,
		&s.UrgentDelivery, &s.SpecialInstructions, &s.Notes,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func getShipment(ctx context.Context, q querier, id int64, forUpdate bool) (*Shipment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE id = $1`, shipmentColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	s, err := scanShipment(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	s.Packaging, err = loadPackaging(ctx, q, s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PgRepository) GetShipment(ctx context.Context, id int64) (*Shipment, error) {
	return getShipment(ctx, r.pool, id, false)
}

func (t *pgTx) GetShipmentForUpdate(ctx context.Context, id int64) (*Shipment, error) {
	return getShipment(ctx, t.tx, id, true)
}

func (r *PgRepository) ListShipments(ctx context.Context, req ListShipmentsRequest) ([]Shipment, error) {
	var (
		conditions []string
		args       []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if req.OrderID != nil {
		conditions = append(conditions, "order_id = "+arg(*req.OrderID))
	}
	if req.State != nil {
		conditions = append(conditions, "state = "+arg(string(*req.State)))
	}

	query := fmt.Sprintf(`SELECT %s FROM shipments`, shipmentColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
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

	var shipments []Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		shipments = append(shipments, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range shipments {
		shipments[i].Packaging, err = loadPackaging(ctx, r.pool, shipments[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return shipments, nil
}

func (r *PgRepository) CreateShipment(ctx context.Context, s Shipment) (int64, error) {
	var id int64
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pt := tx.(*pgTx)
		query := `
			INSERT INTO shipments (
				shipment_number, order_id, state,
				shipment_date, expected_delivery_date, actual_delivery_date,
				qr_payload, qr_confirmed,
				carrier, tracking_number, shipping_cost,
				delivery_address, delivery_contact, delivery_phone,
				urgent_delivery, special_instructions, notes,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
			RETURNING id
		`
		err := pt.tx.QueryRow(ctx, query,
			s.ShipmentNumber, s.OrderID, string(s.State),
			s.ShipmentDate, s.ExpectedDeliveryDate, s.ActualDeliveryDate,
			s.QRPayload, s.QRConfirmed,
			s.Carrier, s.TrackingNumber, s.ShippingCost,
			s.DeliveryAddress, s.DeliveryContact, s.DeliveryPhone,
			s.UrgentDelivery, s.SpecialInstructions, s.Notes,
		).Scan(&id)
		if err != nil {
			return err
		}
		for i := range s.Packaging {
			s.Packaging[i].ShipmentID = id
			if err := insertPackaging(ctx, pt.tx, &s.Packaging[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

func (t *pgTx) UpdateShipment(ctx context.Context, s *Shipment) error {
	query := `
		UPDATE shipments SET
			state = $2, shipment_date = $3, actual_delivery_date = $4,
			qr_confirmed = $5, qr_confirmation_date = $6, qr_confirmed_by = $7,
			carrier = $8, tracking_number = $9, notes = $10,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		s.ID, string(s.State), s.ShipmentDate, s.ActualDeliveryDate,
		s.QRConfirmed, s.QRConfirmationDate, s.QRConfirmedBy,
		s.Carrier, s.TrackingNumber, s.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	for i := range s.Packaging {
		if err := updatePackaging(ctx, t.tx, &s.Packaging[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *PgRepository) NextShipmentNumber(ctx context.Context) (string, error) {
	// SHP-{YYMM}-{SEQ}
	var count int64
	err := r.pool.QueryRow(ctx, "SELECT count(*) FROM shipments").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SHP-%s-%04d", time.Now().Format("0601"), count+1), nil
}

// ============================================================================
// PACKAGING
// ============================================================================

const packagingColumns = `id, shipment_id, type, size,
	       boxes_count, sticks_count, displays_count,
	       product_name, batch_numbers, quality_grade, weight_kg,
	       packed, packed_at, packed_by`

func loadPackaging(ctx context.Context, q querier, shipmentID int64) ([]Packaging, error) {
	query := fmt.Sprintf(`SELECT %s FROM shipment_packaging WHERE shipment_id = $1 ORDER BY id`, packagingColumns)
	rows, err := q.Query(ctx, query, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Packaging
	for rows.Next() {
		var p Packaging
		err := rows.Scan(
			&p.ID, &p.ShipmentID, &p.Type, &p.Size,
			&p.BoxesCount, &p.SticksCount, &p.DisplaysCount,
			&p.ProductName, &p.BatchNumbers, &p.QualityGrade, &p.WeightKg,
			&p.Packed, &p.PackedAt, &p.PackedBy,
		)
		if err != nil {
			return nil, err
		}
		lines = append(lines, p)
	}
	return lines, rows.Err()
}

func insertPackaging(ctx context.Context, q querier, p *Packaging) error {
	query := `
		INSERT INTO shipment_packaging (
			shipment_id, type, size,
			boxes_count, sticks_count, displays_count,
			product_name, batch_numbers, quality_grade, weight_kg,
			packed, packed_at, packed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	return q.QueryRow(ctx, query,
		p.ShipmentID, string(p.Type), p.Size,
		p.BoxesCount, p.SticksCount, p.DisplaysCount,
		p.ProductName, p.BatchNumbers, string(p.QualityGrade), p.WeightKg,
		p.Packed, p.PackedAt, p.PackedBy,
	).Scan(&p.ID)
}

func updatePackaging(ctx context.Context, q querier, p *Packaging) error {
	query := `
		UPDATE shipment_packaging SET
			packed = $2, packed_at = $3, packed_by = $4
		WHERE id = $1
	`
	_, err := q.Exec(ctx, query, p.ID, p.Packed, p.PackedAt, p.PackedBy)
	return err
}

// ============================================================================
// RETURN REQUESTS
// ============================================================================

const returnColumns = `id, return_number, shipment_id, order_id, customer_id,
	       return_date, reason, other_reason,
	       total_quantity, total_value, state,
	       approved_by, approval_date, rejection_reason,
	       processed_by, processing_date,
	       refund_amount, refund_method, commission_adjustment,
	       notes, customer_notes, created_at, updated_at`

func scanReturn(row pgx.Row) (*ReturnRequest, error) {
	var ret ReturnRequest
	err := row.Scan(
		&ret.ID, &ret.ReturnNumber, &ret.ShipmentID, &ret.OrderID, &ret.CustomerID,
		&ret.ReturnDate, &ret.Reason, &ret.OtherReason,
		&ret.TotalQuantity, &ret.TotalValue, &ret.State,
		&ret.ApprovedBy, &ret.ApprovalDate, &ret.RejectionReason,
		&ret.ProcessedBy, &ret.ProcessingDate,
		&ret.RefundAmount, &ret.RefundMethod, &ret.CommissionAdjustment,
		&ret.Notes, &ret.CustomerNotes, &ret.CreatedAt, &ret.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ret, nil
}

func getReturn(ctx context.Context, q querier, id int64, forUpdate bool) (*ReturnRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM return_requests WHERE id = $1`, returnColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	ret, err := scanReturn(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	ret.Lines, err = loadReturnLines(ctx, q, ret.ID)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (r *PgRepository) GetReturn(ctx context.Context, id int64) (*ReturnRequest, error) {
	return getReturn(ctx, r.pool, id, false)
}

func (t *pgTx) GetReturnForUpdate(ctx context.Context, id int64) (*ReturnRequest, error) {
	return getReturn(ctx, t.tx, id, true)
}

func (r *PgRepository) ListReturns(ctx context.Context, limit, offset int) ([]ReturnRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM return_requests ORDER BY return_date DESC, id DESC LIMIT $1 OFFSET $2`, returnColumns)
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var returns []ReturnRequest
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		returns = append(returns, *ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range returns {
		returns[i].Lines, err = loadReturnLines(ctx, r.pool, returns[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return returns, nil
}

func (r *PgRepository) CreateReturn(ctx context.Context, ret ReturnRequest) (int64, error) {
	var id int64
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pt := tx.(*pgTx)
		query := `
			INSERT INTO return_requests (
				return_number, shipment_id, order_id, customer_id,
				return_date, reason, other_reason,
				total_quantity, total_value, state,
				refund_amount, commission_adjustment,
				notes, customer_notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
			RETURNING id
		`
		err := pt.tx.QueryRow(ctx, query,
			ret.ReturnNumber, ret.ShipmentID, ret.OrderID, ret.CustomerID,
			ret.ReturnDate, string(ret.Reason), ret.OtherReason,
			ret.TotalQuantity, ret.TotalValue, string(ret.State),
			ret.RefundAmount, ret.CommissionAdjustment,
			ret.Notes, ret.CustomerNotes,
		).Scan(&id)
		if err != nil {
			return err
		}
		for i := range ret.Lines {
			ret.Lines[i].ReturnID = id
			if err := insertReturnLine(ctx, pt.tx, &ret.Lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

func (t *pgTx) UpdateReturn(ctx context.Context, ret *ReturnRequest) error {
	query := `
		UPDATE return_requests SET
			state = $2, approved_by = $3, approval_date = $4, rejection_reason = $5,
			processed_by = $6, processing_date = $7,
			refund_amount = $8, refund_method = $9, commission_adjustment = $10,
			notes = $11, updated_at = now()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		ret.ID, string(ret.State), ret.ApprovedBy, ret.ApprovalDate, ret.RejectionReason,
		ret.ProcessedBy, ret.ProcessingDate,
		ret.RefundAmount, ret.RefundMethod, ret.CommissionAdjustment,
		ret.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PgRepository) NextReturnNumber(ctx context.Context) (string, error) {
	// RET-{YYMM}-{SEQ}
	var count int64
	err := r.pool.QueryRow(ctx, "SELECT count(*) FROM return_requests").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RET-%s-%04d", time.Now().Format("0601"), count+1), nil
}

const returnLineColumns = `id, return_id, product_name, batch_number,
	       quantity, unit_price, value, quality_grade, condition, notes`

func loadReturnLines(ctx context.Context, q querier, returnID int64) ([]ReturnLine, error) {
	query := fmt.Sprintf(`SELECT %s FROM return_lines WHERE return_id = $1 ORDER BY id`, returnLineColumns)
	rows, err := q.Query(ctx, query, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []ReturnLine
	for rows.Next() {
		var l ReturnLine
		err := rows.Scan(
			&l.ID, &l.ReturnID, &l.ProductName, &l.BatchNumber,
			&l.Quantity, &l.UnitPrice, &l.Value, &l.QualityGrade, &l.Condition, &l.Notes,
		)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func insertReturnLine(ctx context.Context, q querier, l *ReturnLine) error {
	query := `
		INSERT INTO return_lines (
			return_id, product_name, batch_number,
			quantity, unit_price, value, quality_grade, condition, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	return q.QueryRow(ctx, query,
		l.ReturnID, l.ProductName, l.BatchNumber,
		l.Quantity, l.UnitPrice, l.Value, string(l.QualityGrade), l.Condition, l.Notes,
	).Scan(&l.ID)
}

// ============================================================================
// COMMISSION LEDGER (transactional writes from the QR cascade and returns)
// ============================================================================

func (t *pgTx) ListPaidCommissionEntriesByOrder(ctx context.Context, orderID int64) ([]commission.Entry, error) {
	query := `
		SELECT id, entry_number, agent_id, region_id, order_id, customer_id,
		       base_amount, rate, amount, state, date, payment_date,
		       qr_confirmed, qr_confirmation_date,
		       return_amount, adjusted_amount, is_adjustment,
		       notes, created_at, updated_at
		FROM commission_entries
		WHERE order_id = $1 AND state = $2 AND NOT is_adjustment
		ORDER BY id
	`
	rows, err := t.tx.Query(ctx, query, orderID, string(commission.EntryStatePaid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []commission.Entry
	for rows.Next() {
		var e commission.Entry
		err := rows.Scan(
			&e.ID, &e.EntryNumber, &e.AgentID, &e.RegionID, &e.OrderID, &e.CustomerID,
			&e.BaseAmount, &e.Rate, &e.Amount, &e.State, &e.Date, &e.PaymentDate,
			&e.QRConfirmed, &e.QRConfirmationDate,
			&e.ReturnAmount, &e.AdjustedAmount, &e.IsAdjustment,
			&e.Notes, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *pgTx) NextCommissionEntryNumber(ctx context.Context) (string, error) {
	var count int64
	err := t.tx.QueryRow(ctx, "SELECT count(*) FROM commission_entries").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("COMM-%s-%05d", time.Now().Format("200601"), count+1), nil
}

func (t *pgTx) CreateCommissionEntry(ctx context.Context, e commission.Entry) (int64, error) {
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
	err := t.tx.QueryRow(ctx, query,
		e.EntryNumber, e.AgentID, e.RegionID, e.OrderID, e.CustomerID,
		e.BaseAmount, e.Rate, e.Amount, string(e.State), e.Date, e.PaymentDate,
		e.QRConfirmed, e.QRConfirmationDate,
		e.ReturnAmount, e.AdjustedAmount, e.IsAdjustment,
		e.Notes,
	).Scan(&id)
	return id, err
}
