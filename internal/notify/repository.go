package notify

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PgRepository provides PostgreSQL backed persistence for notifications.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

func (r *PgRepository) ActiveTemplate(ctx context.Context, t TemplateType) (*Template, error) {
	query := `
		SELECT id, name, type, body, active, created_at, updated_at
		FROM notification_templates
		WHERE type = $1 AND active
		ORDER BY id
		LIMIT 1
	`
	var tpl Template
	err := r.pool.QueryRow(ctx, query, string(t)).Scan(
		&tpl.ID, &tpl.Name, &tpl.Type, &tpl.Body, &tpl.Active, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

func (r *PgRepository) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, type, body, active, created_at, updated_at
		FROM notification_templates
		ORDER BY type, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var tpl Template
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Type, &tpl.Body, &tpl.Active, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (r *PgRepository) CreateTemplate(ctx context.Context, tpl Template) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notification_templates (name, type, body, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id
	`, tpl.Name, string(tpl.Type), tpl.Body, tpl.Active).Scan(&id)
	return id, err
}

const messageColumns = `id, recipient, phone, template_type, body, status,
	       external_id, error, order_id, shipment_id, created_at, sent_at`

func (r *PgRepository) CreateMessage(ctx context.Context, m Message) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_messages (
			id, recipient, phone, template_type, body, status,
			external_id, error, order_id, shipment_id, created_at, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID, m.Recipient, m.Phone, string(m.TemplateType), m.Body, string(m.Status),
		m.ExternalID, m.Error, m.OrderID, m.ShipmentID, m.CreatedAt, m.SentAt)
	return err
}

func (r *PgRepository) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	err := r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM notification_messages WHERE id = $1`, id,
	).Scan(
		&m.ID, &m.Recipient, &m.Phone, &m.TemplateType, &m.Body, &m.Status,
		&m.ExternalID, &m.Error, &m.OrderID, &m.ShipmentID, &m.CreatedAt, &m.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *PgRepository) ListMessagesByOrder(ctx context.Context, orderID int64) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM notification_messages WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.Recipient, &m.Phone, &m.TemplateType, &m.Body, &m.Status,
			&m.ExternalID, &m.Error, &m.OrderID, &m.ShipmentID, &m.CreatedAt, &m.SentAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *PgRepository) UpdateMessageStatus(ctx context.Context, id string, status MessageStatus, externalID, errText *string) error {
	var sentAt *time.Time
	if status == StatusSent {
		now := time.Now()
		sentAt = &now
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_messages SET
			status = $2,
			external_id = COALESCE($3, external_id),
			error = $4,
			sent_at = COALESCE($5, sent_at)
		WHERE id = $1
	`, id, string(status), externalID, errText, sentAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
