package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Common errors.
var (
	ErrMessageNotFound  = fmt.Errorf("notification message %w", shared.ErrNotFound)
	ErrTemplateNotFound = fmt.Errorf("notification template %w", shared.ErrNotFound)
)

// Repository persists templates and the message log.
type Repository interface {
	ActiveTemplate(ctx context.Context, t TemplateType) (*Template, error)
	ListTemplates(ctx context.Context) ([]Template, error)
	CreateTemplate(ctx context.Context, tpl Template) (int64, error)

	CreateMessage(ctx context.Context, m Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessagesByOrder(ctx context.Context, orderID int64) ([]Message, error)
	UpdateMessageStatus(ctx context.Context, id string, status MessageStatus, externalID, errText *string) error
}

// Transport delivers a rendered message body to a phone number and returns
// the provider's message id.
type Transport interface {
	Send(ctx context.Context, phone, body string) (string, error)
}

// Dispatcher renders, logs and sends notifications. Send failures are
// recorded on the message row and logged; they are never surfaced to the
// state-machine callers.
type Dispatcher struct {
	repo      Repository
	transport Transport
	logger    *slog.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(repo Repository, transport Transport, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, transport: transport, logger: logger}
}

// DispatchInput describes one outbound notification.
type DispatchInput struct {
	Recipient    Recipient
	TemplateType TemplateType
	Data         RenderData
	OrderID      *int64
	ShipmentID   *int64
}

// Dispatch renders the template for the recipient, records the message and
// attempts delivery. The returned result reflects the transport outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, in DispatchInput) DeliveryResult {
	body := DefaultBody(in.TemplateType)
	tpl, err := d.repo.ActiveTemplate(ctx, in.TemplateType)
	switch {
	case err == nil:
		body = tpl.Body
	case errors.Is(err, shared.ErrNotFound):
		// built-in body
	default:
		d.logger.Warn("notification template lookup failed",
			slog.String("template", string(in.TemplateType)),
			slog.Any("error", err))
	}

	msg := Message{
		ID:           uuid.NewString(),
		Recipient:    in.Recipient.Name,
		Phone:        in.Recipient.Phone,
		TemplateType: in.TemplateType,
		Body:         Render(body, in.Data),
		Status:       StatusDraft,
		OrderID:      in.OrderID,
		ShipmentID:   in.ShipmentID,
		CreatedAt:    time.Now(),
	}
	if err := d.repo.CreateMessage(ctx, msg); err != nil {
		d.logger.Error("notification message insert failed",
			slog.String("template", string(in.TemplateType)),
			slog.Any("error", err))
		return DeliveryResult{MessageID: msg.ID, Status: StatusFailed, Err: err}
	}

	externalID, sendErr := d.transport.Send(ctx, msg.Phone, msg.Body)
	if sendErr != nil {
		errText := sendErr.Error()
		if err := d.repo.UpdateMessageStatus(ctx, msg.ID, StatusFailed, nil, &errText); err != nil {
			d.logger.Error("notification status update failed", slog.Any("error", err))
		}
		d.logger.Warn("notification send failed",
			slog.String("message_id", msg.ID),
			slog.String("template", string(in.TemplateType)),
			slog.Any("error", sendErr))
		return DeliveryResult{MessageID: msg.ID, Status: StatusFailed, Err: sendErr}
	}

	if err := d.repo.UpdateMessageStatus(ctx, msg.ID, StatusSent, &externalID, nil); err != nil {
		d.logger.Error("notification status update failed", slog.Any("error", err))
	}
	return DeliveryResult{MessageID: msg.ID, Status: StatusSent, ExternalID: externalID}
}

// MarkDelivered applies a delivery receipt.
func (d *Dispatcher) MarkDelivered(ctx context.Context, id string) error {
	return d.applyReceipt(ctx, id, StatusDelivered, MessageStatus.CanMarkDelivered)
}

// MarkRead applies a read receipt.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	return d.applyReceipt(ctx, id, StatusRead, MessageStatus.CanMarkRead)
}

func (d *Dispatcher) applyReceipt(ctx context.Context, id string, to MessageStatus, allowed func(MessageStatus) bool) error {
	m, err := d.repo.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
		}
		return err
	}
	if !allowed(m.Status) {
		return shared.NewInvalidTransition("notification_message", string(to), string(m.Status))
	}
	return d.repo.UpdateMessageStatus(ctx, id, to, nil, nil)
}

// ============================================================================
// WHATSAPP TRANSPORT
// ============================================================================

// WhatsAppTransport posts messages to a WhatsApp Business API endpoint.
type WhatsAppTransport struct {
	apiURL string
	token  string
	sender string
	client *http.Client
}

// NewWhatsAppTransport constructs the HTTP transport.
func NewWhatsAppTransport(apiURL, token, sender string) *WhatsAppTransport {
	return &WhatsAppTransport{
		apiURL: apiURL,
		token:  token,
		sender: sender,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// LogTransport writes outbound messages to the log instead of a provider.
// Used when no WhatsApp endpoint is configured.
type LogTransport struct {
	Logger *slog.Logger
}

// Send records the message and reports success.
func (t LogTransport) Send(ctx context.Context, phone, body string) (string, error) {
	if t.Logger != nil {
		t.Logger.Info("notification delivered to log transport",
			slog.String("phone", phone),
			slog.String("body", body))
	}
	return "log-" + uuid.NewString(), nil
}

type whatsAppRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type whatsAppResponse struct {
	MessageID string `json:"message_id"`
}

// Send delivers one message. A non-2xx response is an error.
func (t *WhatsAppTransport) Send(ctx context.Context, phone, body string) (string, error) {
	payload, err := json.Marshal(whatsAppRequest{From: t.sender, To: phone, Body: body})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whatsapp: send: status %d: %s", resp.StatusCode, string(data))
	}

	var out whatsAppResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whatsapp: decode response: %w", err)
	}
	return out.MessageID, nil
}
