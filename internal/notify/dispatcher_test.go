package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// RENDER TESTS
// ============================================================================

func TestRenderReplacesPlaceholders(t *testing.T) {
	amount := 1234.5
	boxes := 3
	out := Render(
		"Hi {partner_name}, order {order_number} shipped as {shipment_number} on {date}. Total {amount}, {boxes_count} boxes, track {tracking_number}.",
		RenderData{
			PartnerName:    "Golden Foods",
			OrderNumber:    "SO-2506-0042",
			ShipmentNumber: "SHP-202506-00001",
			Date:           time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
			Amount:         &amount,
			BoxesCount:     &boxes,
			TrackingNumber: "TRK-99",
		})

	assert.Equal(t, "Hi Golden Foods, order SO-2506-0042 shipped as SHP-202506-00001 on 15.06.2025. Total 1,234.50, 3 boxes, track TRK-99.", out)
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	out := Render("Hello {partner_name}, ref {mystery_field}", RenderData{PartnerName: "Ana"})
	assert.Equal(t, "Hello Ana, ref {mystery_field}", out)
}

func TestRenderSkipsUnsetOptionalFields(t *testing.T) {
	out := Render("Total {amount}, track {tracking_number}", RenderData{PartnerName: "Ana"})
	assert.Equal(t, "Total {amount}, track {tracking_number}", out)
}

func TestFormatAmountGrouping(t *testing.T) {
	assert.Equal(t, "1,000,000.00", FormatAmount(1000000))
	assert.Equal(t, "50.00", FormatAmount(50))
}

// ============================================================================
// DISPATCHER TESTS
// ============================================================================

type mockNotifyRepo struct {
	templates map[TemplateType]*Template
	messages  map[string]*Message
}

func newMockNotifyRepo() *mockNotifyRepo {
	return &mockNotifyRepo{
		templates: make(map[TemplateType]*Template),
		messages:  make(map[string]*Message),
	}
}

func (m *mockNotifyRepo) ActiveTemplate(_ context.Context, t TemplateType) (*Template, error) {
	tpl, ok := m.templates[t]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return tpl, nil
}

func (m *mockNotifyRepo) ListTemplates(_ context.Context) ([]Template, error) {
	var out []Template
	for _, tpl := range m.templates {
		out = append(out, *tpl)
	}
	return out, nil
}

func (m *mockNotifyRepo) CreateTemplate(_ context.Context, tpl Template) (int64, error) {
	tpl.ID = int64(len(m.templates) + 1)
	m.templates[tpl.Type] = &tpl
	return tpl.ID, nil
}

func (m *mockNotifyRepo) CreateMessage(_ context.Context, msg Message) error {
	cp := msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *mockNotifyRepo) GetMessage(_ context.Context, id string) (*Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *mockNotifyRepo) ListMessagesByOrder(_ context.Context, orderID int64) ([]Message, error) {
	var out []Message
	for _, msg := range m.messages {
		if msg.OrderID != nil && *msg.OrderID == orderID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *mockNotifyRepo) UpdateMessageStatus(_ context.Context, id string, status MessageStatus, externalID, errText *string) error {
	msg, ok := m.messages[id]
	if !ok {
		return shared.ErrNotFound
	}
	msg.Status = status
	if externalID != nil {
		msg.ExternalID = externalID
	}
	msg.Error = errText
	return nil
}

type mockTransport struct {
	sent []string
	err  error
}

func (m *mockTransport) Send(_ context.Context, _, body string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, body)
	return "WA-123", nil
}

func TestDispatchRendersAndSends(t *testing.T) {
	repo := newMockNotifyRepo()
	transport := &mockTransport{}
	d := NewDispatcher(repo, transport, slog.Default())

	orderID := int64(100)
	res := d.Dispatch(context.Background(), DispatchInput{
		Recipient:    Recipient{Name: "Golden Foods", Phone: "+77001234567"},
		TemplateType: TemplateOrderConfirmation,
		Data:         RenderData{PartnerName: "Golden Foods", OrderNumber: "SO-2506-0042"},
		OrderID:      &orderID,
	})

	require.NoError(t, res.Err)
	assert.Equal(t, StatusSent, res.Status)
	assert.Equal(t, "WA-123", res.ExternalID)
	require.Len(t, transport.sent, 1)
	assert.Contains(t, transport.sent[0], "Golden Foods")
	assert.Contains(t, transport.sent[0], "SO-2506-0042")

	msg, err := repo.GetMessage(context.Background(), res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, msg.Status)
}

func TestDispatchPrefersStoredTemplate(t *testing.T) {
	repo := newMockNotifyRepo()
	_, err := repo.CreateTemplate(context.Background(), Template{
		Name: "custom confirmation", Type: TemplateOrderConfirmation,
		Body: "CUSTOM {order_number}", Active: true,
	})
	require.NoError(t, err)

	transport := &mockTransport{}
	d := NewDispatcher(repo, transport, slog.Default())

	res := d.Dispatch(context.Background(), DispatchInput{
		Recipient:    Recipient{Name: "Ana", Phone: "+7700"},
		TemplateType: TemplateOrderConfirmation,
		Data:         RenderData{OrderNumber: "SO-1"},
	})
	require.NoError(t, res.Err)
	assert.Equal(t, "CUSTOM SO-1", transport.sent[0])
}

func TestDispatchRecordsFailureWithoutPanicking(t *testing.T) {
	repo := newMockNotifyRepo()
	transport := &mockTransport{err: errors.New("api down")}
	d := NewDispatcher(repo, transport, slog.Default())

	res := d.Dispatch(context.Background(), DispatchInput{
		Recipient:    Recipient{Name: "Ana", Phone: "+7700"},
		TemplateType: TemplateShipmentSent,
	})

	assert.Equal(t, StatusFailed, res.Status)
	require.Error(t, res.Err)

	msg, err := repo.GetMessage(context.Background(), res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, msg.Status)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "api down", *msg.Error)
}

func TestReceiptTransitions(t *testing.T) {
	repo := newMockNotifyRepo()
	transport := &mockTransport{}
	d := NewDispatcher(repo, transport, slog.Default())

	res := d.Dispatch(context.Background(), DispatchInput{
		Recipient:    Recipient{Name: "Ana", Phone: "+7700"},
		TemplateType: TemplateShipmentReady,
	})
	require.Equal(t, StatusSent, res.Status)

	require.NoError(t, d.MarkDelivered(context.Background(), res.MessageID))
	// A second delivery receipt is out of order.
	err := d.MarkDelivered(context.Background(), res.MessageID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	require.NoError(t, d.MarkRead(context.Background(), res.MessageID))
}

func TestReceiptUnknownMessage(t *testing.T) {
	d := NewDispatcher(newMockNotifyRepo(), &mockTransport{}, slog.Default())
	err := d.MarkRead(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}
