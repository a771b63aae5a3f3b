package jobs

import (
	"context"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memNotifyRepo struct {
	messages map[string]*notify.Message
}

func newMemNotifyRepo() *memNotifyRepo {
	return &memNotifyRepo{messages: make(map[string]*notify.Message)}
}

func (m *memNotifyRepo) ActiveTemplate(_ context.Context, _ notify.TemplateType) (*notify.Template, error) {
	return nil, shared.ErrNotFound
}

func (m *memNotifyRepo) ListTemplates(_ context.Context) ([]notify.Template, error) {
	return nil, nil
}

func (m *memNotifyRepo) CreateTemplate(_ context.Context, tpl notify.Template) (int64, error) {
	return 1, nil
}

func (m *memNotifyRepo) CreateMessage(_ context.Context, msg notify.Message) error {
	cp := msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memNotifyRepo) GetMessage(_ context.Context, id string) (*notify.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memNotifyRepo) ListMessagesByOrder(_ context.Context, _ int64) ([]notify.Message, error) {
	return nil, nil
}

func (m *memNotifyRepo) UpdateMessageStatus(_ context.Context, id string, status notify.MessageStatus, externalID, errText *string) error {
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

type memTransport struct {
	sent []string
}

func (m *memTransport) Send(_ context.Context, _, body string) (string, error) {
	m.sent = append(m.sent, body)
	return "WA-1", nil
}

func newDeliverJob(repo *memNotifyRepo, transport *memTransport) *NotificationDeliverJob {
	dispatcher := notify.NewDispatcher(repo, transport, slog.Default())
	return NewNotificationDeliverJob(dispatcher, slog.Default())
}

func TestNotificationDeliverHandleSendsMessage(t *testing.T) {
	repo := newMemNotifyRepo()
	transport := &memTransport{}
	job := newDeliverJob(repo, transport)

	task, err := NewNotificationDeliverTask(NotificationDeliverPayload{
		RecipientName:  "Golden Foods",
		RecipientPhone: "+77001234567",
		TemplateType:   string(notify.TemplateOrderConfirmation),
		PartnerName:    "Golden Foods",
		OrderNumber:    "SO-2506-0042",
	})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, transport.sent, 1)
	assert.Contains(t, transport.sent[0], "SO-2506-0042")
	require.Len(t, repo.messages, 1)
	for _, msg := range repo.messages {
		assert.Equal(t, notify.StatusSent, msg.Status)
	}
}

func TestNotificationDeliverHandleSkipsBadPayload(t *testing.T) {
	job := newDeliverJob(newMemNotifyRepo(), &memTransport{})

	task := asynq.NewTask(TaskNotificationDeliver, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNotificationDeliverHandleSkipsUnknownTemplate(t *testing.T) {
	transport := &memTransport{}
	job := newDeliverJob(newMemNotifyRepo(), transport)

	task, err := NewNotificationDeliverTask(NotificationDeliverPayload{
		RecipientName:  "Ana",
		RecipientPhone: "+7700",
		TemplateType:   "carrier_pigeon",
	})
	require.NoError(t, err)

	handleErr := job.Handle(context.Background(), task)
	assert.ErrorIs(t, handleErr, asynq.SkipRetry)
	assert.Empty(t, transport.sent)
}
