package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/notify"
)

// NotificationDeliverJob hands queued notifications to the dispatcher.
type NotificationDeliverJob struct {
	Dispatcher *notify.Dispatcher
	Logger     *slog.Logger
}

// NewNotificationDeliverJob wires dependencies for the delivery handler.
func NewNotificationDeliverJob(dispatcher *notify.Dispatcher, logger *slog.Logger) *NotificationDeliverJob {
	return &NotificationDeliverJob{Dispatcher: dispatcher, Logger: logger}
}

// Handle processes notification delivery tasks. Transport failures are
// recorded on the message row; only infrastructure errors retry.
func (j *NotificationDeliverJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dispatcher == nil {
		return errors.New("notification deliver: handler not configured")
	}
	var payload NotificationDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	templateType := notify.TemplateType(payload.TemplateType)
	if !templateType.IsValid() {
		j.logger().Warn("unknown template type", slog.String("template_type", payload.TemplateType))
		return asynq.SkipRetry
	}

	res := j.Dispatcher.Dispatch(ctx, notify.DispatchInput{
		Recipient:    notify.Recipient{Name: payload.RecipientName, Phone: payload.RecipientPhone},
		TemplateType: templateType,
		Data: notify.RenderData{
			PartnerName:    payload.PartnerName,
			OrderNumber:    payload.OrderNumber,
			ShipmentNumber: payload.ShipmentNumber,
			Date:           time.Now(),
			Amount:         payload.Amount,
			BoxesCount:     payload.BoxesCount,
			TrackingNumber: payload.TrackingNumber,
		},
		OrderID:    payload.OrderID,
		ShipmentID: payload.ShipmentID,
	})
	if res.Err != nil {
		j.logger().Warn("notification delivery failed",
			slog.String("message_id", res.MessageID),
			slog.String("template_type", payload.TemplateType),
			slog.Any("error", res.Err))
	}
	return nil
}

func (j *NotificationDeliverJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
