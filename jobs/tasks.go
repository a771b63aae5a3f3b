package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotificationDeliver delivers one rendered customer notification.
	TaskNotificationDeliver = "notify:deliver"
	// TaskDashboardWarmup pre-populates the dashboard caches.
	TaskDashboardWarmup = "dashboard:warmup"
)

// NotificationDeliverPayload describes one outbound notification.
type NotificationDeliverPayload struct {
	RecipientName  string   `json:"recipient_name"`
	RecipientPhone string   `json:"recipient_phone"`
	TemplateType   string   `json:"template_type"`
	PartnerName    string   `json:"partner_name,omitempty"`
	OrderNumber    string   `json:"order_number,omitempty"`
	ShipmentNumber string   `json:"shipment_number,omitempty"`
	Amount         *float64 `json:"amount,omitempty"`
	BoxesCount     *int     `json:"boxes_count,omitempty"`
	TrackingNumber string   `json:"tracking_number,omitempty"`
	OrderID        *int64   `json:"order_id,omitempty"`
	ShipmentID     *int64   `json:"shipment_id,omitempty"`
}

// NewNotificationDeliverTask constructs an Asynq task.
func NewNotificationDeliverTask(payload NotificationDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDeliver, data), nil
}

// DashboardWarmupPayload scopes a warmup run. Empty region ids means all
// active regions.
type DashboardWarmupPayload struct {
	RegionIDs []int64 `json:"region_ids,omitempty"`
}

// NewDashboardWarmupTask constructs an Asynq task.
func NewDashboardWarmupTask(payload DashboardWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data), nil
}
