// Package notify renders customer notifications and hands them to the
// outbound transport. Dispatch is best-effort: fulfillment transitions call it
// after commit and never fail because a message could not be sent.
package notify

import (
	"time"
)

// TemplateType identifies the notification templates.
type TemplateType string

const (
	TemplateOrderConfirmation TemplateType = "order_confirmation"
	TemplateShipmentReady     TemplateType = "shipment_ready"
	TemplateShipmentSent      TemplateType = "shipment_sent"
	TemplateDeliveryConfirmed TemplateType = "delivery_confirmed"
	TemplatePaymentReminder   TemplateType = "payment_reminder"
	TemplateCustom            TemplateType = "custom"
)

// IsValid reports whether t is a known template type.
func (t TemplateType) IsValid() bool {
	switch t {
	case TemplateOrderConfirmation, TemplateShipmentReady, TemplateShipmentSent,
		TemplateDeliveryConfirmed, TemplatePaymentReminder, TemplateCustom:
		return true
	}
	return false
}

// MessageStatus tracks outbound delivery.
type MessageStatus string

const (
	StatusDraft     MessageStatus = "draft"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// IsValid reports whether s is a known message status.
func (s MessageStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// CanMarkDelivered reports whether a delivery receipt applies.
func (s MessageStatus) CanMarkDelivered() bool { return s == StatusSent }

// CanMarkRead reports whether a read receipt applies.
func (s MessageStatus) CanMarkRead() bool {
	return s == StatusSent || s == StatusDelivered
}

// Template is a stored message template. Placeholders {partner_name},
// {order_number}, {shipment_number}, {date}, {amount}, {boxes_count} and
// {tracking_number} are substituted at render time; unknown placeholders pass
// through untouched.
type Template struct {
	ID        int64        `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	Type      TemplateType `json:"type" db:"type"`
	Body      string       `json:"body" db:"body"`
	Active    bool         `json:"active" db:"active"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// Message is one outbound notification.
type Message struct {
	ID           string        `json:"id" db:"id"`
	Recipient    string        `json:"recipient" db:"recipient"`
	Phone        string        `json:"phone" db:"phone"`
	TemplateType TemplateType  `json:"template_type" db:"template_type"`
	Body         string        `json:"body" db:"body"`
	Status       MessageStatus `json:"status" db:"status"`
	ExternalID   *string       `json:"external_id,omitempty" db:"external_id"`
	Error        *string       `json:"error,omitempty" db:"error"`

	OrderID    *int64 `json:"order_id,omitempty" db:"order_id"`
	ShipmentID *int64 `json:"shipment_id,omitempty" db:"shipment_id"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}

// Recipient carries the addressing data a dispatch needs.
type Recipient struct {
	Name  string
	Phone string
}

// DeliveryResult reports the transport outcome for one message.
type DeliveryResult struct {
	MessageID  string
	Status     MessageStatus
	ExternalID string
	Err        error
}
