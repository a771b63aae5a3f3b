// Package logistics owns the fulfillment lifecycle: orders, shipments with
// their packaging lines, the QR delivery confirmation cascade and the return
// workflow.
package logistics

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/commission"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// ORDER
// ============================================================================

// DeliveryStatus tracks fulfillment progress on the order itself.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryReady     DeliveryStatus = "ready"
	DeliveryShipped   DeliveryStatus = "shipped"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryReturned  DeliveryStatus = "returned"
)

// Order is a confirmed sale awaiting fulfillment. Customer contact data is
// denormalized onto the order so shipments and notifications do not reach
// into an external customer store.
type Order struct {
	ID            int64                   `json:"id" db:"id"`
	OrderNumber   string                  `json:"order_number" db:"order_number"`
	CustomerID    int64                   `json:"customer_id" db:"customer_id"`
	CustomerName  string                  `json:"customer_name" db:"customer_name"`
	CustomerPhone string                  `json:"customer_phone" db:"customer_phone"`
	CustomerType  commission.CustomerType `json:"customer_type" db:"customer_type"`
	RegionID      int64                   `json:"region_id" db:"region_id"`
	AgentID       int64                   `json:"agent_id" db:"agent_id"`

	OrderDate   time.Time `json:"order_date" db:"order_date"`
	AmountTotal float64   `json:"amount_total" db:"amount_total"`

	QRConfirmed        bool       `json:"qr_confirmed" db:"qr_confirmed"`
	QRConfirmationDate *time.Time `json:"qr_confirmation_date,omitempty" db:"qr_confirmation_date"`
	QRConfirmedBy      *string    `json:"qr_confirmed_by,omitempty" db:"qr_confirmed_by"`

	DeliveryStatus      DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	UrgentDelivery      bool           `json:"urgent_delivery" db:"urgent_delivery"`
	SpecialInstructions *string        `json:"special_instructions,omitempty" db:"special_instructions"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate enforces order invariants on create.
func (o *Order) Validate() error {
	if o.CustomerID <= 0 {
		return shared.NewValidationError("customer_id", "required")
	}
	if o.CustomerName == "" {
		return shared.NewValidationError("customer_name", "required")
	}
	if o.AgentID <= 0 {
		return shared.NewValidationError("agent_id", "required")
	}
	if o.RegionID <= 0 {
		return shared.NewValidationError("region_id", "required")
	}
	if o.AmountTotal < 0 {
		return shared.NewValidationError("amount_total", "must be non-negative")
	}
	if o.CustomerType != "" && !o.CustomerType.IsValid() {
		return shared.NewValidationError("customer_type", "unknown type "+string(o.CustomerType))
	}
	return nil
}

// ============================================================================
// SHIPMENT
// ============================================================================

// ShipmentState is the shipment lifecycle position.
type ShipmentState string

const (
	ShipmentDraft     ShipmentState = "draft"
	ShipmentReady     ShipmentState = "ready"
	ShipmentPacked    ShipmentState = "packed"
	ShipmentShipped   ShipmentState = "shipped"
	ShipmentDelivered ShipmentState = "delivered"
	ShipmentReturned  ShipmentState = "returned"
	ShipmentCancelled ShipmentState = "cancelled"
)

// IsValid reports whether s is a known shipment state.
func (s ShipmentState) IsValid() bool {
	switch s {
	case ShipmentDraft, ShipmentReady, ShipmentPacked, ShipmentShipped,
		ShipmentDelivered, ShipmentReturned, ShipmentCancelled:
		return true
	}
	return false
}

// CanMarkReady reports whether the shipment can move to ready.
func (s ShipmentState) CanMarkReady() bool { return s == ShipmentDraft }

// CanPack reports whether the shipment can be packed.
func (s ShipmentState) CanPack() bool { return s == ShipmentReady }

// CanShip reports whether the shipment can leave the warehouse.
func (s ShipmentState) CanShip() bool { return s == ShipmentPacked }

// CanDeliver reports whether the shipment can be marked delivered.
func (s ShipmentState) CanDeliver() bool { return s == ShipmentShipped }

// CanConfirmQR reports whether a delivery scan applies in this state.
func (s ShipmentState) CanConfirmQR() bool {
	return s == ShipmentShipped || s == ShipmentDelivered
}

// CanReturn reports whether the shipment can be returned.
func (s ShipmentState) CanReturn() bool {
	return s == ShipmentShipped || s == ShipmentDelivered
}

// CanCancel reports whether the shipment can be cancelled. Delivered
// shipments are final; returned and cancelled ones already left the
// forward path.
func (s ShipmentState) CanCancel() bool {
	switch s {
	case ShipmentDelivered, ShipmentReturned, ShipmentCancelled:
		return false
	}
	return true
}

// Shipment is one physical dispatch of an order.
type Shipment struct {
	ID             int64  `json:"id" db:"id"`
	ShipmentNumber string `json:"shipment_number" db:"shipment_number"`
	OrderID        int64  `json:"order_id" db:"order_id"`

	State ShipmentState `json:"state" db:"state"`

	ShipmentDate         *time.Time `json:"shipment_date,omitempty" db:"shipment_date"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty" db:"expected_delivery_date"`
	ActualDeliveryDate   *time.Time `json:"actual_delivery_date,omitempty" db:"actual_delivery_date"`

	QRPayload          string     `json:"qr_payload" db:"qr_payload"`
	QRConfirmed        bool       `json:"qr_confirmed" db:"qr_confirmed"`
	QRConfirmationDate *time.Time `json:"qr_confirmation_date,omitempty" db:"qr_confirmation_date"`
	QRConfirmedBy      *string    `json:"qr_confirmed_by,omitempty" db:"qr_confirmed_by"`

	Carrier        *string `json:"carrier,omitempty" db:"carrier"`
	TrackingNumber *string `json:"tracking_number,omitempty" db:"tracking_number"`
	ShippingCost   float64 `json:"shipping_cost" db:"shipping_cost"`

	DeliveryAddress *string `json:"delivery_address,omitempty" db:"delivery_address"`
	DeliveryContact *string `json:"delivery_contact,omitempty" db:"delivery_contact"`
	DeliveryPhone   *string `json:"delivery_phone,omitempty" db:"delivery_phone"`

	UrgentDelivery      bool    `json:"urgent_delivery" db:"urgent_delivery"`
	SpecialInstructions *string `json:"special_instructions,omitempty" db:"special_instructions"`
	Notes               *string `json:"notes,omitempty" db:"notes"`

	Packaging []Packaging `json:"packaging,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TotalBoxes sums boxes across packaging lines.
func (s *Shipment) TotalBoxes() int {
	total := 0
	for _, p := range s.Packaging {
		total += p.BoxesCount
	}
	return total
}

// TotalSticks sums sticks across packaging lines.
func (s *Shipment) TotalSticks() int {
	total := 0
	for _, p := range s.Packaging {
		total += p.SticksCount
	}
	return total
}

// PackageType categorizes a packaging line.
type PackageType string

const (
	PackageBox     PackageType = "box"
	PackageDisplay PackageType = "display"
	PackageGiftBox PackageType = "gift_box"
	PackageBulk    PackageType = "bulk"
)

// IsValid reports whether t is a known package type.
func (t PackageType) IsValid() bool {
	switch t {
	case PackageBox, PackageDisplay, PackageGiftBox, PackageBulk:
		return true
	}
	return false
}

// QualityGrade classifies product quality on packaging and return lines.
type QualityGrade string

const (
	GradePremium  QualityGrade = "premium"
	GradeStandard QualityGrade = "standard"
	GradeEconomy  QualityGrade = "economy"
)

// Packaging is one packed unit group within a shipment.
type Packaging struct {
	ID         int64       `json:"id" db:"id"`
	ShipmentID int64       `json:"shipment_id" db:"shipment_id"`
	Type       PackageType `json:"type" db:"type"`
	Size       string      `json:"size" db:"size"`

	BoxesCount    int `json:"boxes_count" db:"boxes_count"`
	SticksCount   int `json:"sticks_count" db:"sticks_count"`
	DisplaysCount int `json:"displays_count" db:"displays_count"`

	ProductName  string       `json:"product_name" db:"product_name"`
	BatchNumbers *string      `json:"batch_numbers,omitempty" db:"batch_numbers"`
	QualityGrade QualityGrade `json:"quality_grade" db:"quality_grade"`

	WeightKg float64 `json:"weight_kg" db:"weight_kg"`

	Packed   bool       `json:"packed" db:"packed"`
	PackedAt *time.Time `json:"packed_at,omitempty" db:"packed_at"`
	PackedBy *string    `json:"packed_by,omitempty" db:"packed_by"`
}

// Validate enforces packaging line invariants.
func (p *Packaging) Validate() error {
	if !p.Type.IsValid() {
		return shared.NewValidationError("type", "unknown package type "+string(p.Type))
	}
	if p.ProductName == "" {
		return shared.NewValidationError("product_name", "required")
	}
	if p.BoxesCount <= 0 {
		return shared.NewValidationError("boxes_count", "must be positive")
	}
	if p.SticksCount <= 0 {
		return shared.NewValidationError("sticks_count", "must be positive")
	}
	if p.WeightKg < 0 {
		return shared.NewValidationError("weight_kg", "must be non-negative")
	}
	return nil
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateOrderRequest registers an order for fulfillment.
type CreateOrderRequest struct {
	CustomerID          int64   `json:"customer_id" validate:"required,gt=0"`
	CustomerName        string  `json:"customer_name" validate:"required,max=200"`
	CustomerPhone       string  `json:"customer_phone" validate:"omitempty,max=32"`
	CustomerType        string  `json:"customer_type" validate:"omitempty"`
	RegionID            int64   `json:"region_id" validate:"required,gt=0"`
	AgentID             int64   `json:"agent_id" validate:"required,gt=0"`
	AmountTotal         float64 `json:"amount_total" validate:"gte=0"`
	OrderDate           *string `json:"order_date,omitempty"`
	UrgentDelivery      bool    `json:"urgent_delivery"`
	SpecialInstructions *string `json:"special_instructions,omitempty"`
}

// PackagingLineRequest is one packaging line on shipment creation.
type PackagingLineRequest struct {
	Type          string  `json:"type" validate:"required"`
	Size          string  `json:"size" validate:"required,max=50"`
	BoxesCount    int     `json:"boxes_count" validate:"required,gt=0"`
	SticksCount   int     `json:"sticks_count" validate:"required,gt=0"`
	DisplaysCount int     `json:"displays_count" validate:"gte=0"`
	ProductName   string  `json:"product_name" validate:"required,max=200"`
	BatchNumbers  *string `json:"batch_numbers,omitempty"`
	QualityGrade  string  `json:"quality_grade" validate:"omitempty,oneof=premium standard economy"`
	WeightKg      float64 `json:"weight_kg" validate:"gte=0"`
}

// CreateShipmentRequest opens a draft shipment for an order.
type CreateShipmentRequest struct {
	OrderID              int64                  `json:"order_id" validate:"required,gt=0"`
	ExpectedDeliveryDate *string                `json:"expected_delivery_date,omitempty"`
	Carrier              *string                `json:"carrier,omitempty"`
	TrackingNumber       *string                `json:"tracking_number,omitempty"`
	ShippingCost         float64                `json:"shipping_cost" validate:"gte=0"`
	DeliveryAddress      *string                `json:"delivery_address,omitempty"`
	DeliveryContact      *string                `json:"delivery_contact,omitempty"`
	DeliveryPhone        *string                `json:"delivery_phone,omitempty"`
	UrgentDelivery       bool                   `json:"urgent_delivery"`
	SpecialInstructions  *string                `json:"special_instructions,omitempty"`
	Packaging            []PackagingLineRequest `json:"packaging" validate:"required,min=1,dive"`
}

// ListShipmentsRequest filters the shipment list.
type ListShipmentsRequest struct {
	OrderID *int64         `json:"order_id,omitempty"`
	State   *ShipmentState `json:"state,omitempty"`
	Limit   int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset  int            `json:"offset" validate:"gte=0"`
}
