package logistics

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/commission"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ReturnState is the return request workflow position.
type ReturnState string

const (
	ReturnDraft     ReturnState = "draft"
	ReturnSubmitted ReturnState = "submitted"
	ReturnApproved  ReturnState = "approved"
	ReturnRejected  ReturnState = "rejected"
	ReturnProcessed ReturnState = "processed"
	ReturnCompleted ReturnState = "completed"
	ReturnCancelled ReturnState = "cancelled"
)

// IsValid reports whether s is a known return state.
func (s ReturnState) IsValid() bool {
	switch s {
	case ReturnDraft, ReturnSubmitted, ReturnApproved, ReturnRejected,
		ReturnProcessed, ReturnCompleted, ReturnCancelled:
		return true
	}
	return false
}

// CanSubmit reports whether the request can be submitted.
func (s ReturnState) CanSubmit() bool { return s == ReturnDraft }

// CanApprove reports whether the request can be approved.
func (s ReturnState) CanApprove() bool { return s == ReturnSubmitted }

// CanReject reports whether the request can be rejected.
func (s ReturnState) CanReject() bool { return s == ReturnSubmitted }

// CanProcess reports whether the request can be processed.
func (s ReturnState) CanProcess() bool { return s == ReturnApproved }

// CanComplete reports whether the request can be completed.
func (s ReturnState) CanComplete() bool { return s == ReturnProcessed }

// CanCancel reports whether the request can be cancelled. Completed
// requests are final.
func (s ReturnState) CanCancel() bool {
	return s != ReturnCompleted && s != ReturnCancelled
}

// ReturnReason categorizes why goods come back.
type ReturnReason string

const (
	ReasonDefective       ReturnReason = "defective"
	ReasonWrongItem       ReturnReason = "wrong_item"
	ReasonDamaged         ReturnReason = "damaged"
	ReasonQualityIssue    ReturnReason = "quality_issue"
	ReasonCustomerRequest ReturnReason = "customer_request"
	ReasonExpired         ReturnReason = "expired"
	ReasonOther           ReturnReason = "other"
)

// IsValid reports whether r is a known return reason.
func (r ReturnReason) IsValid() bool {
	switch r {
	case ReasonDefective, ReasonWrongItem, ReasonDamaged, ReasonQualityIssue,
		ReasonCustomerRequest, ReasonExpired, ReasonOther:
		return true
	}
	return false
}

// RefundMethod is how the customer is compensated.
type RefundMethod string

const (
	RefundCreditNote  RefundMethod = "credit_note"
	RefundPayout      RefundMethod = "refund"
	RefundReplacement RefundMethod = "replacement"
	RefundStoreCredit RefundMethod = "store_credit"
)

// ReturnLine is one returned product position.
type ReturnLine struct {
	ID       int64 `json:"id" db:"id"`
	ReturnID int64 `json:"return_id" db:"return_id"`

	ProductName string  `json:"product_name" db:"product_name"`
	BatchNumber *string `json:"batch_number,omitempty" db:"batch_number"`

	Quantity  int     `json:"quantity" db:"quantity"`
	UnitPrice float64 `json:"unit_price" db:"unit_price"`
	Value     float64 `json:"value" db:"value"`

	QualityGrade QualityGrade `json:"quality_grade,omitempty" db:"quality_grade"`
	Condition    string       `json:"condition" db:"condition"`
	Notes        *string      `json:"notes,omitempty" db:"notes"`
}

// Recompute derives the line value.
func (l *ReturnLine) Recompute() {
	l.Value = commission.Round2(float64(l.Quantity) * l.UnitPrice)
}

// Validate enforces line invariants.
func (l *ReturnLine) Validate() error {
	if l.ProductName == "" {
		return shared.NewValidationError("product_name", "required")
	}
	if l.Quantity <= 0 {
		return shared.NewValidationError("quantity", "must be positive")
	}
	if l.UnitPrice < 0 {
		return shared.NewValidationError("unit_price", "must be non-negative")
	}
	return nil
}

// ReturnRequest is a customer return against a shipment. The commission
// adjustment is derived from the total value and the agent's rate; paid
// ledger entries of the order are offset when the request is processed.
type ReturnRequest struct {
	ID           int64  `json:"id" db:"id"`
	ReturnNumber string `json:"return_number" db:"return_number"`
	ShipmentID   int64  `json:"shipment_id" db:"shipment_id"`
	OrderID      int64  `json:"order_id" db:"order_id"`
	CustomerID   int64  `json:"customer_id" db:"customer_id"`

	ReturnDate  time.Time    `json:"return_date" db:"return_date"`
	Reason      ReturnReason `json:"reason" db:"reason"`
	OtherReason *string      `json:"other_reason,omitempty" db:"other_reason"`

	Lines         []ReturnLine `json:"lines,omitempty"`
	TotalQuantity int          `json:"total_quantity" db:"total_quantity"`
	TotalValue    float64      `json:"total_value" db:"total_value"`

	State ReturnState `json:"state" db:"state"`

	ApprovedBy      *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovalDate    *time.Time `json:"approval_date,omitempty" db:"approval_date"`
	RejectionReason *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`

	ProcessedBy    *string    `json:"processed_by,omitempty" db:"processed_by"`
	ProcessingDate *time.Time `json:"processing_date,omitempty" db:"processing_date"`

	RefundAmount float64       `json:"refund_amount" db:"refund_amount"`
	RefundMethod *RefundMethod `json:"refund_method,omitempty" db:"refund_method"`

	CommissionAdjustment float64 `json:"commission_adjustment" db:"commission_adjustment"`

	Notes         *string `json:"notes,omitempty" db:"notes"`
	CustomerNotes *string `json:"customer_notes,omitempty" db:"customer_notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RecomputeTotals derives quantity and value sums from the lines.
func (r *ReturnRequest) RecomputeTotals() {
	qty := 0
	value := 0.0
	for i := range r.Lines {
		r.Lines[i].Recompute()
		qty += r.Lines[i].Quantity
		value += r.Lines[i].Value
	}
	r.TotalQuantity = qty
	r.TotalValue = commission.Round2(value)
}

// Validate enforces request invariants on create.
func (r *ReturnRequest) Validate() error {
	if r.ShipmentID <= 0 {
		return shared.NewValidationError("shipment_id", "required")
	}
	if !r.Reason.IsValid() {
		return shared.NewValidationError("reason", "unknown reason "+string(r.Reason))
	}
	if r.Reason == ReasonOther && (r.OtherReason == nil || *r.OtherReason == "") {
		return shared.NewValidationError("other_reason", "required when reason is other")
	}
	if len(r.Lines) == 0 {
		return shared.NewValidationError("lines", "at least one line is required")
	}
	for i := range r.Lines {
		if err := r.Lines[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// ReturnLineRequest is one line of a return request.
type ReturnLineRequest struct {
	ProductName  string  `json:"product_name" validate:"required,max=200"`
	BatchNumber  *string `json:"batch_number,omitempty"`
	Quantity     int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	QualityGrade string  `json:"quality_grade" validate:"omitempty,oneof=premium standard economy"`
	Condition    string  `json:"condition" validate:"omitempty,oneof=good damaged defective expired"`
	Notes        *string `json:"notes,omitempty"`
}

// CreateReturnRequest opens a draft return for a shipment.
type CreateReturnRequest struct {
	ShipmentID    int64               `json:"shipment_id" validate:"required,gt=0"`
	Reason        string              `json:"reason" validate:"required"`
	OtherReason   *string             `json:"other_reason,omitempty"`
	ReturnDate    *string             `json:"return_date,omitempty"`
	Lines         []ReturnLineRequest `json:"lines" validate:"required,min=1,dive"`
	Notes         *string             `json:"notes,omitempty"`
	CustomerNotes *string             `json:"customer_notes,omitempty"`
}

// RejectReturnRequest carries the rejection reason.
type RejectReturnRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// CompleteReturnRequest finalizes refund details.
type CompleteReturnRequest struct {
	RefundAmount float64 `json:"refund_amount" validate:"gte=0"`
	RefundMethod string  `json:"refund_method" validate:"required,oneof=credit_note refund replacement store_credit"`
}
