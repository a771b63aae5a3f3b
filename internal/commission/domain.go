package commission

import (
	"math"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// ENTRY STATE
// ============================================================================

// EntryState represents the lifecycle of a ledger entry.
type EntryState string

const (
	EntryStateDraft     EntryState = "DRAFT"     // Created, awaiting QR confirmation
	EntryStateConfirmed EntryState = "CONFIRMED" // QR confirmed, payable
	EntryStatePaid      EntryState = "PAID"      // Paid out, frozen
	EntryStateCancelled EntryState = "CANCELLED" // Voided before payment
)

// IsValid checks if the state is valid.
func (s EntryState) IsValid() bool {
	switch s {
	case EntryStateDraft, EntryStateConfirmed, EntryStatePaid, EntryStateCancelled:
		return true
	default:
		return false
	}
}

// CanConfirm checks if the entry can move to CONFIRMED.
func (s EntryState) CanConfirm() bool {
	return s == EntryStateDraft
}

// CanPay checks if the entry can move to PAID.
func (s EntryState) CanPay() bool {
	return s == EntryStateConfirmed
}

// CanCancel checks if the entry can move to CANCELLED. Paid entries are
// frozen: they can only be offset by adjustment entries.
func (s EntryState) CanCancel() bool {
	return s == EntryStateDraft || s == EntryStateConfirmed
}

// ============================================================================
// ENTRY
// ============================================================================

// Entry is one ledger record of agent compensation for an order, or a
// negative adjustment offsetting a prior paid entry after a return.
type Entry struct {
	ID          int64      `json:"id" db:"id"`
	EntryNumber string     `json:"entry_number" db:"entry_number"`
	AgentID     int64      `json:"agent_id" db:"agent_id"`
	RegionID    int64      `json:"region_id" db:"region_id"`
	OrderID     int64      `json:"order_id" db:"order_id"`
	CustomerID  int64      `json:"customer_id" db:"customer_id"`
	BaseAmount  float64    `json:"base_amount" db:"base_amount"`
	Rate        float64    `json:"rate" db:"rate"`
	Amount      float64    `json:"amount" db:"amount"`
	State       EntryState `json:"state" db:"state"`
	Date        time.Time  `json:"date" db:"date"`
	PaymentDate *time.Time `json:"payment_date,omitempty" db:"payment_date"`

	QRConfirmed        bool       `json:"qr_confirmed" db:"qr_confirmed"`
	QRConfirmationDate *time.Time `json:"qr_confirmation_date,omitempty" db:"qr_confirmation_date"`

	ReturnAmount   float64 `json:"return_amount" db:"return_amount"`
	AdjustedAmount float64 `json:"adjusted_amount" db:"adjusted_amount"`
	IsAdjustment   bool    `json:"is_adjustment" db:"is_adjustment"`

	Notes     *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Recompute derives amount and adjusted_amount. Callers never set amount
// directly; every write path runs through here.
func (e *Entry) Recompute() {
	e.Amount = Round2(e.BaseAmount * e.Rate / 100)
	e.AdjustedAmount = Round2(e.Amount - e.ReturnAmount)
}

// Validate enforces the ledger invariants on create/update.
func (e *Entry) Validate() error {
	if e.AgentID <= 0 {
		return shared.NewValidationError("agent_id", "required")
	}
	if e.OrderID <= 0 {
		return shared.NewValidationError("order_id", "required")
	}
	if e.Rate < 0 || e.Rate > 100 {
		return shared.NewValidationError("rate", "must be between 0 and 100")
	}
	if !e.State.IsValid() {
		return shared.NewValidationError("state", "unknown state "+string(e.State))
	}
	if !e.IsAdjustment && e.BaseAmount < 0 {
		return shared.NewValidationError("base_amount", "must be non-negative for non-adjustment entries")
	}
	if e.IsAdjustment && e.BaseAmount >= 0 {
		return shared.NewValidationError("base_amount", "must be negative for adjustment entries")
	}
	return nil
}

// Round2 rounds monetary values to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ============================================================================
// CUSTOMER TYPE
// ============================================================================

// CustomerType segments customers for rule matching.
type CustomerType string

const (
	CustomerRetail      CustomerType = "retail"
	CustomerWholesale   CustomerType = "wholesale"
	CustomerDistributor CustomerType = "distributor"
	CustomerRestaurant  CustomerType = "restaurant"
	CustomerHotel       CustomerType = "hotel"
)

// IsValid checks if the customer type is known. The empty string is allowed
// and means "unclassified".
func (t CustomerType) IsValid() bool {
	switch t {
	case "", CustomerRetail, CustomerWholesale, CustomerDistributor, CustomerRestaurant, CustomerHotel:
		return true
	default:
		return false
	}
}

// ============================================================================
// RULE
// ============================================================================

// Rule is one row of the ordered commission rule set. Nil filter fields are
// wildcards. Rules are created and edited by admins and read-only to the
// resolver.
type Rule struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Sequence int    `json:"sequence" db:"sequence"`

	RegionID     *int64        `json:"region_id,omitempty" db:"region_id"`
	AgentID      *int64        `json:"agent_id,omitempty" db:"agent_id"`
	CustomerType *CustomerType `json:"customer_type,omitempty" db:"customer_type"`

	BaseRate  float64  `json:"base_rate" db:"base_rate"`
	MinAmount float64  `json:"min_amount" db:"min_amount"`
	MaxAmount *float64 `json:"max_amount,omitempty" db:"max_amount"`

	BonusRate      float64 `json:"bonus_rate" db:"bonus_rate"`
	BonusThreshold float64 `json:"bonus_threshold" db:"bonus_threshold"`

	DateFrom time.Time  `json:"date_from" db:"date_from"`
	DateTo   *time.Time `json:"date_to,omitempty" db:"date_to"`
	Active   bool       `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate enforces rule invariants.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return shared.NewValidationError("name", "required")
	}
	if r.BaseRate < 0 || r.BaseRate > 100 {
		return shared.NewValidationError("base_rate", "must be between 0 and 100")
	}
	if r.BonusRate < 0 || r.BonusRate > 100 {
		return shared.NewValidationError("bonus_rate", "must be between 0 and 100")
	}
	if r.MinAmount < 0 {
		return shared.NewValidationError("min_amount", "must be non-negative")
	}
	if r.MaxAmount != nil && r.MinAmount > *r.MaxAmount {
		return shared.NewValidationError("min_amount", "cannot be greater than max_amount")
	}
	if r.CustomerType != nil && !r.CustomerType.IsValid() {
		return shared.NewValidationError("customer_type", "unknown type "+string(*r.CustomerType))
	}
	if r.DateTo != nil && r.DateTo.Before(r.DateFrom) {
		return shared.NewValidationError("date_to", "cannot precede date_from")
	}
	return nil
}

// Matches reports whether the rule applies to the given resolution input.
// Nil filters match everything.
func (r *Rule) Matches(in ResolveInput) bool {
	if !r.Active {
		return false
	}
	day := in.OrderDate
	if day.Before(r.DateFrom) {
		return false
	}
	if r.DateTo != nil && day.After(*r.DateTo) {
		return false
	}
	if r.RegionID != nil && *r.RegionID != in.RegionID {
		return false
	}
	if r.AgentID != nil && *r.AgentID != in.AgentID {
		return false
	}
	if r.CustomerType != nil && *r.CustomerType != in.CustomerType {
		return false
	}
	if in.OrderAmount < r.MinAmount {
		return false
	}
	if r.MaxAmount != nil && in.OrderAmount > *r.MaxAmount {
		return false
	}
	return true
}

// RateFor returns the effective rate of the rule for the order amount,
// applying the bonus when the threshold is reached.
func (r *Rule) RateFor(orderAmount float64) float64 {
	rate := r.BaseRate
	if r.BonusThreshold > 0 && orderAmount >= r.BonusThreshold {
		rate += r.BonusRate
	}
	return rate
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateEntryRequest creates a draft ledger entry by hand. The fulfillment
// flow normally creates entries through the QR confirmation cascade instead.
type CreateEntryRequest struct {
	AgentID    int64    `json:"agent_id" validate:"required,gt=0"`
	OrderID    int64    `json:"order_id" validate:"required,gt=0"`
	BaseAmount float64  `json:"base_amount" validate:"gte=0"`
	Rate       *float64 `json:"rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	Date       *string  `json:"date,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
}

// CreateRuleRequest creates a commission rule.
type CreateRuleRequest struct {
	Name           string        `json:"name" validate:"required,max=200"`
	Sequence       int           `json:"sequence" validate:"gte=0"`
	RegionID       *int64        `json:"region_id,omitempty" validate:"omitempty,gt=0"`
	AgentID        *int64        `json:"agent_id,omitempty" validate:"omitempty,gt=0"`
	CustomerType   *CustomerType `json:"customer_type,omitempty"`
	BaseRate       float64       `json:"base_rate" validate:"gte=0,lte=100"`
	MinAmount      float64       `json:"min_amount" validate:"gte=0"`
	MaxAmount      *float64      `json:"max_amount,omitempty" validate:"omitempty,gt=0"`
	BonusRate      float64       `json:"bonus_rate" validate:"gte=0,lte=100"`
	BonusThreshold float64       `json:"bonus_threshold" validate:"gte=0"`
	DateFrom       time.Time     `json:"date_from" validate:"required"`
	DateTo         *time.Time    `json:"date_to,omitempty"`
}

// UpdateRuleRequest edits a commission rule. Only set fields are applied.
type UpdateRuleRequest struct {
	Name           *string    `json:"name,omitempty" validate:"omitempty,max=200"`
	Sequence       *int       `json:"sequence,omitempty" validate:"omitempty,gte=0"`
	BaseRate       *float64   `json:"base_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	MinAmount      *float64   `json:"min_amount,omitempty" validate:"omitempty,gte=0"`
	MaxAmount      *float64   `json:"max_amount,omitempty"`
	BonusRate      *float64   `json:"bonus_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	BonusThreshold *float64   `json:"bonus_threshold,omitempty" validate:"omitempty,gte=0"`
	DateFrom       *time.Time `json:"date_from,omitempty"`
	DateTo         *time.Time `json:"date_to,omitempty"`
	Active         *bool      `json:"active,omitempty"`
}

// ListEntriesRequest filters the ledger listing.
type ListEntriesRequest struct {
	AgentID  *int64      `json:"agent_id,omitempty"`
	OrderID  *int64      `json:"order_id,omitempty"`
	State    *EntryState `json:"state,omitempty"`
	DateFrom *time.Time  `json:"date_from,omitempty"`
	DateTo   *time.Time  `json:"date_to,omitempty"`
	Limit    int         `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int         `json:"offset" validate:"gte=0"`
}
