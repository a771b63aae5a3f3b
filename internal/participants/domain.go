// Package participants manages the sales regions and agents that orders and
// commission entries reference.
package participants

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Region is a sales territory. Its commission_rate seeds the default for
// agents assigned to it.
type Region struct {
	ID             int64   `json:"id" db:"id"`
	Code           string  `json:"code" db:"code"`
	Name           string  `json:"name" db:"name"`
	CommissionRate float64 `json:"commission_rate" db:"commission_rate"`
	SalesTarget    float64 `json:"sales_target" db:"sales_target"`
	Active         bool    `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate enforces region invariants.
func (r *Region) Validate() error {
	if r.Code == "" {
		return shared.NewValidationError("code", "required")
	}
	if r.Name == "" {
		return shared.NewValidationError("name", "required")
	}
	if r.CommissionRate < 0 || r.CommissionRate > 100 {
		return shared.NewValidationError("commission_rate", "must be between 0 and 100")
	}
	if r.SalesTarget < 0 {
		return shared.NewValidationError("sales_target", "must be non-negative")
	}
	return nil
}

// Agent is a salesperson assigned to exactly one region. The agent rate is
// the resolver fallback when no commission rule matches.
type Agent struct {
	ID             int64   `json:"id" db:"id"`
	Name           string  `json:"name" db:"name"`
	RegionID       int64   `json:"region_id" db:"region_id"`
	Phone          *string `json:"phone,omitempty" db:"phone"`
	Email          *string `json:"email,omitempty" db:"email"`
	CommissionRate float64 `json:"commission_rate" db:"commission_rate"`
	MonthlyTarget  float64 `json:"monthly_target" db:"monthly_target"`
	Active         bool    `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate enforces agent invariants.
func (a *Agent) Validate() error {
	if a.Name == "" {
		return shared.NewValidationError("name", "required")
	}
	if a.RegionID <= 0 {
		return shared.NewValidationError("region_id", "required")
	}
	if a.CommissionRate < 0 || a.CommissionRate > 100 {
		return shared.NewValidationError("commission_rate", "must be between 0 and 100")
	}
	if a.MonthlyTarget < 0 {
		return shared.NewValidationError("monthly_target", "must be non-negative")
	}
	return nil
}

// AgentPerformance is the derived month-to-date view of an agent.
type AgentPerformance struct {
	AgentID           int64   `json:"agent_id"`
	Month             string  `json:"month"`
	SalesTotal        float64 `json:"sales_total"`
	OrderCount        int64   `json:"order_count"`
	MonthlyTarget     float64 `json:"monthly_target"`
	TargetAchievement float64 `json:"target_achievement"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateRegionRequest registers a sales territory.
type CreateRegionRequest struct {
	Code           string  `json:"code" validate:"required,max=20"`
	Name           string  `json:"name" validate:"required,max=200"`
	CommissionRate float64 `json:"commission_rate" validate:"gte=0,lte=100"`
	SalesTarget    float64 `json:"sales_target" validate:"gte=0"`
}

// UpdateRegionRequest carries partial region changes.
type UpdateRegionRequest struct {
	Name           *string  `json:"name,omitempty" validate:"omitempty,max=200"`
	CommissionRate *float64 `json:"commission_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	SalesTarget    *float64 `json:"sales_target,omitempty" validate:"omitempty,gte=0"`
	Active         *bool    `json:"active,omitempty"`
}

// CreateAgentRequest registers an agent within a region. A zero rate falls
// back to the region's commission rate.
type CreateAgentRequest struct {
	Name           string   `json:"name" validate:"required,max=200"`
	RegionID       int64    `json:"region_id" validate:"required,gt=0"`
	Phone          *string  `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email          *string  `json:"email,omitempty" validate:"omitempty,email"`
	CommissionRate *float64 `json:"commission_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	MonthlyTarget  float64  `json:"monthly_target" validate:"gte=0"`
}

// UpdateAgentRequest carries partial agent changes.
type UpdateAgentRequest struct {
	Name           *string  `json:"name,omitempty" validate:"omitempty,max=200"`
	RegionID       *int64   `json:"region_id,omitempty" validate:"omitempty,gt=0"`
	Phone          *string  `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email          *string  `json:"email,omitempty" validate:"omitempty,email"`
	CommissionRate *float64 `json:"commission_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	MonthlyTarget  *float64 `json:"monthly_target,omitempty" validate:"omitempty,gte=0"`
	Active         *bool    `json:"active,omitempty"`
}
