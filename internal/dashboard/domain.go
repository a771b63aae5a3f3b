// Package dashboard serves read-only fulfillment and commission rollups.
package dashboard

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Window selects the aggregation period.
type Window string

const (
	WindowMonth Window = "month"
	WindowWeek  Window = "week"
)

// IsValid reports whether w is a known window.
func (w Window) IsValid() bool {
	return w == WindowMonth || w == WindowWeek
}

// Bounds returns the window's [from, to] range ending at asOf. Months start
// on the 1st, weeks on Monday.
func (w Window) Bounds(asOf time.Time) (time.Time, time.Time, error) {
	switch w {
	case WindowMonth:
		from := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())
		return from, asOf, nil
	case WindowWeek:
		weekday := int(asOf.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
		from := day.AddDate(0, 0, -(weekday - 1))
		return from, asOf, nil
	}
	return time.Time{}, time.Time{}, shared.NewValidationError("window", "must be month or week")
}

// SalesStats aggregates orders in a window.
type SalesStats struct {
	Total      float64 `json:"total"`
	OrderCount int64   `json:"order_count"`
}

// ShipmentStats aggregates shipments in a window.
type ShipmentStats struct {
	Total       int64 `json:"total"`
	Delivered   int64 `json:"delivered"`
	QRConfirmed int64 `json:"qr_confirmed"`
}

// CommissionStats aggregates ledger entries in a window. Accrued covers
// confirmed and paid entries; Paid covers paid only.
type CommissionStats struct {
	Accrued float64 `json:"accrued"`
	Paid    float64 `json:"paid"`
}

// ReturnStats aggregates return requests in a window.
type ReturnStats struct {
	Count int64   `json:"count"`
	Value float64 `json:"value"`
}

// Summary is one scope's rollup for a window.
type Summary struct {
	Window      Window          `json:"window"`
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Sales       SalesStats      `json:"sales"`
	Shipments   ShipmentStats   `json:"shipments"`
	Commissions CommissionStats `json:"commissions"`
	Returns     ReturnStats     `json:"returns"`
}

// AgentStanding is one agent's commission total within a ranking scope.
type AgentStanding struct {
	AgentID   int64   `json:"agent_id"`
	AgentName string  `json:"agent_name"`
	Amount    float64 `json:"amount"`
	Rank      int     `json:"rank"`
}
