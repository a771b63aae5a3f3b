package commission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRules []Rule

func (s staticRules) ActiveRules(_ context.Context, asOf time.Time) ([]Rule, error) {
	var out []Rule
	for _, r := range s {
		if !r.Active || r.DateFrom.After(asOf) {
			continue
		}
		if r.DateTo != nil && r.DateTo.Before(asOf) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func ptrI64(v int64) *int64                   { return &v }
func ptrF64(v float64) *float64               { return &v }
func ptrCustomer(t CustomerType) *CustomerType { return &t }

func baseInput() ResolveInput {
	return ResolveInput{
		AgentID:      7,
		RegionID:     2,
		CustomerID:   11,
		CustomerType: CustomerRetail,
		OrderAmount:  1000,
		OrderDate:    time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		FallbackRate: 5,
	}
}

func activeRule(id int64, seq int, rate float64) Rule {
	return Rule{
		ID:       id,
		Name:     "rule",
		Sequence: seq,
		BaseRate: rate,
		DateFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:   true,
	}
}

func TestResolveFallbackWhenNoRules(t *testing.T) {
	r := NewResolver(staticRules{})
	rate, err := r.Resolve(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Equal(t, 5.0, rate)
}

func TestResolveFirstMatchBySequence(t *testing.T) {
	rules := staticRules{
		activeRule(1, 20, 8),
		activeRule(2, 10, 6),
	}
	rate, err := NewResolver(rules).Resolve(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Equal(t, 6.0, rate, "lower sequence wins regardless of slice order")
}

func TestResolveTieBreakByID(t *testing.T) {
	a := activeRule(5, 10, 8)
	b := activeRule(3, 10, 6)
	rate, err := NewResolver(staticRules{a, b}).Resolve(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Equal(t, 6.0, rate, "equal sequence resolves to the lower id")
}

func TestResolveWildcardFilters(t *testing.T) {
	in := baseInput()

	regionMismatch := activeRule(1, 1, 9)
	regionMismatch.RegionID = ptrI64(99)

	agentMatch := activeRule(2, 2, 7)
	agentMatch.AgentID = ptrI64(in.AgentID)

	rate, err := NewResolver(staticRules{regionMismatch, agentMatch}).Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 7.0, rate, "nil filters are wildcards, set filters must match")
}

func TestResolveCustomerTypeFilter(t *testing.T) {
	in := baseInput()
	in.CustomerType = CustomerWholesale

	retailOnly := activeRule(1, 1, 9)
	retailOnly.CustomerType = ptrCustomer(CustomerRetail)

	rate, err := NewResolver(staticRules{retailOnly}).Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in.FallbackRate, rate)
}

func TestResolveAmountBounds(t *testing.T) {
	tooSmall := activeRule(1, 1, 9)
	tooSmall.MinAmount = 5000

	capped := activeRule(2, 2, 8)
	capped.MaxAmount = ptrF64(500)

	open := activeRule(3, 3, 6)

	rate, err := NewResolver(staticRules{tooSmall, capped, open}).Resolve(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Equal(t, 6.0, rate)
}

func TestResolveBonusAboveThreshold(t *testing.T) {
	r := activeRule(1, 1, 5)
	r.BonusRate = 2
	r.BonusThreshold = 800

	in := baseInput()
	rate, err := NewResolver(staticRules{r}).Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 7.0, rate, "order at or above threshold earns base plus bonus")

	in.OrderAmount = 799.99
	rate, err = NewResolver(staticRules{r}).Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 5.0, rate, "below threshold stays at the base rate")
}

func TestResolveDateWindow(t *testing.T) {
	expired := activeRule(1, 1, 9)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	expired.DateTo = &end

	rate, err := NewResolver(staticRules{expired}).Resolve(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Equal(t, 5.0, rate, "expired rules fall through to the agent rate")
}

func TestResolveInactiveRuleSkipped(t *testing.T) {
	inactive := activeRule(1, 1, 9)
	inactive.Active = false

	rate, err := NewResolver(staticRules{inactive}).Resolve(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Equal(t, 5.0, rate)
}
