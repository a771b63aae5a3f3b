package commission

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ResolveInput carries everything the resolver needs to pick a rate. The
// fallback rate is the agent's own commission rate, applied when no rule
// matches.
type ResolveInput struct {
	AgentID      int64
	RegionID     int64
	CustomerID   int64
	CustomerType CustomerType
	OrderAmount  float64
	OrderDate    time.Time
	FallbackRate float64
}

// RuleSource yields the rule set the resolver selects from.
type RuleSource interface {
	ActiveRules(ctx context.Context, asOf time.Time) ([]Rule, error)
}

// Resolver picks the applicable commission rate from the ordered rule set.
// Resolution is deterministic: candidates are ordered by (sequence, id)
// ascending and the first match wins.
type Resolver struct {
	rules RuleSource
}

// NewResolver constructs a resolver over the given rule source.
func NewResolver(rules RuleSource) *Resolver {
	return &Resolver{rules: rules}
}

// Resolve returns the commission rate for the input. Rules are filtered on
// activity, validity dates, region/agent/customer-type (nil = wildcard) and
// order amount range; ties at equal sequence break on lower id. When a
// matching rule carries a bonus threshold the bonus rate is added. Without
// any match the agent's own rate is returned.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (float64, error) {
	rules, err := r.rules.ActiveRules(ctx, in.OrderDate)
	if err != nil {
		return 0, fmt.Errorf("commission: load rules: %w", err)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Sequence != rules[j].Sequence {
			return rules[i].Sequence < rules[j].Sequence
		}
		return rules[i].ID < rules[j].ID
	})

	for i := range rules {
		if rules[i].Matches(in) {
			return rules[i].RateFor(in.OrderAmount), nil
		}
	}

	return in.FallbackRate, nil
}
