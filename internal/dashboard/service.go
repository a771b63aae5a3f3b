package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"
)

// Repository provides the rollup reads. Empty windows return zero-valued
// stats, never errors.
type Repository interface {
	RegionSales(ctx context.Context, regionID int64, from, to time.Time) (SalesStats, error)
	RegionShipments(ctx context.Context, regionID int64, from, to time.Time) (ShipmentStats, error)
	RegionCommissions(ctx context.Context, regionID int64, from, to time.Time) (CommissionStats, error)
	RegionReturns(ctx context.Context, regionID int64, from, to time.Time) (ReturnStats, error)

	AgentSales(ctx context.Context, agentID int64, from, to time.Time) (SalesStats, error)
	AgentShipments(ctx context.Context, agentID int64, from, to time.Time) (ShipmentStats, error)
	AgentCommissions(ctx context.Context, agentID int64, from, to time.Time) (CommissionStats, error)
	AgentReturns(ctx context.Context, agentID int64, from, to time.Time) (ReturnStats, error)

	AgentStandings(ctx context.Context, regionID int64, from, to time.Time) ([]AgentStanding, error)
}

// Service computes cached dashboard rollups. Concurrent loads for the same
// key collapse through singleflight.
type Service struct {
	repo   Repository
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService constructs a dashboard service.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Invalidate bumps the cache version, dropping every cached rollup at once.
// Fulfillment and ledger transitions call it through their RollupInvalidator
// hook; the admin endpoint exposes it for manual flushes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// RegionSummary returns the region's rollup for the window ending at asOf.
func (s *Service) RegionSummary(ctx context.Context, regionID int64, window Window, asOf time.Time) (*Summary, error) {
	from, to, err := window.Bounds(asOf)
	if err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, keyRegion(regionID, window, asOf))
	if err != nil {
		return nil, err
	}
	return s.loadSummary(ctx, key, window, from, to, func(ctx context.Context, sum *Summary) error {
		if sum.Sales, err = s.repo.RegionSales(ctx, regionID, from, to); err != nil {
			return err
		}
		if sum.Shipments, err = s.repo.RegionShipments(ctx, regionID, from, to); err != nil {
			return err
		}
		if sum.Commissions, err = s.repo.RegionCommissions(ctx, regionID, from, to); err != nil {
			return err
		}
		sum.Returns, err = s.repo.RegionReturns(ctx, regionID, from, to)
		return err
	})
}

// AgentSummary returns the agent's rollup for the window ending at asOf.
func (s *Service) AgentSummary(ctx context.Context, agentID int64, window Window, asOf time.Time) (*Summary, error) {
	from, to, err := window.Bounds(asOf)
	if err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, keyAgent(agentID, window, asOf))
	if err != nil {
		return nil, err
	}
	return s.loadSummary(ctx, key, window, from, to, func(ctx context.Context, sum *Summary) error {
		if sum.Sales, err = s.repo.AgentSales(ctx, agentID, from, to); err != nil {
			return err
		}
		if sum.Shipments, err = s.repo.AgentShipments(ctx, agentID, from, to); err != nil {
			return err
		}
		if sum.Commissions, err = s.repo.AgentCommissions(ctx, agentID, from, to); err != nil {
			return err
		}
		sum.Returns, err = s.repo.AgentReturns(ctx, agentID, from, to)
		return err
	})
}

func (s *Service) loadSummary(ctx context.Context, key string, window Window, from, to time.Time, fill func(context.Context, *Summary) error) (*Summary, error) {
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var sum Summary
		err := s.cache.FetchJSON(ctx, key, &sum, func(ctx context.Context) (interface{}, error) {
			loaded := Summary{Window: window, From: from, To: to}
			if err := fill(ctx, &loaded); err != nil {
				return nil, err
			}
			return loaded, nil
		})
		if err != nil {
			return nil, err
		}
		return &sum, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: load %s: %w", key, err)
	}
	return v.(*Summary), nil
}

// AgentRanking ranks the region's agents for the month containing asOf by
// accrued commission, highest first. Ties keep the lower agent id first.
func (s *Service) AgentRanking(ctx context.Context, regionID int64, asOf time.Time) ([]AgentStanding, error) {
	from, to, err := WindowMonth.Bounds(asOf)
	if err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, keyRanking(regionID, asOf))
	if err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var standings []AgentStanding
		err := s.cache.FetchJSON(ctx, key, &standings, func(ctx context.Context) (interface{}, error) {
			loaded, err := s.repo.AgentStandings(ctx, regionID, from, to)
			if err != nil {
				return nil, err
			}
			sort.SliceStable(loaded, func(i, j int) bool {
				if loaded[i].Amount != loaded[j].Amount {
					return loaded[i].Amount > loaded[j].Amount
				}
				return loaded[i].AgentID < loaded[j].AgentID
			})
			for i := range loaded {
				loaded[i].Rank = i + 1
			}
			return loaded, nil
		})
		if err != nil {
			return nil, err
		}
		return standings, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: ranking region %d: %w", regionID, err)
	}
	standings := v.([]AgentStanding)
	if standings == nil {
		standings = []AgentStanding{}
	}
	return standings, nil
}
