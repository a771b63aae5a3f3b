package participants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/commission"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Common errors.
var (
	ErrRegionNotFound = fmt.Errorf("region %w", shared.ErrNotFound)
	ErrAgentNotFound  = fmt.Errorf("agent %w", shared.ErrNotFound)
)

// Repository provides persistence for regions and agents.
type Repository interface {
	GetRegion(ctx context.Context, id int64) (*Region, error)
	ListRegions(ctx context.Context) ([]Region, error)
	CreateRegion(ctx context.Context, r Region) (int64, error)
	UpdateRegion(ctx context.Context, r *Region) error
	DeleteRegion(ctx context.Context, id int64) error
	CountAgentsInRegion(ctx context.Context, regionID int64) (int64, error)

	GetAgent(ctx context.Context, id int64) (*Agent, error)
	ListAgents(ctx context.Context, regionID *int64) ([]Agent, error)
	CreateAgent(ctx context.Context, a Agent) (int64, error)
	UpdateAgent(ctx context.Context, a *Agent) error
	DeleteAgent(ctx context.Context, id int64) error

	CountPaidEntriesForAgent(ctx context.Context, agentID int64) (int64, error)
	AgentMonthSales(ctx context.Context, agentID int64, from, to time.Time) (total float64, orders int64, err error)
}

// Service provides business logic for regions and agents.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a participants service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

var _ commission.AgentDirectory = (*Service)(nil)

// AgentProfile implements commission.AgentDirectory: the rate fallback and
// region used by accruals.
func (s *Service) AgentProfile(ctx context.Context, agentID int64) (commission.AgentProfile, error) {
	a, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return commission.AgentProfile{}, err
	}
	return commission.AgentProfile{
		ID:             a.ID,
		RegionID:       a.RegionID,
		CommissionRate: a.CommissionRate,
		Active:         a.Active,
	}, nil
}

// ============================================================================
// REGION OPERATIONS
// ============================================================================

// GetRegion loads a region.
func (s *Service) GetRegion(ctx context.Context, id int64) (*Region, error) {
	r, err := s.repo.GetRegion(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrRegionNotFound, id)
		}
		return nil, err
	}
	return r, nil
}

// ListRegions returns all regions.
func (s *Service) ListRegions(ctx context.Context) ([]Region, error) {
	return s.repo.ListRegions(ctx)
}

// CreateRegion registers a sales territory. Codes are unique.
func (s *Service) CreateRegion(ctx context.Context, req CreateRegionRequest) (*Region, error) {
	r := Region{
		Code:           req.Code,
		Name:           req.Name,
		CommissionRate: req.CommissionRate,
		SalesTarget:    req.SalesTarget,
		Active:         true,
	}
	if r.CommissionRate == 0 {
		r.CommissionRate = 5.0
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	id, err := s.repo.CreateRegion(ctx, r)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, shared.NewValidationError("code", "region code already exists")
		}
		return nil, fmt.Errorf("participants: create region: %w", err)
	}
	return s.GetRegion(ctx, id)
}

// UpdateRegion applies partial changes. The code is immutable.
func (s *Service) UpdateRegion(ctx context.Context, id int64, req UpdateRegionRequest) (*Region, error) {
	r, err := s.GetRegion(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		r.Name = *req.Name
	}
	if req.CommissionRate != nil {
		r.CommissionRate = *req.CommissionRate
	}
	if req.SalesTarget != nil {
		r.SalesTarget = *req.SalesTarget
	}
	if req.Active != nil {
		r.Active = *req.Active
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRegion(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRegion removes a region with no agents left in it.
func (s *Service) DeleteRegion(ctx context.Context, id int64) error {
	count, err := s.repo.CountAgentsInRegion(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return shared.NewValidationError("region", fmt.Sprintf("%d agents still assigned", count))
	}
	if err := s.repo.DeleteRegion(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrRegionNotFound, id)
		}
		return err
	}
	return nil
}

// ============================================================================
// AGENT OPERATIONS
// ============================================================================

// GetAgent loads an agent.
func (s *Service) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	a, err := s.repo.GetAgent(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrAgentNotFound, id)
		}
		return nil, err
	}
	return a, nil
}

// ListAgents returns agents, optionally filtered by region.
func (s *Service) ListAgents(ctx context.Context, regionID *int64) ([]Agent, error) {
	return s.repo.ListAgents(ctx, regionID)
}

// CreateAgent registers an agent. An unset rate inherits the region's.
func (s *Service) CreateAgent(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	region, err := s.GetRegion(ctx, req.RegionID)
	if err != nil {
		return nil, err
	}
	a := Agent{
		Name:          req.Name,
		RegionID:      region.ID,
		Phone:         req.Phone,
		Email:         req.Email,
		MonthlyTarget: req.MonthlyTarget,
		Active:        true,
	}
	if req.CommissionRate != nil {
		a.CommissionRate = *req.CommissionRate
	} else {
		a.CommissionRate = region.CommissionRate
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	id, err := s.repo.CreateAgent(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("participants: create agent: %w", err)
	}
	return s.GetAgent(ctx, id)
}

// UpdateAgent applies partial changes.
func (s *Service) UpdateAgent(ctx context.Context, id int64, req UpdateAgentRequest) (*Agent, error) {
	a, err := s.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RegionID != nil {
		if _, err := s.GetRegion(ctx, *req.RegionID); err != nil {
			return nil, err
		}
		a.RegionID = *req.RegionID
	}
	if req.Name != nil {
		a.Name = *req.Name
	}
	if req.Phone != nil {
		a.Phone = req.Phone
	}
	if req.Email != nil {
		a.Email = req.Email
	}
	if req.CommissionRate != nil {
		a.CommissionRate = *req.CommissionRate
	}
	if req.MonthlyTarget != nil {
		a.MonthlyTarget = *req.MonthlyTarget
	}
	if req.Active != nil {
		a.Active = *req.Active
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAgent removes an agent. Agents with paid ledger entries stay: the
// payout history must keep resolving.
func (s *Service) DeleteAgent(ctx context.Context, id int64) error {
	if _, err := s.GetAgent(ctx, id); err != nil {
		return err
	}
	paid, err := s.repo.CountPaidEntriesForAgent(ctx, id)
	if err != nil {
		return err
	}
	if paid > 0 {
		return shared.NewValidationError("agent", fmt.Sprintf("%d paid commission entries reference this agent", paid))
	}
	if err := s.repo.DeleteAgent(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrAgentNotFound, id)
		}
		return err
	}
	return nil
}

// Performance returns the agent's month-to-date sales against target.
func (s *Service) Performance(ctx context.Context, agentID int64, now time.Time) (*AgentPerformance, error) {
	a, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	total, orders, err := s.repo.AgentMonthSales(ctx, agentID, monthStart, now)
	if err != nil {
		return nil, err
	}
	perf := &AgentPerformance{
		AgentID:       a.ID,
		Month:         now.Format("2006-01"),
		SalesTotal:    total,
		OrderCount:    orders,
		MonthlyTarget: a.MonthlyTarget,
	}
	if a.MonthlyTarget > 0 {
		perf.TargetAchievement = commission.Round2(total / a.MonthlyTarget * 100)
	}
	return perf, nil
}
