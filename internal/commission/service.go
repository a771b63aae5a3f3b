package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Common errors. Both chain to shared.ErrNotFound so the HTTP layer maps
// them to 404.
var (
	ErrEntryNotFound = fmt.Errorf("commission entry %w", shared.ErrNotFound)
	ErrRuleNotFound  = fmt.Errorf("commission rule %w", shared.ErrNotFound)
)

// Repository provides persistence for ledger entries and rules.
type Repository interface {
	GetEntry(ctx context.Context, id int64) (*Entry, error)
	ListEntries(ctx context.Context, req ListEntriesRequest) ([]Entry, error)
	ListEntriesByOrder(ctx context.Context, orderID int64) ([]Entry, error)
	CreateEntry(ctx context.Context, e Entry) (int64, error)
	UpdateEntry(ctx context.Context, e *Entry) error
	NextEntryNumber(ctx context.Context) (string, error)

	GetRule(ctx context.Context, id int64) (*Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	CreateRule(ctx context.Context, r Rule) (int64, error)
	UpdateRule(ctx context.Context, r *Rule) error
	DeleteRule(ctx context.Context, id int64) error
	ActiveRules(ctx context.Context, asOf time.Time) ([]Rule, error)
}

// AgentProfile is the slice of agent data the ledger needs.
type AgentProfile struct {
	ID             int64
	RegionID       int64
	CommissionRate float64
	Active         bool
}

// AgentDirectory resolves agent profiles for manual entry creation.
type AgentDirectory interface {
	AgentProfile(ctx context.Context, agentID int64) (AgentProfile, error)
}

// AuditTrail records state transitions. Nil-able in tests.
type AuditTrail interface {
	RecordTransition(ctx context.Context, actor shared.Actor, entity string, entityID int64, action, from, to string) error
}

// RollupInvalidator drops cached dashboard rollups after a ledger write
// changes their inputs. *dashboard.Service satisfies it.
type RollupInvalidator interface {
	Invalidate(ctx context.Context) error
}

const auditEntity = "commission_entry"

// Service provides business logic for the commission ledger.
type Service struct {
	repo     Repository
	resolver *Resolver
	agents   AgentDirectory
	audit    AuditTrail
	rollups  RollupInvalidator
	logger   *slog.Logger
}

// NewService constructs a commission service.
func NewService(repo Repository, agents AgentDirectory, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: NewResolver(repo),
		agents:   agents,
		logger:   logger,
	}
}

// SetAuditTrail wires the audit logger.
func (s *Service) SetAuditTrail(a AuditTrail) {
	s.audit = a
}

// SetRollupInvalidator wires the dashboard cache bump.
func (s *Service) SetRollupInvalidator(r RollupInvalidator) {
	s.rollups = r
}

// Resolver exposes the rate resolver for callers composing accruals.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// ============================================================================
// ACCRUAL COMPOSITION
// ============================================================================

// AccrualInput describes a delivery-confirmed order to accrue commission for.
type AccrualInput struct {
	AgentID      int64
	RegionID     int64
	CustomerID   int64
	CustomerType CustomerType
	OrderID      int64
	OrderAmount  float64
	OrderDate    time.Time
	FallbackRate float64
	ConfirmedAt  time.Time
}

// NewAccrual resolves the applicable rate and composes a CONFIRMED ledger
// entry for a QR-confirmed delivery. The caller persists the entry inside
// its own transaction so the accrual commits atomically with the shipment
// and order writes.
func (s *Service) NewAccrual(ctx context.Context, in AccrualInput) (Entry, error) {
	rate, err := s.resolver.Resolve(ctx, ResolveInput{
		AgentID:      in.AgentID,
		RegionID:     in.RegionID,
		CustomerID:   in.CustomerID,
		CustomerType: in.CustomerType,
		OrderAmount:  in.OrderAmount,
		OrderDate:    in.OrderDate,
		FallbackRate: in.FallbackRate,
	})
	if err != nil {
		return Entry{}, err
	}

	confirmedAt := in.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = time.Now()
	}
	e := Entry{
		AgentID:            in.AgentID,
		RegionID:           in.RegionID,
		OrderID:            in.OrderID,
		CustomerID:         in.CustomerID,
		BaseAmount:         in.OrderAmount,
		Rate:               rate,
		State:              EntryStateConfirmed,
		Date:               in.OrderDate,
		QRConfirmed:        true,
		QRConfirmationDate: &confirmedAt,
	}
	e.Recompute()
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// NewReturnAdjustment composes a negative adjustment entry offsetting the
// given entry by returnAmount. Adjustments bypass the QR gate (they are
// corrections, not new sales) and are born CONFIRMED so they enter payment
// tracking immediately.
func NewReturnAdjustment(original Entry, returnAmount float64, note string) (Entry, error) {
	if returnAmount <= 0 {
		return Entry{}, shared.NewValidationError("return_amount", "must be positive")
	}
	if returnAmount > original.Amount {
		return Entry{}, shared.NewValidationError("return_amount", "cannot exceed commission amount")
	}
	adj := Entry{
		AgentID:      original.AgentID,
		RegionID:     original.RegionID,
		OrderID:      original.OrderID,
		CustomerID:   original.CustomerID,
		BaseAmount:   -returnAmount,
		Rate:         original.Rate,
		State:        EntryStateConfirmed,
		Date:         time.Now(),
		IsAdjustment: true,
	}
	if note != "" {
		adj.Notes = &note
	}
	adj.Recompute()
	if err := adj.Validate(); err != nil {
		return Entry{}, err
	}
	return adj, nil
}

// ============================================================================
// ENTRY OPERATIONS
// ============================================================================

// GetEntry loads an entry.
func (s *Service) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	e, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrEntryNotFound, id)
		}
		return nil, err
	}
	return e, nil
}

// ListEntries returns a filtered slice of the ledger.
func (s *Service) ListEntries(ctx context.Context, req ListEntriesRequest) ([]Entry, error) {
	return s.repo.ListEntries(ctx, req)
}

// CreateEntry creates a DRAFT ledger entry by hand. The rate defaults to the
// agent's commission rate when omitted.
func (s *Service) CreateEntry(ctx context.Context, actor shared.Actor, req CreateEntryRequest) (*Entry, error) {
	profile, err := s.agents.AgentProfile(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("commission: agent profile: %w", err)
	}

	rate := profile.CommissionRate
	if req.Rate != nil {
		rate = *req.Rate
	}
	date := time.Now()
	if req.Date != nil {
		parsed, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return nil, shared.NewValidationError("date", "expected YYYY-MM-DD")
		}
		date = parsed
	}

	e := Entry{
		AgentID:    req.AgentID,
		RegionID:   profile.RegionID,
		OrderID:    req.OrderID,
		BaseAmount: req.BaseAmount,
		Rate:       rate,
		State:      EntryStateDraft,
		Date:       date,
		Notes:      req.Notes,
	}
	e.Recompute()
	if err := e.Validate(); err != nil {
		return nil, err
	}

	number, err := s.repo.NextEntryNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("commission: entry number: %w", err)
	}
	e.EntryNumber = number

	id, err := s.repo.CreateEntry(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("commission: create entry: %w", err)
	}
	s.recordTransition(ctx, actor, id, "create", "", string(EntryStateDraft))
	s.invalidateRollups(ctx)
	return s.repo.GetEntry(ctx, id)
}

// Confirm moves a DRAFT entry to CONFIRMED. The QR gate must already be
// satisfied on the entry.
func (s *Service) Confirm(ctx context.Context, actor shared.Actor, id int64) (*Entry, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.State.CanConfirm() {
		return nil, shared.NewInvalidTransition(auditEntity, "confirm", string(e.State), string(EntryStateDraft))
	}
	if !e.QRConfirmed {
		return nil, shared.NewValidationError("qr_confirmed", "commission can only be confirmed after QR confirmation of delivery")
	}
	from := e.State
	e.State = EntryStateConfirmed
	e.Recompute()
	if err := s.repo.UpdateEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("commission: confirm entry: %w", err)
	}
	s.recordTransition(ctx, actor, id, "confirm", string(from), string(e.State))
	s.invalidateRollups(ctx)
	return e, nil
}

// Pay moves a CONFIRMED entry to PAID and stamps the payment date.
func (s *Service) Pay(ctx context.Context, actor shared.Actor, id int64) (*Entry, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.State.CanPay() {
		return nil, shared.NewInvalidTransition(auditEntity, "pay", string(e.State), string(EntryStateConfirmed))
	}
	from := e.State
	now := time.Now()
	e.State = EntryStatePaid
	e.PaymentDate = &now
	e.Recompute()
	if err := s.repo.UpdateEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("commission: pay entry: %w", err)
	}
	s.recordTransition(ctx, actor, id, "pay", string(from), string(e.State))
	s.invalidateRollups(ctx)
	return e, nil
}

// Cancel voids an entry. Paid entries are frozen and can never be cancelled.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64) (*Entry, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.State.CanCancel() {
		return nil, shared.NewInvalidTransition(auditEntity, "cancel", string(e.State), string(EntryStateDraft), string(EntryStateConfirmed))
	}
	from := e.State
	e.State = EntryStateCancelled
	e.Recompute()
	if err := s.repo.UpdateEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("commission: cancel entry: %w", err)
	}
	s.recordTransition(ctx, actor, id, "cancel", string(from), string(e.State))
	s.invalidateRollups(ctx)
	return e, nil
}

// ConfirmQR marks the entry's QR gate satisfied and auto-confirms drafts.
func (s *Service) ConfirmQR(ctx context.Context, actor shared.Actor, id int64) (*Entry, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.QRConfirmed {
		return nil, shared.NewInvalidTransition(auditEntity, "confirm_qr", string(e.State))
	}
	now := time.Now()
	e.QRConfirmed = true
	e.QRConfirmationDate = &now
	from := e.State
	if e.State == EntryStateDraft {
		e.State = EntryStateConfirmed
	}
	e.Recompute()
	if err := s.repo.UpdateEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("commission: confirm qr: %w", err)
	}
	s.recordTransition(ctx, actor, id, "confirm_qr", string(from), string(e.State))
	s.invalidateRollups(ctx)
	return e, nil
}

// ProcessReturn applies a return of returnAmount against the entry. Paid
// entries follow the append-only discipline: a new negative adjustment entry
// is created and the original stays untouched. Non-paid entries record the
// return amount in place.
func (s *Service) ProcessReturn(ctx context.Context, actor shared.Actor, id int64, returnAmount float64) (*Entry, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if returnAmount <= 0 {
		return nil, shared.NewValidationError("return_amount", "must be positive")
	}
	if returnAmount > e.Amount {
		return nil, shared.NewValidationError("return_amount", "cannot exceed commission amount")
	}
	if e.State == EntryStateCancelled {
		return nil, shared.NewInvalidTransition(auditEntity, "process_return", string(e.State), string(EntryStateConfirmed), string(EntryStatePaid))
	}

	if e.State == EntryStatePaid {
		adj, err := NewReturnAdjustment(*e, returnAmount, fmt.Sprintf("Return adjustment for %s", e.EntryNumber))
		if err != nil {
			return nil, err
		}
		number, err := s.repo.NextEntryNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("commission: entry number: %w", err)
		}
		adj.EntryNumber = number
		adjID, err := s.repo.CreateEntry(ctx, adj)
		if err != nil {
			return nil, fmt.Errorf("commission: create adjustment: %w", err)
		}
		s.recordTransition(ctx, actor, adjID, "return_adjustment", "", string(EntryStateConfirmed))
		s.invalidateRollups(ctx)
		return s.repo.GetEntry(ctx, adjID)
	}

	e.ReturnAmount = returnAmount
	e.Recompute()
	if err := s.repo.UpdateEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("commission: record return: %w", err)
	}
	s.recordTransition(ctx, actor, id, "record_return", string(e.State), string(e.State))
	s.invalidateRollups(ctx)
	return e, nil
}

// invalidateRollups is best-effort: a stale dashboard entry expires with its
// TTL anyway.
func (s *Service) invalidateRollups(ctx context.Context) {
	if s.rollups == nil {
		return
	}
	if err := s.rollups.Invalidate(ctx); err != nil {
		s.logger.Warn("rollup invalidation failed", slog.Any("error", err))
	}
}

func (s *Service) recordTransition(ctx context.Context, actor shared.Actor, id int64, action, from, to string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordTransition(ctx, actor, auditEntity, id, action, from, to); err != nil {
		s.logger.Warn("audit record failed",
			slog.String("entity", auditEntity),
			slog.Int64("id", id),
			slog.String("action", action),
			slog.Any("error", err))
	}
}

// ============================================================================
// RULE OPERATIONS
// ============================================================================

// GetRule loads a rule.
func (s *Service) GetRule(ctx context.Context, id int64) (*Rule, error) {
	r, err := s.repo.GetRule(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrRuleNotFound, id)
		}
		return nil, err
	}
	return r, nil
}

// ListRules returns all rules ordered by (sequence, id).
func (s *Service) ListRules(ctx context.Context) ([]Rule, error) {
	return s.repo.ListRules(ctx)
}

// CreateRule creates a commission rule.
func (s *Service) CreateRule(ctx context.Context, req CreateRuleRequest) (*Rule, error) {
	r := Rule{
		Name:           req.Name,
		Sequence:       req.Sequence,
		RegionID:       req.RegionID,
		AgentID:        req.AgentID,
		CustomerType:   req.CustomerType,
		BaseRate:       req.BaseRate,
		MinAmount:      req.MinAmount,
		MaxAmount:      req.MaxAmount,
		BonusRate:      req.BonusRate,
		BonusThreshold: req.BonusThreshold,
		DateFrom:       req.DateFrom,
		DateTo:         req.DateTo,
		Active:         true,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	id, err := s.repo.CreateRule(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("commission: create rule: %w", err)
	}
	return s.repo.GetRule(ctx, id)
}

// UpdateRule applies a partial rule edit.
func (s *Service) UpdateRule(ctx context.Context, id int64, req UpdateRuleRequest) (*Rule, error) {
	r, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		r.Name = *req.Name
	}
	if req.Sequence != nil {
		r.Sequence = *req.Sequence
	}
	if req.BaseRate != nil {
		r.BaseRate = *req.BaseRate
	}
	if req.MinAmount != nil {
		r.MinAmount = *req.MinAmount
	}
	if req.MaxAmount != nil {
		r.MaxAmount = req.MaxAmount
	}
	if req.BonusRate != nil {
		r.BonusRate = *req.BonusRate
	}
	if req.BonusThreshold != nil {
		r.BonusThreshold = *req.BonusThreshold
	}
	if req.DateFrom != nil {
		r.DateFrom = *req.DateFrom
	}
	if req.DateTo != nil {
		r.DateTo = req.DateTo
	}
	if req.Active != nil {
		r.Active = *req.Active
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRule(ctx, r); err != nil {
		return nil, fmt.Errorf("commission: update rule: %w", err)
	}
	return r, nil
}

// DeleteRule removes a rule from the set.
func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
		}
		return fmt.Errorf("commission: delete rule: %w", err)
	}
	return nil
}
