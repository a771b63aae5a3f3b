package logistics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/commission"
	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/qr"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Common errors. All chain to shared.ErrNotFound for HTTP mapping.
var (
	ErrOrderNotFound    = fmt.Errorf("order %w", shared.ErrNotFound)
	ErrShipmentNotFound = fmt.Errorf("shipment %w", shared.ErrNotFound)
	ErrReturnNotFound   = fmt.Errorf("return request %w", shared.ErrNotFound)
)

// Repository provides persistence for orders, shipments and returns.
type Repository interface {
	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]Order, error)
	CreateOrder(ctx context.Context, o Order) (int64, error)
	NextOrderNumber(ctx context.Context) (string, error)

	GetShipment(ctx context.Context, id int64) (*Shipment, error)
	ListShipments(ctx context.Context, req ListShipmentsRequest) ([]Shipment, error)
	CreateShipment(ctx context.Context, s Shipment) (int64, error)
	NextShipmentNumber(ctx context.Context) (string, error)

	GetReturn(ctx context.Context, id int64) (*ReturnRequest, error)
	ListReturns(ctx context.Context, limit, offset int) ([]ReturnRequest, error)
	CreateReturn(ctx context.Context, r ReturnRequest) (int64, error)
	NextReturnNumber(ctx context.Context) (string, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes a transition performs atomically.
type TxRepository interface {
	GetShipmentForUpdate(ctx context.Context, id int64) (*Shipment, error)
	UpdateShipment(ctx context.Context, s *Shipment) error

	GetOrderForUpdate(ctx context.Context, id int64) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error

	GetReturnForUpdate(ctx context.Context, id int64) (*ReturnRequest, error)
	UpdateReturn(ctx context.Context, r *ReturnRequest) error

	ListPaidCommissionEntriesByOrder(ctx context.Context, orderID int64) ([]commission.Entry, error)
	NextCommissionEntryNumber(ctx context.Context) (string, error)
	CreateCommissionEntry(ctx context.Context, e commission.Entry) (int64, error)
}

// Notifier hands rendered notifications to the outbound transport.
// *notify.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(ctx context.Context, in notify.DispatchInput) notify.DeliveryResult
}

// AuditTrail records state transitions.
type AuditTrail interface {
	RecordTransition(ctx context.Context, actor shared.Actor, entity string, entityID int64, action, from, to string) error
}

// RollupInvalidator drops cached dashboard rollups after a transition changes
// their inputs. *dashboard.Service satisfies it.
type RollupInvalidator interface {
	Invalidate(ctx context.Context) error
}

const (
	auditShipment = "shipment"
	auditOrder    = "order"
	auditReturn   = "return_request"
)

// Service drives the fulfillment state machine.
type Service struct {
	repo        Repository
	commissions *commission.Service
	agents      commission.AgentDirectory
	locker      *shared.EntityLocker
	idem        *shared.IdempotencyStore
	audit       AuditTrail
	notifier    Notifier
	rollups     RollupInvalidator
	logger      *slog.Logger
}

// NewService constructs a logistics service.
func NewService(
	repo Repository,
	commissions *commission.Service,
	agents commission.AgentDirectory,
	locker *shared.EntityLocker,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:        repo,
		commissions: commissions,
		agents:      agents,
		locker:      locker,
		logger:      logger,
	}
}

// SetAuditTrail wires the audit logger.
func (s *Service) SetAuditTrail(a AuditTrail) { s.audit = a }

// SetNotifier wires the notification dispatcher.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetIdempotencyStore wires the QR scan retry guard.
func (s *Service) SetIdempotencyStore(store *shared.IdempotencyStore) { s.idem = store }

// SetRollupInvalidator wires the dashboard cache bump.
func (s *Service) SetRollupInvalidator(r RollupInvalidator) { s.rollups = r }

// ============================================================================
// ORDER OPERATIONS
// ============================================================================

// GetOrder loads an order.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
		}
		return nil, err
	}
	return o, nil
}

// ListOrders returns a page of orders.
func (s *Service) ListOrders(ctx context.Context, limit, offset int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListOrders(ctx, limit, offset)
}

// CreateOrder registers an order and sends the confirmation notification.
func (s *Service) CreateOrder(ctx context.Context, actor shared.Actor, req CreateOrderRequest) (*Order, error) {
	if _, err := s.agents.AgentProfile(ctx, req.AgentID); err != nil {
		return nil, fmt.Errorf("logistics: agent lookup: %w", err)
	}

	orderDate := time.Now()
	if req.OrderDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.OrderDate)
		if err != nil {
			return nil, shared.NewValidationError("order_date", "expected YYYY-MM-DD")
		}
		orderDate = parsed
	}

	o := Order{
		CustomerID:          req.CustomerID,
		CustomerName:        req.CustomerName,
		CustomerPhone:       req.CustomerPhone,
		CustomerType:        commission.CustomerType(req.CustomerType),
		RegionID:            req.RegionID,
		AgentID:             req.AgentID,
		OrderDate:           orderDate,
		AmountTotal:         req.AmountTotal,
		DeliveryStatus:      DeliveryPending,
		UrgentDelivery:      req.UrgentDelivery,
		SpecialInstructions: req.SpecialInstructions,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	number, err := s.repo.NextOrderNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("logistics: order number: %w", err)
	}
	o.OrderNumber = number

	id, err := s.repo.CreateOrder(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("logistics: create order: %w", err)
	}
	s.recordTransition(ctx, actor, auditOrder, id, "create", "", string(DeliveryPending))
	s.invalidateRollups(ctx)

	created, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	amount := created.AmountTotal
	s.dispatch(ctx, notify.DispatchInput{
		Recipient:    notify.Recipient{Name: created.CustomerName, Phone: created.CustomerPhone},
		TemplateType: notify.TemplateOrderConfirmation,
		Data: notify.RenderData{
			PartnerName: created.CustomerName,
			OrderNumber: created.OrderNumber,
			Date:        created.OrderDate,
			Amount:      &amount,
		},
		OrderID: &created.ID,
	})
	return created, nil
}

// ============================================================================
// SHIPMENT OPERATIONS
// ============================================================================

// GetShipment loads a shipment with its packaging lines.
func (s *Service) GetShipment(ctx context.Context, id int64) (*Shipment, error) {
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrShipmentNotFound, id)
		}
		return nil, err
	}
	return sh, nil
}

// ListShipments returns a filtered page of shipments.
func (s *Service) ListShipments(ctx context.Context, req ListShipmentsRequest) ([]Shipment, error) {
	if req.Limit <= 0 {
		req.Limit = 100
	}
	return s.repo.ListShipments(ctx, req)
}

// CreateShipment opens a draft shipment for the order and stamps its QR
// payload.
func (s *Service) CreateShipment(ctx context.Context, actor shared.Actor, req CreateShipmentRequest) (*Shipment, error) {
	order, err := s.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	number, err := s.repo.NextShipmentNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("logistics: shipment number: %w", err)
	}
	payload, err := qr.Payload(number, order.OrderNumber, order.CustomerName)
	if err != nil {
		return nil, err
	}

	sh := Shipment{
		ShipmentNumber:      number,
		OrderID:             order.ID,
		State:               ShipmentDraft,
		QRPayload:           payload,
		Carrier:             req.Carrier,
		TrackingNumber:      req.TrackingNumber,
		ShippingCost:        req.ShippingCost,
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryContact:     req.DeliveryContact,
		DeliveryPhone:       req.DeliveryPhone,
		UrgentDelivery:      req.UrgentDelivery,
		SpecialInstructions: req.SpecialInstructions,
	}
	if req.ExpectedDeliveryDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.ExpectedDeliveryDate)
		if err != nil {
			return nil, shared.NewValidationError("expected_delivery_date", "expected YYYY-MM-DD")
		}
		sh.ExpectedDeliveryDate = &parsed
	}
	for _, line := range req.Packaging {
		grade := QualityGrade(line.QualityGrade)
		if grade == "" {
			grade = GradeStandard
		}
		p := Packaging{
			Type:          PackageType(line.Type),
			Size:          line.Size,
			BoxesCount:    line.BoxesCount,
			SticksCount:   line.SticksCount,
			DisplaysCount: line.DisplaysCount,
			ProductName:   line.ProductName,
			BatchNumbers:  line.BatchNumbers,
			QualityGrade:  grade,
			WeightKg:      line.WeightKg,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		sh.Packaging = append(sh.Packaging, p)
	}

	id, err := s.repo.CreateShipment(ctx, sh)
	if err != nil {
		return nil, fmt.Errorf("logistics: create shipment: %w", err)
	}
	s.recordTransition(ctx, actor, auditShipment, id, "create", "", string(ShipmentDraft))
	return s.GetShipment(ctx, id)
}

// QRImage renders the shipment's QR payload as a PNG.
func (s *Service) QRImage(ctx context.Context, id int64) ([]byte, error) {
	sh, err := s.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	return qr.PNG(sh.QRPayload)
}

// MarkReady moves a draft shipment to ready and flags the order.
func (s *Service) MarkReady(ctx context.Context, actor shared.Actor, id int64) (*Shipment, error) {
	return s.transition(ctx, actor, id, "mark_ready", func(sh *Shipment, o *Order) error {
		if !sh.State.CanMarkReady() {
			return shared.NewInvalidTransition(auditShipment, "mark_ready", string(sh.State), string(ShipmentDraft))
		}
		sh.State = ShipmentReady
		o.DeliveryStatus = DeliveryReady
		return nil
	})
}

// Pack moves a ready shipment to packed and stamps its packaging lines.
func (s *Service) Pack(ctx context.Context, actor shared.Actor, id int64) (*Shipment, error) {
	sh, err := s.transition(ctx, actor, id, "pack", func(sh *Shipment, _ *Order) error {
		if !sh.State.CanPack() {
			return shared.NewInvalidTransition(auditShipment, "pack", string(sh.State), string(ShipmentReady))
		}
		now := time.Now()
		actorName := actor.Name
		for i := range sh.Packaging {
			sh.Packaging[i].Packed = true
			sh.Packaging[i].PackedAt = &now
			sh.Packaging[i].PackedBy = &actorName
		}
		sh.State = ShipmentPacked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyShipment(ctx, sh, notify.TemplateShipmentReady)
	return sh, nil
}

// Ship moves a packed shipment out the door.
func (s *Service) Ship(ctx context.Context, actor shared.Actor, id int64) (*Shipment, error) {
	sh, err := s.transition(ctx, actor, id, "ship", func(sh *Shipment, o *Order) error {
		if !sh.State.CanShip() {
			return shared.NewInvalidTransition(auditShipment, "ship", string(sh.State), string(ShipmentPacked))
		}
		now := time.Now()
		sh.State = ShipmentShipped
		sh.ShipmentDate = &now
		o.DeliveryStatus = DeliveryShipped
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyShipment(ctx, sh, notify.TemplateShipmentSent)
	return sh, nil
}

// Deliver marks a shipped shipment delivered without QR confirmation.
func (s *Service) Deliver(ctx context.Context, actor shared.Actor, id int64) (*Shipment, error) {
	return s.transition(ctx, actor, id, "deliver", func(sh *Shipment, o *Order) error {
		if !sh.State.CanDeliver() {
			return shared.NewInvalidTransition(auditShipment, "deliver", string(sh.State), string(ShipmentShipped))
		}
		today := time.Now()
		sh.State = ShipmentDelivered
		sh.ActualDeliveryDate = &today
		o.DeliveryStatus = DeliveryDelivered
		return nil
	})
}

// Return moves a shipped or delivered shipment to returned. The financial
// side is handled by the return request workflow.
func (s *Service) Return(ctx context.Context, actor shared.Actor, id int64) (*Shipment, error) {
	return s.transition(ctx, actor, id, "return", func(sh *Shipment, o *Order) error {
		if !sh.State.CanReturn() {
			return shared.NewInvalidTransition(auditShipment, "return", string(sh.State), string(ShipmentShipped), string(ShipmentDelivered))
		}
		sh.State = ShipmentReturned
		o.DeliveryStatus = DeliveryReturned
		return nil
	})
}

// Cancel voids a shipment. Delivered shipments can never be cancelled.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64) (*Shipment, error) {
	return s.transition(ctx, actor, id, "cancel", func(sh *Shipment, _ *Order) error {
		if !sh.State.CanCancel() {
			return shared.NewInvalidTransition(auditShipment, "cancel", string(sh.State),
				string(ShipmentDraft), string(ShipmentReady), string(ShipmentPacked), string(ShipmentShipped))
		}
		sh.State = ShipmentCancelled
		return nil
	})
}

// ConfirmQR applies a delivery scan: under the shipment's exclusive lock and
// in one transaction it confirms the shipment and order QR flags, accrues the
// commission entry through the resolver and settles the shipment as
// delivered. scanKey deduplicates courier retries; pass "" to skip the guard.
func (s *Service) ConfirmQR(ctx context.Context, actor shared.Actor, id int64, scanKey string) (*Shipment, error) {
	release, err := s.locker.Acquire(ctx, shared.ShipmentLockKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	if s.idem != nil && scanKey != "" {
		if err := s.idem.CheckAndInsert(ctx, shared.ScanKey(id, scanKey), "logistics"); err != nil {
			return nil, err
		}
	}

	var (
		sh        *Shipment
		fromState ShipmentState
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sh, err = tx.GetShipmentForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrShipmentNotFound, id)
			}
			return err
		}
		if sh.QRConfirmed {
			return shared.NewInvalidTransition(auditShipment, "confirm_qr", string(sh.State))
		}
		if !sh.State.CanConfirmQR() {
			return shared.NewInvalidTransition(auditShipment, "confirm_qr", string(sh.State),
				string(ShipmentShipped), string(ShipmentDelivered))
		}
		order, err := tx.GetOrderForUpdate(ctx, sh.OrderID)
		if err != nil {
			return err
		}
		if order.QRConfirmed {
			return shared.NewInvalidTransition(auditOrder, "confirm_qr", string(order.DeliveryStatus))
		}

		profile, err := s.agents.AgentProfile(ctx, order.AgentID)
		if err != nil {
			return fmt.Errorf("logistics: agent lookup: %w", err)
		}
		now := time.Now()
		entry, err := s.commissions.NewAccrual(ctx, commission.AccrualInput{
			AgentID:      order.AgentID,
			RegionID:     order.RegionID,
			CustomerID:   order.CustomerID,
			CustomerType: order.CustomerType,
			OrderID:      order.ID,
			OrderAmount:  order.AmountTotal,
			OrderDate:    order.OrderDate,
			FallbackRate: profile.CommissionRate,
			ConfirmedAt:  now,
		})
		if err != nil {
			return err
		}
		entry.EntryNumber, err = tx.NextCommissionEntryNumber(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.CreateCommissionEntry(ctx, entry); err != nil {
			return fmt.Errorf("logistics: accrue commission: %w", err)
		}

		actorName := actor.Name
		fromState = sh.State
		sh.QRConfirmed = true
		sh.QRConfirmationDate = &now
		sh.QRConfirmedBy = &actorName
		sh.State = ShipmentDelivered
		sh.ActualDeliveryDate = &now
		if err := tx.UpdateShipment(ctx, sh); err != nil {
			return err
		}

		order.QRConfirmed = true
		order.QRConfirmationDate = &now
		order.QRConfirmedBy = &actorName
		order.DeliveryStatus = DeliveryDelivered
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		if s.idem != nil && scanKey != "" && !errors.Is(err, shared.ErrIdempotencyConflict) {
			if delErr := s.idem.Delete(ctx, shared.ScanKey(id, scanKey)); delErr != nil {
				s.logger.Warn("scan key cleanup failed", slog.Any("error", delErr))
			}
		}
		return nil, err
	}

	s.recordTransition(ctx, actor, auditShipment, id, "confirm_qr", string(fromState), string(ShipmentDelivered))
	s.notifyShipment(ctx, sh, notify.TemplateDeliveryConfirmed)
	s.invalidateRollups(ctx)
	return sh, nil
}

// transition runs one guarded shipment mutation under lock, in one
// transaction covering the shipment and its order.
func (s *Service) transition(ctx context.Context, actor shared.Actor, id int64, action string, mutate func(*Shipment, *Order) error) (*Shipment, error) {
	release, err := s.locker.Acquire(ctx, shared.ShipmentLockKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		sh        *Shipment
		fromState ShipmentState
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sh, err = tx.GetShipmentForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrShipmentNotFound, id)
			}
			return err
		}
		order, err := tx.GetOrderForUpdate(ctx, sh.OrderID)
		if err != nil {
			return err
		}
		fromState = sh.State
		if err := mutate(sh, order); err != nil {
			return err
		}
		if err := tx.UpdateShipment(ctx, sh); err != nil {
			return err
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, actor, auditShipment, id, action, string(fromState), string(sh.State))
	s.invalidateRollups(ctx)
	return sh, nil
}

// ============================================================================
// NOTIFICATION + AUDIT HELPERS
// ============================================================================

func (s *Service) notifyShipment(ctx context.Context, sh *Shipment, t notify.TemplateType) {
	if s.notifier == nil {
		return
	}
	order, err := s.repo.GetOrder(ctx, sh.OrderID)
	if err != nil {
		s.logger.Warn("notification order lookup failed",
			slog.Int64("shipment_id", sh.ID), slog.Any("error", err))
		return
	}
	tracking := ""
	if sh.TrackingNumber != nil {
		tracking = *sh.TrackingNumber
	}
	boxes := sh.TotalBoxes()
	s.dispatch(ctx, notify.DispatchInput{
		Recipient:    notify.Recipient{Name: order.CustomerName, Phone: order.CustomerPhone},
		TemplateType: t,
		Data: notify.RenderData{
			PartnerName:    order.CustomerName,
			OrderNumber:    order.OrderNumber,
			ShipmentNumber: sh.ShipmentNumber,
			BoxesCount:     &boxes,
			TrackingNumber: tracking,
		},
		OrderID:    &order.ID,
		ShipmentID: &sh.ID,
	})
}

// dispatch is fire-and-forget: failures are already logged and recorded by
// the dispatcher itself.
func (s *Service) dispatch(ctx context.Context, in notify.DispatchInput) {
	if s.notifier == nil {
		return
	}
	res := s.notifier.Dispatch(ctx, in)
	if res.Err != nil {
		s.logger.Warn("notification delivery failed",
			slog.String("template", string(in.TemplateType)),
			slog.String("message_id", res.MessageID),
			slog.Any("error", res.Err))
	}
}

// invalidateRollups is fire-and-forget like dispatch: a stale dashboard
// entry expires with its TTL anyway.
func (s *Service) invalidateRollups(ctx context.Context) {
	if s.rollups == nil {
		return
	}
	if err := s.rollups.Invalidate(ctx); err != nil {
		s.logger.Warn("rollup invalidation failed", slog.Any("error", err))
	}
}

func (s *Service) recordTransition(ctx context.Context, actor shared.Actor, entity string, id int64, action, from, to string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordTransition(ctx, actor, entity, id, action, from, to); err != nil {
		s.logger.Warn("audit record failed",
			slog.String("entity", entity),
			slog.Int64("id", id),
			slog.String("action", action),
			slog.Any("error", err))
	}
}
