package logistics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/commission"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// GetReturn loads a return request with its lines.
func (s *Service) GetReturn(ctx context.Context, id int64) (*ReturnRequest, error) {
	r, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrReturnNotFound, id)
		}
		return nil, err
	}
	return r, nil
}

// ListReturns returns a page of return requests.
func (s *Service) ListReturns(ctx context.Context, limit, offset int) ([]ReturnRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListReturns(ctx, limit, offset)
}

// CreateReturn opens a draft return request against a shipment.
func (s *Service) CreateReturn(ctx context.Context, actor shared.Actor, req CreateReturnRequest) (*ReturnRequest, error) {
	sh, err := s.GetShipment(ctx, req.ShipmentID)
	if err != nil {
		return nil, err
	}
	if !sh.State.CanReturn() && sh.State != ShipmentReturned {
		return nil, shared.NewInvalidTransition(auditShipment, "create_return", string(sh.State),
			string(ShipmentShipped), string(ShipmentDelivered))
	}
	order, err := s.GetOrder(ctx, sh.OrderID)
	if err != nil {
		return nil, err
	}

	returnDate := time.Now()
	if req.ReturnDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.ReturnDate)
		if err != nil {
			return nil, shared.NewValidationError("return_date", "expected YYYY-MM-DD")
		}
		returnDate = parsed
	}

	r := ReturnRequest{
		ShipmentID:    sh.ID,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		ReturnDate:    returnDate,
		Reason:        ReturnReason(req.Reason),
		OtherReason:   req.OtherReason,
		State:         ReturnDraft,
		Notes:         req.Notes,
		CustomerNotes: req.CustomerNotes,
	}
	for _, line := range req.Lines {
		grade := QualityGrade(line.QualityGrade)
		if grade == "" {
			grade = GradeStandard
		}
		r.Lines = append(r.Lines, ReturnLine{
			ProductName:  line.ProductName,
			BatchNumber:  line.BatchNumber,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			QualityGrade: grade,
			Condition:    line.Condition,
			Notes:        line.Notes,
		})
	}
	r.RecomputeTotals()
	if err := r.Validate(); err != nil {
		return nil, err
	}

	r.ReturnNumber, err = s.repo.NextReturnNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("logistics: return number: %w", err)
	}
	id, err := s.repo.CreateReturn(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("logistics: create return: %w", err)
	}
	s.recordTransition(ctx, actor, auditReturn, id, "create", "", string(ReturnDraft))
	return s.GetReturn(ctx, id)
}

// SubmitReturn moves a draft return into review.
func (s *Service) SubmitReturn(ctx context.Context, actor shared.Actor, id int64) (*ReturnRequest, error) {
	return s.transitionReturn(ctx, actor, id, "submit", func(r *ReturnRequest) error {
		if !r.State.CanSubmit() {
			return shared.NewInvalidTransition(auditReturn, "submit", string(r.State), string(ReturnDraft))
		}
		r.State = ReturnSubmitted
		return nil
	})
}

// ApproveReturn accepts a submitted return.
func (s *Service) ApproveReturn(ctx context.Context, actor shared.Actor, id int64) (*ReturnRequest, error) {
	return s.transitionReturn(ctx, actor, id, "approve", func(r *ReturnRequest) error {
		if !r.State.CanApprove() {
			return shared.NewInvalidTransition(auditReturn, "approve", string(r.State), string(ReturnSubmitted))
		}
		now := time.Now()
		approver := actor.Name
		r.State = ReturnApproved
		r.ApprovedBy = &approver
		r.ApprovalDate = &now
		return nil
	})
}

// RejectReturn declines a submitted return with a reason.
func (s *Service) RejectReturn(ctx context.Context, actor shared.Actor, id int64, reason string) (*ReturnRequest, error) {
	if reason == "" {
		return nil, shared.NewValidationError("reason", "required")
	}
	return s.transitionReturn(ctx, actor, id, "reject", func(r *ReturnRequest) error {
		if !r.State.CanReject() {
			return shared.NewInvalidTransition(auditReturn, "reject", string(r.State), string(ReturnSubmitted))
		}
		r.State = ReturnRejected
		r.RejectionReason = &reason
		return nil
	})
}

// ProcessReturn settles an approved return: the shipment flips to returned,
// the commission adjustment is derived from the agent's rate, and every paid
// commission entry of the order receives a negative offset entry. All
// writes land in one transaction.
func (s *Service) ProcessReturn(ctx context.Context, actor shared.Actor, id int64) (*ReturnRequest, error) {
	ret, err := s.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, shared.ShipmentLockKey(ret.ShipmentID))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ret, err = tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrReturnNotFound, id)
			}
			return err
		}
		if !ret.State.CanProcess() {
			return shared.NewInvalidTransition(auditReturn, "process", string(ret.State), string(ReturnApproved))
		}

		order, err := tx.GetOrderForUpdate(ctx, ret.OrderID)
		if err != nil {
			return err
		}
		profile, err := s.agents.AgentProfile(ctx, order.AgentID)
		if err != nil {
			return fmt.Errorf("logistics: agent lookup: %w", err)
		}
		adjustment := commission.Round2(ret.TotalValue * profile.CommissionRate / 100)

		if adjustment > 0 {
			paid, err := tx.ListPaidCommissionEntriesByOrder(ctx, ret.OrderID)
			if err != nil {
				return err
			}
			for i := range paid {
				note := fmt.Sprintf("Return adjustment for %s", ret.ReturnNumber)
				offset, err := commission.NewReturnAdjustment(paid[i], adjustment, note)
				if err != nil {
					return err
				}
				offset.EntryNumber, err = tx.NextCommissionEntryNumber(ctx)
				if err != nil {
					return err
				}
				if _, err := tx.CreateCommissionEntry(ctx, offset); err != nil {
					return fmt.Errorf("logistics: commission offset: %w", err)
				}
			}
		}

		sh, err := tx.GetShipmentForUpdate(ctx, ret.ShipmentID)
		if err != nil {
			return err
		}
		if sh.State.CanReturn() {
			sh.State = ShipmentReturned
			if err := tx.UpdateShipment(ctx, sh); err != nil {
				return err
			}
			order.DeliveryStatus = DeliveryReturned
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return err
			}
		}

		now := time.Now()
		processor := actor.Name
		ret.State = ReturnProcessed
		ret.ProcessedBy = &processor
		ret.ProcessingDate = &now
		ret.CommissionAdjustment = adjustment
		return tx.UpdateReturn(ctx, ret)
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, actor, auditReturn, id, "process", string(ReturnApproved), string(ReturnProcessed))
	s.invalidateRollups(ctx)
	return ret, nil
}

// CompleteReturn finalizes a processed return with the refund details.
func (s *Service) CompleteReturn(ctx context.Context, actor shared.Actor, id int64, req CompleteReturnRequest) (*ReturnRequest, error) {
	method := RefundMethod(req.RefundMethod)
	return s.transitionReturn(ctx, actor, id, "complete", func(r *ReturnRequest) error {
		if !r.State.CanComplete() {
			return shared.NewInvalidTransition(auditReturn, "complete", string(r.State), string(ReturnProcessed))
		}
		r.State = ReturnCompleted
		r.RefundAmount = req.RefundAmount
		r.RefundMethod = &method
		return nil
	})
}

// CancelReturn voids a return request. Completed returns are final.
func (s *Service) CancelReturn(ctx context.Context, actor shared.Actor, id int64) (*ReturnRequest, error) {
	return s.transitionReturn(ctx, actor, id, "cancel", func(r *ReturnRequest) error {
		if !r.State.CanCancel() {
			return shared.NewInvalidTransition(auditReturn, "cancel", string(r.State),
				string(ReturnDraft), string(ReturnSubmitted), string(ReturnApproved), string(ReturnRejected), string(ReturnProcessed))
		}
		r.State = ReturnCancelled
		return nil
	})
}

func (s *Service) transitionReturn(ctx context.Context, actor shared.Actor, id int64, action string, mutate func(*ReturnRequest) error) (*ReturnRequest, error) {
	var (
		ret       *ReturnRequest
		fromState ReturnState
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ret, err = tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrReturnNotFound, id)
			}
			return err
		}
		fromState = ret.State
		if err := mutate(ret); err != nil {
			return err
		}
		return tx.UpdateReturn(ctx, ret)
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, actor, auditReturn, id, action, string(fromState), string(ret.State))
	s.invalidateRollups(ctx)
	return ret, nil
}
