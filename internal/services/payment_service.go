package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/elpekaan/eventgram-api/monitoring"
	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

// PaymentService adapts gateway callbacks onto the order and transfer engines.
// Every callback is idempotent on the notification key.
type PaymentService struct {
	dispatcher
	orders    *OrderService
	transfers *TransferService
	ledger    *InventoryLedger
	clock     Clock
	policy    Policy
	monitor   *monitoring.Monitor
}

func NewPaymentService(deps Deps, orders *OrderService, transfers *TransferService, ledger *InventoryLedger) *PaymentService {
	return &PaymentService{
		dispatcher: deps.dispatcher(),
		orders:     orders,
		transfers:  transfers,
		ledger:     ledger,
		clock:      deps.clock(),
		policy:     deps.Policy,
		monitor:    deps.Monitor,
	}
}

// HandleNotification routes a decoded callback to its handler.
func (s *PaymentService) HandleNotification(ctx context.Context, n *models.PaymentNotification) error {
	var err error
	switch n.Type {
	case models.NotifyPaymentSucceeded:
		err = s.OnPaymentSuccess(ctx, n)
	case models.NotifyPaymentFailed:
		err = s.OnPaymentFailure(ctx, n)
	case models.NotifyChargeback:
		err = s.OnChargeback(ctx, n)
	case models.NotifyRefundApproved:
		err = s.OnRefundApproved(ctx, n.RefundID)
	default:
		err = status.ErrValidation.WithMessage("unknown payment notification type %q", n.Type)
	}

	s.monitor.TrackPaymentCallback(string(n.Type), outcome(err))
	if err != nil {
		slog.Warn("Payment notification not applied", "error", err, "type", n.Type, "key", n.Key())
	}
	return err
}

func validateTarget(n *models.PaymentNotification) error {
	if n.Ref.ID == "" || (n.Ref.Kind != models.RefOrder && n.Ref.Kind != models.RefTransfer) {
		return status.ErrPaymentTargetInvalid
	}
	if n.TransactionID == "" {
		return status.ErrValidation.WithMeta("field", "transaction_id")
	}
	return nil
}

// paymentTarget is the locked order or transfer a callback refers to.
type paymentTarget struct {
	order    *models.Order
	transfer *models.Transfer
}

func (s *PaymentService) lockTarget(tx *store.Tx, ref models.PaymentRef) (*paymentTarget, error) {
	if ref.Kind == models.RefOrder {
		order, err := s.orders.lockOrder(tx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &paymentTarget{order: order}, nil
	}
	transfer, err := s.transfers.lockTransfer(tx, ref.ID)
	if err != nil {
		return nil, err
	}
	return &paymentTarget{transfer: transfer}, nil
}

// record stores the payment transaction, reporting false when the key was already processed.
func (s *PaymentService) record(tx *store.Tx, n *models.PaymentNotification, st models.PaymentStatus) (*models.PaymentTransaction, bool, error) {
	_, err := tx.LockPaymentByKey(n.Key())
	if err == nil {
		return nil, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	now := models.At(s.clock.Now())
	p := &models.PaymentTransaction{
		ID:             uuid.NewString(),
		Provider:       n.Provider,
		ProviderRef:    n.TransactionID,
		IdempotencyKey: n.Key(),
		Amount:         n.Amount,
		Status:         st,
		ErrorCode:      n.ErrorCode,
		ProcessedAt:    now,
		CreatedAt:      now,
	}
	if n.Ref.Kind == models.RefOrder {
		p.OrderID = n.Ref.ID
	} else {
		p.TransferID = n.Ref.ID
	}
	if err := tx.InsertPayment(p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// OnPaymentSuccess completes the referenced order or transfer.
func (s *PaymentService) OnPaymentSuccess(ctx context.Context, n *models.PaymentNotification) error {
	if err := validateTarget(n); err != nil {
		return err
	}

	return s.run(ctx, func(tx *store.Tx, out *outbox) error {
		target, err := s.lockTarget(tx, n.Ref)
		if err != nil {
			return err
		}

		payment, fresh, err := s.record(tx, n, models.PaymentSucceeded)
		if err != nil || !fresh {
			return err
		}

		if target.order != nil {
			return s.orders.completeLocked(tx, out, target.order, payment.ID)
		}
		return s.transfers.completeLocked(tx, out, target.transfer, payment.ID)
	})
}

// OnPaymentFailure releases a pending order or cancels a transfer awaiting payment.
// Targets that already moved on are left alone.
func (s *PaymentService) OnPaymentFailure(ctx context.Context, n *models.PaymentNotification) error {
	if err := validateTarget(n); err != nil {
		return err
	}

	return s.run(ctx, func(tx *store.Tx, out *outbox) error {
		target, err := s.lockTarget(tx, n.Ref)
		if err != nil {
			return err
		}

		_, fresh, err := s.record(tx, n, models.PaymentFailed)
		if err != nil || !fresh {
			return err
		}

		if order := target.order; order != nil {
			if order.Status != models.OrderPendingPayment {
				return nil
			}
			return s.orders.releaseLocked(tx, out, order, models.ReleasePaymentFailed)
		}

		transfer := target.transfer
		if transfer.Status != models.TransferPendingPayment {
			return nil
		}
		return s.transfers.endLocked(tx, out, transfer, models.TransferCancelled, "payment failed: "+n.ErrorCode, systemActor)
	})
}

// refundLockReason holds a ticket out of use while its refund is pending.
const refundLockReason = "refund_requested"

// OnChargeback reverses a settled payment. Order tickets become void; a resold ticket is blocked.
func (s *PaymentService) OnChargeback(ctx context.Context, n *models.PaymentNotification) error {
	if n.TransactionID == "" {
		return status.ErrValidation.WithMeta("field", "transaction_id")
	}
	info := n.Chargeback
	if info == nil {
		info = &models.ChargebackInfo{Amount: n.Amount}
	}

	return s.run(ctx, func(tx *store.Tx, out *outbox) error {
		peek, err := tx.SucceededPaymentByRef(n.TransactionID)
		if errors.Is(err, store.ErrNotFound) {
			return status.ErrNotFound.WithMessage("no settled payment for transaction %s", n.TransactionID)
		}
		if err != nil {
			return err
		}
		if peek.Status == models.PaymentChargeback {
			return nil
		}

		var userID string
		var payment *models.PaymentTransaction
		if peek.OrderID != "" {
			order, err := s.orders.lockOrder(tx, peek.OrderID)
			if err != nil {
				return err
			}
			if payment, err = s.lockUnchargedPayment(tx, peek.ID); err != nil || payment == nil {
				return err
			}
			userID, err = s.chargebackOrder(tx, out, order)
			if err != nil {
				return err
			}
		} else {
			transfer, err := s.transfers.lockTransfer(tx, peek.TransferID)
			if err != nil {
				return err
			}
			if payment, err = s.lockUnchargedPayment(tx, peek.ID); err != nil || payment == nil {
				return err
			}
			userID, err = s.chargebackTransfer(tx, transfer)
			if err != nil {
				return err
			}
		}

		now := s.clock.Now()
		payment.Status = models.PaymentChargeback
		payment.ProcessedAt = models.At(now)
		if err := tx.SavePaymentStatus(payment); err != nil {
			return err
		}

		amount := info.Amount
		if amount.IsZero() {
			amount = payment.Amount
		}
		cb := &models.Chargeback{
			ID:                   uuid.NewString(),
			PaymentTransactionID: payment.ID,
			OrderID:              payment.OrderID,
			TransferID:           payment.TransferID,
			CaseID:               info.CaseID,
			ReasonCode:           info.ReasonCode,
			Reason:               info.Reason,
			Amount:               amount,
			Status:               models.ChargebackOpen,
			ReceivedAt:           models.At(now),
		}
		if err := tx.InsertChargeback(cb); err != nil {
			return err
		}

		slog.Warn("Chargeback recorded", "payment_id", payment.ID, "case_id", info.CaseID, "reason_code", info.ReasonCode)
		out.notify(Notification{
			Type:       NotifyChargeback,
			UserID:     userID,
			EntityID:   payment.ID,
			Payload:    map[string]any{"case_id": info.CaseID, "amount": amount.StringFixed(2), "chargeback_id": cb.ID},
			OccurredAt: now,
		})
		return nil
	})
}

// lockUnchargedPayment re-reads the payment under lock. A nil payment means a
// concurrent callback already recorded the chargeback.
func (s *PaymentService) lockUnchargedPayment(tx *store.Tx, id string) (*models.PaymentTransaction, error) {
	payment, err := tx.LockPayment(id)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentChargeback {
		return nil, nil
	}
	return payment, nil
}

func (s *PaymentService) chargebackOrder(tx *store.Tx, out *outbox, order *models.Order) (string, error) {
	peek, err := tx.TicketsByOrder(order.ID)
	if err != nil {
		return "", err
	}
	for _, t := range peek {
		if err := s.transfers.cancelActiveForTicket(tx, out, t.ID, "payment charged back"); err != nil {
			return "", err
		}
	}

	tickets, err := tx.LockOrderTickets(order.ID)
	if err != nil {
		return "", err
	}
	now := models.At(s.clock.Now())
	for _, t := range tickets {
		t.Status = models.TicketChargeback
		t.Unlock()
		t.UpdatedAt = now
		if err := tx.SaveTicket(t); err != nil {
			return "", err
		}
	}

	order.Status = models.OrderChargeback
	order.UpdatedAt = now
	return order.UserID, tx.SaveOrderState(order)
}

func (s *PaymentService) chargebackTransfer(tx *store.Tx, transfer *models.Transfer) (string, error) {
	ticket, err := tx.LockTicket(transfer.TicketID)
	if err != nil {
		return "", err
	}
	ticket.Status = models.TicketBlocked
	ticket.UpdatedAt = models.At(s.clock.Now())
	return transfer.ToUserID, tx.SaveTicket(ticket)
}

// ResolveChargeback closes a dispute. A won dispute restores the order or
// resold ticket and the payment; a lost one only closes the case.
func (s *PaymentService) ResolveChargeback(ctx context.Context, chargebackID string, won bool) (*models.Chargeback, error) {
	if chargebackID == "" {
		return nil, status.ErrValidation.WithMeta("field", "chargeback_id")
	}
	resolution := models.ChargebackLost
	if won {
		resolution = models.ChargebackWon
	}

	var cb *models.Chargeback
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		peek, err := tx.GetChargeback(chargebackID)
		if errors.Is(err, store.ErrNotFound) {
			return status.ErrNotFound.WithMessage("chargeback %s not found", chargebackID)
		}
		if err != nil {
			return err
		}

		var order *models.Order
		var transfer *models.Transfer
		if peek.OrderID != "" {
			if order, err = s.orders.lockOrder(tx, peek.OrderID); err != nil {
				return err
			}
		} else {
			if transfer, err = s.transfers.lockTransfer(tx, peek.TransferID); err != nil {
				return err
			}
		}

		if cb, err = tx.LockChargeback(chargebackID); err != nil {
			return err
		}
		if cb.Status == resolution {
			return nil
		}
		if cb.Status != models.ChargebackOpen {
			return status.ErrChargebackResolved.WithMeta("status", string(cb.Status))
		}

		now := models.At(s.clock.Now())
		var userID string
		if order != nil {
			userID = order.UserID
		} else {
			userID = transfer.ToUserID
		}

		if won {
			if order != nil {
				err = s.restoreOrder(tx, order, now)
			} else {
				err = s.restoreResoldTicket(tx, transfer, now)
			}
			if err != nil {
				return err
			}

			payment, err := tx.LockPayment(cb.PaymentTransactionID)
			if err != nil {
				return err
			}
			payment.Status = models.PaymentSucceeded
			payment.ProcessedAt = now
			if err := tx.SavePaymentStatus(payment); err != nil {
				return err
			}
		}

		cb.Status = resolution
		cb.ResolvedAt = now
		if err := tx.SaveChargebackStatus(cb); err != nil {
			return err
		}

		slog.Info("Chargeback resolved", "chargeback_id", cb.ID, "case_id", cb.CaseID, "status", cb.Status)
		out.notify(Notification{
			Type:       NotifyChargebackClosed,
			UserID:     userID,
			EntityID:   cb.ID,
			Payload:    map[string]any{"case_id": cb.CaseID, "status": string(cb.Status)},
			OccurredAt: now.Time(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cb, nil
}

func (s *PaymentService) restoreOrder(tx *store.Tx, order *models.Order, now types.DateTime) error {
	if order.Status != models.OrderChargeback {
		return status.ErrChargebackResolved.WithMeta("order_status", string(order.Status))
	}
	tickets, err := tx.LockOrderTickets(order.ID)
	if err != nil {
		return err
	}
	for _, t := range tickets {
		if t.Status != models.TicketChargeback {
			continue
		}
		t.Status = models.TicketActive
		t.UpdatedAt = now
		if err := tx.SaveTicket(t); err != nil {
			return err
		}
	}
	order.Status = models.OrderCompleted
	order.UpdatedAt = now
	return tx.SaveOrderState(order)
}

func (s *PaymentService) restoreResoldTicket(tx *store.Tx, transfer *models.Transfer, now types.DateTime) error {
	ticket, err := tx.LockTicket(transfer.TicketID)
	if err != nil {
		return err
	}
	if ticket.Status != models.TicketBlocked {
		return nil
	}
	ticket.Status = models.TicketActive
	ticket.UpdatedAt = now
	return tx.SaveTicket(ticket)
}

// checkRefundable requires every ticket to be active, untransferred and still
// owned by the buyer. A lock is tolerated only when its reason is heldBy.
func checkRefundable(tickets []*models.Ticket, buyerID, heldBy string) error {
	for _, t := range tickets {
		switch {
		case t.Status != models.TicketActive:
			return status.ErrRefundNotEligible.WithMeta("reason", "ticket_"+string(t.Status))
		case t.IsLocked && (heldBy == "" || t.LockedReason != heldBy):
			return status.ErrRefundNotEligible.WithMeta("reason", status.ReasonLocked)
		case t.IsTransferred || t.OwnerID != buyerID:
			return status.ErrRefundNotEligible.WithMeta("reason", status.ReasonAlreadyTransferred)
		}
	}
	return nil
}

// RequestRefund opens a refund for a completed order whose tickets are all
// untouched, and holds those tickets until the refund is decided.
func (s *PaymentService) RequestRefund(ctx context.Context, userID, orderID string, reason models.RefundReason, description string) (*models.Refund, error) {
	if reason != models.RefundUserInitiated && reason != models.RefundEventCancelled {
		return nil, status.ErrValidation.WithMeta("field", "reason")
	}

	var refund *models.Refund
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		order, err := s.orders.lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return status.ErrUnauthorized.WithMessage("order %s belongs to another user", orderID)
		}
		if order.Status != models.OrderCompleted {
			return status.ErrRefundNotEligible.WithMeta("status", string(order.Status))
		}

		tickets, err := tx.LockOrderTickets(order.ID)
		if err != nil {
			return err
		}
		if err := checkRefundable(tickets, order.UserID, ""); err != nil {
			return err
		}

		fee := decimal.Zero
		if reason == models.RefundUserInitiated {
			fee = order.Total.Mul(s.policy.RefundFeeRate).Round(2)
		}

		now := models.At(s.clock.Now())
		refund = &models.Refund{
			ID:                   uuid.NewString(),
			OrderID:              order.ID,
			UserID:               userID,
			PaymentTransactionID: order.PaymentTransactionID,
			Reason:               reason,
			Description:          description,
			RequestedAmount:      order.Total,
			ProcessingFee:        fee,
			RefundAmount:         order.Total.Sub(fee),
			Status:               models.RefundPending,
			CreatedAt:            now,
		}
		if err := tx.InsertRefund(refund); err != nil {
			return err
		}

		for _, t := range tickets {
			t.Lock(refundLockReason)
			t.UpdatedAt = now
			if err := tx.SaveTicket(t); err != nil {
				return err
			}
		}

		order.Status = models.OrderRefundRequested
		order.UpdatedAt = now
		return tx.SaveOrderState(order)
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// lockPendingRefund locks the refund and its order. A nil refund with a nil
// error means the refund already reached want.
func (s *PaymentService) lockPendingRefund(tx *store.Tx, refundID string, want models.RefundStatus) (*models.Refund, *models.Order, error) {
	peek, err := tx.GetRefund(refundID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, status.ErrNotFound.WithMessage("refund %s not found", refundID)
	}
	if err != nil {
		return nil, nil, err
	}

	order, err := s.orders.lockOrder(tx, peek.OrderID)
	if err != nil {
		return nil, nil, err
	}
	refund, err := tx.LockRefund(refundID)
	if err != nil {
		return nil, nil, err
	}
	if refund.Status == want {
		return nil, order, nil
	}
	if refund.Status != models.RefundPending || order.Status != models.OrderRefundRequested {
		return nil, nil, status.ErrRefundNotEligible.
			WithMeta("status", string(order.Status)).
			WithMeta("refund_status", string(refund.Status))
	}
	return refund, order, nil
}

// OnRefundApproved settles a pending refund and puts the seats back on sale.
func (s *PaymentService) OnRefundApproved(ctx context.Context, refundID string) error {
	if refundID == "" {
		return status.ErrValidation.WithMeta("field", "refund_id")
	}

	return s.run(ctx, func(tx *store.Tx, out *outbox) error {
		refund, order, err := s.lockPendingRefund(tx, refundID, models.RefundCompleted)
		if err != nil || refund == nil {
			return err
		}

		tickets, err := tx.LockOrderTickets(order.ID)
		if err != nil {
			return err
		}
		if err := checkRefundable(tickets, order.UserID, refundLockReason); err != nil {
			return err
		}

		now := models.At(s.clock.Now())
		for _, t := range tickets {
			t.Status = models.TicketRefunded
			t.Unlock()
			t.UpdatedAt = now
			if err := tx.SaveTicket(t); err != nil {
				return err
			}
		}

		returned, err := s.ledger.RefundSold(tx, order.TicketTypeID, order.Quantity)
		if err != nil {
			return err
		}
		if err := tx.AdjustEventCounters(order.EventID, -returned, 0); err != nil {
			return err
		}

		order.Status = models.OrderRefunded
		order.UpdatedAt = now
		if err := tx.SaveOrderState(order); err != nil {
			return err
		}

		if order.PaymentTransactionID != "" {
			payment, err := tx.LockPayment(order.PaymentTransactionID)
			switch {
			case err == nil:
				payment.Status = models.PaymentRefunded
				payment.ProcessedAt = now
				if err := tx.SavePaymentStatus(payment); err != nil {
					return err
				}
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		refund.Status = models.RefundCompleted
		refund.CompletedAt = now
		if err := tx.SaveRefundStatus(refund); err != nil {
			return err
		}

		out.invalidate(order.TicketTypeID)
		out.notify(Notification{
			Type:       NotifyRefundCompleted,
			UserID:     order.UserID,
			EntityID:   refund.ID,
			Payload:    map[string]any{"order_id": order.ID, "amount": refund.RefundAmount.StringFixed(2)},
			OccurredAt: now.Time(),
		})
		return nil
	})
}

// RejectRefund declines a pending refund and hands the tickets back to the buyer.
func (s *PaymentService) RejectRefund(ctx context.Context, refundID, reason string) (*models.Refund, error) {
	if refundID == "" {
		return nil, status.ErrValidation.WithMeta("field", "refund_id")
	}

	var rejected *models.Refund
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		refund, order, err := s.lockPendingRefund(tx, refundID, models.RefundRejected)
		if err != nil {
			return err
		}
		if refund == nil {
			rejected, err = tx.GetRefund(refundID)
			return err
		}

		tickets, err := tx.LockOrderTickets(order.ID)
		if err != nil {
			return err
		}
		now := models.At(s.clock.Now())
		for _, t := range tickets {
			if !t.IsLocked || t.LockedReason != refundLockReason {
				continue
			}
			t.Unlock()
			t.UpdatedAt = now
			if err := tx.SaveTicket(t); err != nil {
				return err
			}
		}

		order.Status = models.OrderCompleted
		order.UpdatedAt = now
		if err := tx.SaveOrderState(order); err != nil {
			return err
		}

		refund.Status = models.RefundRejected
		refund.RejectionReason = reason
		refund.CompletedAt = now
		if err := tx.SaveRefundStatus(refund); err != nil {
			return err
		}
		rejected = refund

		out.notify(Notification{
			Type:       NotifyRefundRejected,
			UserID:     order.UserID,
			EntityID:   refund.ID,
			Payload:    map[string]any{"order_id": order.ID, "reason": reason},
			OccurredAt: now.Time(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}
