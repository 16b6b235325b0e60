package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/elpekaan/eventgram-api/monitoring"
	"github.com/elpekaan/eventgram-api/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxOrderNumberAttempts = 5

type CreateOrderRequest struct {
	UserID       string          `json:"user_id"`
	TicketTypeID string          `json:"ticket_type_id"`
	Quantity     int             `json:"quantity"`
	Discount     decimal.Decimal `json:"discount"`
}

func (r *CreateOrderRequest) validate() error {
	switch {
	case r.UserID == "":
		return status.ErrValidation.WithMeta("field", "user_id")
	case r.TicketTypeID == "":
		return status.ErrValidation.WithMeta("field", "ticket_type_id")
	case r.Quantity <= 0:
		return status.ErrValidation.WithMessage("quantity must be positive").WithMeta("field", "quantity")
	case r.Discount.IsNegative():
		return status.ErrValidation.WithMessage("discount cannot be negative").WithMeta("field", "discount")
	}
	return nil
}

// OrderService is the order engine: it reserves stock, and completes or releases pending orders.
type OrderService struct {
	dispatcher
	ledger  *InventoryLedger
	issuer  *TicketIssuer
	clock   Clock
	policy  Policy
	monitor *monitoring.Monitor
}

func NewOrderService(deps Deps, ledger *InventoryLedger, issuer *TicketIssuer) *OrderService {
	return &OrderService{
		dispatcher: deps.dispatcher(),
		ledger:     ledger,
		issuer:     issuer,
		clock:      deps.clock(),
		policy:     deps.Policy,
		monitor:    deps.Monitor,
	}
}

// CreateOrder reserves req.Quantity units and opens a pending order that holds them
// for the reservation window.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		s.monitor.TrackOrderOperation("create", outcome(err))
		return nil, err
	}

	var order *models.Order
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		tt, err := s.ledger.Lock(tx, req.TicketTypeID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if !tt.OnSale(now) {
			return status.ErrSalesClosed.WithMeta("ticket_type_id", tt.ID)
		}
		if !tt.AcceptsQuantity(req.Quantity) {
			return status.ErrQuantityExceedsLimit.
				WithMeta("min", strconv.Itoa(max(1, tt.MinPerOrder))).
				WithMeta("max", strconv.Itoa(tt.MaxPerOrder))
		}

		if _, err := s.ledger.Reserve(tx, tt.ID, req.Quantity); err != nil {
			return err
		}

		number, err := s.orderNumber(tx, now)
		if err != nil {
			return err
		}

		subtotal, total := models.Price(req.Quantity, tt.Price, tt.ServiceFee, req.Discount)
		stamp := models.At(now)
		order = &models.Order{
			ID:           uuid.NewString(),
			OrderNumber:  number,
			UserID:       req.UserID,
			EventID:      tt.EventID,
			TicketTypeID: tt.ID,
			Quantity:     req.Quantity,
			UnitPrice:    tt.Price,
			ServiceFee:   tt.ServiceFee,
			Subtotal:     subtotal,
			Discount:     req.Discount,
			Total:        total,
			Status:       models.OrderPendingPayment,
			ExpiresAt:    models.At(now.Add(s.policy.ReservationWindow)),
			CreatedAt:    stamp,
			UpdatedAt:    stamp,
		}
		if err := tx.InsertOrder(order); err != nil {
			return err
		}

		out.invalidate(tt.ID)
		return nil
	})

	s.monitor.TrackOrderOperation("create", outcome(err))
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) orderNumber(tx *store.Tx, now time.Time) (string, error) {
	for range maxOrderNumberAttempts {
		suffix, err := utils.GenerateCode(3)
		if err != nil {
			return "", fmt.Errorf("generate order number: %w", err)
		}

		number := fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
		taken, err := tx.OrderNumberExists(number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
	return "", fmt.Errorf("order number: no free number after %d attempts", maxOrderNumberAttempts)
}

// CompleteOrder confirms the sale and issues tickets. Completing twice with the same
// payment transaction is a no-op.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID, paymentTransactionID string) error {
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		order, err := s.lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		return s.completeLocked(tx, out, order, paymentTransactionID)
	})
	s.monitor.TrackOrderOperation("complete", outcome(err))
	return err
}

// lockOrder takes the ticket type lock before the order lock.
func (s *OrderService) lockOrder(tx *store.Tx, orderID string) (*models.Order, error) {
	peek, err := tx.GetOrder(orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrNotFound.WithMessage("order %s not found", orderID)
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.Lock(tx, peek.TicketTypeID); err != nil {
		return nil, err
	}
	return tx.LockOrder(orderID)
}

func (s *OrderService) completeLocked(tx *store.Tx, out *outbox, order *models.Order, paymentTransactionID string) error {
	if order.Status == models.OrderCompleted && order.PaymentTransactionID == paymentTransactionID {
		return nil
	}
	if order.Status != models.OrderPendingPayment {
		return status.ErrOrderNotPending.WithMeta("status", string(order.Status))
	}

	if _, err := s.ledger.ConfirmSale(tx, order.TicketTypeID, order.Quantity); err != nil {
		return err
	}
	if err := tx.AdjustEventCounters(order.EventID, order.Quantity, 0); err != nil {
		return err
	}

	now := models.At(s.clock.Now())
	order.Status = models.OrderCompleted
	order.PaymentTransactionID = paymentTransactionID
	order.CompletedAt = now
	order.UpdatedAt = now
	if err := tx.SaveOrderState(order); err != nil {
		return err
	}

	tickets, err := s.issuer.Issue(tx, order)
	if err != nil {
		return err
	}

	codes := make([]string, len(tickets))
	for i, t := range tickets {
		codes[i] = t.Code
	}

	out.invalidate(order.TicketTypeID)
	out.notify(Notification{
		Type:     NotifyOrderCompleted,
		UserID:   order.UserID,
		EntityID: order.ID,
		Payload: map[string]any{
			"order_number": order.OrderNumber,
			"tickets":      codes,
		},
		OccurredAt: now.Time(),
	})
	return nil
}

// ExpireOrRelease gives a pending order's reservation back and closes it.
func (s *OrderService) ExpireOrRelease(ctx context.Context, orderID string, reason models.ReleaseReason) error {
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		order, err := s.lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		return s.releaseLocked(tx, out, order, reason)
	})
	s.monitor.TrackOrderOperation(string(reason), outcome(err))
	return err
}

// CancelOrder lets the buyer abandon their own pending order.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID string) error {
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		order, err := s.lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return status.ErrUnauthorized.WithMessage("order %s belongs to another user", orderID)
		}
		return s.releaseLocked(tx, out, order, models.ReleaseUserCancelled)
	})
	s.monitor.TrackOrderOperation("cancel", outcome(err))
	return err
}

func (s *OrderService) releaseLocked(tx *store.Tx, out *outbox, order *models.Order, reason models.ReleaseReason) error {
	if order.Status != models.OrderPendingPayment {
		return status.ErrOrderNotCancelable.WithMeta("status", string(order.Status))
	}

	if _, err := s.ledger.Release(tx, order.TicketTypeID, order.Quantity); err != nil {
		return err
	}

	now := models.At(s.clock.Now())
	order.Status = reason.Status()
	order.CancelReason = string(reason)
	order.CancelledAt = now
	order.UpdatedAt = now
	if err := tx.SaveOrderState(order); err != nil {
		return err
	}

	slog.Info("Order released", "order_id", order.ID, "reason", reason, "quantity", order.Quantity)

	out.invalidate(order.TicketTypeID)
	out.notify(Notification{
		Type:       NotifyOrderReleased,
		UserID:     order.UserID,
		EntityID:   order.ID,
		Payload:    map[string]any{"reason": string(reason), "status": string(order.Status)},
		OccurredAt: now.Time(),
	})
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.Read(ctx).GetOrder(orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrNotFound.WithMessage("order %s not found", orderID)
	}
	return order, err
}

func (s *OrderService) Tickets(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	return s.store.Read(ctx).TicketsByOrder(orderID)
}

// Availability serves the display read model, preferring the cache.
func (s *OrderService) Availability(ctx context.Context, ticketTypeID string) (*Availability, error) {
	if s.cache != nil {
		if a, ok := s.cache.Get(ctx, ticketTypeID); ok {
			return a, nil
		}
	}

	tt, err := s.store.Read(ctx).GetTicketType(ticketTypeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrNotFound.WithMessage("ticket type %s not found", ticketTypeID)
	}
	if err != nil {
		return nil, err
	}

	a := availabilityOf(tt, s.clock.Now())
	if s.cache != nil {
		s.cache.Set(ctx, a)
	}
	return a, nil
}
