package handlers

import (
	"net/http"

	"github.com/elpekaan/eventgram-api/internal/services"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	orders   OrderCommands
	payments PaymentCommands
}

func NewOrderHandler(orders OrderCommands, payments PaymentCommands) *OrderHandler {
	return &OrderHandler{orders: orders, payments: payments}
}

// CreateOrder reserves stock and opens a pending order for the caller.
func (h *OrderHandler) CreateOrder(e *core.RequestEvent) error {
	userID, err := authID(e)
	if err != nil {
		return err
	}

	var req struct {
		TicketTypeID string          `json:"ticket_type_id"`
		Quantity     int             `json:"quantity"`
		Discount     decimal.Decimal `json:"discount"`
	}
	if err := bind(e, &req); err != nil {
		return err
	}

	order, err := h.orders.CreateOrder(e.Request.Context(), services.CreateOrderRequest{
		UserID:       userID,
		TicketTypeID: req.TicketTypeID,
		Quantity:     req.Quantity,
		Discount:     req.Discount,
	})
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(e *core.RequestEvent) error {
	userID, err := authID(e)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	order, err := h.orders.GetOrder(ctx, e.Request.PathValue("orderId"))
	if err != nil {
		return respondError(e, err)
	}
	if order.UserID != userID {
		return apis.NewForbiddenError("Access denied", nil)
	}

	tickets, err := h.orders.Tickets(ctx, order.ID)
	if err != nil {
		return respondError(e, err)
	}
	return ok(e, map[string]any{"order": order, "tickets": tickets})
}

func (h *OrderHandler) CancelOrder(e *core.RequestEvent) error {
	userID, err := authID(e)
	if err != nil {
		return err
	}

	if err := h.orders.CancelOrder(e.Request.Context(), userID, e.Request.PathValue("orderId")); err != nil {
		return respondError(e, err)
	}
	return ok(e, map[string]any{"message": "Order cancelled"})
}

// Availability is public; it may be served from cache.
func (h *OrderHandler) Availability(e *core.RequestEvent) error {
	a, err := h.orders.Availability(e.Request.Context(), e.Request.PathValue("ticketTypeId"))
	if err != nil {
		return respondError(e, err)
	}
	return ok(e, a)
}

func (h *OrderHandler) RequestRefund(e *core.RequestEvent) error {
	userID, err := authID(e)
	if err != nil {
		return err
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := bind(e, &req); err != nil {
		return err
	}

	refund, err := h.payments.RequestRefund(e.Request.Context(), userID, e.Request.PathValue("orderId"), models.RefundUserInitiated, req.Description)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusAccepted, refund)
}
