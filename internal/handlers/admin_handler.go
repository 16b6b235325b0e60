package handlers

import (
	"log/slog"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	sweeper  Sweeper
	payments PaymentCommands
}

func NewAdminHandler(sweeper Sweeper, payments PaymentCommands) *AdminHandler {
	return &AdminHandler{sweeper: sweeper, payments: payments}
}

// Sweep runs one timeout pass immediately.
func (h *AdminHandler) Sweep(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Admin access required", nil)
	}

	result, err := h.sweeper.SweepOnce(e.Request.Context())
	if err != nil {
		return respondError(e, err)
	}

	slog.Info("Manual sweep finished", "orders_expired", result.OrdersExpired, "transfers_expired", result.TransfersExpired)
	return ok(e, map[string]any{
		"orders_expired":    result.OrdersExpired,
		"transfers_expired": result.TransfersExpired,
	})
}

func (h *AdminHandler) ApproveRefund(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Admin access required", nil)
	}

	refundID := e.Request.PathValue("refundId")
	if err := h.payments.OnRefundApproved(e.Request.Context(), refundID); err != nil {
		return respondError(e, err)
	}
	return ok(e, map[string]any{"message": "Refund completed", "refund_id": refundID})
}

func (h *AdminHandler) RejectRefund(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Admin access required", nil)
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if e.Request.ContentLength > 0 {
		if err := bind(e, &req); err != nil {
			return err
		}
	}

	refund, err := h.payments.RejectRefund(e.Request.Context(), e.Request.PathValue("refundId"), req.Reason)
	if err != nil {
		return respondError(e, err)
	}
	return ok(e, refund)
}

// ResolveChargeback records the dispute outcome: "won" restores the tickets, "lost" closes the case.
func (h *AdminHandler) ResolveChargeback(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Admin access required", nil)
	}

	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := bind(e, &req); err != nil {
		return err
	}
	if req.Outcome != "won" && req.Outcome != "lost" {
		return respondError(e, status.ErrValidation.WithMeta("field", "outcome"))
	}

	chargebackID := e.Request.PathValue("chargebackId")
	cb, err := h.payments.ResolveChargeback(e.Request.Context(), chargebackID, req.Outcome == "won")
	if err != nil {
		return respondError(e, err)
	}

	slog.Info("Chargeback dispute resolved", "chargeback_id", chargebackID, "outcome", req.Outcome)
	return ok(e, cb)
}
