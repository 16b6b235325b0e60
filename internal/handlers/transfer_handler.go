package handlers

import (
	"net/http"

	"github.com/elpekaan/eventgram-api/internal/services"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type TransferHandler struct {
	transfers TransferCommands
}

func NewTransferHandler(transfers TransferCommands) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

func (h *TransferHandler) CreateTransfer(e *core.RequestEvent) error {
	sellerID, err := authID(e)
	if err != nil {
		return err
	}

	var req struct {
		TicketID    string          `json:"ticket_id"`
		BuyerEmail  string          `json:"buyer_email"`
		AskingPrice decimal.Decimal `json:"asking_price"`
		Reason      string          `json:"reason"`
	}
	if err := bind(e, &req); err != nil {
		return err
	}

	transfer, err := h.transfers.CreateTransfer(e.Request.Context(), services.CreateTransferRequest{
		SellerID:    sellerID,
		TicketID:    req.TicketID,
		BuyerEmail:  req.BuyerEmail,
		AskingPrice: req.AskingPrice,
		Reason:      req.Reason,
	})
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, transfer)
}

// GetTransfer is visible to the two parties only.
func (h *TransferHandler) GetTransfer(e *core.RequestEvent) error {
	userID, err := authID(e)
	if err != nil {
		return err
	}

	transfer, err := h.transfers.GetTransfer(e.Request.Context(), e.Request.PathValue("transferId"))
	if err != nil {
		return respondError(e, err)
	}
	if transfer.FromUserID != userID && transfer.ToUserID != userID {
		return apis.NewForbiddenError("Access denied", nil)
	}
	return ok(e, transfer)
}

func (h *TransferHandler) Approve(e *core.RequestEvent) error {
	return h.transition(e, func(userID, id, _ string) (*models.Transfer, error) {
		return h.transfers.ApproveByVenue(e.Request.Context(), userID, id)
	})
}

func (h *TransferHandler) Reject(e *core.RequestEvent) error {
	return h.transition(e, func(userID, id, reason string) (*models.Transfer, error) {
		return h.transfers.RejectByVenue(e.Request.Context(), userID, id, reason)
	})
}

func (h *TransferHandler) Accept(e *core.RequestEvent) error {
	return h.transition(e, func(userID, id, _ string) (*models.Transfer, error) {
		return h.transfers.AcceptByBuyer(e.Request.Context(), userID, id)
	})
}

func (h *TransferHandler) Cancel(e *core.RequestEvent) error {
	return h.transition(e, func(userID, id, reason string) (*models.Transfer, error) {
		return h.transfers.CancelTransfer(e.Request.Context(), userID, id, reason)
	})
}

// transition reads the optional reason body and runs one state change for the caller.
func (h *TransferHandler) transition(e *core.RequestEvent, fn func(userID, transferID, reason string) (*models.Transfer, error)) error {
	userID, err := authID(e)
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if e.Request.ContentLength > 0 {
		if err := bind(e, &req); err != nil {
			return err
		}
	}

	transfer, err := fn(userID, e.Request.PathValue("transferId"), req.Reason)
	if err != nil {
		return respondError(e, err)
	}
	return ok(e, transfer)
}
