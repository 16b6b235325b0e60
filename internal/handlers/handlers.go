package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/elpekaan/eventgram-api/internal/services"
	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type OrderCommands interface {
	CreateOrder(ctx context.Context, req services.CreateOrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, userID, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	Tickets(ctx context.Context, orderID string) ([]*models.Ticket, error)
	Availability(ctx context.Context, ticketTypeID string) (*services.Availability, error)
}

type TransferCommands interface {
	CreateTransfer(ctx context.Context, req services.CreateTransferRequest) (*models.Transfer, error)
	ApproveByVenue(ctx context.Context, staffID, transferID string) (*models.Transfer, error)
	RejectByVenue(ctx context.Context, staffID, transferID, reason string) (*models.Transfer, error)
	AcceptByBuyer(ctx context.Context, buyerID, transferID string) (*models.Transfer, error)
	CancelTransfer(ctx context.Context, sellerID, transferID, reason string) (*models.Transfer, error)
	GetTransfer(ctx context.Context, transferID string) (*models.Transfer, error)
}

type CheckInCommands interface {
	CheckIn(ctx context.Context, req services.CheckInRequest) (*services.CheckInResult, error)
	EventStats(ctx context.Context, staffID, eventID string) (*models.CheckInStats, error)
}

type PaymentCommands interface {
	HandleNotification(ctx context.Context, n *models.PaymentNotification) error
	RequestRefund(ctx context.Context, userID, orderID string, reason models.RefundReason, description string) (*models.Refund, error)
	OnRefundApproved(ctx context.Context, refundID string) error
	RejectRefund(ctx context.Context, refundID, reason string) (*models.Refund, error)
	ResolveChargeback(ctx context.Context, chargebackID string, won bool) (*models.Chargeback, error)
}

type Sweeper interface {
	SweepOnce(ctx context.Context) (services.SweepResult, error)
}

type errorBody struct {
	Code     status.Code       `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// respondError renders business-rule errors with their code; anything else is a 500.
func respondError(e *core.RequestEvent, err error) error {
	var se *status.Error
	if errors.As(err, &se) {
		return e.JSON(se.HTTPStatus(), errorBody{Code: se.Code, Message: se.Message, Metadata: se.Metadata})
	}

	slog.Error("Request failed", "error", err, "method", e.Request.Method, "path", e.Request.URL.Path)
	return apis.NewInternalServerError("Something went wrong while processing your request.", nil)
}

func authID(e *core.RequestEvent) (string, error) {
	if e.Auth == nil {
		return "", apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return e.Auth.Id, nil
}

func bind(e *core.RequestEvent, dst any) error {
	if err := e.BindBody(dst); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	return nil
}

func ok(e *core.RequestEvent, data any) error {
	return e.JSON(http.StatusOK, data)
}
