package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const maxWebhookBody = 65536

// PaymentHandler receives card gateway webhooks and turns them into payment callbacks.
type PaymentHandler struct {
	payments      PaymentCommands
	webhookSecret string
}

func NewPaymentHandler(payments PaymentCommands, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{payments: payments, webhookSecret: webhookSecret}
}

func (h *PaymentHandler) StripeWebhook(e *core.RequestEvent) error {
	payload, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return apis.NewBadRequestError("Failed to read request body", err)
	}

	event, err := webhook.ConstructEventWithOptions(payload, e.Request.Header.Get("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		slog.Warn("Rejected webhook signature", "error", err)
		return respondError(e, status.Wrap(status.ErrInvalidSignature, err))
	}

	n, err := notificationFromStripe(event)
	if err != nil {
		return respondError(e, err)
	}
	if n == nil {
		slog.Debug("Ignoring webhook event", "type", event.Type, "id", event.ID)
		return e.NoContent(http.StatusNoContent)
	}

	if err := h.payments.HandleNotification(e.Request.Context(), n); err != nil {
		return respondError(e, err)
	}
	return ok(e, map[string]any{"received": true})
}

// notificationFromStripe maps the event types the engine cares about; others yield nil.
func notificationFromStripe(event stripe.Event) (*models.PaymentNotification, error) {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, status.ErrValidation.WithMessage("malformed payment intent: %v", err)
		}

		n := &models.PaymentNotification{
			Type:          models.NotifyPaymentSucceeded,
			Ref:           refFromMetadata(pi.Metadata),
			Provider:      "stripe",
			TransactionID: pi.ID,
			Amount:        decimal.New(pi.Amount, -2),
		}
		if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
			n.Type = models.NotifyPaymentFailed
			n.ErrorCode = "card_declined"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Code != "" {
				n.ErrorCode = string(pi.LastPaymentError.Code)
			}
		}
		return n, nil

	case stripe.EventTypeChargeDisputeCreated:
		var d stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &d); err != nil {
			return nil, status.ErrValidation.WithMessage("malformed dispute: %v", err)
		}
		if d.PaymentIntent == nil {
			return nil, status.ErrValidation.WithMeta("field", "payment_intent")
		}

		amount := decimal.New(d.Amount, -2)
		return &models.PaymentNotification{
			Type:          models.NotifyChargeback,
			Provider:      "stripe",
			TransactionID: d.PaymentIntent.ID,
			Amount:        amount,
			Chargeback: &models.ChargebackInfo{
				CaseID:     d.ID,
				ReasonCode: string(d.Reason),
				Reason:     fmt.Sprintf("card dispute: %s", d.Reason),
				Amount:     amount,
			},
		}, nil

	case stripe.EventTypeRefundCreated:
		var r stripe.Refund
		if err := json.Unmarshal(event.Data.Raw, &r); err != nil {
			return nil, status.ErrValidation.WithMessage("malformed refund: %v", err)
		}
		refundID := r.Metadata["refund_id"]
		if refundID == "" {
			return nil, status.ErrValidation.WithMeta("field", "refund_id")
		}
		return &models.PaymentNotification{
			Type:          models.NotifyRefundApproved,
			Provider:      "stripe",
			TransactionID: r.ID,
			RefundID:      refundID,
		}, nil
	}
	return nil, nil
}

func refFromMetadata(md map[string]string) models.PaymentRef {
	switch {
	case md["order_id"] != "" && md["transfer_id"] == "":
		return models.PaymentRef{Kind: models.RefOrder, ID: md["order_id"]}
	case md["transfer_id"] != "" && md["order_id"] == "":
		return models.PaymentRef{Kind: models.RefTransfer, ID: md["transfer_id"]}
	}
	// Invalid on purpose; the payment service rejects it as PAYMENT_TARGET_INVALID.
	return models.PaymentRef{}
}
