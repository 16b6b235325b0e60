package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

func stripeEvent(t *testing.T, eventType string, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":     "evt_1",
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func webhookEvent(payload []byte, signature string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func signed(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret}).Header
}

func TestStripeWebhook_PaymentSucceeded(t *testing.T) {
	payments := &MockPayments{}
	h := NewPaymentHandler(payments, testSecret)

	payload := stripeEvent(t, "payment_intent.succeeded", map[string]any{
		"id":       "pi_123",
		"object":   "payment_intent",
		"amount":   11000,
		"metadata": map[string]string{"order_id": "o-1"},
	})

	payments.On("HandleNotification", mock.Anything, mock.MatchedBy(func(n *models.PaymentNotification) bool {
		return n.Type == models.NotifyPaymentSucceeded &&
			n.Ref == models.PaymentRef{Kind: models.RefOrder, ID: "o-1"} &&
			n.TransactionID == "pi_123" &&
			n.Amount.StringFixed(2) == "110.00"
	})).Return(nil)

	e, rec := webhookEvent(payload, signed(payload))
	require.NoError(t, h.StripeWebhook(e))

	assert.Equal(t, http.StatusOK, rec.Code)
	payments.AssertExpectations(t)
}

func TestStripeWebhook_PaymentFailedCarriesCode(t *testing.T) {
	payments := &MockPayments{}
	h := NewPaymentHandler(payments, testSecret)

	payload := stripeEvent(t, "payment_intent.payment_failed", map[string]any{
		"id":                 "pi_9",
		"object":             "payment_intent",
		"metadata":           map[string]string{"transfer_id": "tr-1"},
		"last_payment_error": map[string]any{"code": "card_declined"},
	})

	payments.On("HandleNotification", mock.Anything, mock.MatchedBy(func(n *models.PaymentNotification) bool {
		return n.Type == models.NotifyPaymentFailed && n.Ref.Kind == models.RefTransfer && n.ErrorCode == "card_declined"
	})).Return(nil)

	e, _ := webhookEvent(payload, signed(payload))
	require.NoError(t, h.StripeWebhook(e))
	payments.AssertExpectations(t)
}

func TestStripeWebhook_Dispute(t *testing.T) {
	payments := &MockPayments{}
	h := NewPaymentHandler(payments, testSecret)

	payload := stripeEvent(t, "charge.dispute.created", map[string]any{
		"id":             "dp_1",
		"object":         "dispute",
		"amount":         11000,
		"reason":         "fraudulent",
		"payment_intent": "pi_123",
	})

	payments.On("HandleNotification", mock.Anything, mock.MatchedBy(func(n *models.PaymentNotification) bool {
		return n.Type == models.NotifyChargeback && n.TransactionID == "pi_123" &&
			n.Chargeback != nil && n.Chargeback.CaseID == "dp_1" && n.Chargeback.ReasonCode == "fraudulent"
	})).Return(nil)

	e, _ := webhookEvent(payload, signed(payload))
	require.NoError(t, h.StripeWebhook(e))
	payments.AssertExpectations(t)
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	h := NewPaymentHandler(&MockPayments{}, testSecret)

	payload := stripeEvent(t, "payment_intent.succeeded", map[string]any{"id": "pi_1", "object": "payment_intent"})
	e, rec := webhookEvent(payload, "t=1,v1=deadbeef")
	require.NoError(t, h.StripeWebhook(e))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_SIGNATURE", decodeBody(t, rec)["code"])
}

func TestStripeWebhook_IgnoresOtherEvents(t *testing.T) {
	payments := &MockPayments{}
	h := NewPaymentHandler(payments, testSecret)

	payload := stripeEvent(t, "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
	e, rec := webhookEvent(payload, signed(payload))
	require.NoError(t, h.StripeWebhook(e))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	payments.AssertNotCalled(t, "HandleNotification", mock.Anything, mock.Anything)
}

func TestRefFromMetadata(t *testing.T) {
	assert.Equal(t, models.PaymentRef{}, refFromMetadata(map[string]string{"order_id": "o", "transfer_id": "t"}))
	assert.Equal(t, models.PaymentRef{}, refFromMetadata(nil))
}
