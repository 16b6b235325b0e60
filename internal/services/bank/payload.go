package bank

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elpekaan/eventgram-api/models"
	"github.com/shopspring/decimal"
)

// Provider names the bank whose QR rail delivered a callback.
type Provider string

const (
	ProviderJDB Provider = "jdb"
	ProviderLDB Provider = "ldb"
)

type (
	// envelope is what the bank bridge publishes on the notification channel.
	envelope struct {
		Provider Provider        `json:"provider"`
		Data     json.RawMessage `json:"data"`
	}

	jdbPayload struct {
		RefID     string          `json:"refNo"`
		BillNo    string          `json:"billNumber"`
		FCCRef    string          `json:"exReferenceNo"`
		Ccy       string          `json:"sourceCurrency"`
		Payer     string          `json:"sourceName"`
		Amount    decimal.Decimal `json:"txnAmount"`
		CreatedAt string          `json:"txnDateTime"`
		Status    string          `json:"status"`
		ErrorCode string          `json:"errorCode"`
	}

	ldbPayload struct {
		PartnerOrderID   string    `json:"partnerOrderID"`
		PartnerPaymentID string    `json:"partnerPaymentID"`
		TxnItem          []ldbItem `json:"txnItem"`
	}

	ldbItem struct {
		ProcessingStatus string          `json:"processingStatus"`
		PaymentBank      string          `json:"paymentBank"`
		PaymentAt        string          `json:"paymentAt"`
		PaymentReference string          `json:"paymentReference"`
		Amount           decimal.Decimal `json:"amount"`
		Currency         string          `json:"currency"`
	}
)

// ParseRef reads a bill reference of the form "order:<id>" or "transfer:<id>".
func ParseRef(s string) (models.PaymentRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return models.PaymentRef{}, fmt.Errorf("bank: malformed bill reference %q", s)
	}
	switch models.PaymentRefKind(kind) {
	case models.RefOrder, models.RefTransfer:
		return models.PaymentRef{Kind: models.PaymentRefKind(kind), ID: id}, nil
	}
	return models.PaymentRef{}, fmt.Errorf("bank: unknown reference kind %q", kind)
}

// Decode turns a raw channel message into a payment notification.
func Decode(raw []byte) (*models.PaymentNotification, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("bank: decode envelope: %w", err)
	}

	switch env.Provider {
	case ProviderJDB, "":
		var p jdbPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("bank: decode jdb payload: %w", err)
		}
		return p.toNotification()
	case ProviderLDB:
		var p ldbPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("bank: decode ldb payload: %w", err)
		}
		return p.toNotification()
	}
	return nil, fmt.Errorf("bank: unsupported provider %q", env.Provider)
}

func (p *jdbPayload) toNotification() (*models.PaymentNotification, error) {
	ref, err := ParseRef(p.BillNo)
	if err != nil {
		return nil, err
	}
	if p.RefID == "" {
		return nil, fmt.Errorf("bank: jdb payload without refNo")
	}

	n := &models.PaymentNotification{
		Type:          models.NotifyPaymentSucceeded,
		Ref:           ref,
		Provider:      string(ProviderJDB),
		TransactionID: p.RefID,
		Amount:        p.Amount,
	}
	if p.Status != "" && !strings.EqualFold(p.Status, "success") {
		n.Type = models.NotifyPaymentFailed
		n.ErrorCode = p.ErrorCode
		if n.ErrorCode == "" {
			n.ErrorCode = strings.ToLower(p.Status)
		}
	}
	return n, nil
}

func (p *ldbPayload) toNotification() (*models.PaymentNotification, error) {
	ref, err := ParseRef(p.PartnerOrderID)
	if err != nil {
		return nil, err
	}
	if len(p.TxnItem) == 0 {
		return nil, fmt.Errorf("bank: ldb payload without transaction items")
	}

	item := p.TxnItem[0]
	txnID := item.PaymentReference
	if txnID == "" {
		txnID = p.PartnerPaymentID
	}

	n := &models.PaymentNotification{
		Type:          models.NotifyPaymentSucceeded,
		Ref:           ref,
		Provider:      string(ProviderLDB),
		TransactionID: txnID,
		Amount:        item.Amount,
	}
	if !strings.EqualFold(item.ProcessingStatus, "SUCCESS") {
		n.Type = models.NotifyPaymentFailed
		n.ErrorCode = strings.ToLower(item.ProcessingStatus)
	}
	return n, nil
}
