package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentSucceeded  PaymentStatus = "succeeded"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentChargeback PaymentStatus = "chargeback"
)

// PaymentTransaction links exactly one order or one transfer to a gateway transaction.
type PaymentTransaction struct {
	ID             string          `db:"id" json:"id"`
	OrderID        string          `db:"order_id" json:"order_id,omitempty"`
	TransferID     string          `db:"transfer_id" json:"transfer_id,omitempty"`
	Provider       string          `db:"provider" json:"provider"`
	ProviderRef    string          `db:"provider_ref" json:"provider_ref"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Status         PaymentStatus   `db:"status" json:"status"`
	ErrorCode      string          `db:"error_code" json:"error_code,omitempty"`
	ProcessedAt    types.DateTime  `db:"processed_at" json:"processed_at"`
	CreatedAt      types.DateTime  `db:"created_at" json:"created_at"`
}

// PaymentRefKind names what a payment pays for.
type PaymentRefKind string

const (
	RefOrder    PaymentRefKind = "order"
	RefTransfer PaymentRefKind = "transfer"
)

type PaymentRef struct {
	Kind PaymentRefKind `json:"kind"`
	ID   string         `json:"id"`
}

// NotificationType is the outcome a payment callback reports.
type NotificationType string

const (
	NotifyPaymentSucceeded NotificationType = "payment.succeeded"
	NotifyPaymentFailed    NotificationType = "payment.failed"
	NotifyChargeback       NotificationType = "payment.chargeback"
	NotifyRefundApproved   NotificationType = "refund.approved"
)

// PaymentNotification is the transport-neutral form of a gateway callback.
type PaymentNotification struct {
	Type           NotificationType `json:"type"`
	Ref            PaymentRef       `json:"ref"`
	Provider       string           `json:"provider"`
	TransactionID  string           `json:"transaction_id"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
	ErrorCode      string           `json:"error_code,omitempty"`
	RefundID       string           `json:"refund_id,omitempty"`
	Chargeback     *ChargebackInfo  `json:"chargeback,omitempty"`
}

// Key returns the idempotency key, deriving one from the gateway transaction when absent.
func (n *PaymentNotification) Key() string {
	if n.IdempotencyKey != "" {
		return n.IdempotencyKey
	}
	return n.Provider + ":" + n.TransactionID + ":" + string(n.Type)
}

type ChargebackInfo struct {
	CaseID     string          `json:"case_id"`
	ReasonCode string          `json:"reason_code"`
	Reason     string          `json:"reason"`
	Amount     decimal.Decimal `json:"amount"`
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
	RefundRejected  RefundStatus = "rejected"
)

type RefundReason string

const (
	RefundUserInitiated  RefundReason = "user_initiated"
	RefundEventCancelled RefundReason = "event_cancelled"
)

type Refund struct {
	ID                   string          `db:"id" json:"id"`
	OrderID              string          `db:"order_id" json:"order_id"`
	UserID               string          `db:"user_id" json:"user_id"`
	PaymentTransactionID string          `db:"payment_transaction_id" json:"payment_transaction_id"`
	Reason               RefundReason    `db:"reason" json:"reason"`
	Description          string          `db:"description" json:"description,omitempty"`
	RequestedAmount      decimal.Decimal `db:"requested_amount" json:"requested_amount"`
	ProcessingFee        decimal.Decimal `db:"processing_fee" json:"processing_fee"`
	RefundAmount         decimal.Decimal `db:"refund_amount" json:"refund_amount"`
	Status               RefundStatus    `db:"status" json:"status"`
	RejectionReason      string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CompletedAt          types.DateTime  `db:"completed_at" json:"completed_at"`
	CreatedAt            types.DateTime  `db:"created_at" json:"created_at"`
}

type ChargebackStatus string

const (
	ChargebackOpen ChargebackStatus = "open"
	ChargebackWon  ChargebackStatus = "won"
	ChargebackLost ChargebackStatus = "lost"
)

type Chargeback struct {
	ID                   string           `db:"id" json:"id"`
	PaymentTransactionID string           `db:"payment_transaction_id" json:"payment_transaction_id"`
	OrderID              string           `db:"order_id" json:"order_id,omitempty"`
	TransferID           string           `db:"transfer_id" json:"transfer_id,omitempty"`
	CaseID               string           `db:"case_id" json:"case_id"`
	ReasonCode           string           `db:"reason_code" json:"reason_code"`
	Reason               string           `db:"reason" json:"reason"`
	Amount               decimal.Decimal  `db:"amount" json:"amount"`
	Status               ChargebackStatus `db:"status" json:"status"`
	ReceivedAt           types.DateTime   `db:"received_at" json:"received_at"`
	ResolvedAt           types.DateTime   `db:"resolved_at" json:"resolved_at"`
}
