package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPendingPayment  OrderStatus = "pending_payment"
	OrderCompleted       OrderStatus = "completed"
	OrderCancelled       OrderStatus = "cancelled"
	OrderExpired         OrderStatus = "expired"
	OrderRefundRequested OrderStatus = "refund_requested"
	OrderRefunded        OrderStatus = "refunded"
	OrderChargeback      OrderStatus = "chargeback"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPendingPayment, OrderCompleted, OrderCancelled, OrderExpired,
		OrderRefundRequested, OrderRefunded, OrderChargeback:
		return true
	}
	return false
}

// IsTerminal reports whether no further lifecycle transition is possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderCancelled, OrderExpired, OrderRefunded, OrderChargeback:
		return true
	}
	return false
}

// ReleaseReason says why a pending order gives its reservation back.
type ReleaseReason string

const (
	ReleaseUserCancelled ReleaseReason = "user_cancelled"
	ReleaseExpired       ReleaseReason = "expired"
	ReleasePaymentFailed ReleaseReason = "payment_failed"
)

// Status returns the terminal order status a release moves to.
func (r ReleaseReason) Status() OrderStatus {
	if r == ReleaseExpired {
		return OrderExpired
	}
	return OrderCancelled
}

type Order struct {
	ID                   string          `db:"id" json:"id"`
	OrderNumber          string          `db:"order_number" json:"order_number"`
	UserID               string          `db:"user_id" json:"user_id"`
	EventID              string          `db:"event_id" json:"event_id"`
	TicketTypeID         string          `db:"ticket_type_id" json:"ticket_type_id"`
	Quantity             int             `db:"quantity" json:"quantity"`
	UnitPrice            decimal.Decimal `db:"unit_price" json:"unit_price"`
	ServiceFee           decimal.Decimal `db:"service_fee" json:"service_fee"`
	Subtotal             decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount             decimal.Decimal `db:"discount" json:"discount"`
	Total                decimal.Decimal `db:"total" json:"total"`
	Status               OrderStatus     `db:"status" json:"status"`
	CancelReason         string          `db:"cancel_reason" json:"cancel_reason,omitempty"`
	PaymentTransactionID string          `db:"payment_transaction_id" json:"payment_transaction_id,omitempty"`
	ExpiresAt            types.DateTime  `db:"expires_at" json:"expires_at"`
	CompletedAt          types.DateTime  `db:"completed_at" json:"completed_at"`
	CancelledAt          types.DateTime  `db:"cancelled_at" json:"cancelled_at"`
	CreatedAt            types.DateTime  `db:"created_at" json:"created_at"`
	UpdatedAt            types.DateTime  `db:"updated_at" json:"updated_at"`
}

// Price computes qty * (unit + fee) - discount, never below zero.
func Price(qty int, unit, fee, discount decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = unit.Add(fee).Mul(decimal.NewFromInt(int64(qty)))
	total = subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return subtotal, total
}
