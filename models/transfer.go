package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferPendingVenueApproval TransferStatus = "pending_venue_approval"
	TransferListed               TransferStatus = "listed"
	TransferPendingPayment       TransferStatus = "pending_payment"
	TransferPaymentReceived      TransferStatus = "payment_received"
	TransferCompleted            TransferStatus = "completed"
	TransferCancelled            TransferStatus = "cancelled"
	TransferRejected             TransferStatus = "rejected"
	TransferExpired              TransferStatus = "expired"
)

// ActiveTransferStatuses lists every non-terminal status.
var ActiveTransferStatuses = []TransferStatus{
	TransferPendingVenueApproval,
	TransferListed,
	TransferPendingPayment,
	TransferPaymentReceived,
}

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferPendingVenueApproval: {TransferListed, TransferRejected, TransferCancelled, TransferExpired},
	TransferListed:               {TransferPendingPayment, TransferCancelled, TransferRejected, TransferExpired},
	TransferPendingPayment:       {TransferPaymentReceived, TransferCancelled, TransferExpired},
	TransferPaymentReceived:      {TransferCompleted},
}

func (s TransferStatus) Valid() bool {
	switch s {
	case TransferPendingVenueApproval, TransferListed, TransferPendingPayment, TransferPaymentReceived,
		TransferCompleted, TransferCancelled, TransferRejected, TransferExpired:
		return true
	}
	return false
}

func (s TransferStatus) IsTerminal() bool {
	return s.Valid() && len(transferTransitions[s]) == 0
}

func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	for _, allowed := range transferTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type EscrowStatus string

const (
	EscrowNone     EscrowStatus = "none"
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

type Transfer struct {
	ID                   string          `db:"id" json:"id"`
	TicketID             string          `db:"ticket_id" json:"ticket_id"`
	FromUserID           string          `db:"from_user_id" json:"from_user_id"`
	ToUserID             string          `db:"to_user_id" json:"to_user_id"`
	AskingPrice          decimal.Decimal `db:"asking_price" json:"asking_price"`
	PlatformCommission   decimal.Decimal `db:"platform_commission" json:"platform_commission"`
	SellerReceives       decimal.Decimal `db:"seller_receives" json:"seller_receives"`
	Status               TransferStatus  `db:"status" json:"status"`
	EscrowStatus         EscrowStatus    `db:"escrow_status" json:"escrow_status"`
	PaymentTransactionID string          `db:"payment_transaction_id" json:"payment_transaction_id,omitempty"`
	Reason               string          `db:"reason" json:"reason,omitempty"`
	CancelledBy          string          `db:"cancelled_by" json:"cancelled_by,omitempty"`
	VenueApprovedAt      types.DateTime  `db:"venue_approved_at" json:"venue_approved_at"`
	VenueApprovedBy      string          `db:"venue_approved_by" json:"venue_approved_by,omitempty"`
	AcceptedAt           types.DateTime  `db:"accepted_at" json:"accepted_at"`
	ExpiresAt            types.DateTime  `db:"expires_at" json:"expires_at"`
	CompletedAt          types.DateTime  `db:"completed_at" json:"completed_at"`
	CancelledAt          types.DateTime  `db:"cancelled_at" json:"cancelled_at"`
	CreatedAt            types.DateTime  `db:"created_at" json:"created_at"`
	UpdatedAt            types.DateTime  `db:"updated_at" json:"updated_at"`
}

// Commission splits an asking price into platform commission and seller payout.
func Commission(askingPrice, rate decimal.Decimal) (commission, sellerReceives decimal.Decimal) {
	commission = askingPrice.Mul(rate).Round(2)
	return commission, askingPrice.Sub(commission)
}

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCompleted PayoutStatus = "completed"
)

// Payout is money owed to a seller once a resale completes.
type Payout struct {
	ID          string          `db:"id" json:"id"`
	TransferID  string          `db:"transfer_id" json:"transfer_id"`
	SellerID    string          `db:"seller_id" json:"seller_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Status      PayoutStatus    `db:"status" json:"status"`
	RequestedAt types.DateTime  `db:"requested_at" json:"requested_at"`
}
