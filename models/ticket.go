package models

import (
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

type TicketType struct {
	ID          string          `db:"id" json:"id"`
	EventID     string          `db:"event_id" json:"event_id"`
	Name        string          `db:"name" json:"name"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ServiceFee  decimal.Decimal `db:"service_fee" json:"service_fee"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Sold        int             `db:"sold" json:"sold"`
	Reserved    int             `db:"reserved" json:"reserved"`
	MinPerOrder int             `db:"min_per_order" json:"min_per_order"`
	MaxPerOrder int             `db:"max_per_order" json:"max_per_order"`
	SalesStart  types.DateTime  `db:"sales_start" json:"sales_start"`
	SalesEnd    types.DateTime  `db:"sales_end" json:"sales_end"`
	CreatedAt   types.DateTime  `db:"created_at" json:"created_at"`
	UpdatedAt   types.DateTime  `db:"updated_at" json:"updated_at"`
}

func (t *TicketType) Available() int {
	return max(0, t.Quantity-t.Sold-t.Reserved)
}

// OnSale reports whether now falls inside the optional sales window.
func (t *TicketType) OnSale(now time.Time) bool {
	if !t.SalesStart.IsZero() && now.Before(t.SalesStart.Time()) {
		return false
	}
	if !t.SalesEnd.IsZero() && now.After(t.SalesEnd.Time()) {
		return false
	}
	return true
}

// AcceptsQuantity checks qty against the per-order limits. MaxPerOrder 0 means unlimited.
func (t *TicketType) AcceptsQuantity(qty int) bool {
	if qty < max(1, t.MinPerOrder) {
		return false
	}
	return t.MaxPerOrder == 0 || qty <= t.MaxPerOrder
}

// Reserve holds qty units. It reports false when not enough stock is left.
func (t *TicketType) Reserve(qty int) bool {
	if qty <= 0 || t.Available() < qty {
		return false
	}
	t.Reserved += qty
	return true
}

// ConfirmSale moves qty units from reserved to sold.
func (t *TicketType) ConfirmSale(qty int) error {
	if qty <= 0 || t.Reserved < qty {
		return fmt.Errorf("ticket type %s: confirm %d with only %d reserved", t.ID, qty, t.Reserved)
	}
	t.Reserved -= qty
	t.Sold += qty
	return nil
}

// Release returns up to qty reserved units and reports how many were released.
func (t *TicketType) Release(qty int) int {
	n := min(max(qty, 0), t.Reserved)
	t.Reserved -= n
	return n
}

// RefundSold puts up to qty sold units back on sale.
func (t *TicketType) RefundSold(qty int) int {
	n := min(max(qty, 0), t.Sold)
	t.Sold -= n
	return n
}

type TicketStatus string

const (
	TicketActive     TicketStatus = "active"
	TicketUsed       TicketStatus = "used"
	TicketCancelled  TicketStatus = "cancelled"
	TicketRefunded   TicketStatus = "refunded"
	TicketChargeback TicketStatus = "chargeback"
	TicketBlocked    TicketStatus = "blocked"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketActive, TicketUsed, TicketCancelled, TicketRefunded, TicketChargeback, TicketBlocked:
		return true
	}
	return false
}

type Ticket struct {
	ID                string         `db:"id" json:"id"`
	Code              string         `db:"code" json:"code"`
	OrderID           string         `db:"order_id" json:"order_id"`
	EventID           string         `db:"event_id" json:"event_id"`
	TicketTypeID      string         `db:"ticket_type_id" json:"ticket_type_id"`
	OwnerID           string         `db:"owner_id" json:"owner_id"`
	Status            TicketStatus   `db:"status" json:"status"`
	IsLocked          bool           `db:"is_locked" json:"is_locked"`
	LockedReason      string         `db:"locked_reason" json:"locked_reason,omitempty"`
	IsTransferred     bool           `db:"is_transferred" json:"is_transferred"`
	TransferredAt     types.DateTime `db:"transferred_at" json:"transferred_at"`
	TransferredFrom   string         `db:"transferred_from" json:"transferred_from,omitempty"`
	CodeRegeneratedAt types.DateTime `db:"code_regenerated_at" json:"code_regenerated_at"`
	UsedAt            types.DateTime `db:"used_at" json:"used_at"`
	CheckedInBy       string         `db:"checked_in_by" json:"checked_in_by,omitempty"`
	CreatedAt         types.DateTime `db:"created_at" json:"created_at"`
	UpdatedAt         types.DateTime `db:"updated_at" json:"updated_at"`
}

func (t *Ticket) Lock(reason string) {
	t.IsLocked = true
	t.LockedReason = reason
}

func (t *Ticket) Unlock() {
	t.IsLocked = false
	t.LockedReason = ""
}
