package services

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/models"
)

// InventoryLedger is the only writer of ticket type counters. Every operation
// locks the ticket type row inside the caller's transaction.
type InventoryLedger struct {
	clock Clock
}

func NewInventoryLedger(clock Clock) *InventoryLedger {
	return &InventoryLedger{clock: clock}
}

// Lock returns the ticket type under an exclusive row lock.
func (l *InventoryLedger) Lock(tx *store.Tx, typeID string) (*models.TicketType, error) {
	tt, err := tx.LockTicketType(typeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrNotFound.WithMessage("ticket type %s not found", typeID)
	}
	return tt, err
}

func (l *InventoryLedger) Reserve(tx *store.Tx, typeID string, qty int) (*models.TicketType, error) {
	tt, err := l.Lock(tx, typeID)
	if err != nil {
		return nil, err
	}
	if !tt.Reserve(qty) {
		return nil, status.ErrInsufficientStock.
			WithMeta("requested", strconv.Itoa(qty)).
			WithMeta("available", strconv.Itoa(tt.Available()))
	}
	return tt, l.save(tx, tt)
}

func (l *InventoryLedger) ConfirmSale(tx *store.Tx, typeID string, qty int) (*models.TicketType, error) {
	tt, err := l.Lock(tx, typeID)
	if err != nil {
		return nil, err
	}
	if err := tt.ConfirmSale(qty); err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	return tt, l.save(tx, tt)
}

// Release gives back at most qty reserved units. Releasing twice is harmless.
func (l *InventoryLedger) Release(tx *store.Tx, typeID string, qty int) (int, error) {
	tt, err := l.Lock(tx, typeID)
	if err != nil {
		return 0, err
	}
	n := tt.Release(qty)
	if n == 0 {
		return 0, nil
	}
	return n, l.save(tx, tt)
}

// RefundSold returns sold units to stock after a completed refund.
func (l *InventoryLedger) RefundSold(tx *store.Tx, typeID string, qty int) (int, error) {
	tt, err := l.Lock(tx, typeID)
	if err != nil {
		return 0, err
	}
	n := tt.RefundSold(qty)
	if n == 0 {
		return 0, nil
	}
	return n, l.save(tx, tt)
}

func (l *InventoryLedger) save(tx *store.Tx, tt *models.TicketType) error {
	tt.UpdatedAt = models.At(l.clock.Now())
	return tx.SaveTicketTypeCounters(tt)
}
