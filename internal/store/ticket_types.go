package store

import (
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/dbx"
)

func (tx *Tx) InsertTicketType(t *models.TicketType) error {
	return tx.insert("ticket_types", dbx.Params{
		"id":            t.ID,
		"event_id":      t.EventID,
		"name":          t.Name,
		"price":         t.Price,
		"service_fee":   t.ServiceFee,
		"quantity":      t.Quantity,
		"sold":          t.Sold,
		"reserved":      t.Reserved,
		"min_per_order": t.MinPerOrder,
		"max_per_order": t.MaxPerOrder,
		"sales_start":   t.SalesStart,
		"sales_end":     t.SalesEnd,
		"created_at":    t.CreatedAt,
		"updated_at":    t.UpdatedAt,
	})
}

// LockTicketType takes the exclusive row lock every inventory mutation needs.
func (tx *Tx) LockTicketType(id string) (*models.TicketType, error) {
	var t models.TicketType
	if err := tx.lockOne(&t, "ticket_types", "id = {:id}", dbx.Params{"id": id}); err != nil {
		return nil, err
	}
	return &t, nil
}

func (tx *Tx) GetTicketType(id string) (*models.TicketType, error) {
	var t models.TicketType
	if err := tx.findOne(&t, "ticket_types", dbx.HashExp{"id": id}); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTicketTypeCounters persists sold and reserved after a ledger operation.
func (tx *Tx) SaveTicketTypeCounters(t *models.TicketType) error {
	return tx.update("ticket_types", t.ID, dbx.Params{
		"sold":       t.Sold,
		"reserved":   t.Reserved,
		"updated_at": t.UpdatedAt,
	})
}
