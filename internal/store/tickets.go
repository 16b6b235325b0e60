package store

import (
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/dbx"
)

func (tx *Tx) InsertTicket(t *models.Ticket) error {
	return tx.insert("tickets", dbx.Params{
		"id":                  t.ID,
		"code":                t.Code,
		"order_id":            t.OrderID,
		"event_id":            t.EventID,
		"ticket_type_id":      t.TicketTypeID,
		"owner_id":            t.OwnerID,
		"status":              string(t.Status),
		"is_locked":           t.IsLocked,
		"locked_reason":       t.LockedReason,
		"is_transferred":      t.IsTransferred,
		"transferred_at":      t.TransferredAt,
		"transferred_from":    t.TransferredFrom,
		"code_regenerated_at": t.CodeRegeneratedAt,
		"used_at":             t.UsedAt,
		"checked_in_by":       t.CheckedInBy,
		"created_at":          t.CreatedAt,
		"updated_at":          t.UpdatedAt,
	})
}

func (tx *Tx) TicketCodeExists(code string) (bool, error) {
	return tx.exists("tickets", dbx.HashExp{"code": code})
}

func (tx *Tx) LockTicket(id string) (*models.Ticket, error) {
	var t models.Ticket
	if err := tx.lockOne(&t, "tickets", "id = {:id}", dbx.Params{"id": id}); err != nil {
		return nil, err
	}
	return &t, nil
}

func (tx *Tx) LockTicketByCode(code string) (*models.Ticket, error) {
	var t models.Ticket
	if err := tx.lockOne(&t, "tickets", "code = {:code}", dbx.Params{"code": code}); err != nil {
		return nil, err
	}
	return &t, nil
}

// LockOrderTickets locks every ticket an order issued, in id order.
func (tx *Tx) LockOrderTickets(orderID string) ([]*models.Ticket, error) {
	var tickets []*models.Ticket
	err := tx.b.NewQuery("SELECT * FROM tickets WHERE order_id = {:order} ORDER BY id" + tx.lock).
		Bind(dbx.Params{"order": orderID}).
		WithContext(tx.ctx).
		All(&tickets)
	return tickets, err
}

func (tx *Tx) TicketsByOrder(orderID string) ([]*models.Ticket, error) {
	var tickets []*models.Ticket
	err := tx.b.Select("*").From("tickets").
		Where(dbx.HashExp{"order_id": orderID}).
		OrderBy("id ASC").
		WithContext(tx.ctx).
		All(&tickets)
	return tickets, err
}

func (tx *Tx) SaveTicket(t *models.Ticket) error {
	return tx.update("tickets", t.ID, dbx.Params{
		"code":                t.Code,
		"owner_id":            t.OwnerID,
		"status":              string(t.Status),
		"is_locked":           t.IsLocked,
		"locked_reason":       t.LockedReason,
		"is_transferred":      t.IsTransferred,
		"transferred_at":      t.TransferredAt,
		"transferred_from":    t.TransferredFrom,
		"code_regenerated_at": t.CodeRegeneratedAt,
		"used_at":             t.UsedAt,
		"checked_in_by":       t.CheckedInBy,
		"updated_at":          t.UpdatedAt,
	})
}
