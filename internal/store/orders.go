package store

import (
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
)

func (tx *Tx) InsertOrder(o *models.Order) error {
	return tx.insert("orders", dbx.Params{
		"id":                     o.ID,
		"order_number":           o.OrderNumber,
		"user_id":                o.UserID,
		"event_id":               o.EventID,
		"ticket_type_id":         o.TicketTypeID,
		"quantity":               o.Quantity,
		"unit_price":             o.UnitPrice,
		"service_fee":            o.ServiceFee,
		"subtotal":               o.Subtotal,
		"discount":               o.Discount,
		"total":                  o.Total,
		"status":                 string(o.Status),
		"cancel_reason":          o.CancelReason,
		"payment_transaction_id": o.PaymentTransactionID,
		"expires_at":             o.ExpiresAt,
		"completed_at":           o.CompletedAt,
		"cancelled_at":           o.CancelledAt,
		"created_at":             o.CreatedAt,
		"updated_at":             o.UpdatedAt,
	})
}

func (tx *Tx) OrderNumberExists(number string) (bool, error) {
	return tx.exists("orders", dbx.HashExp{"order_number": number})
}

// GetOrder reads without locking; used to discover which ticket type to lock first.
func (tx *Tx) GetOrder(id string) (*models.Order, error) {
	var o models.Order
	if err := tx.findOne(&o, "orders", dbx.HashExp{"id": id}); err != nil {
		return nil, err
	}
	return &o, nil
}

func (tx *Tx) LockOrder(id string) (*models.Order, error) {
	var o models.Order
	if err := tx.lockOne(&o, "orders", "id = {:id}", dbx.Params{"id": id}); err != nil {
		return nil, err
	}
	return &o, nil
}

// SaveOrderState persists the mutable lifecycle columns.
func (tx *Tx) SaveOrderState(o *models.Order) error {
	return tx.update("orders", o.ID, dbx.Params{
		"status":                 string(o.Status),
		"cancel_reason":          o.CancelReason,
		"payment_transaction_id": o.PaymentTransactionID,
		"completed_at":           o.CompletedAt,
		"cancelled_at":           o.CancelledAt,
		"updated_at":             o.UpdatedAt,
	})
}

// ExpiredOrderIDs lists pending orders whose reservation window has passed.
func (tx *Tx) ExpiredOrderIDs(now types.DateTime, limit int) ([]string, error) {
	var ids []string
	err := tx.b.Select("id").From("orders").
		Where(dbx.HashExp{"status": string(models.OrderPendingPayment)}).
		AndWhere(dbx.NewExp("expires_at < {:now}", dbx.Params{"now": now})).
		OrderBy("expires_at ASC").
		Limit(int64(limit)).
		WithContext(tx.ctx).
		Column(&ids)
	return ids, err
}
