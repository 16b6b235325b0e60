package store

import (
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
)

func (tx *Tx) InsertTransfer(t *models.Transfer) error {
	return tx.insert("ticket_transfers", dbx.Params{
		"id":                     t.ID,
		"ticket_id":              t.TicketID,
		"from_user_id":           t.FromUserID,
		"to_user_id":             t.ToUserID,
		"asking_price":           t.AskingPrice,
		"platform_commission":    t.PlatformCommission,
		"seller_receives":        t.SellerReceives,
		"status":                 string(t.Status),
		"escrow_status":          string(t.EscrowStatus),
		"payment_transaction_id": t.PaymentTransactionID,
		"reason":                 t.Reason,
		"cancelled_by":           t.CancelledBy,
		"venue_approved_at":      t.VenueApprovedAt,
		"venue_approved_by":      t.VenueApprovedBy,
		"accepted_at":            t.AcceptedAt,
		"expires_at":             t.ExpiresAt,
		"completed_at":           t.CompletedAt,
		"cancelled_at":           t.CancelledAt,
		"created_at":             t.CreatedAt,
		"updated_at":             t.UpdatedAt,
	})
}

func (tx *Tx) LockTransfer(id string) (*models.Transfer, error) {
	var t models.Transfer
	if err := tx.lockOne(&t, "ticket_transfers", "id = {:id}", dbx.Params{"id": id}); err != nil {
		return nil, err
	}
	return &t, nil
}

func (tx *Tx) GetTransfer(id string) (*models.Transfer, error) {
	var t models.Transfer
	if err := tx.findOne(&t, "ticket_transfers", dbx.HashExp{"id": id}); err != nil {
		return nil, err
	}
	return &t, nil
}

// ActiveTransferIDs returns non-terminal transfers that reference the ticket.
func (tx *Tx) ActiveTransferIDs(ticketID string) ([]string, error) {
	var ids []string
	err := tx.b.Select("id").From("ticket_transfers").
		Where(dbx.HashExp{"ticket_id": ticketID}).
		AndWhere(inStatuses("status", models.ActiveTransferStatuses)).
		WithContext(tx.ctx).
		Column(&ids)
	return ids, err
}

func (tx *Tx) SaveTransfer(t *models.Transfer) error {
	return tx.update("ticket_transfers", t.ID, dbx.Params{
		"status":                 string(t.Status),
		"escrow_status":          string(t.EscrowStatus),
		"payment_transaction_id": t.PaymentTransactionID,
		"reason":                 t.Reason,
		"cancelled_by":           t.CancelledBy,
		"venue_approved_at":      t.VenueApprovedAt,
		"venue_approved_by":      t.VenueApprovedBy,
		"accepted_at":            t.AcceptedAt,
		"expires_at":             t.ExpiresAt,
		"completed_at":           t.CompletedAt,
		"cancelled_at":           t.CancelledAt,
		"updated_at":             t.UpdatedAt,
	})
}

// ExpiredTransferIDs lists non-terminal transfers whose current deadline has passed.
func (tx *Tx) ExpiredTransferIDs(now types.DateTime, limit int) ([]string, error) {
	var ids []string
	err := tx.b.Select("id").From("ticket_transfers").
		Where(inStatuses("status", []models.TransferStatus{
			models.TransferPendingVenueApproval,
			models.TransferListed,
			models.TransferPendingPayment,
		})).
		AndWhere(dbx.NewExp("expires_at < {:now}", dbx.Params{"now": now})).
		OrderBy("expires_at ASC").
		Limit(int64(limit)).
		WithContext(tx.ctx).
		Column(&ids)
	return ids, err
}

func (tx *Tx) InsertPayout(p *models.Payout) error {
	return tx.insert("payouts", dbx.Params{
		"id":           p.ID,
		"transfer_id":  p.TransferID,
		"seller_id":    p.SellerID,
		"amount":       p.Amount,
		"status":       string(p.Status),
		"requested_at": p.RequestedAt,
	})
}

func (tx *Tx) PayoutByTransfer(transferID string) (*models.Payout, error) {
	var p models.Payout
	if err := tx.findOne(&p, "payouts", dbx.HashExp{"transfer_id": transferID}); err != nil {
		return nil, err
	}
	return &p, nil
}
