package store

import (
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/dbx"
)

func (tx *Tx) InsertPayment(p *models.PaymentTransaction) error {
	return tx.insert("payment_transactions", dbx.Params{
		"id":              p.ID,
		"order_id":        p.OrderID,
		"transfer_id":     p.TransferID,
		"provider":        p.Provider,
		"provider_ref":    p.ProviderRef,
		"idempotency_key": p.IdempotencyKey,
		"amount":          p.Amount,
		"status":          string(p.Status),
		"error_code":      p.ErrorCode,
		"processed_at":    p.ProcessedAt,
		"created_at":      p.CreatedAt,
	})
}

func (tx *Tx) LockPaymentByKey(key string) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	if err := tx.lockOne(&p, "payment_transactions", "idempotency_key = {:key}", dbx.Params{"key": key}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (tx *Tx) LockPayment(id string) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	if err := tx.lockOne(&p, "payment_transactions", "id = {:id}", dbx.Params{"id": id}); err != nil {
		return nil, err
	}
	return &p, nil
}

// SucceededPaymentByRef finds the settled payment a gateway transaction id refers to.
func (tx *Tx) SucceededPaymentByRef(providerRef string) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	err := tx.b.Select("*").From("payment_transactions").
		Where(dbx.HashExp{"provider_ref": providerRef}).
		AndWhere(dbx.NotIn("status", string(models.PaymentFailed), string(models.PaymentPending))).
		OrderBy("created_at DESC").
		Limit(1).
		WithContext(tx.ctx).
		One(&p)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (tx *Tx) SavePaymentStatus(p *models.PaymentTransaction) error {
	return tx.update("payment_transactions", p.ID, dbx.Params{
		"status":       string(p.Status),
		"error_code":   p.ErrorCode,
		"processed_at": p.ProcessedAt,
	})
}

func (tx *Tx) InsertRefund(r *models.Refund) error {
	return tx.insert("refunds", dbx.Params{
		"id":                     r.ID,
		"order_id":               r.OrderID,
		"user_id":                r.UserID,
		"payment_transaction_id": r.PaymentTransactionID,
		"reason":                 string(r.Reason),
		"description":            r.Description,
		"requested_amount":       r.RequestedAmount,
		"processing_fee":         r.ProcessingFee,
		"refund_amount":          r.RefundAmount,
		"status":                 string(r.Status),
		"rejection_reason":       r.RejectionReason,
		"completed_at":           r.CompletedAt,
		"created_at":             r.CreatedAt,
	})
}

func (tx *Tx) GetRefund(id string) (*models.Refund, error) {
	var r models.Refund
	if err := tx.findOne(&r, "refunds", dbx.HashExp{"id": id}); err != nil {
		return nil, err
	}
	return &r, nil
}

func (tx *Tx) LockRefund(id string) (*models.Refund, error) {
	var r models.Refund
	if err := tx.lockOne(&r, "refunds", "id = {:id}", dbx.Params{"id": id}); err != nil {
		return nil, err
	}
	return &r, nil
}

func (tx *Tx) SaveRefundStatus(r *models.Refund) error {
	return tx.update("refunds", r.ID, dbx.Params{
		"status":           string(r.Status),
		"rejection_reason": r.RejectionReason,
		"completed_at":     r.CompletedAt,
	})
}

func (tx *Tx) InsertChargeback(c *models.Chargeback) error {
	return tx.insert("chargebacks", dbx.Params{
		"id":                     c.ID,
		"payment_transaction_id": c.PaymentTransactionID,
		"order_id":               c.OrderID,
		"transfer_id":            c.TransferID,
		"case_id":                c.CaseID,
		"reason_code":            c.ReasonCode,
		"reason":                 c.Reason,
		"amount":                 c.Amount,
		"status":                 string(c.Status),
		"received_at":            c.ReceivedAt,
		"resolved_at":            c.ResolvedAt,
	})
}

func (tx *Tx) GetChargeback(id string) (*models.Chargeback, error) {
	var c models.Chargeback
	if err := tx.findOne(&c, "chargebacks", dbx.HashExp{"id": id}); err != nil {
		return nil, err
	}
	return &c, nil
}

func (tx *Tx) LockChargeback(id string) (*models.Chargeback, error) {
	var c models.Chargeback
	if err := tx.lockOne(&c, "chargebacks", "id = {:id}", dbx.Params{"id": id}); err != nil {
		return nil, err
	}
	return &c, nil
}

func (tx *Tx) SaveChargebackStatus(c *models.Chargeback) error {
	return tx.update("chargebacks", c.ID, dbx.Params{
		"status":      string(c.Status),
		"resolved_at": c.ResolvedAt,
	})
}
