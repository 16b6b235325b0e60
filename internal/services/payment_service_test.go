package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentNote(kind models.NotificationType, ref models.PaymentRef, txn string) *models.PaymentNotification {
	return &models.PaymentNotification{
		Type:          kind,
		Ref:           ref,
		Provider:      "stripe",
		TransactionID: txn,
		Amount:        decimal.NewFromInt(110),
	}
}

func (e *testEnv) payment(t *testing.T, key string) *models.PaymentTransaction {
	t.Helper()
	var p *models.PaymentTransaction
	err := e.store.RunInTx(context.Background(), func(tx *store.Tx) error {
		var err error
		p, err = tx.LockPaymentByKey(key)
		return err
	})
	require.NoError(t, err)
	return p
}

func TestPaymentSuccess_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.order(t, "buyer", 2)

	note := paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{Kind: models.RefOrder, ID: o.ID}, "pi_1")
	require.NoError(t, env.payments.HandleNotification(ctx, note))
	require.NoError(t, env.payments.HandleNotification(ctx, note))

	got, err := env.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, got.Status)

	p := env.payment(t, note.Key())
	assert.Equal(t, got.PaymentTransactionID, p.ID)
	assert.Equal(t, models.PaymentSucceeded, p.Status)
	assert.Equal(t, o.ID, p.OrderID)

	tickets, err := env.orders.Tickets(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Equal(t, 2, env.ticketType(t).Sold)
}

func TestPaymentFailure_ReleasesOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.order(t, "buyer", 3)

	note := paymentNote(models.NotifyPaymentFailed, models.PaymentRef{Kind: models.RefOrder, ID: o.ID}, "pi_2")
	note.ErrorCode = "card_declined"
	require.NoError(t, env.payments.HandleNotification(ctx, note))
	require.NoError(t, env.payments.HandleNotification(ctx, note))

	got, err := env.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)
	assert.Equal(t, string(models.ReleasePaymentFailed), got.CancelReason)
	assert.Equal(t, 0, env.ticketType(t).Reserved)
	assert.Equal(t, models.PaymentFailed, env.payment(t, note.Key()).Status)
}

func TestPayment_InvalidTarget(t *testing.T) {
	env := newTestEnv(t)

	err := env.payments.HandleNotification(context.Background(),
		paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{ID: "x"}, "pi_3"))
	assert.ErrorIs(t, err, status.ErrPaymentTargetInvalid)

	err = env.payments.HandleNotification(context.Background(),
		paymentNote("payment.unknown", models.PaymentRef{Kind: models.RefOrder, ID: "x"}, "pi_3"))
	assert.ErrorIs(t, err, status.ErrValidation)
}

func acceptedTransfer(t *testing.T, env *testEnv) (*models.Ticket, *models.Transfer) {
	t.Helper()
	ctx := context.Background()
	ticket := env.paidTicket(t, "seller")
	tr := listTicket(t, env, ticket.ID, "80")
	_, err := env.transfers.ApproveByVenue(ctx, "staff", tr.ID)
	require.NoError(t, err)
	_, err = env.transfers.AcceptByBuyer(ctx, "buyer", tr.ID)
	require.NoError(t, err)
	return ticket, tr
}

func TestTransferPayment_SuccessAndFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ticket, tr := acceptedTransfer(t, env)
	require.NoError(t, env.payments.HandleNotification(ctx,
		paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{Kind: models.RefTransfer, ID: tr.ID}, "pi_t1")))
	assert.Equal(t, models.TransferCompleted, env.transfer(t, tr.ID).Status)
	assert.Equal(t, "buyer", env.ticket(t, ticket.ID).OwnerID)

	other, failing := acceptedTransfer(t, env)
	note := paymentNote(models.NotifyPaymentFailed, models.PaymentRef{Kind: models.RefTransfer, ID: failing.ID}, "pi_t2")
	note.ErrorCode = "insufficient_funds"
	require.NoError(t, env.payments.HandleNotification(ctx, note))

	got := env.transfer(t, failing.ID)
	assert.Equal(t, models.TransferCancelled, got.Status)
	assert.Equal(t, "payment failed: insufficient_funds", got.Reason)
	assert.False(t, env.ticket(t, other.ID).IsLocked)
	assert.Equal(t, "seller", env.ticket(t, other.ID).OwnerID)
}

func TestChargeback_VoidsOrderTickets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.order(t, "seller", 2)
	require.NoError(t, env.payments.HandleNotification(ctx,
		paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{Kind: models.RefOrder, ID: o.ID}, "pi_cb")))

	tickets, err := env.orders.Tickets(ctx, o.ID)
	require.NoError(t, err)
	tr := listTicket(t, env, tickets[0].ID, "90")

	cb := &models.PaymentNotification{
		Type:          models.NotifyChargeback,
		Provider:      "stripe",
		TransactionID: "pi_cb",
		Chargeback:    &models.ChargebackInfo{CaseID: "dp_1", ReasonCode: "fraudulent", Amount: decimal.NewFromInt(220)},
	}
	require.NoError(t, env.payments.HandleNotification(ctx, cb))
	require.NoError(t, env.payments.HandleNotification(ctx, cb))

	got, err := env.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderChargeback, got.Status)

	for _, ticket := range tickets {
		voided := env.ticket(t, ticket.ID)
		assert.Equal(t, models.TicketChargeback, voided.Status)
		assert.False(t, voided.IsLocked)
	}
	assert.Equal(t, models.TransferCancelled, env.transfer(t, tr.ID).Status)
	assert.Contains(t, env.notifier.types(), NotifyChargeback)

	env.clock.Set(eventStart.Add(-time.Hour))
	_, err = scan(env, tickets[1].Code, "staff")
	assert.ErrorIs(t, err, status.ErrTicketChargeback)
}

func TestChargeback_UnknownTransaction(t *testing.T) {
	env := newTestEnv(t)
	err := env.payments.OnChargeback(context.Background(), &models.PaymentNotification{
		Type: models.NotifyChargeback, TransactionID: "pi_missing",
	})
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestRefund_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.order(t, "buyer", 1)
	require.NoError(t, env.payments.HandleNotification(ctx,
		paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{Kind: models.RefOrder, ID: o.ID}, "pi_r")))

	_, err := env.payments.RequestRefund(ctx, "stranger", o.ID, models.RefundUserInitiated, "")
	assert.ErrorIs(t, err, status.ErrUnauthorized)

	refund, err := env.payments.RequestRefund(ctx, "buyer", o.ID, models.RefundUserInitiated, "cannot attend")
	require.NoError(t, err)
	assert.Equal(t, "110.00", refund.RequestedAmount.StringFixed(2))
	assert.Equal(t, "11.00", refund.ProcessingFee.StringFixed(2))
	assert.Equal(t, "99.00", refund.RefundAmount.StringFixed(2))

	_, err = env.payments.RequestRefund(ctx, "buyer", o.ID, models.RefundUserInitiated, "")
	assert.ErrorIs(t, err, status.ErrRefundNotEligible)

	note := &models.PaymentNotification{Type: models.NotifyRefundApproved, RefundID: refund.ID}
	require.NoError(t, env.payments.HandleNotification(ctx, note))
	require.NoError(t, env.payments.HandleNotification(ctx, note))

	got, err := env.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, got.Status)

	tickets, err := env.orders.Tickets(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketRefunded, tickets[0].Status)
	assert.False(t, tickets[0].IsLocked)

	assert.Equal(t, 0, env.ticketType(t).Sold)
	assert.Equal(t, 0, env.event(t).TicketsSold)

	key := paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{Kind: models.RefOrder, ID: o.ID}, "pi_r").Key()
	assert.Equal(t, models.PaymentRefunded, env.payment(t, key).Status)
	assert.Contains(t, env.notifier.types(), NotifyRefundCompleted)
}

func TestRefund_UsedTicketIsIneligible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := env.paidTicket(t, "buyer")

	env.clock.Set(eventStart.Add(-time.Hour))
	_, err := scan(env, ticket.Code, "staff")
	require.NoError(t, err)

	_, err = env.payments.RequestRefund(ctx, "buyer", ticket.OrderID, models.RefundEventCancelled, "")
	require.ErrorIs(t, err, status.ErrRefundNotEligible)
	assert.Equal(t, "ticket_used", status.MetaOf(err, "reason"))
}

func (r *recordingNotifier) last(typ NotificationType) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notes) - 1; i >= 0; i-- {
		if r.notes[i].Type == typ {
			return r.notes[i], true
		}
	}
	return Notification{}, false
}

func (e *testEnv) mutateTicket(t *testing.T, id string, fn func(*models.Ticket)) {
	t.Helper()
	err := e.store.RunInTx(context.Background(), func(tx *store.Tx) error {
		ticket, err := tx.LockTicket(id)
		if err != nil {
			return err
		}
		fn(ticket)
		return tx.SaveTicket(ticket)
	})
	require.NoError(t, err)
}

func TestRefund_PendingRefundHoldsTickets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := env.paidTicket(t, "seller")

	refund, err := env.payments.RequestRefund(ctx, "seller", ticket.OrderID, models.RefundEventCancelled, "")
	require.NoError(t, err)

	held := env.ticket(t, ticket.ID)
	assert.True(t, held.IsLocked)
	assert.Equal(t, refundLockReason, held.LockedReason)

	env.clock.Set(eventStart.Add(-time.Hour))
	_, err = scan(env, ticket.Code, "staff")
	require.ErrorIs(t, err, status.ErrTicketLocked)
	assert.Equal(t, refundLockReason, status.MetaOf(err, "reason"))

	_, err = env.transfers.CreateTransfer(ctx, CreateTransferRequest{
		SellerID:    "seller",
		TicketID:    ticket.ID,
		BuyerEmail:  "buyer@example.com",
		AskingPrice: decimal.RequireFromString("50"),
	})
	require.ErrorIs(t, err, status.ErrTransferIneligible)
	assert.Equal(t, status.ReasonLocked, status.MetaOf(err, "reason"))

	require.NoError(t, env.payments.OnRefundApproved(ctx, refund.ID))
	assert.Equal(t, models.TicketRefunded, env.ticket(t, ticket.ID).Status)
	assert.Equal(t, 0, env.ticketType(t).Sold)
	assert.Equal(t, 0, env.event(t).CheckedInCount)
}

func TestRefundApproval_RechecksTickets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := env.paidTicket(t, "buyer")

	refund, err := env.payments.RequestRefund(ctx, "buyer", ticket.OrderID, models.RefundUserInitiated, "")
	require.NoError(t, err)

	env.mutateTicket(t, ticket.ID, func(tk *models.Ticket) {
		tk.Unlock()
		tk.Status = models.TicketUsed
	})

	err = env.payments.OnRefundApproved(ctx, refund.ID)
	require.ErrorIs(t, err, status.ErrRefundNotEligible)
	assert.Equal(t, "ticket_used", status.MetaOf(err, "reason"))

	assert.Equal(t, models.TicketUsed, env.ticket(t, ticket.ID).Status)
	assert.Equal(t, 1, env.ticketType(t).Sold)
	got, err := env.orders.GetOrder(ctx, ticket.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefundRequested, got.Status)
}

func TestRefundApproval_RejectsForeignLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := env.paidTicket(t, "seller")

	refund, err := env.payments.RequestRefund(ctx, "seller", ticket.OrderID, models.RefundUserInitiated, "")
	require.NoError(t, err)

	env.mutateTicket(t, ticket.ID, func(tk *models.Ticket) { tk.Lock(transferLockReason) })

	err = env.payments.OnRefundApproved(ctx, refund.ID)
	require.ErrorIs(t, err, status.ErrRefundNotEligible)
	assert.Equal(t, status.ReasonLocked, status.MetaOf(err, "reason"))
	assert.Equal(t, models.TicketActive, env.ticket(t, ticket.ID).Status)
	assert.Equal(t, 1, env.ticketType(t).Sold)
}

func TestRejectRefund_RestoresOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := env.paidTicket(t, "buyer")

	refund, err := env.payments.RequestRefund(ctx, "buyer", ticket.OrderID, models.RefundUserInitiated, "")
	require.NoError(t, err)

	rejected, err := env.payments.RejectRefund(ctx, refund.ID, "outside refund policy")
	require.NoError(t, err)
	assert.Equal(t, models.RefundRejected, rejected.Status)
	assert.Equal(t, "outside refund policy", rejected.RejectionReason)

	again, err := env.payments.RejectRefund(ctx, refund.ID, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "outside refund policy", again.RejectionReason)

	got, err := env.orders.GetOrder(ctx, ticket.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, got.Status)
	assert.False(t, env.ticket(t, ticket.ID).IsLocked)
	assert.Contains(t, env.notifier.types(), NotifyRefundRejected)

	err = env.payments.OnRefundApproved(ctx, refund.ID)
	assert.ErrorIs(t, err, status.ErrRefundNotEligible)
	assert.Equal(t, 1, env.ticketType(t).Sold)

	env.clock.Set(eventStart.Add(-time.Hour))
	_, err = scan(env, ticket.Code, "staff")
	assert.NoError(t, err)
}

func TestRejectRefund_UnknownRefund(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.payments.RejectRefund(context.Background(), "missing", "")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func chargebackID(t *testing.T, env *testEnv) string {
	t.Helper()
	note, ok := env.notifier.last(NotifyChargeback)
	require.True(t, ok)
	id, _ := note.Payload["chargeback_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestResolveChargeback_WonRestoresOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.order(t, "buyer", 2)
	paid := paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{Kind: models.RefOrder, ID: o.ID}, "pi_won")
	require.NoError(t, env.payments.HandleNotification(ctx, paid))
	require.NoError(t, env.payments.HandleNotification(ctx, &models.PaymentNotification{
		Type: models.NotifyChargeback, Provider: "stripe", TransactionID: "pi_won",
	}))
	id := chargebackID(t, env)

	cb, err := env.payments.ResolveChargeback(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, models.ChargebackWon, cb.Status)

	_, err = env.payments.ResolveChargeback(ctx, id, true)
	require.NoError(t, err)
	_, err = env.payments.ResolveChargeback(ctx, id, false)
	assert.ErrorIs(t, err, status.ErrChargebackResolved)

	got, err := env.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, got.Status)

	tickets, err := env.orders.Tickets(ctx, o.ID)
	require.NoError(t, err)
	for _, ticket := range tickets {
		assert.Equal(t, models.TicketActive, ticket.Status)
	}
	assert.Equal(t, models.PaymentSucceeded, env.payment(t, paid.Key()).Status)
	assert.Equal(t, 2, env.ticketType(t).Sold)
	assert.Contains(t, env.notifier.types(), NotifyChargebackClosed)
}

func TestResolveChargeback_LostClosesCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.order(t, "buyer", 1)
	paid := paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{Kind: models.RefOrder, ID: o.ID}, "pi_lost")
	require.NoError(t, env.payments.HandleNotification(ctx, paid))
	require.NoError(t, env.payments.HandleNotification(ctx, &models.PaymentNotification{
		Type: models.NotifyChargeback, Provider: "stripe", TransactionID: "pi_lost",
	}))

	cb, err := env.payments.ResolveChargeback(ctx, chargebackID(t, env), false)
	require.NoError(t, err)
	assert.Equal(t, models.ChargebackLost, cb.Status)
	assert.False(t, cb.ResolvedAt.IsZero())

	got, err := env.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderChargeback, got.Status)
	assert.Equal(t, models.PaymentChargeback, env.payment(t, paid.Key()).Status)
}

func TestResolveChargeback_WonUnblocksResoldTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ticket, tr := acceptedTransfer(t, env)
	require.NoError(t, env.payments.HandleNotification(ctx,
		paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{Kind: models.RefTransfer, ID: tr.ID}, "pi_resale")))
	require.NoError(t, env.payments.HandleNotification(ctx, &models.PaymentNotification{
		Type: models.NotifyChargeback, Provider: "stripe", TransactionID: "pi_resale",
	}))
	assert.Equal(t, models.TicketBlocked, env.ticket(t, ticket.ID).Status)

	_, err := env.payments.ResolveChargeback(ctx, chargebackID(t, env), true)
	require.NoError(t, err)

	restored := env.ticket(t, ticket.ID)
	assert.Equal(t, models.TicketActive, restored.Status)
	assert.Equal(t, "buyer", restored.OwnerID)
}

func TestChargeback_ConcurrentDuplicatesAreIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.order(t, "buyer", 1)
	require.NoError(t, env.payments.HandleNotification(ctx,
		paymentNote(models.NotifyPaymentSucceeded, models.PaymentRef{Kind: models.RefOrder, ID: o.ID}, "pi_dup")))

	cb := &models.PaymentNotification{Type: models.NotifyChargeback, Provider: "stripe", TransactionID: "pi_dup"}
	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.payments.OnChargeback(ctx, cb)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	got, err := env.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderChargeback, got.Status)
}
