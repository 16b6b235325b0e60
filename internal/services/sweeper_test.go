package services

import (
	"context"
	"testing"
	"time"

	"github.com/elpekaan/eventgram-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnce_ExpiresStaleOrdersAndTransfers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stale := env.order(t, "buyer", 2)
	paid := env.order(t, "buyer", 1)
	require.NoError(t, env.orders.CompleteOrder(ctx, paid.ID, "txn-paid"))

	ticket := env.paidTicket(t, "seller")
	unapproved := listTicket(t, env, ticket.ID, "40")

	env.clock.Advance(20 * time.Minute)
	fresh := env.order(t, "buyer", 1)

	res, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrdersExpired)
	assert.Equal(t, 0, res.TransfersExpired)

	got, err := env.orders.GetOrder(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, got.Status)

	got, err = env.orders.GetOrder(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPendingPayment, got.Status)
	assert.Equal(t, 1, env.ticketType(t).Reserved)

	env.clock.Advance(49 * time.Hour)
	res, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrdersExpired)
	assert.Equal(t, 1, res.TransfersExpired)

	tr := env.transfer(t, unapproved.ID)
	assert.Equal(t, models.TransferExpired, tr.Status)
	assert.Equal(t, "venue did not respond", tr.Reason)
	assert.False(t, env.ticket(t, ticket.ID).IsLocked)

	res, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.OrdersExpired+res.TransfersExpired)
}

func TestSweepOnce_PaymentWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket, tr := acceptedTransfer(t, env)

	env.clock.Advance(11 * time.Minute)
	res, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TransfersExpired)

	got := env.transfer(t, tr.ID)
	assert.Equal(t, models.TransferExpired, got.Status)
	assert.Equal(t, "payment timed out", got.Reason)
	assert.False(t, env.ticket(t, ticket.ID).IsLocked)
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewSweeper(Deps{Store: env.store, Clock: env.clock}, env.orders, env.transfers, 5*time.Millisecond, 10).Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
