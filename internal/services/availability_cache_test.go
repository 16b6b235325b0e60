package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityCache_GetSetInvalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewAvailabilityCache(db, time.Minute, nil)
	ctx := context.Background()

	a := &Availability{TicketTypeID: "tt-9", Price: decimal.NewFromInt(100), Quantity: 10, Available: 7, OnSale: true}
	data, err := json.Marshal(a)
	require.NoError(t, err)

	mock.ExpectSet("availability:ticket_type:tt-9", data, time.Minute).SetVal("OK")
	cache.Set(ctx, a)

	mock.ExpectGet("availability:ticket_type:tt-9").SetVal(string(data))
	got, ok := cache.Get(ctx, "tt-9")
	require.True(t, ok)
	assert.Equal(t, 7, got.Available)
	assert.True(t, got.Price.Equal(a.Price))

	mock.ExpectGet("availability:ticket_type:none").RedisNil()
	_, ok = cache.Get(ctx, "none")
	assert.False(t, ok)

	mock.ExpectGet("availability:ticket_type:bad").SetVal("{not json")
	_, ok = cache.Get(ctx, "bad")
	assert.False(t, ok)

	mock.ExpectDel("availability:ticket_type:tt-9").SetVal(1)
	cache.Invalidate(ctx, "tt-9")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderService_AvailabilityUsesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	db, mock := redismock.NewClientMock()
	cache := NewAvailabilityCache(db, 2*time.Minute, nil)
	deps := Deps{Store: env.store, Notifier: env.notifier, Cache: cache, Clock: env.clock, Policy: DefaultPolicy()}
	orders := NewOrderService(deps, env.ledger, env.issuer)

	mock.ExpectDel("availability:ticket_type:tt-1").SetVal(1)
	_, err := orders.CreateOrder(ctx, CreateOrderRequest{UserID: "buyer", TicketTypeID: "tt-1", Quantity: 4})
	require.NoError(t, err)

	data, err := json.Marshal(availabilityOf(env.ticketType(t), env.clock.Now()))
	require.NoError(t, err)

	mock.ExpectGet("availability:ticket_type:tt-1").RedisNil()
	mock.ExpectSet("availability:ticket_type:tt-1", data, 2*time.Minute).SetVal("OK")
	miss, err := orders.Availability(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 6, miss.Available)

	mock.ExpectGet("availability:ticket_type:tt-1").SetVal(string(data))
	hit, err := orders.Availability(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 6, hit.Available)

	assert.NoError(t, mock.ExpectationsWereMet())
}
