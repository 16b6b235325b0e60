package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	venueLat = 41.0082
	venueLon = 28.9784

	eventStart = time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	saleTime   = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) types() []NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationType, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Type
	}
	return out
}

type testEnv struct {
	store     *store.Store
	clock     *fakeClock
	notifier  *recordingNotifier
	ledger    *InventoryLedger
	issuer    *TicketIssuer
	orders    *OrderService
	transfers *TransferService
	checkins  *CheckInService
	payments  *PaymentService
	sweeper   *Sweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := &fakeClock{now: saleTime}
	notifier := &recordingNotifier{}
	deps := Deps{Store: st, Notifier: notifier, Clock: clock, Policy: DefaultPolicy()}

	ledger := NewInventoryLedger(clock)
	issuer := NewTicketIssuer(clock, nil)
	orders := NewOrderService(deps, ledger, issuer)
	transfers := NewTransferService(deps, issuer)

	env := &testEnv{
		store:     st,
		clock:     clock,
		notifier:  notifier,
		ledger:    ledger,
		issuer:    issuer,
		orders:    orders,
		transfers: transfers,
		checkins:  NewCheckInService(deps),
		payments:  NewPaymentService(deps, orders, transfers, ledger),
		sweeper:   NewSweeper(deps, orders, transfers, time.Minute, 50),
	}
	env.seed(t)
	return env
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	now := models.At(saleTime)

	err := e.store.RunInTx(context.Background(), func(tx *store.Tx) error {
		for _, u := range []*models.User{
			{ID: "seller", Email: "seller@example.com", Name: "Seller", CreatedAt: now},
			{ID: "buyer", Email: "buyer@example.com", Name: "Buyer", CreatedAt: now},
			{ID: "staff", Email: "staff@example.com", Name: "Door", CreatedAt: now},
			{ID: "stranger", Email: "stranger@example.com", Name: "Stranger", CreatedAt: now},
		} {
			if err := tx.InsertUser(u); err != nil {
				return err
			}
		}
		if err := tx.InsertVenue(&models.Venue{
			ID: "venue-1", OwnerID: "staff", Name: "Hall", Latitude: &venueLat, Longitude: &venueLon, CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.InsertEvent(&models.Event{
			ID:                "ev-1",
			VenueID:           "venue-1",
			Title:             "Concert",
			StartsAt:          models.At(eventStart),
			CheckInOpensHours: 2,
			LateEntryHours:    1,
			CreatedAt:         now,
		}); err != nil {
			return err
		}
		return tx.InsertTicketType(&models.TicketType{
			ID:          "tt-1",
			EventID:     "ev-1",
			Name:        "General",
			Price:       decimal.RequireFromString("100"),
			ServiceFee:  decimal.RequireFromString("10"),
			Quantity:    10,
			MinPerOrder: 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	})
	require.NoError(t, err)
}

func (e *testEnv) ticketType(t *testing.T) *models.TicketType {
	t.Helper()
	tt, err := e.store.Read(context.Background()).GetTicketType("tt-1")
	require.NoError(t, err)
	return tt
}

func (e *testEnv) event(t *testing.T) *models.Event {
	t.Helper()
	ev, err := e.store.Read(context.Background()).GetEvent("ev-1")
	require.NoError(t, err)
	return ev
}

func (e *testEnv) order(t *testing.T, userID string, qty int) *models.Order {
	t.Helper()
	o, err := e.orders.CreateOrder(context.Background(), CreateOrderRequest{UserID: userID, TicketTypeID: "tt-1", Quantity: qty})
	require.NoError(t, err)
	return o
}

// paidTicket buys one ticket for userID and returns it.
func (e *testEnv) paidTicket(t *testing.T, userID string) *models.Ticket {
	t.Helper()
	o := e.order(t, userID, 1)
	require.NoError(t, e.orders.CompleteOrder(context.Background(), o.ID, "pay-"+o.ID))

	tickets, err := e.orders.Tickets(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	return tickets[0]
}

func (e *testEnv) ticket(t *testing.T, id string) *models.Ticket {
	t.Helper()
	var ticket *models.Ticket
	err := e.store.RunInTx(context.Background(), func(tx *store.Tx) error {
		var err error
		ticket, err = tx.LockTicket(id)
		return err
	})
	require.NoError(t, err)
	return ticket
}

func (e *testEnv) transfer(t *testing.T, id string) *models.Transfer {
	t.Helper()
	tr, err := e.transfers.GetTransfer(context.Background(), id)
	require.NoError(t, err)
	return tr
}
