package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elpekaan/eventgram-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTicketType(t *testing.T, s *Store) *models.TicketType {
	t.Helper()
	now := models.At(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	tt := &models.TicketType{
		ID:          "tt-1",
		EventID:     "ev-1",
		Name:        "General",
		Price:       decimal.RequireFromString("100"),
		ServiceFee:  decimal.RequireFromString("10"),
		Quantity:    10,
		MinPerOrder: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.RunInTx(context.Background(), func(tx *Tx) error {
		if err := tx.InsertUser(&models.User{ID: "owner", Email: "owner@example.com", CreatedAt: now}); err != nil {
			return err
		}
		if err := tx.InsertVenue(&models.Venue{ID: "venue-1", OwnerID: "owner", CreatedAt: now}); err != nil {
			return err
		}
		if err := tx.InsertEvent(&models.Event{ID: "ev-1", VenueID: "venue-1", StartsAt: now, CreatedAt: now}); err != nil {
			return err
		}
		return tx.InsertTicketType(tt)
	})
	require.NoError(t, err)
	return tt
}

func TestMigrate_IsIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Migrate(context.Background()))

	var count int
	require.NoError(t, s.db.Select("COUNT(*)").From(migrationTable).Row(&count))
	assert.Equal(t, 3, count)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
-- comment
CREATE TABLE a (id INT);

CREATE TABLE b (id INT);
`)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id INT)", stmts[0])
}

func TestTicketType_LockAndSaveCounters(t *testing.T) {
	s := newTestStore(t)
	seedTicketType(t, s)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx *Tx) error {
		tt, err := tx.LockTicketType("tt-1")
		if err != nil {
			return err
		}
		tt.Reserved = 4
		return tx.SaveTicketTypeCounters(tt)
	})
	require.NoError(t, err)

	got, err := s.Read(ctx).GetTicketType("tt-1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Reserved)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("100")))
	assert.True(t, got.ServiceFee.Equal(decimal.RequireFromString("10")))
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	seedTicketType(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(tx *Tx) error {
		tt, err := tx.LockTicketType("tt-1")
		if err != nil {
			return err
		}
		tt.Reserved = 9
		if err := tx.SaveTicketTypeCounters(tt); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Read(ctx).GetTicketType("tt-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Reserved)
}

func TestLock_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.RunInTx(context.Background(), func(tx *Tx) error {
		_, err := tx.LockTicketByCode("NOPE")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketCode_IsUnique(t *testing.T) {
	s := newTestStore(t)
	seedTicketType(t, s)
	ctx := context.Background()

	insert := func(id string) error {
		return s.RunInTx(ctx, func(tx *Tx) error {
			return tx.InsertTicket(&models.Ticket{
				ID: id, Code: "ABCDEFGHJKLM", OrderID: "o-1", EventID: "ev-1",
				TicketTypeID: "tt-1", OwnerID: "owner", Status: models.TicketActive,
			})
		})
	}

	require.NoError(t, insert("t-1"))
	err := insert("t-2")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	exists, err := s.Read(ctx).TicketCodeExists("ABCDEFGHJKLM")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCheckIn_OneValidRowPerTicket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ticketID := "t-1"

	insert := func(id string, valid bool) error {
		c := &models.CheckIn{
			ID: id, TicketID: ticketID, EventID: "ev-1", UserID: "u", StaffID: "owner",
			IsValid: valid, ValidationStatus: models.ValidationValid,
		}
		if valid {
			c.ValidTicketID = &ticketID
		}
		return s.RunInTx(ctx, func(tx *Tx) error { return tx.InsertCheckIn(c) })
	}

	require.NoError(t, insert("c-1", true))
	require.NoError(t, insert("c-2", false))
	require.NoError(t, insert("c-3", false))
	assert.True(t, IsUniqueViolation(insert("c-4", true)))

	got, err := s.Read(ctx).ValidCheckIn(ticketID)
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.ID)
	assert.Nil(t, got.Latitude)
}

func TestExpiredOrderIDs(t *testing.T) {
	s := newTestStore(t)
	seedTicketType(t, s)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	orders := []*models.Order{
		{ID: "o-old", OrderNumber: "ORD-1", Status: models.OrderPendingPayment, ExpiresAt: models.At(base.Add(-time.Minute))},
		{ID: "o-new", OrderNumber: "ORD-2", Status: models.OrderPendingPayment, ExpiresAt: models.At(base.Add(time.Minute))},
		{ID: "o-done", OrderNumber: "ORD-3", Status: models.OrderCompleted, ExpiresAt: models.At(base.Add(-time.Hour))},
	}
	require.NoError(t, s.RunInTx(ctx, func(tx *Tx) error {
		for _, o := range orders {
			o.UserID, o.EventID, o.TicketTypeID, o.Quantity = "owner", "ev-1", "tt-1", 1
			if err := tx.InsertOrder(o); err != nil {
				return err
			}
		}
		return nil
	}))

	ids, err := s.Read(ctx).ExpiredOrderIDs(models.At(base), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-old"}, ids)
}

func TestAdjustEventCounters(t *testing.T) {
	s := newTestStore(t)
	seedTicketType(t, s)
	ctx := context.Background()

	require.NoError(t, s.RunInTx(ctx, func(tx *Tx) error {
		return tx.AdjustEventCounters("ev-1", 3, 1)
	}))

	ev, err := s.Read(ctx).GetEvent("ev-1")
	require.NoError(t, err)
	assert.Equal(t, 3, ev.TicketsSold)
	assert.Equal(t, 1, ev.CheckedInCount)
}

func TestFindUserByEmail_IsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	seedTicketType(t, s)

	u, err := s.Read(context.Background()).FindUserByEmail("  OWNER@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "owner", u.ID)
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "postgres", "")
	assert.Error(t, err)
}
