package store

import (
	"strings"

	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/dbx"
)

// Users, venues and events are owned elsewhere; the lifecycle core only reads them
// and maintains the denormalised event counters.

func (tx *Tx) InsertUser(u *models.User) error {
	return tx.insert("users", dbx.Params{
		"id":         u.ID,
		"email":      strings.ToLower(strings.TrimSpace(u.Email)),
		"name":       u.Name,
		"created_at": u.CreatedAt,
	})
}

func (tx *Tx) FindUserByEmail(email string) (*models.User, error) {
	var u models.User
	err := tx.findOne(&u, "users", dbx.HashExp{"email": strings.ToLower(strings.TrimSpace(email))})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (tx *Tx) InsertVenue(v *models.Venue) error {
	return tx.insert("venues", dbx.Params{
		"id":         v.ID,
		"owner_id":   v.OwnerID,
		"name":       v.Name,
		"latitude":   nullable(v.Latitude),
		"longitude":  nullable(v.Longitude),
		"created_at": v.CreatedAt,
	})
}

func (tx *Tx) GetVenue(id string) (*models.Venue, error) {
	var v models.Venue
	if err := tx.findOne(&v, "venues", dbx.HashExp{"id": id}); err != nil {
		return nil, err
	}
	return &v, nil
}

func (tx *Tx) InsertEvent(e *models.Event) error {
	return tx.insert("events", dbx.Params{
		"id":                   e.ID,
		"venue_id":             e.VenueID,
		"title":                e.Title,
		"starts_at":            e.StartsAt,
		"check_in_opens_hours": e.CheckInOpensHours,
		"late_entry_hours":     e.LateEntryHours,
		"allow_late_entry":     e.AllowLateEntry,
		"tickets_sold":         e.TicketsSold,
		"checked_in_count":     e.CheckedInCount,
		"created_at":           e.CreatedAt,
	})
}

func (tx *Tx) GetEvent(id string) (*models.Event, error) {
	var e models.Event
	if err := tx.findOne(&e, "events", dbx.HashExp{"id": id}); err != nil {
		return nil, err
	}
	return &e, nil
}

// AdjustEventCounters applies deltas to the denormalised counters in place.
func (tx *Tx) AdjustEventCounters(eventID string, soldDelta, checkedInDelta int) error {
	_, err := tx.b.NewQuery(`UPDATE events
		SET tickets_sold = tickets_sold + {:sold}, checked_in_count = checked_in_count + {:checked}
		WHERE id = {:id}`).
		Bind(dbx.Params{"sold": soldDelta, "checked": checkedInDelta, "id": eventID}).
		WithContext(tx.ctx).
		Execute()
	return err
}
