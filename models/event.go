package models

import (
	"time"

	"github.com/pocketbase/pocketbase/tools/types"
)

// At converts a time into the column type used by every timestamp field.
func At(t time.Time) types.DateTime {
	d, _ := types.ParseDateTime(t)
	return d
}

type User struct {
	ID        string         `db:"id" json:"id"`
	Email     string         `db:"email" json:"email"`
	Name      string         `db:"name" json:"name"`
	CreatedAt types.DateTime `db:"created_at" json:"created_at"`
}

// Venue owners are the only staff allowed to approve transfers and scan tickets.
type Venue struct {
	ID        string         `db:"id" json:"id"`
	OwnerID   string         `db:"owner_id" json:"owner_id"`
	Name      string         `db:"name" json:"name"`
	Latitude  *float64       `db:"latitude" json:"latitude,omitempty"`
	Longitude *float64       `db:"longitude" json:"longitude,omitempty"`
	CreatedAt types.DateTime `db:"created_at" json:"created_at"`
}

func (v *Venue) HasLocation() bool {
	return v.Latitude != nil && v.Longitude != nil
}

type Event struct {
	ID                string         `db:"id" json:"id"`
	VenueID           string         `db:"venue_id" json:"venue_id"`
	Title             string         `db:"title" json:"title"`
	StartsAt          types.DateTime `db:"starts_at" json:"starts_at"`
	CheckInOpensHours int            `db:"check_in_opens_hours" json:"check_in_opens_hours"`
	LateEntryHours    int            `db:"late_entry_hours" json:"late_entry_hours"`
	AllowLateEntry    bool           `db:"allow_late_entry" json:"allow_late_entry"`
	TicketsSold       int            `db:"tickets_sold" json:"tickets_sold"`
	CheckedInCount    int            `db:"checked_in_count" json:"checked_in_count"`
	CreatedAt         types.DateTime `db:"created_at" json:"created_at"`
}

// CheckInWindow returns the interval in which door scans are accepted.
func (e *Event) CheckInWindow() (opens, closes time.Time) {
	start := e.StartsAt.Time()
	opens = start.Add(-time.Duration(e.CheckInOpensHours) * time.Hour)
	closes = start
	if e.AllowLateEntry {
		closes = start.Add(time.Duration(e.LateEntryHours) * time.Hour)
	}
	return opens, closes
}
