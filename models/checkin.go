package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
)

type ValidationStatus string

const (
	ValidationValid              ValidationStatus = "valid"
	ValidationOutsideGeofence    ValidationStatus = "outside_geofence"
	ValidationLocationUnverified ValidationStatus = "location_unverified"
)

type CheckIn struct {
	ID               string           `db:"id" json:"id"`
	TicketID         string           `db:"ticket_id" json:"ticket_id"`
	EventID          string           `db:"event_id" json:"event_id"`
	UserID           string           `db:"user_id" json:"user_id"`
	StaffID          string           `db:"staff_id" json:"staff_id"`
	DeviceID         string           `db:"device_id" json:"device_id,omitempty"`
	Latitude         *float64         `db:"latitude" json:"latitude,omitempty"`
	Longitude        *float64         `db:"longitude" json:"longitude,omitempty"`
	DistanceMeters   *float64         `db:"distance_meters" json:"distance_meters,omitempty"`
	LocationVerified bool             `db:"location_verified" json:"location_verified"`
	IsValid          bool             `db:"is_valid" json:"is_valid"`
	ValidTicketID    *string          `db:"valid_ticket_id" json:"-"`
	ValidationStatus ValidationStatus `db:"validation_status" json:"validation_status"`
	WasLate          bool             `db:"was_late" json:"was_late"`
	CheckedInAt      types.DateTime   `db:"checked_in_at" json:"checked_in_at"`
}

// CheckInStats summarises door activity for an event.
type CheckInStats struct {
	EventID        string `json:"event_id"`
	TicketsSold    int    `json:"tickets_sold"`
	CheckedInCount int    `json:"checked_in_count"`
	ValidScans     int    `json:"valid_scans"`
	LateEntries    int    `json:"late_entries"`
	Unverified     int    `json:"location_unverified"`
}
