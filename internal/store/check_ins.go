package store

import (
	"github.com/elpekaan/eventgram-api/models"
	"github.com/pocketbase/dbx"
)

func (tx *Tx) InsertCheckIn(c *models.CheckIn) error {
	return tx.insert("check_ins", dbx.Params{
		"id":                c.ID,
		"ticket_id":         c.TicketID,
		"event_id":          c.EventID,
		"user_id":           c.UserID,
		"staff_id":          c.StaffID,
		"device_id":         c.DeviceID,
		"latitude":          nullable(c.Latitude),
		"longitude":         nullable(c.Longitude),
		"distance_meters":   nullable(c.DistanceMeters),
		"location_verified": c.LocationVerified,
		"is_valid":          c.IsValid,
		"valid_ticket_id":   nullable(c.ValidTicketID),
		"validation_status": string(c.ValidationStatus),
		"was_late":          c.WasLate,
		"checked_in_at":     c.CheckedInAt,
	})
}

// ValidCheckIn returns the single valid check-in for a ticket, if any.
func (tx *Tx) ValidCheckIn(ticketID string) (*models.CheckIn, error) {
	var c models.CheckIn
	err := tx.lockOne(&c, "check_ins", "valid_ticket_id = {:ticket}", dbx.Params{"ticket": ticketID})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (tx *Tx) CheckInStats(eventID string) (*models.CheckInStats, error) {
	var row struct {
		Valid      int `db:"valid"`
		Late       int `db:"late"`
		Unverified int `db:"unverified"`
	}
	err := tx.b.NewQuery(`SELECT
			COALESCE(SUM(CASE WHEN is_valid THEN 1 ELSE 0 END), 0) AS valid,
			COALESCE(SUM(CASE WHEN is_valid AND was_late THEN 1 ELSE 0 END), 0) AS late,
			COALESCE(SUM(CASE WHEN is_valid AND NOT location_verified THEN 1 ELSE 0 END), 0) AS unverified
		FROM check_ins WHERE event_id = {:event}`).
		Bind(dbx.Params{"event": eventID}).
		WithContext(tx.ctx).
		One(&row)
	if err != nil {
		return nil, err
	}

	ev, err := tx.GetEvent(eventID)
	if err != nil {
		return nil, err
	}

	return &models.CheckInStats{
		EventID:        eventID,
		TicketsSold:    ev.TicketsSold,
		CheckedInCount: ev.CheckedInCount,
		ValidScans:     row.Valid,
		LateEntries:    row.Late,
		Unverified:     row.Unverified,
	}, nil
}
