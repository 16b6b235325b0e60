package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/elpekaan/eventgram-api/monitoring"
	"github.com/elpekaan/eventgram-api/utils"
	"github.com/google/uuid"
)

const earthRadiusMeters = 6371000.0

type CheckInRequest struct {
	Code      string   `json:"code"`
	StaffID   string   `json:"staff_id"`
	DeviceID  string   `json:"device_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type CheckInResult struct {
	CheckIn          *models.CheckIn `json:"check_in"`
	Ticket           *models.Ticket  `json:"ticket"`
	WasLate          bool            `json:"was_late"`
	LocationVerified bool            `json:"location_verified"`
}

// CheckInService validates tickets at the door.
type CheckInService struct {
	dispatcher
	clock   Clock
	policy  Policy
	monitor *monitoring.Monitor
}

func NewCheckInService(deps Deps) *CheckInService {
	return &CheckInService{
		dispatcher: deps.dispatcher(),
		clock:      deps.clock(),
		policy:     deps.Policy,
		monitor:    deps.Monitor,
	}
}

// CheckIn redeems a ticket code. Location is advisory: a missing or distant fix is
// recorded but never blocks entry.
func (s *CheckInService) CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	code := utils.NormalizeTicketCode(req.Code)
	switch {
	case req.StaffID == "":
		return nil, status.ErrValidation.WithMeta("field", "staff_id")
	case code == "":
		return nil, status.ErrValidation.WithMeta("field", "code")
	case (req.Latitude == nil) != (req.Longitude == nil):
		return nil, status.ErrValidation.WithMessage("latitude and longitude must be sent together")
	}
	if !utils.IsTicketCode(code) {
		s.monitor.TrackCheckIn(string(status.CodeInvalidCode))
		return nil, status.ErrInvalidCode
	}

	var result *CheckInResult
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		ticket, err := tx.LockTicketByCode(code)
		if errors.Is(err, store.ErrNotFound) {
			return status.ErrInvalidCode
		}
		if err != nil {
			return err
		}

		event, err := tx.GetEvent(ticket.EventID)
		if err != nil {
			return err
		}
		venue, err := tx.GetVenue(event.VenueID)
		if err != nil {
			return err
		}
		if venue.OwnerID != req.StaffID {
			return status.ErrUnauthorized.WithMessage("user is not staff for venue %s", venue.ID)
		}

		if err := checkTicketStatus(tx, ticket); err != nil {
			return err
		}

		now := s.clock.Now()
		opens, closes := event.CheckInWindow()
		window := func(reason string) error {
			return status.ErrOutsideCheckInWindow.
				WithMeta("reason", reason).
				WithMeta("opens_at", opens.Format(time.RFC3339)).
				WithMeta("closes_at", closes.Format(time.RFC3339))
		}
		if now.Before(opens) {
			return window(status.ReasonNotOpen)
		}
		if now.After(closes) {
			return window(status.ReasonClosed)
		}

		if existing, err := tx.ValidCheckIn(ticket.ID); err == nil {
			return duplicate(existing)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		checkIn := &models.CheckIn{
			ID:               uuid.NewString(),
			TicketID:         ticket.ID,
			EventID:          event.ID,
			UserID:           ticket.OwnerID,
			StaffID:          req.StaffID,
			DeviceID:         req.DeviceID,
			Latitude:         req.Latitude,
			Longitude:        req.Longitude,
			IsValid:          true,
			ValidTicketID:    &ticket.ID,
			ValidationStatus: models.ValidationLocationUnverified,
			WasLate:          now.After(event.StartsAt.Time()),
			CheckedInAt:      models.At(now),
		}
		if req.Latitude != nil && venue.HasLocation() {
			d := haversine(*req.Latitude, *req.Longitude, *venue.Latitude, *venue.Longitude)
			checkIn.DistanceMeters = &d
			checkIn.LocationVerified = d <= s.policy.GeofenceRadiusMeters
			checkIn.ValidationStatus = models.ValidationOutsideGeofence
			if checkIn.LocationVerified {
				checkIn.ValidationStatus = models.ValidationValid
			}
		}

		if err := tx.InsertCheckIn(checkIn); err != nil {
			if store.IsUniqueViolation(err) {
				return status.ErrDuplicateCheckIn
			}
			return err
		}

		ticket.Status = models.TicketUsed
		ticket.UsedAt = checkIn.CheckedInAt
		ticket.CheckedInBy = req.StaffID
		ticket.UpdatedAt = checkIn.CheckedInAt
		if err := tx.SaveTicket(ticket); err != nil {
			return err
		}
		if err := tx.AdjustEventCounters(event.ID, 0, 1); err != nil {
			return err
		}

		out.notify(Notification{
			Type:     NotifyCheckedIn,
			UserID:   ticket.OwnerID,
			EntityID: ticket.ID,
			Payload: map[string]any{
				"event_id":          event.ID,
				"was_late":          checkIn.WasLate,
				"location_verified": checkIn.LocationVerified,
			},
			OccurredAt: now,
		})

		result = &CheckInResult{
			CheckIn:          checkIn,
			Ticket:           ticket,
			WasLate:          checkIn.WasLate,
			LocationVerified: checkIn.LocationVerified,
		}
		return nil
	})

	s.monitor.TrackCheckIn(outcome(err))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkTicketStatus maps every non-active state to its own door message.
func checkTicketStatus(tx *store.Tx, ticket *models.Ticket) error {
	switch ticket.Status {
	case models.TicketActive:
	case models.TicketUsed:
		existing, err := tx.ValidCheckIn(ticket.ID)
		if err == nil {
			return duplicate(existing)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return status.ErrTicketAlreadyUsed.WithMeta("used_at", ticket.UsedAt.Time().Format(time.RFC3339))
	case models.TicketCancelled:
		return status.ErrTicketCancelled
	case models.TicketRefunded:
		return status.ErrTicketRefunded
	case models.TicketChargeback:
		return status.ErrTicketChargeback
	case models.TicketBlocked:
		return status.ErrTicketBlocked
	default:
		return status.ErrTicketBlocked.WithMeta("status", string(ticket.Status))
	}

	if ticket.IsLocked {
		return status.ErrTicketLocked.WithMeta("reason", ticket.LockedReason)
	}
	return nil
}

func duplicate(existing *models.CheckIn) error {
	at := existing.CheckedInAt.Time().Format(time.RFC3339)
	return status.ErrDuplicateCheckIn.
		WithMessage("ticket already checked in at %s", at).
		WithMeta("checked_in_at", at)
}

// EventStats summarises door activity for venue staff.
func (s *CheckInService) EventStats(ctx context.Context, staffID, eventID string) (*models.CheckInStats, error) {
	tx := s.store.Read(ctx)
	if err := authorizeEventStaff(tx, staffID, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, status.ErrNotFound.WithMessage("event %s not found", eventID)
		}
		return nil, err
	}
	return tx.CheckInStats(eventID)
}

// haversine returns the great-circle distance in meters.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
