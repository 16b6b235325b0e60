package handlers

import (
	"github.com/elpekaan/eventgram-api/internal/services"
	"github.com/pocketbase/pocketbase/core"
)

type CheckInHandler struct {
	checkins CheckInCommands
}

func NewCheckInHandler(checkins CheckInCommands) *CheckInHandler {
	return &CheckInHandler{checkins: checkins}
}

// CheckIn validates a scanned code at the door. The device id comes from the
// scanner header when the body omits it.
func (h *CheckInHandler) CheckIn(e *core.RequestEvent) error {
	staffID, err := authID(e)
	if err != nil {
		return err
	}

	var req services.CheckInRequest
	if err := bind(e, &req); err != nil {
		return err
	}
	req.StaffID = staffID
	if req.DeviceID == "" {
		req.DeviceID = e.Request.Header.Get(DeviceHeader)
	}

	result, err := h.checkins.CheckIn(e.Request.Context(), req)
	if err != nil {
		return respondError(e, err)
	}
	return ok(e, map[string]any{
		"check_in":          result.CheckIn,
		"ticket_id":         result.Ticket.ID,
		"was_late":          result.WasLate,
		"location_verified": result.LocationVerified,
	})
}

func (h *CheckInHandler) EventStats(e *core.RequestEvent) error {
	staffID, err := authID(e)
	if err != nil {
		return err
	}

	stats, err := h.checkins.EventStats(e.Request.Context(), staffID, e.Request.PathValue("eventId"))
	if err != nil {
		return respondError(e, err)
	}
	return ok(e, stats)
}

// DeviceHeader identifies the scanner a request comes from.
const DeviceHeader = "X-Device-ID"
