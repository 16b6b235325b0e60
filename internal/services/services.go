package services

import (
	"time"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/monitoring"
	"github.com/shopspring/decimal"
)

// Policy holds the commercial and timing rules shared by the engines.
type Policy struct {
	ReservationWindow     time.Duration
	CommissionRate        decimal.Decimal
	VenueApprovalWindow   time.Duration
	BuyerAcceptanceWindow time.Duration
	PaymentWindow         time.Duration
	GeofenceRadiusMeters  float64
	RefundFeeRate         decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		ReservationWindow:     15 * time.Minute,
		CommissionRate:        decimal.RequireFromString("0.15"),
		VenueApprovalWindow:   48 * time.Hour,
		BuyerAcceptanceWindow: 72 * time.Hour,
		PaymentWindow:         10 * time.Minute,
		GeofenceRadiusMeters:  100,
		RefundFeeRate:         decimal.RequireFromString("0.10"),
	}
}

// Deps are the collaborators every engine is built from.
type Deps struct {
	Store    *store.Store
	Notifier Notifier
	Cache    *AvailabilityCache
	Clock    Clock
	Policy   Policy
	Monitor  *monitoring.Monitor
}

func (d Deps) dispatcher() dispatcher {
	return dispatcher{store: d.Store, notifier: d.Notifier, cache: d.Cache}
}

func (d Deps) clock() Clock {
	if d.Clock == nil {
		return SystemClock{}
	}
	return d.Clock
}

// outcome labels err for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := status.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
