package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_operations_total",
			Help: "Order engine operations by outcome",
		},
		[]string{"operation", "status"},
	)

	transferTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_transitions_total",
			Help: "Transfer state transitions",
		},
		[]string{"to"},
	)

	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "check_ins_total",
			Help: "Door scans by result code",
		},
		[]string{"result"},
	)

	paymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Payment callbacks processed",
		},
		[]string{"type", "outcome"},
	)

	sweeperExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_expired_total",
			Help: "Entities expired by the timeout sweeper",
		},
		[]string{"kind"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweeper_pass_duration_seconds",
			Help:    "Duration of one sweeper pass",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	availabilityCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "availability_cache_total",
			Help: "Availability cache lookups",
		},
		[]string{"result"},
	)
)

// Monitor records lifecycle metrics. A nil *Monitor is valid and records nothing.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Handler exposes the default registry for scraping.
func (m *Monitor) Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Monitor) TrackOrderOperation(operation, status string) {
	if m == nil {
		return
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) TrackTransferTransition(to string) {
	if m == nil {
		return
	}
	transferTransitions.WithLabelValues(to).Inc()
}

func (m *Monitor) TrackCheckIn(result string) {
	if m == nil {
		return
	}
	checkIns.WithLabelValues(result).Inc()
}

func (m *Monitor) TrackPaymentCallback(kind, outcome string) {
	if m == nil {
		return
	}
	paymentCallbacks.WithLabelValues(kind, outcome).Inc()
}

func (m *Monitor) TrackSweep(orders, transfers int, duration time.Duration) {
	if m == nil {
		return
	}
	sweeperExpired.WithLabelValues("order").Add(float64(orders))
	sweeperExpired.WithLabelValues("transfer").Add(float64(transfers))
	sweepDuration.Observe(duration.Seconds())
}

func (m *Monitor) TrackCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	availabilityCache.WithLabelValues(result).Inc()
}
