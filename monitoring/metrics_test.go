package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitor_TracksCounters(t *testing.T) {
	m := NewMonitor()

	before := testutil.ToFloat64(orderOperations.WithLabelValues("create", "ok"))
	m.TrackOrderOperation("create", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(orderOperations.WithLabelValues("create", "ok")))

	beforeSwept := testutil.ToFloat64(sweeperExpired.WithLabelValues("transfer"))
	m.TrackSweep(2, 3, 10*time.Millisecond)
	assert.Equal(t, beforeSwept+3, testutil.ToFloat64(sweeperExpired.WithLabelValues("transfer")))
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor

	assert.NotPanics(t, func() {
		m.TrackCheckIn("ok")
		m.TrackCacheLookup(true)
		m.TrackTransferTransition("listed")
	})
}

func TestMonitor_Handler(t *testing.T) {
	NewMonitor().TrackPaymentCallback("payment.succeeded", "ok")

	rec := httptest.NewRecorder()
	NewMonitor().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "payment_callbacks_total")
}
