package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveAction(t *testing.T) {
	m := New()

	m.ObserveAction("submitTrip", "", 10*time.Millisecond)
	m.ObserveAction("submitTrip", "TRIP_LOCKED", time.Millisecond)
	m.ObserveAction("submitTrip", "", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues("submitTrip", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("submitTrip", "TRIP_LOCKED")))
}

func TestMetrics_ReviewsAndConflicts(t *testing.T) {
	m := New()

	m.ObserveReview("expense", "approved")
	m.ObserveConflict()
	m.ObserveConflict()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.reviews.WithLabelValues("expense", "approved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.conflicts))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveAction("getMembers", "", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "trip_actions_total"))
}
