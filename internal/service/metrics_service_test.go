package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricValue(t *testing.T, collector prometheus.Metric) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, collector.Write(&metric))
	if metric.Counter != nil {
		return metric.GetCounter().GetValue()
	}
	return metric.GetGauge().GetValue()
}

func TestMetricsServiceBookingCounters(t *testing.T) {
	m := NewMetricsService()
	m.ObserveBooking(opCreate, OutcomeCommitted)
	m.ObserveBooking(opCreate, OutcomeCommitted)
	m.ObserveConflict("CAPACITY_EXCEEDED")
	m.ObserveRetry(opCreate)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	assert.Equal(t, 2.0, metricValue(t, m.bookingTotal.WithLabelValues(opCreate, OutcomeCommitted)))
	assert.Equal(t, 1.0, metricValue(t, m.conflictTotal.WithLabelValues("CAPACITY_EXCEEDED")))
	assert.Equal(t, 1.0, metricValue(t, m.bookingRetries.WithLabelValues(opCreate)))
	assert.Equal(t, 0.5, metricValue(t, m.cacheHitRatio))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveBooking(opCreate, OutcomeFailed)
	m.ObserveHTTPRequest(http.MethodGet, "/x", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
