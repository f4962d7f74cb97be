package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/counseling-booking-api/internal/middleware"
	"github.com/noah-isme/counseling-booking-api/internal/models"
)

type fakeCalendarSrv struct {
	stats  *models.MonthlyStats
	hit    bool
	err    error
	called bool

	year, month int
	status      models.AppointmentStatus
}

func (f *fakeCalendarSrv) MonthlyStats(_ context.Context, year, month int, status models.AppointmentStatus) (*models.MonthlyStats, bool, error) {
	f.called = true
	f.year, f.month, f.status = year, month, status
	return f.stats, f.hit, f.err
}

func TestCalendarHandlerStatsReportsCacheHit(t *testing.T) {
	srv := &fakeCalendarSrv{
		stats: &models.MonthlyStats{Year: 2025, Month: 3, Status: models.AppointmentStatusApproved,
			Days: map[string]models.DayStats{"2025-03-03": {Count: 2, FullyBooked: true}}},
		hit: true,
	}
	handler := NewCalendarHandler(srv, nil, time.UTC)
	c, rec := newTestContext(http.MethodGet, "/calendar/stats?year=2025&month=3&status=APPROVED", "", studentClaims)

	handler.Stats(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2025, srv.year)
	assert.Equal(t, 3, srv.month)
	assert.Equal(t, models.AppointmentStatusApproved, srv.status)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, string(env.Data), `"fullyBooked":true`)
	assert.Equal(t, true, middleware.ExtractMeta(c)["cache_hit"])
}

func TestCalendarHandlerDefaultsToCurrentMonth(t *testing.T) {
	srv := &fakeCalendarSrv{stats: &models.MonthlyStats{}}
	handler := NewCalendarHandler(srv, nil, time.UTC)
	handler.now = func() time.Time { return time.Date(2025, 11, 30, 23, 0, 0, 0, time.UTC) }
	c, rec := newTestContext(http.MethodGet, "/calendar/stats", "", studentClaims)

	handler.Stats(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2025, srv.year)
	assert.Equal(t, 11, srv.month)
	assert.Empty(t, srv.status)
}

func TestCalendarHandlerRejectsBadQuery(t *testing.T) {
	cases := []string{
		"/calendar/stats?year=2025&month=13",
		"/calendar/stats?year=abc&month=1",
		"/calendar/stats?year=2025&month=1&status=DONE",
	}
	for _, target := range cases {
		srv := &fakeCalendarSrv{}
		c, rec := newTestContext(http.MethodGet, target, "", studentClaims)

		NewCalendarHandler(srv, nil, time.UTC).Stats(c)

		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.False(t, srv.called, target)
	}
}
