package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/timerange"
)

func displays(units []timerange.Range) []string {
	out := make([]string, len(units))
	for i, unit := range units {
		out[i] = unit.String()
	}
	return out
}

func TestResolverSplitsRangeIntoUnits(t *testing.T) {
	units, err := NewAvailabilityResolver().Resolve([]models.WeeklyAvailabilityEntry{
		weekly("c-1", time.Monday, "8:00 AM - 9:30 AM"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{unit8, unit83, unit9}, displays(units))
}

func TestResolverDeduplicatesOverlapsAndRepeats(t *testing.T) {
	resolver := NewAvailabilityResolver()

	once, err := resolver.Resolve([]models.WeeklyAvailabilityEntry{
		weekly("c-1", time.Monday, "8:00 AM - 9:00 AM"),
	})
	require.NoError(t, err)

	twice, err := resolver.Resolve([]models.WeeklyAvailabilityEntry{
		weekly("c-1", time.Monday, "8:00 AM - 9:00 AM", "8:00 AM - 9:00 AM"),
	})
	require.NoError(t, err)
	assert.Equal(t, once, twice)

	overlapping, err := resolver.Resolve([]models.WeeklyAvailabilityEntry{
		weekly("c-1", time.Monday, "8:30 AM - 9:30 AM", "8:00 AM - 9:00 AM"),
		weekly("c-2", time.Monday, "9:00 AM - 9:30 AM"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{unit8, unit83, unit9}, displays(overlapping))
}

func TestResolverHonoursGapsVerbatim(t *testing.T) {
	units, err := NewAvailabilityResolver().Resolve([]models.WeeklyAvailabilityEntry{
		weekly("c-1", time.Monday, "1:00 PM - 1:30 PM", "11:30 AM - 12:00 PM"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"11:30 AM - 12:00 PM", "1:00 PM - 1:30 PM"}, displays(units))
}

func TestResolverEmptyInput(t *testing.T) {
	units, err := NewAvailabilityResolver().Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, units)

	byCounselor, err := NewAvailabilityResolver().ResolveByCounselor([]models.WeeklyAvailabilityEntry{weekly("c-1", time.Monday)})
	require.NoError(t, err)
	assert.Empty(t, byCounselor)
}

func TestResolverRejectsBadRanges(t *testing.T) {
	resolver := NewAvailabilityResolver()

	_, err := resolver.Resolve([]models.WeeklyAvailabilityEntry{weekly("c-1", time.Monday, "8:00 AM - 8:45 AM")})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidRangeWidth.Code))
	assert.ErrorIs(t, err, timerange.ErrInvalidWidth)

	_, err = resolver.Resolve([]models.WeeklyAvailabilityEntry{weekly("c-1", time.Monday, "8:00 - 9:00")})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrMalformedRange.Code))
}

func TestResolverKeepsCounselorsApart(t *testing.T) {
	byCounselor, err := NewAvailabilityResolver().ResolveByCounselor([]models.WeeklyAvailabilityEntry{
		weekly("c-2", time.Monday, "9:00 AM - 9:30 AM"),
		weekly("c-1", time.Monday, "8:00 AM - 8:30 AM"),
	})
	require.NoError(t, err)
	require.Len(t, byCounselor, 2)
	assert.Equal(t, []string{unit8}, displays(byCounselor["c-1"]))
	assert.Equal(t, []string{unit9}, displays(byCounselor["c-2"]))
	assert.Equal(t, []string{"c-1", "c-2"}, sortedCounselorIDs(byCounselor))
}
