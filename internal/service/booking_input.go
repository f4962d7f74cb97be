package service

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/timerange"
)

// parseDate reads a calendar date. Dates are stored as UTC midnight so the
// weekday is the calendar weekday regardless of the server zone.
func parseDate(raw string) (time.Time, error) {
	date, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be formatted as YYYY-MM-DD")
	}
	return date, nil
}

// truncateDate drops the clock part of t in its own zone.
func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseConsultationType(raw string) (models.ConsultationType, error) {
	ct := models.ConsultationType(strings.TrimSpace(raw))
	if !ct.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "consultationType must be Individual or Group")
	}
	return ct, nil
}

// canonicalUnit parses a single unit and returns its canonical display form.
func canonicalUnit(raw string) (string, timerange.Range, error) {
	r, err := timerange.Parse(raw)
	if err != nil {
		return "", timerange.Range{}, translateRangeError(err)
	}
	if !r.IsUnit() {
		err := &timerange.InvalidRangeWidthError{Input: raw, Minutes: r.Minutes()}
		return "", timerange.Range{}, appErrors.Wrap(err, appErrors.ErrInvalidRangeWidth.Code, appErrors.ErrInvalidRangeWidth.Status,
			"time unit must be exactly 30 minutes wide")
	}
	return r.String(), r, nil
}

// translateRangeError maps time range parse failures onto the API taxonomy.
func translateRangeError(err error) error {
	switch {
	case errors.Is(err, timerange.ErrMalformed):
		return appErrors.Wrap(err, appErrors.ErrMalformedRange.Code, appErrors.ErrMalformedRange.Status, err.Error())
	case errors.Is(err, timerange.ErrInvalidWidth):
		return appErrors.Wrap(err, appErrors.ErrInvalidRangeWidth.Code, appErrors.ErrInvalidRangeWidth.Status, err.Error())
	default:
		return err
	}
}
