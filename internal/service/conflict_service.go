package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
)

// SlotRequest names the slot a write wants to claim. ExcludeID is the
// appointment being edited, empty for new bookings, and Current is the slot
// that appointment holds now.
type SlotRequest struct {
	ExcludeID        string
	Current          *models.SlotKey
	CounselorID      string
	Date             time.Time
	TimeUnit         string
	ConsultationType models.ConsultationType
}

// ConflictDetector is the gate run immediately before every booking write.
// Conflicts are returned as values; errors are reserved for bad input and
// infrastructure failures.
type ConflictDetector struct {
	availability availabilityProvider
	occupancy    occupancyReader
	resolver     *AvailabilityResolver
	logger       *zap.Logger
}

// NewConflictDetector constructs the detector.
func NewConflictDetector(availability availabilityProvider, occupancy occupancyReader, resolver *AvailabilityResolver, logger *zap.Logger) *ConflictDetector {
	if resolver == nil {
		resolver = NewAvailabilityResolver()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictDetector{availability: availability, occupancy: occupancy, resolver: resolver, logger: logger}
}

// CheckConflict re-runs the capacity check for one counselor's unit.
func (d *ConflictDetector) CheckConflict(ctx context.Context, req SlotRequest) (*models.ConflictResult, error) {
	unit, parsed, err := canonicalUnit(req.TimeUnit)
	if err != nil {
		return nil, err
	}
	if !req.ConsultationType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "consultationType must be Individual or Group")
	}
	date := truncateDate(req.Date)

	if _, err := d.availability.FindCounselor(ctx, req.CounselorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewConflict(models.ConflictCounselorNotFound, req.CounselorID, "The selected counselor does not exist or is no longer active."), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load counselor")
	}

	entries, err := d.availability.ListByWeekday(ctx, date.Weekday(), req.CounselorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	units, err := d.resolver.Resolve(entries)
	if err != nil {
		return nil, err
	}
	if !containsUnit(units, parsed) {
		return models.NewConflict(models.ConflictCounselorUnavailable, req.CounselorID,
			fmt.Sprintf("The counselor is not available at %s on %s.", unit, date.Format("Monday, January 2"))), nil
	}

	return d.checkCapacity(ctx, req.ExcludeID, req.CounselorID, date, unit, req.ConsultationType)
}

// ResolveCounselor pins a no-preference request to a concrete counselor.
// Candidates that publish the unit are tried in order of fewest active
// bookings on the date, then by id, and the first with capacity wins. An
// edited appointment does not count towards its own counselor's load and
// keeps that counselor on a tie.
func (d *ConflictDetector) ResolveCounselor(ctx context.Context, req SlotRequest) (*models.ConflictResult, error) {
	unit, parsed, err := canonicalUnit(req.TimeUnit)
	if err != nil {
		return nil, err
	}
	if !req.ConsultationType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "consultationType must be Individual or Group")
	}
	date := truncateDate(req.Date)

	entries, err := d.availability.ListByWeekday(ctx, date.Weekday(), "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	byCounselor, err := d.resolver.ResolveByCounselor(entries)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, id := range sortedCounselorIDs(byCounselor) {
		if containsUnit(byCounselor[id], parsed) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return models.NewConflict(models.ConflictCounselorUnavailable, "",
			fmt.Sprintf("No counselor is available at %s on %s.", unit, date.Format("Monday, January 2"))), nil
	}

	load, err := d.dailyLoad(ctx, date, req.Current)
	if err != nil {
		return nil, err
	}
	current := ""
	if req.Current != nil {
		current = req.Current.CounselorID
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if load[a] != load[b] {
			return load[a] < load[b]
		}
		return a == current && b != current
	})

	for _, id := range candidates {
		result, err := d.checkCapacity(ctx, req.ExcludeID, id, date, unit, req.ConsultationType)
		if err != nil {
			return nil, err
		}
		if !result.HasConflict {
			d.logger.Debug("pinned no-preference booking",
				zap.String("counselor_id", id),
				zap.String("date", date.Format(models.DateLayout)),
				zap.String("time_unit", unit))
			return result, nil
		}
	}
	return models.NewConflict(models.ConflictCapacityExceeded, "",
		fmt.Sprintf("Every counselor working %s on %s is fully booked.", unit, date.Format("Monday, January 2"))), nil
}

func (d *ConflictDetector) checkCapacity(ctx context.Context, excludeID, counselorID string, date time.Time, unit string, ct models.ConsultationType) (*models.ConflictResult, error) {
	active, err := d.occupancy.CountActive(ctx, models.OccupancyQuery{
		SlotKey: models.SlotKey{
			CounselorID:      counselorID,
			Date:             date,
			TimeUnit:         unit,
			ConsultationType: ct,
		},
		ExcludeID: excludeID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count occupancy")
	}
	if active >= ct.Capacity() {
		return capacityExceeded(counselorID, unit, ct), nil
	}
	return models.NoConflict(counselorID), nil
}

// dailyLoad counts active bookings per counselor on date across all types,
// leaving out the claim held by current.
func (d *ConflictDetector) dailyLoad(ctx context.Context, date time.Time, current *models.SlotKey) (map[string]int, error) {
	rows, err := d.occupancy.ListOccupancy(ctx, date, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupancy")
	}
	load := make(map[string]int)
	for _, row := range rows {
		load[row.CounselorID] += row.Count
	}
	if current != nil && current.Date.Equal(date) && load[current.CounselorID] > 0 {
		load[current.CounselorID]--
	}
	return load, nil
}

func capacityExceeded(counselorID, unit string, ct models.ConsultationType) *models.ConflictResult {
	var message string
	if ct == models.ConsultationIndividual {
		message = fmt.Sprintf("%s is already booked for an individual consultation.", unit)
	} else {
		message = fmt.Sprintf("%s has reached the limit of %d group participants.", unit, ct.Capacity())
	}
	return models.NewConflict(models.ConflictCapacityExceeded, counselorID, message)
}
