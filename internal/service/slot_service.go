package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/timerange"
)

type availabilityProvider interface {
	FindCounselor(ctx context.Context, id string) (*models.Counselor, error)
	ListByWeekday(ctx context.Context, weekday time.Weekday, counselorID string) ([]models.WeeklyAvailabilityEntry, error)
	ListWeek(ctx context.Context) ([]models.WeeklyAvailabilityEntry, error)
}

type occupancyReader interface {
	CountActive(ctx context.Context, q models.OccupancyQuery) (int, error)
	ListOccupancy(ctx context.Context, from, to time.Time) ([]models.UnitOccupancy, error)
}

// SlotService answers which units of a date can still be claimed. Results
// are read without locks and may be stale by the time a booking commits.
type SlotService struct {
	availability availabilityProvider
	occupancy    occupancyReader
	resolver     *AvailabilityResolver
	logger       *zap.Logger
}

// NewSlotService constructs the slot query service.
func NewSlotService(availability availabilityProvider, occupancy occupancyReader, resolver *AvailabilityResolver, logger *zap.Logger) *SlotService {
	if resolver == nil {
		resolver = NewAvailabilityResolver()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{availability: availability, occupancy: occupancy, resolver: resolver, logger: logger}
}

// ListBookableUnits returns the units on date that still have capacity for
// ct. With an empty counselorID a unit qualifies when at least one working
// counselor has it free.
func (s *SlotService) ListBookableUnits(ctx context.Context, date time.Time, counselorID string, ct models.ConsultationType) ([]timerange.Range, error) {
	_, bookable, err := s.evaluate(ctx, date, counselorID, ct)
	return bookable, err
}

// ListBookedUnits returns the candidate units that are no longer bookable,
// so clients can disable them.
func (s *SlotService) ListBookedUnits(ctx context.Context, date time.Time, counselorID string, ct models.ConsultationType) ([]timerange.Range, error) {
	candidates, bookable, err := s.evaluate(ctx, date, counselorID, ct)
	if err != nil {
		return nil, err
	}
	free := make(map[timerange.Range]struct{}, len(bookable))
	for _, unit := range bookable {
		free[unit] = struct{}{}
	}
	booked := make([]timerange.Range, 0, len(candidates)-len(bookable))
	for _, unit := range candidates {
		if _, ok := free[unit]; !ok {
			booked = append(booked, unit)
		}
	}
	return booked, nil
}

func (s *SlotService) evaluate(ctx context.Context, date time.Time, counselorID string, ct models.ConsultationType) ([]timerange.Range, []timerange.Range, error) {
	if !ct.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "consultationType must be Individual or Group")
	}
	date = truncateDate(date)

	if counselorID != "" {
		if _, err := s.availability.FindCounselor(ctx, counselorID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "counselor not found")
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load counselor")
		}
	}

	entries, err := s.availability.ListByWeekday(ctx, date.Weekday(), counselorID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	byCounselor, err := s.resolver.ResolveByCounselor(entries)
	if err != nil {
		return nil, nil, err
	}
	if len(byCounselor) == 0 {
		return []timerange.Range{}, []timerange.Range{}, nil
	}

	counts, err := s.activeCounts(ctx, date, ct)
	if err != nil {
		return nil, nil, err
	}

	capacity := ct.Capacity()
	candidateSet := make(map[timerange.Range]struct{})
	bookableSet := make(map[timerange.Range]struct{})
	for _, id := range sortedCounselorIDs(byCounselor) {
		for _, unit := range byCounselor[id] {
			candidateSet[unit] = struct{}{}
			if counts[unitKey(id, unit.String())] < capacity {
				bookableSet[unit] = struct{}{}
			}
		}
	}

	return sortedUnits(candidateSet), sortedUnits(bookableSet), nil
}

// activeCounts loads every active tally on date for ct in one read, keyed by
// counselor and canonical unit.
func (s *SlotService) activeCounts(ctx context.Context, date time.Time, ct models.ConsultationType) (map[string]int, error) {
	rows, err := s.occupancy.ListOccupancy(ctx, date, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupancy")
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		if row.ConsultationType != ct {
			continue
		}
		unit, err := timerange.Canonicalize(row.TimeUnit)
		if err != nil {
			s.logger.Warn("skipping occupancy row with unparsable unit",
				zap.String("counselor_id", row.CounselorID),
				zap.String("time_unit", row.TimeUnit),
				zap.Error(err))
			continue
		}
		counts[unitKey(row.CounselorID, unit)] += row.Count
	}
	return counts, nil
}

func unitKey(counselorID, unit string) string {
	return fmt.Sprintf("%s|%s", counselorID, unit)
}
