package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/timerange"
)

const calendarCachePrefix = "calendar:stats"

type calendarStore interface {
	DailyCounts(ctx context.Context, from, to time.Time, status models.AppointmentStatus) ([]models.DailyCount, error)
	ListOccupancy(ctx context.Context, from, to time.Time) ([]models.UnitOccupancy, error)
}

type weeklyAvailability interface {
	ListWeek(ctx context.Context) ([]models.WeeklyAvailabilityEntry, error)
}

// CalendarStatsService rolls a month of appointments up into per-day
// badges. Its output is advisory; booking decisions never read it.
type CalendarStatsService struct {
	store        calendarStore
	availability weeklyAvailability
	resolver     *AvailabilityResolver
	cache        *CacheService
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewCalendarStatsService constructs the aggregator.
func NewCalendarStatsService(store calendarStore, availability weeklyAvailability, resolver *AvailabilityResolver, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *CalendarStatsService {
	if resolver == nil {
		resolver = NewAvailabilityResolver()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarStatsService{
		store:        store,
		availability: availability,
		resolver:     resolver,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// MonthlyStats returns a rollup for every date of the month. Count tallies
// appointments with status (APPROVED when empty). A date is fully booked
// only when every unit of every counselor working that weekday is at
// capacity for every consultation type. The bool reports a cache hit.
func (s *CalendarStatsService) MonthlyStats(ctx context.Context, year, month int, status models.AppointmentStatus) (*models.MonthlyStats, bool, error) {
	if month < 1 || month > 12 || year < 1 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "year and month must describe a calendar month")
	}
	if status == "" {
		status = models.AppointmentStatusApproved
	}
	if !status.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
	}

	cacheKey := calendarCacheKey(year, month, status)
	var cached models.MonthlyStats
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	counts, err := s.store.DailyCounts(ctx, first, last, status)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count appointments")
	}
	occupancy, err := s.store.ListOccupancy(ctx, first, last)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupancy")
	}
	entries, err := s.availability.ListWeek(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}

	schedule, err := s.weeklySchedule(entries)
	if err != nil {
		return nil, false, err
	}
	occupied := s.indexOccupancy(occupancy)

	stats := &models.MonthlyStats{
		Year:   year,
		Month:  month,
		Status: status,
		Days:   make(map[string]models.DayStats, last.Day()),
	}
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		key := day.Format(models.DateLayout)
		stats.Days[key] = models.DayStats{FullyBooked: fullyBooked(key, schedule[day.Weekday()], occupied)}
	}
	for _, row := range counts {
		key := row.Date.Format(models.DateLayout)
		day, ok := stats.Days[key]
		if !ok {
			continue
		}
		day.Count = row.Count
		stats.Days[key] = day
	}

	_ = s.cache.Set(ctx, cacheKey, stats, s.cacheTTL)
	return stats, false, nil
}

// Invalidate drops every cached rollup of the month containing date.
func (s *CalendarStatsService) Invalidate(ctx context.Context, date time.Time) error {
	return s.cache.Invalidate(ctx, fmt.Sprintf("%s:%s:*", calendarCachePrefix, date.Format("2006-01")))
}

func (s *CalendarStatsService) weeklySchedule(entries []models.WeeklyAvailabilityEntry) (map[time.Weekday]map[string][]timerange.Range, error) {
	byDay := make(map[time.Weekday][]models.WeeklyAvailabilityEntry)
	for _, entry := range entries {
		byDay[entry.DayOfWeek] = append(byDay[entry.DayOfWeek], entry)
	}
	schedule := make(map[time.Weekday]map[string][]timerange.Range, len(byDay))
	for weekday, dayEntries := range byDay {
		resolved, err := s.resolver.ResolveByCounselor(dayEntries)
		if err != nil {
			return nil, err
		}
		schedule[weekday] = resolved
	}
	return schedule, nil
}

func (s *CalendarStatsService) indexOccupancy(rows []models.UnitOccupancy) map[string]int {
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		unit, err := timerange.Canonicalize(row.TimeUnit)
		if err != nil {
			s.logger.Warn("skipping occupancy row with unparsable unit",
				zap.String("counselor_id", row.CounselorID),
				zap.String("time_unit", row.TimeUnit),
				zap.Error(err))
			continue
		}
		index[occupancyKey(row.Date.Format(models.DateLayout), row.CounselorID, unit, row.ConsultationType)] += row.Count
	}
	return index
}

func fullyBooked(date string, counselors map[string][]timerange.Range, occupied map[string]int) bool {
	if len(counselors) == 0 {
		return false
	}
	for counselorID, units := range counselors {
		for _, unit := range units {
			for _, ct := range models.ConsultationTypes {
				if occupied[occupancyKey(date, counselorID, unit.String(), ct)] < ct.Capacity() {
					return false
				}
			}
		}
	}
	return true
}

func occupancyKey(date, counselorID, unit string, ct models.ConsultationType) string {
	return fmt.Sprintf("%s|%s|%s|%s", date, counselorID, unit, ct)
}

func calendarCacheKey(year, month int, status models.AppointmentStatus) string {
	return fmt.Sprintf("%s:%04d-%02d:%s", calendarCachePrefix, year, month, status)
}

// InvalidateAll drops every cached rollup. Availability edits change the
// fully booked badge of any month.
func (s *CalendarStatsService) InvalidateAll(ctx context.Context) error {
	return s.cache.Invalidate(ctx, calendarCachePrefix+":*")
}
