package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/counseling-booking-api/internal/dto"
	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/timerange"
)

type counselorStore interface {
	FindCounselor(ctx context.Context, id string) (*models.Counselor, error)
	ListCounselors(ctx context.Context) ([]models.Counselor, error)
	ListWeek(ctx context.Context) ([]models.WeeklyAvailabilityEntry, error)
	Upsert(ctx context.Context, entry *models.WeeklyAvailabilityEntry) error
}

type calendarResetter interface {
	InvalidateAll(ctx context.Context) error
}

// CounselorService publishes counselor profiles and their weekly schedule.
type CounselorService struct {
	store     counselorStore
	resolver  *AvailabilityResolver
	calendar  calendarResetter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCounselorService constructs the counselor service.
func NewCounselorService(store counselorStore, resolver *AvailabilityResolver, calendar calendarResetter, validate *validator.Validate, logger *zap.Logger) *CounselorService {
	if resolver == nil {
		resolver = NewAvailabilityResolver()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounselorService{store: store, resolver: resolver, calendar: calendar, validator: validate, logger: logger}
}

// List returns every active counselor.
func (s *CounselorService) List(ctx context.Context) ([]models.Counselor, error) {
	counselors, err := s.store.ListCounselors(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list counselors")
	}
	if counselors == nil {
		counselors = []models.Counselor{}
	}
	return counselors, nil
}

// WeeklyAvailability returns the published entries of one counselor ordered
// by weekday.
func (s *CounselorService) WeeklyAvailability(ctx context.Context, counselorID string) ([]models.WeeklyAvailabilityEntry, error) {
	if _, err := s.counselor(ctx, counselorID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListWeek(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	out := make([]models.WeeklyAvailabilityEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.CounselorID == counselorID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// SetAvailability replaces the ranges of one weekday. Counselors may only edit
// their own schedule. Ranges are validated, overlapping ones are merged and
// the rest are stored in canonical form ordered by start. An empty list
// marks the day as not working.
func (s *CounselorService) SetAvailability(ctx context.Context, actor Actor, counselorID string, req dto.SetAvailabilityRequest) (*models.WeeklyAvailabilityEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if actor.Role != models.RoleAdmin && !(actor.Role == models.RoleCounselor && actor.UserID == counselorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "counselors can only edit their own availability")
	}
	if _, err := s.counselor(ctx, counselorID); err != nil {
		return nil, err
	}

	parsed := make([]timerange.Range, 0, len(req.Ranges))
	for _, raw := range req.Ranges {
		single := models.WeeklyAvailabilityEntry{RawRanges: []string{raw}}
		if _, err := s.resolver.Resolve([]models.WeeklyAvailabilityEntry{single}); err != nil {
			return nil, err
		}
		r, err := timerange.Parse(raw)
		if err != nil {
			return nil, translateRangeError(err)
		}
		parsed = append(parsed, r)
	}
	merged := timerange.Merge(parsed)
	ranges := make([]string, 0, len(merged))
	for _, r := range merged {
		ranges = append(ranges, r.String())
	}

	entry := &models.WeeklyAvailabilityEntry{
		CounselorID: counselorID,
		DayOfWeek:   time.Weekday(*req.DayOfWeek),
		RawRanges:   ranges,
	}
	if err := s.store.Upsert(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save availability")
	}
	if s.calendar != nil {
		if err := s.calendar.InvalidateAll(ctx); err != nil {
			s.logger.Warn("calendar cache invalidation failed", zap.String("counselor_id", counselorID), zap.Error(err))
		}
	}
	s.logger.Info("availability updated",
		zap.String("counselor_id", counselorID),
		zap.String("weekday", entry.DayOfWeek.String()),
		zap.Strings("ranges", ranges),
	)
	return entry, nil
}

func (s *CounselorService) counselor(ctx context.Context, id string) (*models.Counselor, error) {
	counselor, err := s.store.FindCounselor(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "counselor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load counselor")
	}
	return counselor, nil
}
