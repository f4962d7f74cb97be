package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/counseling-booking-api/internal/dto"
	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/internal/repository"
	"github.com/noah-isme/counseling-booking-api/pkg/database"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
)

const (
	opCreate     = "create"
	opUpdate     = "update"
	opFollowUp   = "follow_up"
	opTransition = "transition"

	followUpInterval = 7 * 24 * time.Hour
)

type appointmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	ListFollowUps(ctx context.Context, parentID string) ([]models.Appointment, error)
	Book(ctx context.Context, appt *models.Appointment) error
	Reschedule(ctx context.Context, appt *models.Appointment) error
	BookFollowUp(ctx context.Context, appt *models.Appointment) error
	Transition(ctx context.Context, id string, from, to models.AppointmentStatus, reason *string) error
	DeletePending(ctx context.Context, id string) error
}

type slotGate interface {
	CheckConflict(ctx context.Context, req SlotRequest) (*models.ConflictResult, error)
	ResolveCounselor(ctx context.Context, req SlotRequest) (*models.ConflictResult, error)
}

type calendarInvalidator interface {
	Invalidate(ctx context.Context, date time.Time) error
}

// Actor identifies the caller of an appointment operation.
type Actor struct {
	UserID string
	Role   models.UserRole
}

// ActorFromClaims derives the actor from verified token claims.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}
}

// IsStaff reports whether the actor may act on any student's appointment.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleCounselor
}

// AppointmentService drives the appointment lifecycle. Every write that
// claims a slot passes the ConflictDetector and then commits through the
// store's guarded transaction; a lost write race is retried once.
type AppointmentService struct {
	store        appointmentStore
	gate         slotGate
	calendar     calendarInvalidator
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewAppointmentService constructs the appointment service.
func NewAppointmentService(store appointmentStore, gate slotGate, calendar calendarInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, writeTimeout time.Duration) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &AppointmentService{
		store:        store,
		gate:         gate,
		calendar:     calendar,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		writeTimeout: writeTimeout,
	}
}

// Create books a new PENDING appointment or reports why the slot is taken.
func (s *AppointmentService) Create(ctx context.Context, actor Actor, req dto.CreateAppointmentRequest) (*dto.BookingResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}

	studentID, err := s.bookingStudent(actor, req.StudentID)
	if err != nil {
		return nil, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	unit, _, err := canonicalUnit(req.TimeUnit)
	if err != nil {
		return nil, err
	}
	ct, err := parseConsultationType(req.ConsultationType)
	if err != nil {
		return nil, err
	}

	appt := &models.Appointment{
		StudentID:        studentID,
		NoPreference:     req.NoPreference,
		Date:             date,
		TimeUnit:         unit,
		ConsultationType: ct,
		MethodType:       strings.TrimSpace(req.MethodType),
		Purpose:          strings.TrimSpace(req.Purpose),
		Description:      strings.TrimSpace(req.Description),
		Status:           models.AppointmentStatusPending,
	}
	if !req.NoPreference {
		counselorID := strings.TrimSpace(req.CounselorID)
		appt.CounselorID = &counselorID
	}

	conflict, err := s.commit(ctx, opCreate, appt, "", nil, s.store.Book)
	if err != nil {
		return nil, s.mapWriteError(err)
	}
	if conflict != nil {
		return dto.Conflicted(conflict), nil
	}
	s.invalidate(ctx, appt.Date)
	return dto.Booked(appt), nil
}

// Update replaces the editable fields of a PENDING appointment. Saving an
// appointment back into its own slot never conflicts with itself.
func (s *AppointmentService) Update(ctx context.Context, actor Actor, id string, req dto.UpdateAppointmentRequest) (*dto.BookingResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(actor, appt, false); err != nil {
		return nil, err
	}
	if err := ensureEditable(appt.Status); err != nil {
		return nil, err
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	unit, _, err := canonicalUnit(req.TimeUnit)
	if err != nil {
		return nil, err
	}
	ct, err := parseConsultationType(req.ConsultationType)
	if err != nil {
		return nil, err
	}

	previousDate := appt.Date
	var current *models.SlotKey
	if key, ok := appt.Slot(); ok {
		current = &key
	}
	appt.NoPreference = req.NoPreference
	appt.CounselorID = nil
	if !req.NoPreference {
		counselorID := strings.TrimSpace(req.CounselorID)
		appt.CounselorID = &counselorID
	}
	appt.Date = date
	appt.TimeUnit = unit
	appt.ConsultationType = ct
	appt.MethodType = strings.TrimSpace(req.MethodType)
	appt.Purpose = strings.TrimSpace(req.Purpose)
	appt.Description = strings.TrimSpace(req.Description)

	conflict, err := s.commit(ctx, opUpdate, appt, appt.ID, current, s.store.Reschedule)
	if err != nil {
		return nil, s.mapWriteError(err)
	}
	if conflict != nil {
		return dto.Conflicted(conflict), nil
	}
	s.invalidate(ctx, previousDate, appt.Date)
	return dto.Booked(appt), nil
}

// Cancel moves a PENDING or APPROVED appointment to CANCELLED. A reason is
// mandatory.
func (s *AppointmentService) Cancel(ctx context.Context, actor Actor, id, reason string) (*dto.AppointmentResponse, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(actor, appt, true); err != nil {
		return nil, err
	}
	return s.transition(ctx, appt, models.AppointmentStatusCancelled, reason)
}

// Transition applies a staff status change such as approve, reject or
// complete.
func (s *AppointmentService) Transition(ctx context.Context, actor Actor, id string, req dto.TransitionAppointmentRequest) (*dto.AppointmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !actor.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only counselors and admins can change appointment status")
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, appt, models.AppointmentStatus(req.Status), req.Reason)
}

// CreateFollowUp books the next session in a COMPLETED appointment's chain.
// Unset fields default to the parent's counselor, unit and type one week
// after the parent date.
func (s *AppointmentService) CreateFollowUp(ctx context.Context, actor Actor, parentID string, req dto.CreateFollowUpRequest) (*dto.BookingResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid follow-up payload")
	}
	if !actor.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only counselors and admins can create follow-ups")
	}

	parent, err := s.load(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if err := ensureFollowUpParent(parent.Status); err != nil {
		return nil, err
	}

	appt, err := followUpFromParent(parent, req)
	if err != nil {
		return nil, err
	}

	conflict, err := s.commit(ctx, opFollowUp, appt, "", nil, s.store.BookFollowUp)
	if err != nil {
		return nil, s.mapWriteError(err)
	}
	if conflict != nil {
		return dto.Conflicted(conflict), nil
	}
	s.invalidate(ctx, appt.Date)
	return dto.Booked(appt), nil
}

// Delete removes a PENDING appointment.
func (s *AppointmentService) Delete(ctx context.Context, actor Actor, id string) error {
	appt, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeOwner(actor, appt, false); err != nil {
		return err
	}
	if err := ensureEditable(appt.Status); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.store.DeletePending(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrImmutableState, "appointment changed while deleting, reload and try again")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete appointment")
	}
	s.invalidate(ctx, appt.Date)
	s.logger.Info("appointment deleted", zap.String("appointment_id", id))
	return nil
}

// Get returns one appointment visible to actor.
func (s *AppointmentService) Get(ctx context.Context, actor Actor, id string) (*dto.AppointmentResponse, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(actor, appt, true); err != nil {
		return nil, err
	}
	return dto.NewAppointmentResponse(appt), nil
}

// List returns appointments matching filter. Students only ever see their
// own appointments.
func (s *AppointmentService) List(ctx context.Context, actor Actor, filter models.AppointmentFilter) ([]dto.AppointmentResponse, *models.Pagination, error) {
	if !actor.IsStaff() {
		filter.StudentID = actor.UserID
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	appts, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	return dto.NewAppointmentResponses(appts), &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ListFollowUps returns a parent's follow-up chain in sequence order.
func (s *AppointmentService) ListFollowUps(ctx context.Context, actor Actor, parentID string) ([]dto.AppointmentResponse, error) {
	parent, err := s.load(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(actor, parent, true); err != nil {
		return nil, err
	}
	appts, err := s.store.ListFollowUps(ctx, parentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list follow-ups")
	}
	return dto.NewAppointmentResponses(appts), nil
}

// CheckEditConflict reports whether the appointment could move to the given
// slot, ignoring its own claim. The consultation type defaults to the
// appointment's current one.
func (s *AppointmentService) CheckEditConflict(ctx context.Context, actor Actor, id string, req dto.CheckConflictRequest) (*models.ConflictResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict check payload")
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(actor, appt, true); err != nil {
		return nil, err
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	ct := appt.ConsultationType
	if req.ConsultationType != "" {
		if ct, err = parseConsultationType(req.ConsultationType); err != nil {
			return nil, err
		}
	}

	slot := SlotRequest{
		ExcludeID:        appt.ID,
		CounselorID:      strings.TrimSpace(req.CounselorID),
		Date:             date,
		TimeUnit:         req.TimeUnit,
		ConsultationType: ct,
	}
	if key, ok := appt.Slot(); ok {
		slot.Current = &key
	}
	if req.NoPreference {
		return s.gate.ResolveCounselor(ctx, slot)
	}
	return s.gate.CheckConflict(ctx, slot)
}

// commit pins appt to a counselor with capacity and runs write. A lost race
// gets one fresh ConflictDetector pass; losing again is reported as
// CAPACITY_EXCEEDED. A non-nil conflict means nothing was written.
func (s *AppointmentService) commit(ctx context.Context, op string, appt *models.Appointment, excludeID string, current *models.SlotKey, write func(context.Context, *models.Appointment) error) (*models.ConflictResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	requested := appt.CounselorID
	for attempt := 0; ; attempt++ {
		slot := SlotRequest{
			ExcludeID:        excludeID,
			Current:          current,
			Date:             appt.Date,
			TimeUnit:         appt.TimeUnit,
			ConsultationType: appt.ConsultationType,
		}
		var (
			gate *models.ConflictResult
			err  error
		)
		if appt.NoPreference {
			gate, err = s.gate.ResolveCounselor(ctx, slot)
		} else {
			slot.CounselorID = *requested
			gate, err = s.gate.CheckConflict(ctx, slot)
		}
		if err != nil {
			s.metrics.ObserveBooking(op, OutcomeFailed)
			return nil, err
		}
		if gate.HasConflict {
			s.reportConflict(op, appt, gate)
			return gate, nil
		}

		counselorID := gate.CounselorID
		appt.CounselorID = &counselorID

		start := time.Now()
		err = write(ctx, appt)
		s.metrics.ObserveDBQuery("appointment."+op, time.Since(start))
		if err == nil {
			s.metrics.ObserveBooking(op, OutcomeCommitted)
			s.logger.Info("appointment slot claimed", bookingFields(op, appt)...)
			return nil, nil
		}
		if !isLostRace(err) {
			s.metrics.ObserveBooking(op, OutcomeFailed)
			return nil, err
		}
		if attempt == 0 {
			s.metrics.ObserveRetry(op)
			s.logger.Warn("booking lost write race, retrying", append(bookingFields(op, appt), zap.Error(err))...)
			continue
		}
		conflict := capacityExceeded(counselorID, appt.TimeUnit, appt.ConsultationType)
		s.reportConflict(op, appt, conflict)
		return conflict, nil
	}
}

func (s *AppointmentService) transition(ctx context.Context, appt *models.Appointment, to models.AppointmentStatus, reason string) (*dto.AppointmentResponse, error) {
	if err := ValidateTransition(appt.Status, to, reason); err != nil {
		s.metrics.ObserveBooking(opTransition, OutcomeRejected)
		return nil, err
	}

	var reasonPtr *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		reasonPtr = &trimmed
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.store.Transition(ctx, appt.ID, appt.Status, to, reasonPtr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.ObserveBooking(opTransition, OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "appointment status changed concurrently, reload and try again")
		}
		s.metrics.ObserveBooking(opTransition, OutcomeFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment status")
	}
	s.metrics.ObserveBooking(opTransition, OutcomeCommitted)

	from := appt.Status
	appt.Status = to
	if reasonPtr != nil {
		appt.Reason = reasonPtr
	}
	appt.UpdatedAt = time.Now().UTC()
	s.invalidate(ctx, appt.Date)
	s.logger.Info("appointment status changed",
		zap.String("appointment_id", appt.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return dto.NewAppointmentResponse(appt), nil
}

func (s *AppointmentService) load(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appt, nil
}

// authorizeOwner lets admins through, counselors when staffAllowed, and
// students only for their own appointments.
func (s *AppointmentService) authorizeOwner(actor Actor, appt *models.Appointment, staffAllowed bool) error {
	switch {
	case actor.Role == models.RoleAdmin:
		return nil
	case actor.Role == models.RoleCounselor && staffAllowed:
		return nil
	case actor.Role == models.RoleStudent && actor.UserID != "" && appt.StudentID == actor.UserID:
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to access this appointment")
}

// bookingStudent resolves whose appointment is being created. Students book
// for themselves, staff must name the student.
func (s *AppointmentService) bookingStudent(actor Actor, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if actor.Role == models.RoleStudent {
		if requested != "" && requested != actor.UserID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "students can only book for themselves")
		}
		return actor.UserID, nil
	}
	if !actor.IsStaff() {
		return "", appErrors.ErrForbidden
	}
	if requested == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	return requested, nil
}

func (s *AppointmentService) mapWriteError(err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrNotPending):
		return appErrors.Clone(appErrors.ErrImmutableState, "appointment is no longer pending")
	case errors.Is(err, repository.ErrParentNotCompleted):
		return appErrors.ErrParentNotCompleted
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
	case errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "booking timed out, try again")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save appointment")
	}
}

func (s *AppointmentService) reportConflict(op string, appt *models.Appointment, conflict *models.ConflictResult) {
	s.metrics.ObserveBooking(op, OutcomeConflict)
	s.metrics.ObserveConflict(string(conflict.ConflictType))
	s.logger.Info("booking conflict", append(bookingFields(op, appt), zap.String("conflict_type", string(conflict.ConflictType)))...)
}

func (s *AppointmentService) invalidate(ctx context.Context, dates ...time.Time) {
	if s.calendar == nil {
		return
	}
	seen := make(map[string]struct{}, len(dates))
	for _, date := range dates {
		month := date.Format("2006-01")
		if _, ok := seen[month]; ok {
			continue
		}
		seen[month] = struct{}{}
		if err := s.calendar.Invalidate(ctx, date); err != nil {
			s.logger.Warn("calendar cache invalidation failed", zap.String("month", month), zap.Error(err))
		}
	}
}

// isLostRace reports whether a write failed because another writer claimed
// the pool first.
func isLostRace(err error) bool {
	return errors.Is(err, repository.ErrSlotFull) || database.IsWriteRace(err)
}

func followUpFromParent(parent *models.Appointment, req dto.CreateFollowUpRequest) (*models.Appointment, error) {
	appt := &models.Appointment{
		StudentID:           parent.StudentID,
		CounselorID:         parent.CounselorID,
		Date:                truncateDate(parent.Date).Add(followUpInterval),
		TimeUnit:            parent.TimeUnit,
		ConsultationType:    parent.ConsultationType,
		MethodType:          parent.MethodType,
		Purpose:             parent.Purpose,
		Description:         strings.TrimSpace(req.Description),
		Status:              models.AppointmentStatusPending,
		ParentAppointmentID: &parent.ID,
	}

	if id := strings.TrimSpace(req.CounselorID); id != "" {
		appt.CounselorID = &id
	}
	if appt.CounselorID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "counselorId is required because the parent has no counselor")
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			return nil, err
		}
		appt.Date = date
	}
	if req.TimeUnit != "" {
		appt.TimeUnit = req.TimeUnit
	}
	unit, _, err := canonicalUnit(appt.TimeUnit)
	if err != nil {
		return nil, err
	}
	appt.TimeUnit = unit
	if req.ConsultationType != "" {
		ct, err := parseConsultationType(req.ConsultationType)
		if err != nil {
			return nil, err
		}
		appt.ConsultationType = ct
	}
	if req.MethodType != "" {
		appt.MethodType = strings.TrimSpace(req.MethodType)
	}
	if req.Purpose != "" {
		appt.Purpose = strings.TrimSpace(req.Purpose)
	}
	return appt, nil
}

func bookingFields(op string, appt *models.Appointment) []zap.Field {
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("appointment_id", appt.ID),
		zap.String("date", appt.Date.Format(models.DateLayout)),
		zap.String("time_unit", appt.TimeUnit),
		zap.String("consultation_type", string(appt.ConsultationType)),
	}
	if appt.CounselorID != nil {
		fields = append(fields, zap.String("counselor_id", *appt.CounselorID))
	}
	return fields
}
