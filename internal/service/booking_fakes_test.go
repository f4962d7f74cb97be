package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/internal/repository"
)

var (
	monday  = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	tuesday = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
)

const (
	unit8  = "8:00 AM - 8:30 AM"
	unit83 = "8:30 AM - 9:00 AM"
	unit9  = "9:00 AM - 9:30 AM"
)

func strPtr(s string) *string { return &s }

type availabilityStub struct {
	counselors map[string]bool
	entries    []models.WeeklyAvailabilityEntry
	err        error
}

func newAvailabilityStub(entries ...models.WeeklyAvailabilityEntry) *availabilityStub {
	stub := &availabilityStub{counselors: map[string]bool{}, entries: entries}
	for _, entry := range entries {
		stub.counselors[entry.CounselorID] = true
	}
	return stub
}

func weekly(counselorID string, day time.Weekday, ranges ...string) models.WeeklyAvailabilityEntry {
	return models.WeeklyAvailabilityEntry{CounselorID: counselorID, DayOfWeek: day, RawRanges: ranges}
}

func (s *availabilityStub) FindCounselor(ctx context.Context, id string) (*models.Counselor, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.counselors[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Counselor{ID: id, Active: true}, nil
}

func (s *availabilityStub) ListByWeekday(ctx context.Context, weekday time.Weekday, counselorID string) ([]models.WeeklyAvailabilityEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.WeeklyAvailabilityEntry
	for _, entry := range s.entries {
		if entry.DayOfWeek != weekday {
			continue
		}
		if counselorID != "" && entry.CounselorID != counselorID {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *availabilityStub) ListWeek(ctx context.Context) ([]models.WeeklyAvailabilityEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

// memoryStore mimics the guarded write paths of the appointment repository.
// The mutex plays the role of the per-pool advisory lock.
type memoryStore struct {
	mu     sync.Mutex
	seq    int
	appts  map[string]*models.Appointment
	writes int

	// beforeWrite runs inside the lock ahead of each guarded write.
	beforeWrite func(s *memoryStore)
	// writeErrs are returned, in order, by the next guarded writes.
	writeErrs []error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{appts: map[string]*models.Appointment{}}
}

func (s *memoryStore) seed(appt models.Appointment) *models.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == "" {
		s.seq++
		appt.ID = fmt.Sprintf("seed-%d", s.seq)
	}
	if appt.Status == "" {
		appt.Status = models.AppointmentStatusPending
	}
	cp := appt
	s.appts[cp.ID] = &cp
	return &cp
}

func (s *memoryStore) get(id string) models.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.appts[id]
}

func (s *memoryStore) activeIn(key models.SlotKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(models.OccupancyQuery{SlotKey: key})
}

func (s *memoryStore) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *appt
	return &cp, nil
}

func (s *memoryStore) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Appointment
	for _, appt := range s.appts {
		if filter.StudentID != "" && appt.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *appt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *memoryStore) ListFollowUps(ctx context.Context, parentID string) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Appointment
	for _, appt := range s.appts {
		if appt.ParentAppointmentID != nil && *appt.ParentAppointmentID == parentID {
			out = append(out, *appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].FollowUpSequence < *out[j].FollowUpSequence })
	return out, nil
}

func (s *memoryStore) CountActive(ctx context.Context, q models.OccupancyQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(q), nil
}

func (s *memoryStore) ListOccupancy(ctx context.Context, from, to time.Time) ([]models.UnitOccupancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tally := map[models.SlotKey]int{}
	for _, appt := range s.appts {
		key, ok := appt.Slot()
		if !ok || !appt.Status.IsActive() || appt.Date.Before(from) || appt.Date.After(to) {
			continue
		}
		tally[key]++
	}
	out := make([]models.UnitOccupancy, 0, len(tally))
	for key, count := range tally {
		out = append(out, models.UnitOccupancy{
			Date:             key.Date,
			CounselorID:      key.CounselorID,
			TimeUnit:         key.TimeUnit,
			ConsultationType: key.ConsultationType,
			Count:            count,
		})
	}
	return out, nil
}

func (s *memoryStore) DailyCounts(ctx context.Context, from, to time.Time, status models.AppointmentStatus) ([]models.DailyCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tally := map[time.Time]int{}
	for _, appt := range s.appts {
		if appt.Status != status || appt.Date.Before(from) || appt.Date.After(to) {
			continue
		}
		tally[appt.Date]++
	}
	out := make([]models.DailyCount, 0, len(tally))
	for date, count := range tally {
		out = append(out, models.DailyCount{Date: date, Count: count})
	}
	return out, nil
}

func (s *memoryStore) Book(ctx context.Context, appt *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(appt, ""); err != nil {
		return err
	}
	s.insertLocked(appt)
	return nil
}

func (s *memoryStore) Reschedule(ctx context.Context, appt *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.appts[appt.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if current.Status != models.AppointmentStatusPending {
		return repository.ErrNotPending
	}
	if err := s.guard(appt, appt.ID); err != nil {
		return err
	}
	cp := *appt
	s.appts[appt.ID] = &cp
	return nil
}

func (s *memoryStore) BookFollowUp(ctx context.Context, appt *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.appts[*appt.ParentAppointmentID]
	if !ok {
		return sql.ErrNoRows
	}
	if parent.Status != models.AppointmentStatusCompleted {
		return repository.ErrParentNotCompleted
	}
	next := 1
	for _, existing := range s.appts {
		if existing.ParentAppointmentID != nil && *existing.ParentAppointmentID == parent.ID && *existing.FollowUpSequence >= next {
			next = *existing.FollowUpSequence + 1
		}
	}
	appt.FollowUpSequence = &next
	if err := s.guard(appt, ""); err != nil {
		return err
	}
	s.insertLocked(appt)
	return nil
}

func (s *memoryStore) Transition(ctx context.Context, id string, from, to models.AppointmentStatus, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.Status != from {
		return sql.ErrNoRows
	}
	appt.Status = to
	if reason != nil {
		appt.Reason = reason
	}
	return nil
}

func (s *memoryStore) DeletePending(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.Status != models.AppointmentStatusPending {
		return sql.ErrNoRows
	}
	delete(s.appts, id)
	return nil
}

func (s *memoryStore) guard(appt *models.Appointment, excludeID string) error {
	s.writes++
	if s.beforeWrite != nil {
		s.beforeWrite(s)
	}
	if len(s.writeErrs) > 0 {
		err := s.writeErrs[0]
		s.writeErrs = s.writeErrs[1:]
		if err != nil {
			return err
		}
	}
	key, _ := appt.Slot()
	if s.countLocked(models.OccupancyQuery{SlotKey: key, ExcludeID: excludeID}) >= appt.ConsultationType.Capacity() {
		return repository.ErrSlotFull
	}
	return nil
}

func (s *memoryStore) insertLocked(appt *models.Appointment) {
	s.seq++
	if appt.ID == "" {
		appt.ID = fmt.Sprintf("appt-%d", s.seq)
	}
	if appt.Status == "" {
		appt.Status = models.AppointmentStatusPending
	}
	cp := *appt
	s.appts[cp.ID] = &cp
}

func (s *memoryStore) countLocked(q models.OccupancyQuery) int {
	total := 0
	for _, appt := range s.appts {
		key, ok := appt.Slot()
		if !ok || !appt.Status.IsActive() || appt.ID == q.ExcludeID {
			continue
		}
		if key.CounselorID == q.CounselorID && key.Date.Equal(q.Date) && key.TimeUnit == q.TimeUnit && key.ConsultationType == q.ConsultationType {
			total++
		}
	}
	return total
}

type calendarInvalidatorStub struct {
	mu     sync.Mutex
	months []string
}

func (c *calendarInvalidatorStub) Invalidate(ctx context.Context, date time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.months = append(c.months, date.Format("2006-01"))
	return nil
}
