package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/counseling-booking-api/internal/models"
)

// AvailabilityRepository reads counselor profiles and their published
// weekly availability.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// FindCounselor loads an active counselor. Inactive or unknown ids yield
// sql.ErrNoRows.
func (r *AvailabilityRepository) FindCounselor(ctx context.Context, id string) (*models.Counselor, error) {
	const query = `SELECT id, full_name, active FROM counselors WHERE id = $1 AND active = TRUE`
	var counselor models.Counselor
	if err := r.db.GetContext(ctx, &counselor, query, id); err != nil {
		return nil, err
	}
	return &counselor, nil
}

// ListCounselors returns all active counselors ordered by id.
func (r *AvailabilityRepository) ListCounselors(ctx context.Context) ([]models.Counselor, error) {
	const query = `SELECT id, full_name, active FROM counselors WHERE active = TRUE ORDER BY id ASC`
	var counselors []models.Counselor
	if err := r.db.SelectContext(ctx, &counselors, query); err != nil {
		return nil, fmt.Errorf("list counselors: %w", err)
	}
	return counselors, nil
}

// ListByWeekday returns the availability entries of active counselors for a
// weekday. An empty counselorID returns every counselor's entry.
func (r *AvailabilityRepository) ListByWeekday(ctx context.Context, weekday time.Weekday, counselorID string) ([]models.WeeklyAvailabilityEntry, error) {
	query := `SELECT a.counselor_id, a.day_of_week, a.raw_ranges
FROM counselor_availability a
JOIN counselors c ON c.id = a.counselor_id AND c.active = TRUE
WHERE a.day_of_week = $1`
	args := []interface{}{int(weekday)}
	if counselorID != "" {
		query += " AND a.counselor_id = $2"
		args = append(args, counselorID)
	}
	query += " ORDER BY a.counselor_id ASC"

	var entries []models.WeeklyAvailabilityEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list availability by weekday: %w", err)
	}
	return entries, nil
}

// ListWeek returns every availability entry of active counselors.
func (r *AvailabilityRepository) ListWeek(ctx context.Context) ([]models.WeeklyAvailabilityEntry, error) {
	const query = `SELECT a.counselor_id, a.day_of_week, a.raw_ranges
FROM counselor_availability a
JOIN counselors c ON c.id = a.counselor_id AND c.active = TRUE
ORDER BY a.day_of_week ASC, a.counselor_id ASC`
	var entries []models.WeeklyAvailabilityEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list weekly availability: %w", err)
	}
	return entries, nil
}

// Upsert replaces a counselor's ranges for one weekday.
func (r *AvailabilityRepository) Upsert(ctx context.Context, entry *models.WeeklyAvailabilityEntry) error {
	const query = `INSERT INTO counselor_availability (counselor_id, day_of_week, raw_ranges, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (counselor_id, day_of_week) DO UPDATE SET raw_ranges = EXCLUDED.raw_ranges, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, entry.CounselorID, int(entry.DayOfWeek), entry.RawRanges, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert availability: %w", err)
	}
	return nil
}
