package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/pkg/database"
)

// Sentinel outcomes of the guarded write paths.
var (
	ErrSlotFull           = errors.New("slot at capacity")
	ErrNotPending         = errors.New("appointment is not pending")
	ErrParentNotCompleted = errors.New("parent appointment is not completed")
)

const appointmentColumns = `id, student_id, counselor_id, no_preference, appointment_date, time_unit, consultation_type,
method_type, purpose, description, status, reason, parent_appointment_id, follow_up_sequence, created_at, updated_at`

const insertAppointmentQuery = `INSERT INTO appointments (` + appointmentColumns + `)
VALUES (:id, :student_id, :counselor_id, :no_preference, :appointment_date, :time_unit, :consultation_type,
:method_type, :purpose, :description, :status, :reason, :parent_appointment_id, :follow_up_sequence, :created_at, :updated_at)`

// AppointmentRepository is the authoritative store for appointment rows and
// the occupancy derived from them.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository creates a new appointment repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// FindByID loads an appointment by id.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		return nil, err
	}
	return &appt, nil
}

// List returns appointments with optional filtering and pagination.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	base := "FROM appointments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.CounselorID != "" {
		args = append(args, filter.CounselorID)
		conditions = append(conditions, fmt.Sprintf("counselor_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("appointment_date <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY appointment_date DESC, time_unit ASC, created_at ASC LIMIT %d OFFSET %d", appointmentColumns, base, size, offset)
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	return appts, total, nil
}

// ListFollowUps returns the follow-up chain of a parent ordered by sequence.
func (r *AppointmentRepository) ListFollowUps(ctx context.Context, parentID string) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE parent_appointment_id = $1 ORDER BY follow_up_sequence ASC`
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, parentID); err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	return appts, nil
}

// CountActive counts PENDING and APPROVED appointments holding the pool.
func (r *AppointmentRepository) CountActive(ctx context.Context, q models.OccupancyQuery) (int, error) {
	return countActive(ctx, r.db, q)
}

// ListOccupancy tallies active appointments per counselor unit and type
// between two dates inclusive. Unpinned rows are skipped.
func (r *AppointmentRepository) ListOccupancy(ctx context.Context, from, to time.Time) ([]models.UnitOccupancy, error) {
	const query = `SELECT appointment_date, counselor_id, time_unit, consultation_type, COUNT(*) AS total
FROM appointments
WHERE appointment_date BETWEEN $1 AND $2 AND counselor_id IS NOT NULL AND status IN ('PENDING', 'APPROVED')
GROUP BY appointment_date, counselor_id, time_unit, consultation_type`
	var rows []models.UnitOccupancy
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("list occupancy: %w", err)
	}
	return rows, nil
}

// DailyCounts tallies appointments with the given status per date.
func (r *AppointmentRepository) DailyCounts(ctx context.Context, from, to time.Time, status models.AppointmentStatus) ([]models.DailyCount, error) {
	const query = `SELECT appointment_date, COUNT(*) AS total FROM appointments
WHERE appointment_date BETWEEN $1 AND $2 AND status = $3
GROUP BY appointment_date ORDER BY appointment_date ASC`
	var rows []models.DailyCount
	if err := r.db.SelectContext(ctx, &rows, query, from, to, status); err != nil {
		return nil, fmt.Errorf("daily appointment counts: %w", err)
	}
	return rows, nil
}

// Book inserts appt only if its pool is below capacity. The count and the
// insert share a transaction holding an advisory lock on the pool, so two
// concurrent bookings of the same pool are serialised.
func (r *AppointmentRepository) Book(ctx context.Context, appt *models.Appointment) error {
	key, ok := appt.Slot()
	if !ok {
		return fmt.Errorf("book appointment: counselor not pinned")
	}
	prepareInsert(appt)

	return r.withTx(ctx, "book appointment", func(tx *sqlx.Tx) error {
		if err := claimPool(ctx, tx, key, "", appt.ConsultationType.Capacity()); err != nil {
			return err
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, insertAppointmentQuery, appt); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrSlotFull
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
}

// Reschedule applies changes to a pending appointment. The row is locked
// first, then the target pool is claimed excluding the row itself, so an
// appointment can be saved back into its own slot.
func (r *AppointmentRepository) Reschedule(ctx context.Context, appt *models.Appointment) error {
	key, ok := appt.Slot()
	if !ok {
		return fmt.Errorf("reschedule appointment: counselor not pinned")
	}
	appt.UpdatedAt = time.Now().UTC()

	return r.withTx(ctx, "reschedule appointment", func(tx *sqlx.Tx) error {
		var status models.AppointmentStatus
		if err := tx.GetContext(ctx, &status, `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`, appt.ID); err != nil {
			return err
		}
		if status != models.AppointmentStatusPending {
			return ErrNotPending
		}
		if err := claimPool(ctx, tx, key, appt.ID, appt.ConsultationType.Capacity()); err != nil {
			return err
		}
		const query = `UPDATE appointments SET counselor_id = :counselor_id, no_preference = :no_preference,
appointment_date = :appointment_date, time_unit = :time_unit, consultation_type = :consultation_type,
method_type = :method_type, purpose = :purpose, description = :description, updated_at = :updated_at
WHERE id = :id`
		if _, err := sqlx.NamedExecContext(ctx, tx, query, appt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	})
}

// BookFollowUp inserts appt as the next link in its parent's chain. The
// parent row is locked so sequence numbers are handed out one at a time.
func (r *AppointmentRepository) BookFollowUp(ctx context.Context, appt *models.Appointment) error {
	key, ok := appt.Slot()
	if !ok || appt.ParentAppointmentID == nil {
		return fmt.Errorf("book follow-up: counselor or parent missing")
	}
	prepareInsert(appt)

	return r.withTx(ctx, "book follow-up", func(tx *sqlx.Tx) error {
		var parentStatus models.AppointmentStatus
		if err := tx.GetContext(ctx, &parentStatus, `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`, *appt.ParentAppointmentID); err != nil {
			return err
		}
		if parentStatus != models.AppointmentStatusCompleted {
			return ErrParentNotCompleted
		}
		var next int
		if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(follow_up_sequence), 0) + 1 FROM appointments WHERE parent_appointment_id = $1`, *appt.ParentAppointmentID); err != nil {
			return fmt.Errorf("next follow-up sequence: %w", err)
		}
		appt.FollowUpSequence = &next

		if err := claimPool(ctx, tx, key, "", appt.ConsultationType.Capacity()); err != nil {
			return err
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, insertAppointmentQuery, appt); err != nil {
			return fmt.Errorf("insert follow-up: %w", err)
		}
		return nil
	})
}

// Transition moves an appointment from one status to another. The update is
// conditional on the current status, so concurrent transitions of the same
// row cannot both succeed; the loser gets sql.ErrNoRows.
func (r *AppointmentRepository) Transition(ctx context.Context, id string, from, to models.AppointmentStatus, reason *string) error {
	const query = `UPDATE appointments SET status = $1, reason = COALESCE($2, reason), updated_at = $3 WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, to, reason, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("transition appointment: %w", err)
	}
	return expectOneRow(result, "transition appointment")
}

// DeletePending hard deletes an appointment that is still pending.
func (r *AppointmentRepository) DeletePending(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1 AND status = $2`, id, models.AppointmentStatusPending)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return expectOneRow(result, "delete appointment")
}

func (r *AppointmentRepository) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	return nil
}

// claimPool locks the pool for the rest of the transaction and fails with
// ErrSlotFull when it already holds capacity active appointments.
func claimPool(ctx context.Context, tx *sqlx.Tx, key models.SlotKey, excludeID string, capacity int) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.LockKey()); err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	active, err := countActive(ctx, tx, models.OccupancyQuery{SlotKey: key, ExcludeID: excludeID})
	if err != nil {
		return err
	}
	if active >= capacity {
		return ErrSlotFull
	}
	return nil
}

func countActive(ctx context.Context, q sqlx.QueryerContext, occ models.OccupancyQuery) (int, error) {
	query := `SELECT COUNT(*) FROM appointments
WHERE counselor_id = $1 AND appointment_date = $2 AND time_unit = $3 AND consultation_type = $4
AND status IN ('PENDING', 'APPROVED')`
	args := []interface{}{occ.CounselorID, occ.Date, occ.TimeUnit, occ.ConsultationType}
	if occ.ExcludeID != "" {
		query += " AND id <> $5"
		args = append(args, occ.ExcludeID)
	}
	var total int
	if err := sqlx.GetContext(ctx, q, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count active appointments: %w", err)
	}
	return total, nil
}

func prepareInsert(appt *models.Appointment) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = models.AppointmentStatusPending
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now
}

func expectOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
