package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/counseling-booking-api/internal/models"
)

const unit = "8:00 AM - 8:30 AM"

var apptColumns = []string{"id", "student_id", "counselor_id", "no_preference", "appointment_date", "time_unit", "consultation_type",
	"method_type", "purpose", "description", "status", "reason", "parent_appointment_id", "follow_up_sequence", "created_at", "updated_at"}

func newAppointmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func strPtr(s string) *string { return &s }

func groupAppointment(date time.Time) *models.Appointment {
	return &models.Appointment{
		StudentID:        "student-1",
		CounselorID:      strPtr("counselor-1"),
		Date:             date,
		TimeUnit:         unit,
		ConsultationType: models.ConsultationGroup,
		MethodType:       "Face to face",
		Purpose:          "Academic",
	}
}

func TestAppointmentRepositoryBookInsertsUnderCapacity(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	appt := groupAppointment(date)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("counselor-1|2025-03-03|" + unit + "|Group").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments`).
		WithArgs("counselor-1", date, unit, "Group").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec("INSERT INTO appointments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Book(context.Background(), appt))
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, models.AppointmentStatusPending, appt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryBookRejectsFullPool(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectRollback()

	err := repo.Book(context.Background(), groupAppointment(date))
	assert.ErrorIs(t, err, ErrSlotFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryBookMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO appointments").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Book(context.Background(), groupAppointment(date))
	assert.ErrorIs(t, err, ErrSlotFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryBookRequiresCounselor(t *testing.T) {
	db, _, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	appt := groupAppointment(time.Now())
	appt.CounselorID = nil
	assert.Error(t, repo.Book(context.Background(), appt))
}

func TestAppointmentRepositoryRescheduleExcludesSelf(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	date := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	appt := groupAppointment(date)
	appt.ID = "appt-1"
	appt.ConsultationType = models.ConsultationIndividual

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM appointments WHERE id = \$1 FOR UPDATE`).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments .* AND id <> \$5`).
		WithArgs("counselor-1", date, unit, "Individual", "appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE appointments SET counselor_id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Reschedule(context.Background(), appt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryRescheduleRejectsNonPending(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	appt := groupAppointment(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
	appt.ID = "appt-1"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM appointments WHERE id = \$1 FOR UPDATE`).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Reschedule(context.Background(), appt), ErrNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryBookFollowUpAssignsNextSequence(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	appt := groupAppointment(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	appt.ParentAppointmentID = strPtr("parent-1")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM appointments WHERE id = \$1 FOR UPDATE`).
		WithArgs("parent-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("COMPLETED"))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(follow_up_sequence\), 0\) \+ 1`).
		WithArgs("parent-1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO appointments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.BookFollowUp(context.Background(), appt))
	require.NotNil(t, appt.FollowUpSequence)
	assert.Equal(t, 3, *appt.FollowUpSequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryBookFollowUpRequiresCompletedParent(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	appt := groupAppointment(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	appt.ParentAppointmentID = strPtr("parent-1")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM appointments WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.BookFollowUp(context.Background(), appt), ErrParentNotCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryTransitionIsConditional(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs("APPROVED", nil, sqlmock.AnyArg(), "appt-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Transition(context.Background(), "appt-1", models.AppointmentStatusPending, models.AppointmentStatusApproved, nil))

	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs("CANCELLED", "sick", sqlmock.AnyArg(), "appt-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Transition(context.Background(), "appt-1", models.AppointmentStatusPending, models.AppointmentStatusCancelled, strPtr("sick"))
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryDeletePending(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("DELETE FROM appointments WHERE id").
		WithArgs("appt-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.DeletePending(context.Background(), "appt-1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	now := time.Now()
	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(apptColumns).
		AddRow("appt-1", "student-1", "counselor-1", false, date, unit, "Group", "Online", "Career", "", "APPROVED", nil, nil, nil, now, now)

	mock.ExpectQuery(`SELECT id, student_id, .* FROM appointments WHERE 1=1 AND student_id = \$1 AND status IN \(\$2,\$3\) ORDER BY .* LIMIT 10 OFFSET 10`).
		WithArgs("student-1", "PENDING", "APPROVED").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments WHERE 1=1 AND student_id = \$1`).
		WithArgs("student-1", "PENDING", "APPROVED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	appts, total, err := repo.List(context.Background(), models.AppointmentFilter{
		StudentID: "student-1",
		Status:    models.ActiveStatuses,
		Page:      2,
		PageSize:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, appts, 1)
	assert.Equal(t, "counselor-1", *appts[0].CounselorID)
	assert.Equal(t, models.ConsultationGroup, appts[0].ConsultationType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryAggregates(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT appointment_date, COUNT\(\*\) AS total FROM appointments`).
		WithArgs(from, to, "APPROVED").
		WillReturnRows(sqlmock.NewRows([]string{"appointment_date", "total"}).AddRow(from, 2))
	counts, err := repo.DailyCounts(context.Background(), from, to, models.AppointmentStatusApproved)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 2, counts[0].Count)

	mock.ExpectQuery(`SELECT appointment_date, counselor_id, time_unit, consultation_type, COUNT\(\*\) AS total`).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"appointment_date", "counselor_id", "time_unit", "consultation_type", "total"}).
			AddRow(from, "counselor-1", unit, "Individual", 1))
	occupancy, err := repo.ListOccupancy(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, occupancy, 1)
	assert.Equal(t, models.ConsultationIndividual, occupancy[0].ConsultationType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	id := "3f1c1f9e-7c59-4b7e-9a2e-0d6f1f6f4a10"
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM appointments WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(apptColumns).AddRow(id, "student-1", "counselor-1", false, date, unit, "Individual",
			"Online", "Career", "", "APPROVED", nil, nil, nil, now, now))

	appt, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusApproved, appt.Status)
	require.NotNil(t, appt.CounselorID)
	assert.Equal(t, "counselor-1", *appt.CounselorID)
	assert.Nil(t, appt.ParentAppointmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
