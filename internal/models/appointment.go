package models

import (
	"fmt"
	"time"
)

// ConsultationType selects the capacity pool an appointment draws from.
type ConsultationType string

const (
	ConsultationIndividual ConsultationType = "Individual"
	ConsultationGroup      ConsultationType = "Group"
)

// ConsultationTypes lists every type offered on a working day.
var ConsultationTypes = []ConsultationType{ConsultationIndividual, ConsultationGroup}

// Capacity returns how many active appointments one counselor unit can hold.
func (t ConsultationType) Capacity() int {
	switch t {
	case ConsultationIndividual:
		return 1
	case ConsultationGroup:
		return 5
	default:
		return 0
	}
}

// Valid reports whether t is a known consultation type.
func (t ConsultationType) Valid() bool {
	return t.Capacity() > 0
}

// AppointmentStatus captures lifecycle states for an appointment.
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "PENDING"
	AppointmentStatusApproved  AppointmentStatus = "APPROVED"
	AppointmentStatusRejected  AppointmentStatus = "REJECTED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
)

// ActiveStatuses are the statuses that occupy capacity.
var ActiveStatuses = []AppointmentStatus{AppointmentStatusPending, AppointmentStatusApproved}

// IsActive reports whether s counts toward occupancy.
func (s AppointmentStatus) IsActive() bool {
	return s == AppointmentStatusPending || s == AppointmentStatusApproved
}

// IsTerminal reports whether no further transition is possible from s.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusRejected, AppointmentStatusCancelled, AppointmentStatusCompleted:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// Appointment is a student's claim on one counselor time unit.
type Appointment struct {
	ID                  string            `db:"id" json:"id"`
	StudentID           string            `db:"student_id" json:"studentId"`
	CounselorID         *string           `db:"counselor_id" json:"counselorId,omitempty"`
	NoPreference        bool              `db:"no_preference" json:"noPreference"`
	Date                time.Time         `db:"appointment_date" json:"date"`
	TimeUnit            string            `db:"time_unit" json:"timeUnit"`
	ConsultationType    ConsultationType  `db:"consultation_type" json:"consultationType"`
	MethodType          string            `db:"method_type" json:"methodType"`
	Purpose             string            `db:"purpose" json:"purpose"`
	Description         string            `db:"description" json:"description"`
	Status              AppointmentStatus `db:"status" json:"status"`
	Reason              *string           `db:"reason" json:"reason,omitempty"`
	ParentAppointmentID *string           `db:"parent_appointment_id" json:"parentAppointmentId,omitempty"`
	FollowUpSequence    *int              `db:"follow_up_sequence" json:"followUpSequence,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updatedAt"`
}

// Slot returns the occupancy key the appointment holds. The second return is
// false while no counselor has been pinned.
func (a *Appointment) Slot() (SlotKey, bool) {
	if a == nil || a.CounselorID == nil {
		return SlotKey{}, false
	}
	return SlotKey{
		CounselorID:      *a.CounselorID,
		Date:             a.Date,
		TimeUnit:         a.TimeUnit,
		ConsultationType: a.ConsultationType,
	}, true
}

// SlotKey identifies one capacity pool: a counselor's unit on a date for a
// consultation type.
type SlotKey struct {
	CounselorID      string
	Date             time.Time
	TimeUnit         string
	ConsultationType ConsultationType
}

// LockKey renders the key used to serialise writers of the same pool.
func (k SlotKey) LockKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.CounselorID, k.Date.Format(DateLayout), k.TimeUnit, k.ConsultationType)
}

// OccupancyQuery narrows an active count to one pool, optionally ignoring
// the appointment being edited.
type OccupancyQuery struct {
	SlotKey
	ExcludeID string
}

// AppointmentFilter narrows appointment listings.
type AppointmentFilter struct {
	StudentID   string
	CounselorID string
	Status      []AppointmentStatus
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"
