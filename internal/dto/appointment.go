package dto

import (
	"time"

	"github.com/noah-isme/counseling-booking-api/internal/models"
)

// CreateAppointmentRequest books a unit. CounselorID may be omitted when
// NoPreference is set, in which case a counselor is pinned at commit.
type CreateAppointmentRequest struct {
	StudentID        string `json:"studentId" validate:"omitempty"`
	CounselorID      string `json:"counselorId" validate:"required_without=NoPreference"`
	NoPreference     bool   `json:"noPreference"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeUnit         string `json:"timeUnit" validate:"required"`
	ConsultationType string `json:"consultationType" validate:"required,oneof=Individual Group"`
	MethodType       string `json:"methodType" validate:"required,max=64"`
	Purpose          string `json:"purpose" validate:"required,max=128"`
	Description      string `json:"description" validate:"omitempty,max=2000"`
}

// UpdateAppointmentRequest replaces the editable fields of a pending
// appointment.
type UpdateAppointmentRequest struct {
	CounselorID      string `json:"counselorId" validate:"required_without=NoPreference"`
	NoPreference     bool   `json:"noPreference"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeUnit         string `json:"timeUnit" validate:"required"`
	ConsultationType string `json:"consultationType" validate:"required,oneof=Individual Group"`
	MethodType       string `json:"methodType" validate:"required,max=64"`
	Purpose          string `json:"purpose" validate:"required,max=128"`
	Description      string `json:"description" validate:"omitempty,max=2000"`
}

// CancelAppointmentRequest carries the mandatory cancellation reason.
type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// TransitionAppointmentRequest moves an appointment to a new status.
type TransitionAppointmentRequest struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED COMPLETED CANCELLED"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// CreateFollowUpRequest overrides the defaults copied from the parent.
type CreateFollowUpRequest struct {
	CounselorID      string `json:"counselorId" validate:"omitempty"`
	Date             string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	TimeUnit         string `json:"timeUnit" validate:"omitempty"`
	ConsultationType string `json:"consultationType" validate:"omitempty,oneof=Individual Group"`
	MethodType       string `json:"methodType" validate:"omitempty,max=64"`
	Purpose          string `json:"purpose" validate:"omitempty,max=128"`
	Description      string `json:"description" validate:"omitempty,max=2000"`
}

// CheckConflictRequest asks whether an appointment could move to a slot.
type CheckConflictRequest struct {
	CounselorID      string `json:"counselorId" validate:"required_without=NoPreference"`
	NoPreference     bool   `json:"noPreference"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeUnit         string `json:"timeUnit" validate:"required"`
	ConsultationType string `json:"consultationType" validate:"omitempty,oneof=Individual Group"`
}

// AppointmentResponse is the wire shape of an appointment.
type AppointmentResponse struct {
	ID                  string    `json:"id"`
	StudentID           string    `json:"studentId"`
	CounselorID         *string   `json:"counselorId,omitempty"`
	NoPreference        bool      `json:"noPreference"`
	Date                string    `json:"date"`
	TimeUnit            string    `json:"timeUnit"`
	ConsultationType    string    `json:"consultationType"`
	MethodType          string    `json:"methodType"`
	Purpose             string    `json:"purpose"`
	Description         string    `json:"description"`
	Status              string    `json:"status"`
	Reason              *string   `json:"reason,omitempty"`
	ParentAppointmentID *string   `json:"parentAppointmentId,omitempty"`
	FollowUpSequence    *int      `json:"followUpSequence,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// NewAppointmentResponse maps a stored appointment onto its wire shape.
func NewAppointmentResponse(appt *models.Appointment) *AppointmentResponse {
	if appt == nil {
		return nil
	}
	return &AppointmentResponse{
		ID:                  appt.ID,
		StudentID:           appt.StudentID,
		CounselorID:         appt.CounselorID,
		NoPreference:        appt.NoPreference,
		Date:                appt.Date.Format(models.DateLayout),
		TimeUnit:            appt.TimeUnit,
		ConsultationType:    string(appt.ConsultationType),
		MethodType:          appt.MethodType,
		Purpose:             appt.Purpose,
		Description:         appt.Description,
		Status:              string(appt.Status),
		Reason:              appt.Reason,
		ParentAppointmentID: appt.ParentAppointmentID,
		FollowUpSequence:    appt.FollowUpSequence,
		CreatedAt:           appt.CreatedAt,
		UpdatedAt:           appt.UpdatedAt,
	}
}

// NewAppointmentResponses maps a slice of appointments.
func NewAppointmentResponses(appts []models.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, *NewAppointmentResponse(&appts[i]))
	}
	return out
}

// BookingResult is the outcome of a write that claims a slot. Exactly one of
// Appointment and Conflict is set.
type BookingResult struct {
	Appointment *AppointmentResponse   `json:"appointment,omitempty"`
	Conflict    *models.ConflictResult `json:"conflict,omitempty"`
}

// Booked wraps a committed appointment.
func Booked(appt *models.Appointment) *BookingResult {
	return &BookingResult{Appointment: NewAppointmentResponse(appt)}
}

// Conflicted wraps a rejected claim.
func Conflicted(conflict *models.ConflictResult) *BookingResult {
	return &BookingResult{Conflict: conflict}
}
