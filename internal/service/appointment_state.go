package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
)

var allowedTransitions = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.AppointmentStatusPending: {
		models.AppointmentStatusApproved,
		models.AppointmentStatusRejected,
		models.AppointmentStatusCancelled,
	},
	models.AppointmentStatusApproved: {
		models.AppointmentStatusCompleted,
		models.AppointmentStatusCancelled,
	},
}

// ValidateTransition reports whether an appointment may move from one status
// to another. Cancellation additionally needs a non-blank reason.
func ValidateTransition(from, to models.AppointmentStatus, reason string) error {
	if !to.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", to))
	}
	if from.IsTerminal() {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("appointment is already %s", from))
	}
	allowed := false
	for _, next := range allowedTransitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move appointment from %s to %s", from, to))
	}
	if to == models.AppointmentStatusCancelled && strings.TrimSpace(reason) == "" {
		return appErrors.ErrMissingReason
	}
	return nil
}

// ensureEditable rejects edits of appointments that left PENDING.
func ensureEditable(status models.AppointmentStatus) error {
	if status != models.AppointmentStatusPending {
		return appErrors.Clone(appErrors.ErrImmutableState, fmt.Sprintf("appointment is %s and can no longer be edited", status))
	}
	return nil
}

// ensureFollowUpParent rejects follow-ups of appointments that are not
// COMPLETED.
func ensureFollowUpParent(status models.AppointmentStatus) error {
	if status != models.AppointmentStatusCompleted {
		return appErrors.Clone(appErrors.ErrParentNotCompleted, fmt.Sprintf("parent appointment is %s, follow-ups need a completed session", status))
	}
	return nil
}
