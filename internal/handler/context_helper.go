package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/counseling-booking-api/internal/dto"
	"github.com/noah-isme/counseling-booking-api/internal/middleware"
	"github.com/noah-isme/counseling-booking-api/internal/service"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/response"
)

// actorFromContext resolves the authenticated caller, writing a 401 when the
// JWT middleware did not run.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return service.ActorFromClaims(claims), true
}

// bindJSON decodes the request body, reporting malformed JSON as a
// validation error. Field rules are enforced by the service validator.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return false
	}
	return true
}

// respondBooking writes a slot claim outcome: the appointment on success or a
// 409 carrying the conflict.
func respondBooking(c *gin.Context, status int, result *dto.BookingResult) {
	if result.Conflict != nil {
		response.Conflict(c, result.Conflict)
		return
	}
	response.JSON(c, status, result.Appointment, nil)
}
