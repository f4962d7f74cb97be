package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/counseling-booking-api/internal/dto"
	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/internal/service"
	"github.com/noah-isme/counseling-booking-api/pkg/response"
)

type counselorService interface {
	List(ctx context.Context) ([]models.Counselor, error)
	WeeklyAvailability(ctx context.Context, counselorID string) ([]models.WeeklyAvailabilityEntry, error)
	SetAvailability(ctx context.Context, actor service.Actor, counselorID string, req dto.SetAvailabilityRequest) (*models.WeeklyAvailabilityEntry, error)
}

// CounselorHandler publishes counselors and their weekly schedule.
type CounselorHandler struct {
	service counselorService
}

// NewCounselorHandler constructs the handler.
func NewCounselorHandler(service counselorService) *CounselorHandler {
	return &CounselorHandler{service: service}
}

// List godoc
// @Summary List active counselors
// @Tags Counselors
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /counselors [get]
func (h *CounselorHandler) List(c *gin.Context) {
	counselors, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counselors, nil)
}

// Availability godoc
// @Summary Weekly availability of a counselor
// @Tags Counselors
// @Produce json
// @Param id path string true "Counselor ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /counselors/{id}/availability [get]
func (h *CounselorHandler) Availability(c *gin.Context) {
	entries, err := h.service.WeeklyAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// SetAvailability godoc
// @Summary Replace one weekday of a counselor's availability
// @Tags Counselors
// @Accept json
// @Produce json
// @Param id path string true "Counselor ID"
// @Param payload body dto.SetAvailabilityRequest true "Weekday ranges"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /counselors/{id}/availability [put]
func (h *CounselorHandler) SetAvailability(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.SetAvailabilityRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.service.SetAvailability(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
