package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/counseling-booking-api/internal/dto"
	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/internal/service"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/response"
)

type appointmentService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateAppointmentRequest) (*dto.BookingResult, error)
	Get(ctx context.Context, actor service.Actor, id string) (*dto.AppointmentResponse, error)
	List(ctx context.Context, actor service.Actor, filter models.AppointmentFilter) ([]dto.AppointmentResponse, *models.Pagination, error)
	Update(ctx context.Context, actor service.Actor, id string, req dto.UpdateAppointmentRequest) (*dto.BookingResult, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	Cancel(ctx context.Context, actor service.Actor, id, reason string) (*dto.AppointmentResponse, error)
	Transition(ctx context.Context, actor service.Actor, id string, req dto.TransitionAppointmentRequest) (*dto.AppointmentResponse, error)
	CreateFollowUp(ctx context.Context, actor service.Actor, parentID string, req dto.CreateFollowUpRequest) (*dto.BookingResult, error)
	ListFollowUps(ctx context.Context, actor service.Actor, parentID string) ([]dto.AppointmentResponse, error)
	CheckEditConflict(ctx context.Context, actor service.Actor, id string, req dto.CheckConflictRequest) (*models.ConflictResult, error)
}

// AppointmentHandler serves the appointment lifecycle endpoints.
type AppointmentHandler struct {
	service appointmentService
}

// NewAppointmentHandler constructs the handler.
func NewAppointmentHandler(service appointmentService) *AppointmentHandler {
	return &AppointmentHandler{service: service}
}

// Create godoc
// @Summary Book an appointment
// @Description Claims one 30 minute unit. A taken slot answers 409 with the conflict in data.
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAppointmentRequest true "Appointment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondBooking(c, http.StatusCreated, result)
}

// Get godoc
// @Summary Get appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	appt, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// List godoc
// @Summary List appointments
// @Description Students only ever see their own appointments.
// @Tags Appointments
// @Produce json
// @Param studentId query string false "Student ID"
// @Param counselorId query string false "Counselor ID"
// @Param status query string false "Comma separated statuses"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter, err := parseAppointmentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Update godoc
// @Summary Reschedule a pending appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.UpdateAppointmentRequest true "Appointment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id} [put]
func (h *AppointmentHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondBooking(c, http.StatusOK, result)
}

// Delete godoc
// @Summary Delete a pending appointment
// @Tags Appointments
// @Param id path string true "Appointment ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id} [delete]
func (h *AppointmentHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Cancel godoc
// @Summary Cancel an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.CancelAppointmentRequest true "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /appointments/{id}/cancel [post]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CancelAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}
	appt, err := h.service.Cancel(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Transition godoc
// @Summary Change appointment status
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.TransitionAppointmentRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id}/status [post]
func (h *AppointmentHandler) Transition(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.TransitionAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}
	appt, err := h.service.Transition(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// CreateFollowUp godoc
// @Summary Book a follow-up session
// @Description Defaults to one week after the parent in the same unit with the same counselor.
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Parent appointment ID"
// @Param payload body dto.CreateFollowUpRequest false "Overrides"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id}/follow-ups [post]
func (h *AppointmentHandler) CreateFollowUp(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateFollowUpRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	result, err := h.service.CreateFollowUp(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondBooking(c, http.StatusCreated, result)
}

// ListFollowUps godoc
// @Summary List follow-ups of an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Parent appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/follow-ups [get]
func (h *AppointmentHandler) ListFollowUps(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.ListFollowUps(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CheckConflict godoc
// @Summary Check whether an appointment could move to a slot
// @Description Advisory only, the slot is not held.
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.CheckConflictRequest true "Candidate slot"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/conflicts [post]
func (h *AppointmentHandler) CheckConflict(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CheckConflictRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.CheckEditConflict(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func parseAppointmentFilter(c *gin.Context) (models.AppointmentFilter, error) {
	filter := models.AppointmentFilter{
		StudentID:   strings.TrimSpace(c.Query("studentId")),
		CounselorID: strings.TrimSpace(c.Query("counselorId")),
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.AppointmentStatus(strings.ToUpper(strings.TrimSpace(part)))
			if status == "" {
				continue
			}
			if !status.Valid() {
				return filter, appErrors.Clone(appErrors.ErrValidation, "unknown status "+part)
			}
			filter.Status = append(filter.Status, status)
		}
	}

	from, err := optionalDate(c.Query("from"), "from")
	if err != nil {
		return filter, err
	}
	to, err := optionalDate(c.Query("to"), "to")
	if err != nil {
		return filter, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	filter.From, filter.To = from, to

	if filter.Page, err = optionalInt(c.Query("page"), "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = optionalInt(c.Query("limit"), "limit"); err != nil {
		return filter, err
	}
	return filter, nil
}

func optionalDate(raw, name string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(models.DateLayout, raw, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, name+" must be formatted as YYYY-MM-DD")
	}
	return &parsed, nil
}

func optionalInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a positive integer")
	}
	return value, nil
}
