package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/internal/service"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/export"
	"github.com/noah-isme/counseling-booking-api/pkg/response"
)

type scheduleExporter interface {
	Schedule(ctx context.Context, actor service.Actor, filter models.AppointmentFilter, format export.Format) (*service.ExportResult, error)
}

// ExportHandler streams rendered schedules.
type ExportHandler struct {
	service scheduleExporter
}

// NewExportHandler constructs the handler.
func NewExportHandler(service scheduleExporter) *ExportHandler {
	return &ExportHandler{service: service}
}

// Schedule godoc
// @Summary Export the appointment schedule
// @Description Counselors always receive their own schedule.
// @Tags Exports
// @Produce text/csv
// @Param format query string false "csv (default)"
// @Param counselorId query string false "Counselor ID"
// @Param status query string false "Comma separated statuses"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /exports/schedule [get]
func (h *ExportHandler) Schedule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	format, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	filter, err := parseAppointmentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.Schedule(c.Request.Context(), actor, filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Body)
}
