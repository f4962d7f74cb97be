package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/counseling-booking-api/internal/dto"
	"github.com/noah-isme/counseling-booking-api/internal/middleware"
	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/response"
)

type calendarStatsService interface {
	MonthlyStats(ctx context.Context, year, month int, status models.AppointmentStatus) (*models.MonthlyStats, bool, error)
}

// CalendarHandler serves month level booking badges.
type CalendarHandler struct {
	service   calendarStatsService
	validator *validator.Validate
	location  *time.Location
	now       func() time.Time
}

// NewCalendarHandler constructs the handler. Omitted year and month default
// to the current month in loc.
func NewCalendarHandler(service calendarStatsService, validate *validator.Validate, loc *time.Location) *CalendarHandler {
	if validate == nil {
		validate = validator.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarHandler{service: service, validator: validate, location: loc, now: time.Now}
}

// Stats godoc
// @Summary Monthly calendar stats
// @Description Per-day appointment counts and fully booked flags. Advisory, may be served from cache.
// @Tags Calendar
// @Produce json
// @Param year query int false "Year"
// @Param month query int false "Month (1-12)"
// @Param status query string false "Status counted, defaults to APPROVED"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /calendar/stats [get]
func (h *CalendarHandler) Stats(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var query dto.CalendarStatsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year and month must be integers"))
		return
	}
	now := h.now().In(h.location)
	if query.Year == 0 {
		query.Year = now.Year()
	}
	if query.Month == 0 {
		query.Month = int(now.Month())
	}
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid calendar query"))
		return
	}

	start := time.Now()
	stats, cacheHit, err := h.service.MonthlyStats(c.Request.Context(), query.Year, query.Month, models.AppointmentStatus(query.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, stats, nil, meta)
}
