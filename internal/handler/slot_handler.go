package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/counseling-booking-api/internal/dto"
	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/response"
	"github.com/noah-isme/counseling-booking-api/pkg/timerange"
)

type slotService interface {
	ListBookableUnits(ctx context.Context, date time.Time, counselorID string, ct models.ConsultationType) ([]timerange.Range, error)
	ListBookedUnits(ctx context.Context, date time.Time, counselorID string, ct models.ConsultationType) ([]timerange.Range, error)
}

// SlotHandler exposes the bookable and booked unit listings.
type SlotHandler struct {
	service   slotService
	validator *validator.Validate
}

// NewSlotHandler constructs the handler.
func NewSlotHandler(service slotService, validate *validator.Validate) *SlotHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &SlotHandler{service: service, validator: validate}
}

// Bookable godoc
// @Summary List bookable units
// @Description Units of the date's weekday with capacity left for the consultation type. Omit counselorId for any counselor.
// @Tags Slots
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param counselorId query string false "Counselor ID"
// @Param consultationType query string true "Individual or Group"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /slots/bookable [get]
func (h *SlotHandler) Bookable(c *gin.Context) {
	h.list(c, h.service.ListBookableUnits)
}

// Booked godoc
// @Summary List booked units
// @Description Units of the date's weekday that are at capacity for the consultation type.
// @Tags Slots
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param counselorId query string false "Counselor ID"
// @Param consultationType query string true "Individual or Group"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /slots/booked [get]
func (h *SlotHandler) Booked(c *gin.Context) {
	h.list(c, h.service.ListBookedUnits)
}

type unitLister func(ctx context.Context, date time.Time, counselorID string, ct models.ConsultationType) ([]timerange.Range, error)

func (h *SlotHandler) list(c *gin.Context, lister unitLister) {
	var query dto.SlotQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	query.CounselorID = strings.TrimSpace(query.CounselorID)
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date and consultationType are required"))
		return
	}
	date, err := time.ParseInLocation(models.DateLayout, query.Date, time.UTC)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD"))
		return
	}

	units, err := lister(c.Request.Context(), date, query.CounselorID, models.ConsultationType(query.ConsultationType))
	if err != nil {
		response.Error(c, err)
		return
	}

	display := make([]string, 0, len(units))
	for _, unit := range units {
		display = append(display, unit.String())
	}
	response.JSON(c, http.StatusOK, dto.SlotListResponse{
		Date:             query.Date,
		CounselorID:      query.CounselorID,
		ConsultationType: query.ConsultationType,
		Units:            display,
	}, nil)
}
