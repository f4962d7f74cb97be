package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/export"
)

type pagedLister struct {
	appts   []models.Appointment
	total   int
	filters []models.AppointmentFilter
}

func (p *pagedLister) List(_ context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	p.filters = append(p.filters, filter)
	var matched []models.Appointment
	for _, appt := range p.appts {
		if filter.CounselorID != "" && (appt.CounselorID == nil || *appt.CounselorID != filter.CounselorID) {
			continue
		}
		matched = append(matched, appt)
	}
	total := len(matched)
	if p.total > 0 {
		total = p.total
	}
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

type tableCapture struct{ table export.Table }

func (c *tableCapture) Render(table export.Table) ([]byte, error) {
	c.table = table
	return []byte("rendered"), nil
}

func scheduled(id, counselorID string, date time.Time, unit string) models.Appointment {
	return models.Appointment{
		ID:               id,
		StudentID:        "s-" + id,
		CounselorID:      strPtr(counselorID),
		Date:             date,
		TimeUnit:         unit,
		ConsultationType: models.ConsultationIndividual,
		Status:           models.AppointmentStatusApproved,
		MethodType:       "Online",
		Purpose:          "Career",
	}
}

func TestExportServiceScheduleOrdersRows(t *testing.T) {
	store := &pagedLister{appts: []models.Appointment{
		scheduled("a", "c-1", tuesday, unit8),
		scheduled("b", "c-1", monday, unit9),
		scheduled("c", "c-1", monday, "1:00 PM - 1:30 PM"),
		scheduled("d", "c-1", monday, unit8),
	}}
	capture := &tableCapture{}
	svc := NewExportService(store, nil, capture)

	result, err := svc.Schedule(context.Background(), Actor{UserID: "admin", Role: models.RoleAdmin}, models.AppointmentFilter{}, export.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "rendered", string(result.Body))
	assert.Equal(t, 4, result.Rows)
	assert.Equal(t, "schedule.csv", result.Filename)
	var order []string
	for _, row := range capture.table.Rows {
		order = append(order, row[0]+" "+row[1])
	}
	assert.Equal(t, []string{
		"2025-03-03 " + unit8,
		"2025-03-03 " + unit9,
		"2025-03-03 1:00 PM - 1:30 PM",
		"2025-03-04 " + unit8,
	}, order)
}

func TestExportServiceScopesCounselorsAndPages(t *testing.T) {
	store := &pagedLister{}
	for i := 0; i < 130; i++ {
		store.appts = append(store.appts, scheduled(fmt.Sprintf("a-%03d", i), "c-1", monday, unit8))
	}
	store.appts = append(store.appts, scheduled("other", "c-2", monday, unit8))
	capture := &tableCapture{}
	svc := NewExportService(store, nil, capture)

	from := monday
	result, err := svc.Schedule(context.Background(), Actor{UserID: "c-1", Role: models.RoleCounselor},
		models.AppointmentFilter{CounselorID: "c-2", From: &from}, export.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 130, result.Rows)
	assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)
	assert.Equal(t, "schedule-c-1-2025-03-03_end.csv", result.Filename)
	require.Len(t, store.filters, 2)
	assert.Equal(t, "c-1", store.filters[0].CounselorID)
	assert.Equal(t, 2, store.filters[1].Page)
	for _, row := range capture.table.Rows {
		assert.Equal(t, "c-1", row[3])
	}
}

func TestExportServiceRejections(t *testing.T) {
	svc := NewExportService(&pagedLister{total: exportMaxRows + 1}, nil, nil)
	admin := Actor{UserID: "admin", Role: models.RoleAdmin}

	_, err := svc.Schedule(context.Background(), Actor{UserID: "s-1", Role: models.RoleStudent}, models.AppointmentFilter{}, export.FormatCSV)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.Schedule(context.Background(), admin, models.AppointmentFilter{}, export.Format("xlsx"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Schedule(context.Background(), admin, models.AppointmentFilter{}, export.FormatCSV)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}
