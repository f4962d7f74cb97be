package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
	"github.com/noah-isme/counseling-booking-api/pkg/export"
	"github.com/noah-isme/counseling-booking-api/pkg/timerange"
)

const (
	exportPageSize = 100
	exportMaxRows  = 5000
)

type appointmentLister interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
}

// ExportResult is a rendered schedule ready to be served.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ExportService renders appointment schedules for counselors and admins.
type ExportService struct {
	store     appointmentLister
	renderers map[export.Format]tableRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. A nil csv renderer falls
// back to export.NewCSVExporter.
func NewExportService(store appointmentLister, logger *zap.Logger, csv tableRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &ExportService{
		store:     store,
		renderers: map[export.Format]tableRenderer{export.FormatCSV: csv},
		logger:    logger,
	}
}

// Schedule renders every appointment matching filter in date then unit
// order. Counselors are limited to their own schedule.
func (s *ExportService) Schedule(ctx context.Context, actor Actor, filter models.AppointmentFilter, format export.Format) (*ExportResult, error) {
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleCounselor:
		filter.CounselorID = actor.UserID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff can export schedules")
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	appts, err := s.collect(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortSchedule(appts)

	table := scheduleTable(appts)
	body, err := renderer.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render schedule")
	}

	s.logger.Info("schedule exported",
		zap.String("actor_id", actor.UserID),
		zap.String("format", string(format)),
		zap.Int("rows", len(appts)))
	return &ExportResult{
		Filename:    scheduleFilename(filter, format),
		ContentType: format.ContentType(),
		Body:        body,
		Rows:        len(appts),
	}, nil
}

func (s *ExportService) collect(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error) {
	filter.PageSize = exportPageSize
	var out []models.Appointment
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.store.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments")
		}
		if total > exportMaxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("export is limited to %d appointments, narrow the date range", exportMaxRows))
		}
		out = append(out, batch...)
		if len(batch) < exportPageSize || len(out) >= total {
			return out, nil
		}
	}
}

var scheduleHeaders = []string{"Date", "Time", "Type", "Counselor", "Student", "Status", "Method", "Purpose", "Follow-up"}

func scheduleTable(appts []models.Appointment) export.Table {
	table := export.Table{Headers: scheduleHeaders, Rows: make([][]string, 0, len(appts))}
	for _, appt := range appts {
		followUp := ""
		if appt.FollowUpSequence != nil {
			followUp = fmt.Sprintf("#%d", *appt.FollowUpSequence)
		}
		table.Rows = append(table.Rows, []string{
			appt.Date.Format(models.DateLayout),
			appt.TimeUnit,
			string(appt.ConsultationType),
			derefString(appt.CounselorID),
			appt.StudentID,
			string(appt.Status),
			appt.MethodType,
			appt.Purpose,
			followUp,
		})
	}
	return table
}

func scheduleFilename(filter models.AppointmentFilter, format export.Format) string {
	name := "schedule"
	if filter.CounselorID != "" {
		name += "-" + filter.CounselorID
	}
	if filter.From != nil || filter.To != nil {
		name += "-" + strings.ReplaceAll(dateSpan(filter), " to ", "_")
	}
	return name + "." + string(format)
}

func dateSpan(filter models.AppointmentFilter) string {
	from, to := "start", "end"
	if filter.From != nil {
		from = filter.From.Format(models.DateLayout)
	}
	if filter.To != nil {
		to = filter.To.Format(models.DateLayout)
	}
	return from + " to " + to
}

// sortSchedule orders by date, then unit start, then counselor. Units that
// fail to parse sort last within their day.
func sortSchedule(appts []models.Appointment) {
	start := func(a models.Appointment) int {
		r, err := timerange.Parse(a.TimeUnit)
		if err != nil {
			return 1 << 30
		}
		return r.Start
	}
	sort.SliceStable(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if sa, sb := start(a), start(b); sa != sb {
			return sa < sb
		}
		return derefString(a.CounselorID) < derefString(b.CounselorID)
	})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
