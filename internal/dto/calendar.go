package dto

// CalendarStatsQuery selects the month rolled up by the calendar view.
type CalendarStatsQuery struct {
	Year   int    `form:"year" validate:"required,min=2000,max=2100"`
	Month  int    `form:"month" validate:"required,min=1,max=12"`
	Status string `form:"status" validate:"omitempty,oneof=PENDING APPROVED REJECTED CANCELLED COMPLETED"`
}
