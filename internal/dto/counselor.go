package dto

// SetAvailabilityRequest replaces a counselor's ranges for one weekday.
// DayOfWeek follows time.Weekday and is limited to Monday (1) through
// Friday (5).
type SetAvailabilityRequest struct {
	DayOfWeek *int     `json:"dayOfWeek" validate:"required,min=1,max=5"`
	Ranges    []string `json:"ranges" validate:"omitempty,max=24,dive,required"`
}
