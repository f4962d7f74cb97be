package models

import "time"

// DayStats is the per-date rollup shown on calendar views.
type DayStats struct {
	Count       int  `json:"count"`
	FullyBooked bool `json:"fullyBooked"`
}

// MonthlyStats maps "YYYY-MM-DD" to that day's rollup.
type MonthlyStats struct {
	Year   int                 `json:"year"`
	Month  int                 `json:"month"`
	Status AppointmentStatus   `json:"status"`
	Days   map[string]DayStats `json:"days"`
}

// DailyCount is an appointment tally for one date.
type DailyCount struct {
	Date  time.Time `db:"appointment_date"`
	Count int       `db:"total"`
}

// UnitOccupancy is the active tally for one counselor unit and type.
type UnitOccupancy struct {
	Date             time.Time        `db:"appointment_date"`
	CounselorID      string           `db:"counselor_id"`
	TimeUnit         string           `db:"time_unit"`
	ConsultationType ConsultationType `db:"consultation_type"`
	Count            int              `db:"total"`
}
