package models

import (
	"time"

	"github.com/lib/pq"
)

// Counselor is the subset of counselor profile data the booking core reads.
type Counselor struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"fullName"`
	Active   bool   `db:"active" json:"active"`
}

// WeeklyAvailabilityEntry holds the ranges a counselor published for one
// weekday, exactly as entered.
type WeeklyAvailabilityEntry struct {
	CounselorID string         `db:"counselor_id" json:"counselorId"`
	DayOfWeek   time.Weekday   `db:"day_of_week" json:"dayOfWeek"`
	RawRanges   pq.StringArray `db:"raw_ranges" json:"rawRanges"`
}
