// Package timerange converts between 12-hour display ranges such as
// "8:00 AM - 8:30 AM" and minute offsets from midnight.
package timerange

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// SlotMinutes is the width of one bookable unit.
	SlotMinutes = 30

	minutesPerDay = 24 * 60
	clockLayout   = "3:04 PM"
	separator     = " - "
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrMalformed    = errors.New("malformed time range")
	ErrInvalidWidth = errors.New("invalid time range width")
)

// MalformedRangeError is returned for input that does not follow the
// "H:MM AM - H:MM PM" shape.
type MalformedRangeError struct {
	Input  string
	Reason string
}

func (e *MalformedRangeError) Error() string {
	return fmt.Sprintf("malformed time range %q: %s", e.Input, e.Reason)
}

func (e *MalformedRangeError) Is(target error) bool { return target == ErrMalformed }

// InvalidRangeWidthError is returned when a range is empty, inverted or not a
// whole number of slots.
type InvalidRangeWidthError struct {
	Input   string
	Minutes int
}

func (e *InvalidRangeWidthError) Error() string {
	return fmt.Sprintf("time range %q spans %d minutes, want a positive multiple of %d", e.Input, e.Minutes, SlotMinutes)
}

func (e *InvalidRangeWidthError) Is(target error) bool { return target == ErrInvalidWidth }

// Range is a half-open interval [Start, End) in minutes since midnight.
// End may equal 1440 when a range closes at midnight.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Parse reads a display range. Both sides need an AM/PM marker, case and
// surrounding whitespace are ignored, and "12:00 AM" as an end bound means
// midnight at the close of the day.
func Parse(s string) (Range, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Range{}, &MalformedRangeError{Input: s, Reason: "expected exactly one '-' separator"}
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return Range{}, &MalformedRangeError{Input: s, Reason: "start: " + err.Error()}
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Range{}, &MalformedRangeError{Input: s, Reason: "end: " + err.Error()}
	}
	if end == 0 {
		end = minutesPerDay
	}
	if end <= start {
		return Range{}, &InvalidRangeWidthError{Input: s, Minutes: end - start}
	}
	return Range{Start: start, End: end}, nil
}

// Format renders minute offsets in canonical display form. It is the exact
// inverse of Parse for every range Parse accepts.
func Format(startMinutes, endMinutes int) string {
	return formatClock(startMinutes) + separator + formatClock(endMinutes)
}

// Canonicalize parses s and renders it back, so differently spaced or cased
// inputs compare equal.
func Canonicalize(s string) (string, error) {
	r, err := Parse(s)
	if err != nil {
		return "", err
	}
	return r.String(), nil
}

// Overlaps reports whether two half-open ranges share at least one minute.
func Overlaps(a, b Range) bool {
	return a.Start < b.End && b.Start < a.End
}

// Merge joins overlapping ranges that start on the same unit grid and
// returns the result ordered by start. Identical ranges collapse into one.
// Ranges that only touch, or overlap off-grid, are kept apart.
func Merge(ranges []Range) []Range {
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	out := make([]Range, 0, len(sorted))
	last := make(map[int]int)
	for _, r := range sorted {
		grid := r.Start % SlotMinutes
		if i, ok := last[grid]; ok && Overlaps(out[i], r) {
			if r.End > out[i].End {
				out[i].End = r.End
			}
			continue
		}
		out = append(out, r)
		last[grid] = len(out) - 1
	}
	return out
}

// String implements fmt.Stringer using the display format.
func (r Range) String() string {
	return Format(r.Start, r.End)
}

// Minutes returns the width of r.
func (r Range) Minutes() int {
	return r.End - r.Start
}

// Split cuts r into consecutive SlotMinutes units starting at r.Start. Ranges
// that are not a whole number of units are rejected rather than truncated.
func (r Range) Split() ([]Range, error) {
	width := r.Minutes()
	if width <= 0 || width%SlotMinutes != 0 {
		return nil, &InvalidRangeWidthError{Input: r.String(), Minutes: width}
	}
	units := make([]Range, 0, width/SlotMinutes)
	for start := r.Start; start < r.End; start += SlotMinutes {
		units = append(units, Range{Start: start, End: start + SlotMinutes})
	}
	return units, nil
}

// IsUnit reports whether r is exactly one slot wide.
func (r Range) IsUnit() bool {
	return r.Minutes() == SlotMinutes
}

func parseClock(raw string) (int, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return 0, errors.New("empty time")
	}
	if !strings.HasSuffix(value, "AM") && !strings.HasSuffix(value, "PM") {
		return 0, errors.New("missing AM/PM marker")
	}
	// tolerate "8:00AM"
	if !strings.Contains(value, " ") {
		value = value[:len(value)-2] + " " + value[len(value)-2:]
	}
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	minutes %= minutesPerDay
	if minutes < 0 {
		minutes += minutesPerDay
	}
	t := time.Date(2000, time.January, 1, minutes/60, minutes%60, 0, 0, time.UTC)
	return t.Format(clockLayout)
}
