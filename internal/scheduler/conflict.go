package scheduler

import (
	"fmt"
	"sort"
	"time"
)

// HoursPerDay bounds the hour marks a court can be booked for.
const HoursPerDay = 24

// DateLayout is the civil date format used for reservation dates.
const DateLayout = "2006-01-02"

// Booking is an existing hour-range claim on a court for one date.
type Booking struct {
	ID        string
	StartHour int
	EndHour   int
}

// Interval is a requested hour range on a civil date. Date is midnight in the
// venue location.
type Interval struct {
	Date      time.Time
	StartHour int
	EndHour   int
}

// Hours expands the interval into its individual hour marks.
func (i Interval) Hours() []int {
	return expand(i.StartHour, i.EndHour)
}

// Conflict names an existing booking overlapping the candidate and the hours
// they share.
type Conflict struct {
	WithBookingID string
	Hours         []int
}

// IntervalError reports why a requested interval is unusable.
type IntervalError struct {
	Field  string
	Reason string
}

func (e *IntervalError) Error() string {
	return fmt.Sprintf("scheduler: %s: %s", e.Field, e.Reason)
}

// HourSet marks occupied hours of a day.
type HourSet [HoursPerDay]bool

// Hours lists the occupied hours in ascending order.
func (s HourSet) Hours() []int {
	hours := make([]int, 0, HoursPerDay)
	for h, taken := range s {
		if taken {
			hours = append(hours, h)
		}
	}
	return hours
}

// Occupied unions the hour marks of all bookings. Hours outside the day are
// ignored.
func Occupied(bookings []Booking) HourSet {
	var set HourSet
	for _, b := range bookings {
		for _, h := range expand(b.StartHour, b.EndHour) {
			set[h] = true
		}
	}
	return set
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, &IntervalError{Field: "date", Reason: "must use YYYY-MM-DD"}
	}
	return date, nil
}

// ValidateInterval rejects inverted, out-of-range and past intervals. On the
// current date an hour that has already begun counts as past.
func ValidateInterval(candidate Interval, now time.Time) error {
	if candidate.StartHour < 0 || candidate.StartHour >= HoursPerDay {
		return &IntervalError{Field: "startHour", Reason: "must be between 0 and 23"}
	}
	if candidate.EndHour <= 0 || candidate.EndHour > HoursPerDay {
		return &IntervalError{Field: "endHour", Reason: "must be between 1 and 24"}
	}
	if candidate.EndHour <= candidate.StartHour {
		return &IntervalError{Field: "endHour", Reason: "must be after startHour"}
	}

	loc := candidate.Date.Location()
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	date := time.Date(candidate.Date.Year(), candidate.Date.Month(), candidate.Date.Day(), 0, 0, 0, 0, loc)

	switch {
	case date.Before(today):
		return &IntervalError{Field: "date", Reason: "is in the past"}
	case date.Equal(today):
		firstFree := local.Hour()
		if local.Minute() != 0 || local.Second() != 0 || local.Nanosecond() != 0 {
			firstFree++
		}
		if candidate.StartHour < firstFree {
			return &IntervalError{Field: "startHour", Reason: "is in the past"}
		}
	}
	return nil
}

// DetectConflicts returns every existing booking sharing at least one hour
// with the candidate, ordered by booking ID.
func DetectConflicts(existing []Booking, candidate Interval) []Conflict {
	var wanted HourSet
	for _, h := range candidate.Hours() {
		wanted[h] = true
	}

	var conflicts []Conflict
	for _, b := range existing {
		var shared []int
		for _, h := range expand(b.StartHour, b.EndHour) {
			if wanted[h] {
				shared = append(shared, h)
			}
		}
		if len(shared) > 0 {
			conflicts = append(conflicts, Conflict{WithBookingID: b.ID, Hours: shared})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].WithBookingID < conflicts[j].WithBookingID
	})
	return conflicts
}

func expand(start, end int) []int {
	if start < 0 {
		start = 0
	}
	if end > HoursPerDay {
		end = HoursPerDay
	}
	if end <= start {
		return nil
	}
	hours := make([]int, 0, end-start)
	for h := start; h < end; h++ {
		hours = append(hours, h)
	}
	return hours
}
