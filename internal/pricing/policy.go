// Package pricing computes court rental prices from a per-weekday rate table.
package pricing

import (
	"strings"
	"time"
)

// DefaultTableID identifies the rate table courts fall back to.
const DefaultTableID = "standard"

// RateTable holds hourly court rates in VND. WeekdayRates overrides
// DefaultRate for specific days, e.g. a Sunday surcharge.
type RateTable struct {
	ID           string
	DefaultRate  int64
	WeekdayRates map[time.Weekday]int64
}

// NewRateTable builds the two-tier table used by venues: one rate for Sunday
// and another for every other day.
func NewRateTable(id string, normal, sunday int64) RateTable {
	return RateTable{
		ID:           id,
		DefaultRate:  normal,
		WeekdayRates: map[time.Weekday]int64{time.Sunday: sunday},
	}
}

// RateFor returns the hourly rate applying to date.
func (t RateTable) RateFor(date time.Time) int64 {
	if rate, ok := t.WeekdayRates[date.Weekday()]; ok {
		return rate
	}
	return t.DefaultRate
}

// Price returns hours x rate(date) for the hour interval [startHour, endHour).
// Callers reject inverted intervals before pricing; a non-positive duration
// prices at zero.
func (t RateTable) Price(date time.Time, startHour, endHour int) int64 {
	hours := endHour - startHour
	if hours <= 0 {
		return 0
	}
	return int64(hours) * t.RateFor(date)
}

// PriceSpan prices a usage span measured in wall-clock time. The span is
// billed in started hours on the rate of the day it began.
func (t RateTable) PriceSpan(start, end time.Time) int64 {
	return int64(HoursBetween(start, end)) * t.RateFor(start)
}

// HoursBetween counts started hours between start and end, minimum one.
func HoursBetween(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 1
	}
	hours := int(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours
}

// WeekdayKey returns the storage key used for a weekday override.
func WeekdayKey(day time.Weekday) string {
	return strings.ToLower(day.String())
}

// ParseWeekdayKey is the inverse of WeekdayKey.
func ParseWeekdayKey(key string) (time.Weekday, bool) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if WeekdayKey(day) == strings.ToLower(strings.TrimSpace(key)) {
			return day, true
		}
	}
	return time.Sunday, false
}
