package series

import (
	"math"
	"time"
)

const (
	// DateLayout is the ISO calendar day used as aggregate key
	DateLayout = "2006-01-02"
	// DayLabelLayout is the chart label for one calendar day
	DayLabelLayout = "02/01"
	// TimeLabelLayout is the chart label for one raw sample
	TimeLabelLayout = "15:04"
)

// OrderRange returns from and to with the earlier one first
func OrderRange(from, to time.Time) (time.Time, time.Time) {
	if to.Before(from) {
		return to, from
	}
	return from, to
}

// Days returns every calendar day from..to inclusive in loc, each at midnight.
// The time of day of both endpoints is ignored.
func Days(from, to time.Time, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	last := time.Date(ty, tm, td, 0, 0, 0, 0, loc)

	var days []time.Time
	for i := 0; ; i++ {
		// stepping the day field keeps midnight across DST changes
		day := time.Date(fy, fm, fd+i, 0, 0, 0, 0, loc)
		if day.After(last) {
			return days
		}
		days = append(days, day)
	}
}

// ISODate formats t as YYYY-MM-DD in loc
func ISODate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DayRange returns the first and last instant of the calendar days
// from..to in loc, the bounds of a "whole days" query
func DayRange(from, to time.Time, loc *time.Location) (time.Time, time.Time) {
	days := Days(from, to, loc)
	if len(days) == 0 {
		return from, to
	}
	last := days[len(days)-1]
	return days[0], last.AddDate(0, 0, 1).Add(-time.Millisecond)
}
