package clock

import (
	"time"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
)

// Clock abstracts "now" so day-boundary behavior is testable.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T. Tests move it by reassigning T.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// LogicalDay converts an instant to the logical day key for a user. Activity
// before cutoffHour local time attributes to the previous calendar date, so
// a 01:30 submission still counts for "yesterday".
//
// Unknown timezones fall back to UTC; the function is total.
func LogicalDay(instant time.Time, timezone string, cutoffHour int) internal.DayKey {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	local := instant.In(loc)
	if local.Hour() < cutoffHour {
		local = local.AddDate(0, 0, -1)
	}
	return internal.NewDayKey(local)
}

// PeriodStart returns the first day of the calendar month containing the
// given instant in the user's timezone; shields replenish on this boundary.
func PeriodStart(instant time.Time, timezone string) internal.DayKey {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	local := instant.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return internal.NewDayKey(first)
}
