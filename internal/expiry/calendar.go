// Package expiry computes NSE monthly expiry dates for index derivatives
// and classifies the length of an expiry-to-expiry cycle.
package expiry

import "time"

// NSE moved index monthly expiry from the last Thursday of the month to the
// last Tuesday starting with the September 2025 cycle.
var ruleChange = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

// MonthCycle classifies the gap between consecutive monthly expiries.
type MonthCycle string

const (
	// CycleShort is a four-week month (gap of 28 days or fewer).
	CycleShort MonthCycle = "4W"
	// CycleLong is a five-week month (gap of more than 28 days).
	CycleLong MonthCycle = "5W"
)

// Classify returns the cycle length for the period between two consecutive
// monthly expiries.
func Classify(current, next time.Time) MonthCycle {
	gap := int(midnight(next).Sub(midnight(current)).Hours() / 24)
	if gap > 28 {
		return CycleLong
	}
	return CycleShort
}

// Calendar memoizes monthly expiry dates. It is not safe for concurrent use;
// each strategy instance owns its own calendar.
type Calendar struct {
	cache map[int]time.Time // keyed by year*100+month
}

// NewCalendar returns an empty calendar.
func NewCalendar() *Calendar {
	return &Calendar{cache: make(map[int]time.Time)}
}

// MonthlyExpiry returns the expiry date (at midnight UTC) for the given
// year and month.
func (c *Calendar) MonthlyExpiry(year int, month time.Month) time.Time {
	key := year*100 + int(month)
	if d, ok := c.cache[key]; ok {
		return d
	}

	weekday := time.Thursday
	if !time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Before(ruleChange) {
		weekday = time.Tuesday
	}
	d := lastWeekday(year, month, weekday)
	c.cache[key] = d
	return d
}

// CurrentExpiry returns the expiry of the month containing ref.
func (c *Calendar) CurrentExpiry(ref time.Time) time.Time {
	return c.MonthlyExpiry(ref.Year(), ref.Month())
}

// NextExpiry returns the expiry of the month after the one containing ref.
func (c *Calendar) NextExpiry(ref time.Time) time.Time {
	year, month := ref.Year(), ref.Month()
	if month == time.December {
		return c.MonthlyExpiry(year+1, time.January)
	}
	return c.MonthlyExpiry(year, month+1)
}

// PreviousExpiry returns the expiry of the month before the one containing ref.
func (c *Calendar) PreviousExpiry(ref time.Time) time.Time {
	year, month := ref.Year(), ref.Month()
	if month == time.January {
		return c.MonthlyExpiry(year-1, time.December)
	}
	return c.MonthlyExpiry(year, month-1)
}

// IsExpiryDay reports whether d falls on its month's expiry date.
func (c *Calendar) IsExpiryDay(d time.Time) bool {
	return sameDate(d, c.CurrentExpiry(d))
}

// DaysToExpiry returns the calendar days from ref to its month's expiry.
// Negative once the expiry has passed.
func (c *Calendar) DaysToExpiry(ref time.Time) int {
	return int(midnight(c.CurrentExpiry(ref)).Sub(midnight(ref)).Hours() / 24)
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	// Day zero of the next month is the last day of this one.
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	back := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -back)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
