// Package clock is the process time source. All calendar arithmetic in the
// ingest core is UTC calendar-day based and flows through this seam so tests
// can pin "today"
package clock

import "time"

// Clock supplies the current instant and today's UTC calendar date
type Clock interface {
	Now() time.Time
	TodayUTC() time.Time
}

// System is the wall clock
type System struct{}

// Now returns the current UTC instant
func (System) Now() time.Time { return time.Now().UTC() }

// TodayUTC returns today's date at 00:00:00 UTC
func (System) TodayUTC() time.Time { return DayUTC(time.Now()) }

// DayUTC truncates t to its UTC calendar date at midnight
func DayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n calendar days after d (n may be negative)
func AddDays(d time.Time, n int) time.Time { return d.AddDate(0, 0, n) }

// DaysBetween returns the inclusive day count of [start, end]; 0 when end < start
func DaysBetween(start, end time.Time) int {
	s, e := DayUTC(start), DayUTC(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// Fixed is a Clock pinned to one instant, for tests
type Fixed struct{ T time.Time }

// Now returns the pinned instant
func (f Fixed) Now() time.Time { return f.T.UTC() }

// TodayUTC returns the pinned instant's UTC date
func (f Fixed) TodayUTC() time.Time { return DayUTC(f.T) }
