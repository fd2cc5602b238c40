package domain

import "time"

// Day truncates t to midnight UTC. Review dates are calendar days.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayPtr returns a pointer to Day(t).
func DayPtr(t time.Time) *time.Time {
	d := Day(t)
	return &d
}

// AddDays returns the day n days after t.
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}
