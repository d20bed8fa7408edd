package domain

import "time"

// DepartmentQR is the daily entry point staff hand to walk-up guests. Its ID
// is what the printed code carries.
type DepartmentQR struct {
	ID           string
	DepartmentID string
	ValidUntil   time.Time
	IsActive     bool
	CreatedAt    time.Time
}

// ValidAt reports whether guests may still enter through the code at now.
func (q *DepartmentQR) ValidAt(now time.Time) bool {
	return q.IsActive && !now.After(q.ValidUntil)
}

// EndOfDay returns the last instant of now's calendar day in loc.
func EndOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
}
