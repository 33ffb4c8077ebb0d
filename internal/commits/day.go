package commits

import "time"

// DateLayout is the calendar-day format used throughout
const DateLayout = "2006-01-02"

// Days are calendar days in one configured location. Event timestamps,
// "today" and the API day window are all derived from the same location so
// a commit at 23:30 local time never lands on the next day.
type Days struct {
	loc *time.Location
}

// NewDays returns day math for loc; nil means time.Local
func NewDays(loc *time.Location) Days {
	if loc == nil {
		loc = time.Local
	}
	return Days{loc: loc}
}

// Location returns the zone days are computed in
func (d Days) Location() *time.Location {
	return d.loc
}

// Date returns the calendar day containing t
func (d Days) Date(t time.Time) string {
	return t.In(d.loc).Format(DateLayout)
}

// Parse parses a YYYY-MM-DD day in the configured location
func (d Days) Parse(day string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, day, d.loc)
}

// Bounds returns the first and last second of day
func (d Days) Bounds(day time.Time) (start, end time.Time) {
	y, m, dd := day.In(d.loc).Date()
	start = time.Date(y, m, dd, 0, 0, 0, 0, d.loc)
	end = time.Date(y, m, dd, 23, 59, 59, 0, d.loc)
	return start, end
}

// AddDays shifts a calendar day by n. Noon anchoring keeps DST
// transitions from skipping or repeating a day.
func (d Days) AddDays(day string, n int) string {
	t, err := d.Parse(day)
	if err != nil {
		return day
	}
	y, m, dd := t.Date()
	return time.Date(y, m, dd+n, 12, 0, 0, 0, d.loc).Format(DateLayout)
}
