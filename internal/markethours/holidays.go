package markethours

import "time"

// Days the interbank FX market is effectively shut, by calendar date in UTC.
var fxHolidays = []struct {
	month time.Month
	day   int
}{
	{time.January, 1},   // New Year's Day
	{time.December, 25}, // Christmas
}

// IsHoliday returns true if the UTC date of t is a fixed FX holiday.
func IsHoliday(t time.Time) bool {
	u := t.UTC()
	for _, h := range fxHolidays {
		if u.Month() == h.month && u.Day() == h.day {
			return true
		}
	}
	return false
}
