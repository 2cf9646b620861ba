// Package markethours models the FX trading week: the market opens Sunday
// 22:00 UTC and closes Friday 22:00 UTC, with fixed holidays shut all day.
package markethours

import (
	"fmt"
	"time"
)

// Weekly session boundaries in UTC.
const (
	OpenWeekday  = time.Sunday
	CloseWeekday = time.Friday
	BoundaryHour = 22
)

// IsMarketOpen returns true if t falls inside the FX week and is not a
// holiday.
func IsMarketOpen(t time.Time) bool {
	u := t.UTC()
	if IsHoliday(u) {
		return false
	}
	switch u.Weekday() {
	case time.Saturday:
		return false
	case OpenWeekday:
		return u.Hour() >= BoundaryHour
	case CloseWeekday:
		return u.Hour() < BoundaryHour
	default:
		return true
	}
}

// NextOpen returns the next instant the market is open, or t itself when
// it already is. Resolution is one hour.
func NextOpen(t time.Time) time.Time {
	if IsMarketOpen(t) {
		return t
	}
	u := t.UTC().Truncate(time.Hour).Add(time.Hour)
	for i := 0; i < 24*10; i++ {
		if IsMarketOpen(u) {
			return u
		}
		u = u.Add(time.Hour)
	}
	return u
}

// NextClose returns the next weekly close (Friday 22:00 UTC) at or after t.
func NextClose(t time.Time) time.Time {
	u := t.UTC()
	days := (int(CloseWeekday) - int(u.Weekday()) + 7) % 7
	cl := time.Date(u.Year(), u.Month(), u.Day()+days, BoundaryHour, 0, 0, 0, time.UTC)
	if cl.Before(u) {
		cl = cl.AddDate(0, 0, 7)
	}
	return cl
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open, weekly close in %s", fmtDur(NextClose(t).Sub(t)))
	}
	next := NextOpen(t).UTC()
	return fmt.Sprintf("Market Closed, opens %s %s UTC (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
