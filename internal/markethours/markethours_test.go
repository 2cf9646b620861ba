package markethours

import (
	"strings"
	"testing"
	"time"
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestIsMarketOpen(t *testing.T) {
	// 2024-03-03 is a Sunday.
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"sunday before open", utc(2024, 3, 3, 21, 59), false},
		{"sunday open", utc(2024, 3, 3, 22, 0), true},
		{"wednesday", utc(2024, 3, 6, 3, 0), true},
		{"friday before close", utc(2024, 3, 8, 21, 59), true},
		{"friday close", utc(2024, 3, 8, 22, 0), false},
		{"saturday", utc(2024, 3, 9, 12, 0), false},
		{"christmas", utc(2024, 12, 25, 12, 0), false},
	}
	for _, c := range cases {
		if got := IsMarketOpen(c.at); got != c.want {
			t.Errorf("%s: IsMarketOpen(%s) = %v, want %v", c.name, c.at, got, c.want)
		}
	}
}

func TestIsMarketOpen_OtherZone(t *testing.T) {
	// Saturday 01:00 in UTC+5 is Friday 20:00 UTC.
	zone := time.FixedZone("X", 5*3600)
	at := time.Date(2024, 3, 9, 1, 0, 0, 0, zone)
	if !IsMarketOpen(at) {
		t.Errorf("expected open at %s", at.UTC())
	}
}

func TestNextOpen(t *testing.T) {
	got := NextOpen(utc(2024, 3, 9, 12, 30))
	want := utc(2024, 3, 10, 22, 0)
	if !got.Equal(want) {
		t.Errorf("NextOpen = %s, want %s", got, want)
	}

	open := utc(2024, 3, 6, 3, 0)
	if got := NextOpen(open); !got.Equal(open) {
		t.Errorf("NextOpen on open market = %s, want %s", got, open)
	}
}

func TestNextClose(t *testing.T) {
	if got, want := NextClose(utc(2024, 3, 6, 3, 0)), utc(2024, 3, 8, 22, 0); !got.Equal(want) {
		t.Errorf("NextClose = %s, want %s", got, want)
	}
	if got, want := NextClose(utc(2024, 3, 8, 23, 0)), utc(2024, 3, 15, 22, 0); !got.Equal(want) {
		t.Errorf("NextClose after close = %s, want %s", got, want)
	}
}

func TestStatusString(t *testing.T) {
	if s := StatusString(utc(2024, 3, 9, 12, 0)); !strings.HasPrefix(s, "Market Closed, opens Sun 22:00") {
		t.Errorf("unexpected status %q", s)
	}
	if s := StatusString(utc(2024, 3, 8, 20, 0)); s != "Market Open, weekly close in 2h0m" {
		t.Errorf("unexpected status %q", s)
	}
}
