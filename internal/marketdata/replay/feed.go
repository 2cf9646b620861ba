// Package replay serves historical bars from a CSV file as if they were
// arriving live. The loop driver advances the feed one bar per tick, so a
// backtest runs through exactly the same decision path as a live session.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"trading-autobot/internal/model"
)

// ErrExhausted is returned by Advance once every bar has been served.
var ErrExhausted = errors.New("replay exhausted")

// Feed is a BarSource over an in-memory bar history with a replay cursor.
// Only bars before the cursor are visible to GetBars.
type Feed struct {
	symbol string
	bars   []model.Bar
	cursor int
}

// timeLayouts accepted in the time column, besides unix seconds.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006-01-02",
}

// Load reads a CSV file of bars for symbol. warmup bars are visible before
// the first Advance.
func Load(path, symbol string, warmup int) (*Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("replay: %s: %w", path, err)
	}
	log.Printf("[replay] loaded %d bars for %s from %s", len(bars), symbol, path)
	return NewFeed(symbol, bars, warmup), nil
}

// NewFeed wraps bars (sorted by time here) in a Feed.
func NewFeed(symbol string, bars []model.Bar, warmup int) *Feed {
	sorted := make([]model.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	if warmup < 0 {
		warmup = 0
	}
	if warmup > len(sorted) {
		warmup = len(sorted)
	}
	return &Feed{symbol: symbol, bars: sorted, cursor: warmup}
}

// Parse reads bars from CSV with a header row. Recognized columns are
// time (or timestamp, date), open, high, low, close and volume (or
// tick_volume). Column names are case-insensitive; unknown columns are
// ignored.
func Parse(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "timestamp", "date", "datetime":
			name = "time"
		case "tick_volume", "vol":
			name = "volume"
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, need := range []string{"time", "open", "high", "low", "close"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("missing column %q", need)
		}
	}

	var bars []model.Bar
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		b, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseRecord(rec []string, cols map[string]int) (model.Bar, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var b model.Bar
	ts, err := parseTime(field("time"))
	if err != nil {
		return b, err
	}
	b.Time = ts

	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
	} {
		v, err := strconv.ParseFloat(field(p.name), 64)
		if err != nil {
			return b, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = v
	}

	if s := field("volume"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return b, fmt.Errorf("volume: %w", err)
		}
		b.Volume = v
	}
	return b, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty time")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// GetBars returns the last count visible bars, most recent last.
func (f *Feed) GetBars(_ context.Context, symbol, _ string, count int) ([]model.Bar, error) {
	if f.symbol != "" && !strings.EqualFold(symbol, f.symbol) {
		return nil, fmt.Errorf("replay: feed serves %s, asked for %s: %w", f.symbol, symbol, model.ErrDataUnavailable)
	}
	if count <= 0 || f.cursor < count {
		return nil, fmt.Errorf("replay: %d bars visible, %d requested: %w", f.cursor, count, model.ErrDataUnavailable)
	}
	out := make([]model.Bar, count)
	copy(out, f.bars[f.cursor-count:f.cursor])
	return out, nil
}

// Advance reveals the next bar. It returns ErrExhausted when none is left.
func (f *Feed) Advance() error {
	if f.cursor >= len(f.bars) {
		return ErrExhausted
	}
	f.cursor++
	return nil
}

// Latest returns the most recent visible bar.
func (f *Feed) Latest() (model.Bar, bool) {
	return model.Last(f.bars[:f.cursor])
}

// Len is the total number of bars in the feed.
func (f *Feed) Len() int { return len(f.bars) }

// Remaining is the number of bars not yet revealed.
func (f *Feed) Remaining() int { return len(f.bars) - f.cursor }
