// Package tfbuilder resamples bars into a coarser timeframe. Each bar is
// merged into the forming bar of its bucket in O(1); when a bar arrives
// in a later bucket the forming bar is finalized and emitted.
package tfbuilder

import (
	"fmt"
	"strings"
	"time"

	"trading-autobot/internal/model"
)

var timeframes = map[string]time.Duration{
	"M1":  time.Minute,
	"M5":  5 * time.Minute,
	"M15": 15 * time.Minute,
	"M30": 30 * time.Minute,
	"H1":  time.Hour,
	"H4":  4 * time.Hour,
	"D1":  24 * time.Hour,
}

// ParseTimeframe maps a timeframe name such as "M5" or "H1" to its duration.
func ParseTimeframe(name string) (time.Duration, error) {
	tf, ok := timeframes[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe %q", name)
	}
	return tf, nil
}

// tfState holds the forming bar.
type tfState struct {
	bucket  int64 // bucket start = ts - ts%tf (Unix seconds)
	bar     model.Bar
	started bool
}

// Builder resamples bars into one timeframe. Not safe for concurrent use.
type Builder struct {
	tf    int64 // seconds
	state tfState

	// Bars whose bucket is behind the forming bucket by no more than
	// StaleTolerance are merged into the forming bar; older ones are
	// dropped. Zero drops every out-of-order bar.
	StaleTolerance time.Duration

	OnBar      func(b model.Bar) // called on every finalized bar (optional)
	OnStaleBar func()            // called when a stale bar is dropped (optional)
}

// New creates a builder for timeframe tf (whole seconds, at least 1s).
func New(tf time.Duration) *Builder {
	secs := int64(tf / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &Builder{tf: secs}
}

// Add merges bar into the forming bar. When bar opens a new bucket, the
// previous bar is returned finalized with ok set.
func (b *Builder) Add(bar model.Bar) (closed model.Bar, ok bool) {
	ts := bar.Time.Unix()
	bucket := ts - mod(ts, b.tf) // align to TF boundary
	st := &b.state

	if st.started && bucket < st.bucket {
		lag := time.Duration(st.bucket-bucket) * time.Second
		if lag > b.StaleTolerance {
			if b.OnStaleBar != nil {
				b.OnStaleBar()
			}
			return model.Bar{}, false
		}
		bucket = st.bucket
	}

	if st.started && bucket > st.bucket {
		closed, ok = st.bar, true
		if b.OnBar != nil {
			b.OnBar(closed)
		}
		st.started = false
	}

	if !st.started {
		*st = tfState{
			bucket:  bucket,
			started: true,
			bar: model.Bar{
				Time:   time.Unix(bucket, 0).UTC(),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: bar.Volume,
			},
		}
		return closed, ok
	}

	// Same bucket: merge OHLCV
	fb := &st.bar
	if bar.High > fb.High {
		fb.High = bar.High
	}
	if bar.Low < fb.Low {
		fb.Low = bar.Low
	}
	fb.Close = bar.Close
	fb.Volume += bar.Volume
	return closed, ok
}

// Flush finalizes and returns the forming bar, if any.
func (b *Builder) Flush() (model.Bar, bool) {
	if !b.state.started {
		return model.Bar{}, false
	}
	bar := b.state.bar
	b.state = tfState{}
	if b.OnBar != nil {
		b.OnBar(bar)
	}
	return bar, true
}

// Forming returns a copy of the bar currently being built.
func (b *Builder) Forming() (model.Bar, bool) {
	return b.state.bar, b.state.started
}

// Resample converts a time-ordered bar history into timeframe tf. The last
// bucket is included even if the input ends before it closes.
func Resample(bars []model.Bar, tf time.Duration) []model.Bar {
	b := New(tf)
	out := make([]model.Bar, 0, len(bars)/2+1)
	for _, bar := range bars {
		if closed, ok := b.Add(bar); ok {
			out = append(out, closed)
		}
	}
	if last, ok := b.Flush(); ok {
		out = append(out, last)
	}
	return out
}

func mod(a, n int64) int64 {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
