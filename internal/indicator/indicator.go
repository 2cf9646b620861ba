// Package indicator provides technical indicator calculations over price series.
//
// Every indicator is a small O(1) state machine fed one price at a time
// (Update/Value). The batch helpers (EMA, MACD, RSI, Bollinger) run those
// state machines over a whole close series and return index-aligned Series of
// the same length as the input: there is no warm-up truncation, early values
// are computed from whatever history is available.
package indicator

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA_9", "RSI_7").
	Name() string

	// Update feeds the next price and recalculates.
	Update(price float64)

	// Value returns the current calculated value.
	Value() float64
}

// Series is an ordered sequence of values, one per input bar.
type Series []float64

// Last returns the most recent value, or 0 for an empty series.
func (s Series) Last() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// Prev returns the value before the most recent one, or 0 when the series
// has fewer than two values.
func (s Series) Prev() float64 {
	if len(s) < 2 {
		return 0
	}
	return s[len(s)-2]
}

// Sub returns a - b element-wise. Series compared must be aligned; when the
// lengths differ the result covers the shorter prefix.
func Sub(a, b Series) Series {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make(Series, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] - b[i]
	}
	return out
}

// Apply runs ind over series and records its value after every update.
func Apply(ind Indicator, series []float64) Series {
	out := make(Series, len(series))
	for i, v := range series {
		ind.Update(v)
		out[i] = ind.Value()
	}
	return out
}
