package indicator

import "strconv"

// EMA calculates Exponential Moving Average.
// O(1) per update with no window storage. The first price seeds the
// average directly, so the output is defined from the first bar on.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with the given period.
// Periods below 1 are treated as 1 (no smoothing).
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(price float64) {
	e.count++
	if e.count == 1 {
		e.current = price
		return
	}
	// ema[i] = ema[i-1] + α·(price − ema[i-1])
	e.current += e.multiplier * (price - e.current)
}

func (e *EMA) Value() float64 { return e.current }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// ComputeEMA returns the EMA of series with smoothing factor 2/(period+1).
// Output length equals input length and ComputeEMA(s, 1) equals s.
func ComputeEMA(series []float64, period int) Series {
	return Apply(NewEMA(period), series)
}
