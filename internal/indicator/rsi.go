package indicator

import "strconv"

// rsiEpsilon keeps RS finite when there were no down-moves.
const rsiEpsilon = 1e-9

// DefaultRSIPeriod is the RSI period used by the trading loop.
const DefaultRSIPeriod = 7

// RSI calculates the Relative Strength Index using Wilder-style exponential
// smoothing (α = 1/period) of up- and down-moves.
// Update is O(1) per price.
//
// The first price has no delta; it contributes a zero up-move and a zero
// down-move, so the first value is 0.
type RSI struct {
	period    int
	alpha     float64
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 7 or 14).
func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{period: period, alpha: 1.0 / float64(period)}
}

func (r *RSI) Name() string { return "RSI_" + strconv.Itoa(r.period) }

func (r *RSI) Update(price float64) {
	r.count++

	delta := 0.0
	if r.count > 1 {
		delta = price - r.prevClose
	}
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count == 1 {
		r.avgGain = gain
		r.avgLoss = loss
	} else {
		r.avgGain += r.alpha * (gain - r.avgGain)
		r.avgLoss += r.alpha * (loss - r.avgLoss)
	}

	rs := r.avgGain / (r.avgLoss + rsiEpsilon)
	r.current = 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }

// ComputeRSI returns the RSI of series. Every value lies within [0, 100].
func ComputeRSI(series []float64, period int) Series {
	return Apply(NewRSI(period), series)
}
