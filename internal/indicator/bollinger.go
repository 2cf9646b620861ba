package indicator

import (
	"fmt"
	"math"
)

// Rolling maintains a fixed window of recent prices and reports their mean and
// population standard deviation (ddof=0). Before the window fills, the
// statistics cover the samples seen so far (minimum one), so no value is
// ever undefined.
// Uses a preallocated circular buffer.
type Rolling struct {
	period int
	buf    []float64
	idx    int
	count  int
	sum    float64
}

// NewRolling creates a rolling window of the given period.
func NewRolling(period int) *Rolling {
	if period < 1 {
		period = 1
	}
	return &Rolling{period: period, buf: make([]float64, period)}
}

func (r *Rolling) Name() string { return fmt.Sprintf("SMA_%d", r.period) }

func (r *Rolling) Update(price float64) {
	if r.count >= r.period {
		r.sum -= r.buf[r.idx]
	}
	r.buf[r.idx] = price
	r.sum += price
	r.idx = (r.idx + 1) % r.period
	r.count++
}

func (r *Rolling) size() int {
	if r.count < r.period {
		return r.count
	}
	return r.period
}

// Value returns the rolling mean.
func (r *Rolling) Value() float64 {
	n := r.size()
	if n == 0 {
		return 0
	}
	return r.sum / float64(n)
}

// StdDev returns the rolling population standard deviation.
func (r *Rolling) StdDev() float64 {
	n := r.size()
	if n == 0 {
		return 0
	}
	mean := r.Value()
	var ss float64
	for i := 0; i < n; i++ {
		d := r.buf[i] - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n))
}

// RollingMean returns the clipped-window mean of series.
func RollingMean(series []float64, period int) Series {
	return Apply(NewRolling(period), series)
}

// RollingStd returns the clipped-window population standard deviation of series.
func RollingStd(series []float64, period int) Series {
	r := NewRolling(period)
	out := make(Series, len(series))
	for i, v := range series {
		r.Update(v)
		out[i] = r.StdDev()
	}
	return out
}

// BollingerResult holds the three index-aligned band series.
type BollingerResult struct {
	Upper  Series
	Middle Series
	Lower  Series
}

// ComputeBollinger returns mean ± k·std bands over a clipped rolling window.
func ComputeBollinger(closes []float64, period int, deviations float64) BollingerResult {
	r := NewRolling(period)
	res := BollingerResult{
		Upper:  make(Series, len(closes)),
		Middle: make(Series, len(closes)),
		Lower:  make(Series, len(closes)),
	}
	for i, c := range closes {
		r.Update(c)
		mean, std := r.Value(), r.StdDev()
		res.Middle[i] = mean
		res.Upper[i] = mean + deviations*std
		res.Lower[i] = mean - deviations*std
	}
	return res
}
