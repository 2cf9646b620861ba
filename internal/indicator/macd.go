package indicator

import "fmt"

// Default MACD periods used by the trading loop. They are deliberately short:
// responsiveness is preferred over noise suppression.
const (
	DefaultMACDFast   = 3
	DefaultMACDSlow   = 8
	DefaultMACDSignal = 3
)

// MACD tracks the moving-average convergence/divergence oscillator:
// line = EMA(fast) − EMA(slow), signal = EMA(line), hist = line − signal.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	fastPeriod, slowPeriod, signalPeriod int

	line float64
	hist float64
}

// NewMACD creates a MACD with the given periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:         NewEMA(fast),
		slow:         NewEMA(slow),
		signal:       NewEMA(signal),
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Update(m.line)
	m.hist = m.line - m.signal.Value()
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Hist returns the histogram (line − signal).
func (m *MACD) Hist() float64 { return m.hist }

// MACDResult holds the three index-aligned MACD series.
type MACDResult struct {
	Line   Series
	Signal Series
	Hist   Series
}

// ComputeMACD runs MACD over closes and returns line, signal, and histogram.
func ComputeMACD(closes []float64, fast, slow, signal int) MACDResult {
	m := NewMACD(fast, slow, signal)
	res := MACDResult{
		Line:   make(Series, len(closes)),
		Signal: make(Series, len(closes)),
		Hist:   make(Series, len(closes)),
	}
	for i, c := range closes {
		m.Update(c)
		res.Line[i] = m.Value()
		res.Signal[i] = m.Signal()
		res.Hist[i] = m.Hist()
	}
	return res
}
