package portfolio

import (
	"fmt"
	"math"

	"trading-autobot/internal/model"

	"github.com/shopspring/decimal"
)

// DefaultVolumeCeiling is the absolute lot cap applied to every computed
// size. It protects small accounts from oversized positions caused by bad
// instrument parameters.
const DefaultVolumeCeiling = 0.05

// DefaultMinVolume is used when no configured minimum is given.
const DefaultMinVolume = 0.01

// Fallbacks used when the terminal does not report instrument economics.
const (
	fallbackPoint        = 0.00001
	fallbackContractSize = 100000.0
	fallbackVolumeStep   = 0.01
	fallbackVolumeMax    = 100.0
)

// Sizer converts a risk budget and a stop distance into an order volume.
type Sizer struct {
	MinVolume float64 // configured floor, lots
	Ceiling   float64 // absolute cap, lots; 0 means DefaultVolumeCeiling
}

// SizingResult is the outcome of a sizing call. Volume is always > 0.
// Warnings lists recoverable conditions (ErrDegenerateStop,
// ErrInstrumentMetadataMissing) that made the sizer fall back.
type SizingResult struct {
	Volume       float64 `json:"volume"`
	RiskAmount   float64 `json:"risk_amount"`
	StopDistance float64 `json:"stop_distance"`
	PipValue     float64 `json:"pip_value"`
	Warnings     []error `json:"-"`
}

// volumeBounds are the effective quantization and clamp limits for one call.
type volumeBounds struct {
	step  float64
	floor float64 // max(instrument min, configured min)
	max   float64
}

// Size computes the execution volume for risking riskPercent of equity
// between entry and stop. Pip value comes from tick economics when known,
// otherwise from contract size × point.
func (s Sizer) Size(equity, riskPercent, entry, stop float64, spec model.InstrumentSpec) SizingResult {
	return s.size(equity, riskPercent, entry, stop, spec, 1)
}

// SizeInAccountCurrency is Size for accounts denominated in a currency other
// than the instrument's quote currency: the pip value is multiplied by
// fxRate (quote → account) before the same clamps apply.
func (s Sizer) SizeInAccountCurrency(equity, riskPercent, entry, stop float64, spec model.InstrumentSpec, fxRate float64) SizingResult {
	if fxRate <= 0 {
		fxRate = 1
	}
	return s.size(equity, riskPercent, entry, stop, spec, fxRate)
}

func (s Sizer) size(equity, riskPercent, entry, stop float64, spec model.InstrumentSpec, fxRate float64) SizingResult {
	res := SizingResult{}
	b := s.bounds(spec, &res.Warnings)

	res.RiskAmount = equity * (riskPercent / 100.0)
	res.StopDistance = math.Abs(entry - stop)
	if res.StopDistance == 0 {
		res.Warnings = append(res.Warnings, fmt.Errorf("entry=%.5f stop=%.5f: %w", entry, stop, model.ErrDegenerateStop))
		res.Volume = s.finish(b.floor, b)
		return res
	}

	res.PipValue = pipValue(spec, &res.Warnings) * fxRate
	valuePerLot := res.StopDistance * res.PipValue
	if valuePerLot == 0 {
		res.Volume = s.finish(b.floor, b)
		return res
	}

	raw := res.RiskAmount / valuePerLot
	switch {
	case math.IsNaN(raw):
		raw = 0
	case math.IsInf(raw, 1):
		raw = b.max
	case math.IsInf(raw, -1):
		raw = 0
	}

	res.Volume = s.finish(quantize(raw, b.step), b)
	return res
}

// finish clamps a quantized volume into [floor, max], applies the safety
// ceiling, and rounds to two decimals. The floor wins over the ceiling: a
// broker will not fill below its minimum.
func (s Sizer) finish(volume float64, b volumeBounds) float64 {
	volume = math.Max(volume, b.floor)
	volume = math.Min(volume, b.max)
	volume = math.Min(volume, s.ceiling())
	if volume < b.floor {
		volume = b.floor
	}

	rounded := decimal.NewFromFloat(volume).Round(2).InexactFloat64()
	if rounded <= 0 {
		rounded = DefaultMinVolume
	}
	return rounded
}

func (s Sizer) ceiling() float64 {
	if s.Ceiling <= 0 {
		return DefaultVolumeCeiling
	}
	return s.Ceiling
}

func (s Sizer) minVolume() float64 {
	if s.MinVolume <= 0 {
		return DefaultMinVolume
	}
	return s.MinVolume
}

func (s Sizer) bounds(spec model.InstrumentSpec, warnings *[]error) volumeBounds {
	b := volumeBounds{step: spec.VolumeStep, max: spec.VolumeMax}
	if b.step <= 0 {
		b.step = fallbackVolumeStep
		*warnings = append(*warnings, fmt.Errorf("volume step unknown, using %.2f: %w", b.step, model.ErrInstrumentMetadataMissing))
	}
	if b.max <= 0 {
		b.max = fallbackVolumeMax
		*warnings = append(*warnings, fmt.Errorf("volume max unknown, using %.0f: %w", b.max, model.ErrInstrumentMetadataMissing))
	}
	b.floor = math.Max(spec.VolumeMin, s.minVolume())
	return b
}

// pipValue returns the account value of a one-unit price move per lot.
func pipValue(spec model.InstrumentSpec, warnings *[]error) float64 {
	if spec.TickValue > 0 && spec.TickSize > 0 {
		return spec.TickValue / spec.TickSize
	}

	point := spec.Point
	if point <= 0 {
		point = fallbackPoint
		*warnings = append(*warnings, fmt.Errorf("point unknown, using %g: %w", point, model.ErrInstrumentMetadataMissing))
	}
	contract := spec.ContractSize
	if contract <= 0 {
		contract = fallbackContractSize
		*warnings = append(*warnings, fmt.Errorf("contract size unknown, using %.0f: %w", contract, model.ErrInstrumentMetadataMissing))
	}
	return contract * point
}

// quantize floors raw down to a whole number of steps. decimal keeps
// 0.07/0.01 from landing on 6.999… steps.
func quantize(raw, step float64) float64 {
	if raw <= 0 {
		return 0
	}
	d := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(raw).Div(d).Floor().Mul(d).InexactFloat64()
}
