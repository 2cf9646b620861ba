package portfolio

import (
	"errors"
	"math/rand"
	"testing"

	"trading-autobot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goldSpec() model.InstrumentSpec {
	return model.InstrumentSpec{
		Symbol:       "XAUUSD",
		Point:        0.01,
		ContractSize: 100,
		VolumeMin:    0.01,
		VolumeMax:    100,
		VolumeStep:   0.01,
	}
}

func hasWarning(res SizingResult, target error) bool {
	for _, w := range res.Warnings {
		if errors.Is(w, target) {
			return true
		}
	}
	return false
}

func TestSize_GoldScenarioWithinBounds(t *testing.T) {
	s := Sizer{MinVolume: 0.01}
	res := s.Size(1000, 0.5, 2000.00, 1995.00, goldSpec())

	assert.InDelta(t, 5.0, res.RiskAmount, 1e-9)
	assert.InDelta(t, 5.0, res.StopDistance, 1e-9)
	assert.InDelta(t, 1.0, res.PipValue, 1e-9)
	// raw volume is 1 lot; the safety ceiling caps it.
	assert.GreaterOrEqual(t, res.Volume, 0.01)
	assert.LessOrEqual(t, res.Volume, DefaultVolumeCeiling)
	assert.InDelta(t, 0.05, res.Volume, 1e-9)
	assert.Empty(t, res.Warnings)
}

func TestSize_BelowCeilingQuantizesDown(t *testing.T) {
	s := Sizer{MinVolume: 0.01}

	res := s.Size(100, 1, 2000, 1950, goldSpec())
	assert.InDelta(t, 0.02, res.Volume, 1e-9)

	// 2.99 / 100 = 0.0299 lots floors to 0.02
	res = s.Size(299, 1, 2000, 1900, goldSpec())
	assert.InDelta(t, 0.02, res.Volume, 1e-9)
}

func TestSize_TickEconomicsPreferred(t *testing.T) {
	spec := goldSpec()
	spec.TickValue = 1
	spec.TickSize = 0.01

	res := Sizer{}.Size(1000, 1, 2000, 1990, spec)
	assert.InDelta(t, 100.0, res.PipValue, 1e-9)
	// 10 / (10*100) = 0.01
	assert.InDelta(t, 0.01, res.Volume, 1e-9)
}

func TestSize_DegenerateStopFloors(t *testing.T) {
	s := Sizer{MinVolume: 0.02}
	res := s.Size(1000, 1, 2000, 2000, goldSpec())

	assert.InDelta(t, 0.02, res.Volume, 1e-9)
	assert.True(t, hasWarning(res, model.ErrDegenerateStop))
}

func TestSize_MissingMetadataUsesFallbacks(t *testing.T) {
	res := Sizer{}.Size(1000, 0.1, 1.1000, 1.0950, model.InstrumentSpec{})

	require.True(t, hasWarning(res, model.ErrInstrumentMetadataMissing))
	// fallback pip value is 100000 * 0.00001
	assert.InDelta(t, 1.0, res.PipValue, 1e-9)
	assert.Greater(t, res.Volume, 0.0)
	assert.LessOrEqual(t, res.Volume, DefaultVolumeCeiling)
}

func TestSize_InstrumentMinimumBeatsCeiling(t *testing.T) {
	spec := goldSpec()
	spec.VolumeMin = 0.1

	res := Sizer{}.Size(10, 0.1, 2000, 1000, spec)
	assert.InDelta(t, 0.1, res.Volume, 1e-9)
}

func TestSize_CustomCeiling(t *testing.T) {
	res := Sizer{Ceiling: 0.5}.Size(1000, 0.5, 2000, 1995, goldSpec())
	assert.InDelta(t, 0.5, res.Volume, 1e-9)
}

func TestSizeInAccountCurrency_ScalesPipValue(t *testing.T) {
	s := Sizer{}
	base := s.Size(1000, 0.1, 2000, 1975, goldSpec())
	conv := s.SizeInAccountCurrency(1000, 0.1, 2000, 1975, goldSpec(), 2)

	assert.InDelta(t, 0.04, base.Volume, 1e-9)
	assert.InDelta(t, 0.02, conv.Volume, 1e-9)
	assert.InDelta(t, 2*base.PipValue, conv.PipValue, 1e-9)

	// non-positive rate is treated as 1
	same := s.SizeInAccountCurrency(1000, 0.1, 2000, 1975, goldSpec(), 0)
	assert.InDelta(t, base.Volume, same.Volume, 1e-9)
}

func TestSize_NeverOutOfBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := Sizer{MinVolume: 0.01}
	spec := goldSpec()

	for i := 0; i < 2000; i++ {
		equity := rng.Float64() * 1e6
		risk := rng.Float64() * 10
		entry := 1 + rng.Float64()*3000
		stop := entry
		if i%5 != 0 {
			stop = entry - (rng.Float64()-0.5)*entry*0.1
		}

		res := s.Size(equity, risk, entry, stop, spec)
		if res.Volume < 0.01 || res.Volume > DefaultVolumeCeiling {
			t.Fatalf("volume %v out of bounds (equity=%v risk=%v entry=%v stop=%v)", res.Volume, equity, risk, entry, stop)
		}
	}
}

func TestSize_ZeroEquityStillPositive(t *testing.T) {
	res := Sizer{}.Size(0, 1, 2000, 1990, goldSpec())
	assert.InDelta(t, 0.01, res.Volume, 1e-9)
}
