package strategy

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"trading-autobot/internal/model"
	"trading-autobot/internal/portfolio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// accelBars builds 30 bars on an accelerating trend (down when sign > 0)
// followed, when jump != 0, by one bar reversing by jump.
func accelBars(sign, jump float64) []model.Bar {
	t0 := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, 0, 31)
	for i := 0; i < 30; i++ {
		c := 100 - sign*0.01*float64(i*i)
		bars = append(bars, model.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c})
	}
	if jump != 0 {
		c := bars[29].Close + sign*jump
		bars = append(bars, model.Bar{Time: t0.Add(30 * time.Minute), Open: c, High: c, Low: c, Close: c})
	}
	return bars
}

func TestDetect_BullishCrossoverScalping(t *testing.T) {
	bars := accelBars(1, 4)
	require.Len(t, bars, 31)

	d := &Detector{}
	p := d.Detect(bars, ModeScalping)
	require.NotNil(t, p)

	last := bars[30].Close
	assert.Equal(t, model.ActionBuy, p.Action)
	assert.InDelta(t, last, p.Entry, 1e-12)
	assert.InDelta(t, last*1.0002, p.TakeProfit, 1e-9)
	assert.InDelta(t, last*0.9996, p.StopLoss, 1e-9)
	assert.Greater(t, p.RSI, RSIOversold)
	assert.Less(t, p.RSI, RSIOverbought)
	assert.Equal(t, bars[30].Time, p.BarTime)
	assert.NoError(t, p.Validate())
	assert.Zero(t, p.SuggestedVolume)
}

func TestDetect_BearishCrossoverNormal(t *testing.T) {
	bars := accelBars(-1, 4)

	p := (&Detector{}).Detect(bars, ModeNormal)
	require.NotNil(t, p)

	last := bars[30].Close
	assert.Equal(t, model.ActionSell, p.Action)
	assert.InDelta(t, last*0.9995, p.TakeProfit, 1e-9)
	assert.InDelta(t, last*1.0010, p.StopLoss, 1e-9)
	assert.NoError(t, p.Validate())
}

func TestDetect_UnknownModeUsesNormalBands(t *testing.T) {
	bars := accelBars(1, 4)
	p := (&Detector{}).Detect(bars, ParseMode("swing"))
	require.NotNil(t, p)

	last := bars[30].Close
	assert.Equal(t, Mode("swing"), p.Mode)
	assert.InDelta(t, last*1.0005, p.TakeProfit, 1e-9)
	assert.InDelta(t, last*0.9990, p.StopLoss, 1e-9)
}

func TestDetect_NoCrossover(t *testing.T) {
	assert.Nil(t, (&Detector{}).Detect(accelBars(1, 0), ModeScalping))
}

func TestDetect_InsufficientHistory(t *testing.T) {
	bars := accelBars(1, 4)
	d := &Detector{}

	for n := 0; n < MinBars; n++ {
		assert.Nil(t, d.Detect(bars[:n], ModeScalping), "n=%d", n)
	}

	_, err := d.Evaluate(bars[:29], ModeScalping)
	assert.True(t, errors.Is(err, model.ErrInsufficientHistory))
}

func TestDetect_SuggestedVolume(t *testing.T) {
	d := &Detector{
		Sizer:       portfolio.Sizer{MinVolume: 0.01},
		EquityHint:  1000,
		RiskPercent: 1,
		FXRate:      1,
		Instrument: model.InstrumentSpec{
			Point: 0.01, ContractSize: 100, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01,
		},
	}
	p := d.Detect(accelBars(1, 4), ModeScalping)
	require.NotNil(t, p)
	assert.Greater(t, p.SuggestedVolume, 0.0)
	assert.LessOrEqual(t, p.SuggestedVolume, portfolio.DefaultVolumeCeiling)
}

func TestRead_ExposesBands(t *testing.T) {
	r, err := (&Detector{}).Read(accelBars(1, 4))
	require.NoError(t, err)
	assert.LessOrEqual(t, r.BandLower, r.BandMiddle)
	assert.GreaterOrEqual(t, r.BandUpper, r.BandMiddle)
	assert.InDelta(t, r.MACD-r.Signal, r.Hist, 1e-9)
}

func TestCrossover_Rules(t *testing.T) {
	cases := []struct {
		name   string
		r      Reading
		want   model.Action
		wantOK bool
	}{
		{"bullish", Reading{PrevMACD: -1, PrevSignal: 0, MACD: 1, Signal: 0, RSI: 55}, model.ActionBuy, true},
		{"bullish overbought", Reading{PrevMACD: -1, PrevSignal: 0, MACD: 1, Signal: 0, RSI: 70}, "", false},
		{"bearish", Reading{PrevMACD: 1, PrevSignal: 0, MACD: -1, Signal: 0, RSI: 45}, model.ActionSell, true},
		{"bearish oversold", Reading{PrevMACD: 1, PrevSignal: 0, MACD: -1, Signal: 0, RSI: 30}, "", false},
		{"touch is not a cross", Reading{PrevMACD: 0, PrevSignal: 0, MACD: 1, Signal: 0, RSI: 50}, "", false},
		{"above both bars", Reading{PrevMACD: 2, PrevSignal: 1, MACD: 2, Signal: 1, RSI: 50}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Crossover(tc.r)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCrossover_MutuallyExclusive(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 5000; i++ {
		r := Reading{
			PrevMACD:   rng.NormFloat64(),
			PrevSignal: rng.NormFloat64(),
			MACD:       rng.NormFloat64(),
			Signal:     rng.NormFloat64(),
			RSI:        rng.Float64() * 100,
		}
		buy := r.PrevMACD < r.PrevSignal && r.MACD > r.Signal && r.RSI < RSIOverbought
		sell := r.PrevMACD > r.PrevSignal && r.MACD < r.Signal && r.RSI > RSIOversold
		require.False(t, buy && sell, "both conditions held for %+v", r)

		action, ok := Crossover(r)
		if ok {
			p := (&Detector{}).Propose(Reading{PrevMACD: r.PrevMACD, PrevSignal: r.PrevSignal, MACD: r.MACD, Signal: r.Signal, RSI: r.RSI, Close: 1 + rng.Float64()*100}, ModeScalping)
			require.NotNil(t, p)
			assert.Equal(t, action, p.Action)
			require.NoError(t, p.Validate())
		}
	}
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeScalping, ParseMode(""))
	assert.Equal(t, ModeNormal, ParseMode(" Normal "))
	assert.True(t, ParseMode("scalping").Known())
	assert.False(t, ParseMode("other").Known())
	assert.Equal(t, ModeNormal.Bands(), ParseMode("other").Bands())
}

func TestProposal_ValidateRejectsBadOrdering(t *testing.T) {
	p := &Proposal{Action: model.ActionBuy, Entry: 10, StopLoss: 11, TakeProfit: 12}
	assert.Error(t, p.Validate())

	p = &Proposal{Action: model.ActionSell, Entry: 10, StopLoss: 9, TakeProfit: 8}
	assert.Error(t, p.Validate())

	p = &Proposal{Action: "HOLD"}
	assert.Error(t, p.Validate())

	order := (&Proposal{Action: model.ActionBuy, StopLoss: 9, TakeProfit: 11}).Order("XAUUSD", 0.02, "autobot")
	assert.Equal(t, model.OrderRequest{Symbol: "XAUUSD", Action: model.ActionBuy, Volume: 0.02, StopLoss: 9, TakeProfit: 11, Comment: "autobot"}, order)
}
