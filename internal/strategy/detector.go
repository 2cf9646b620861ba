package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"trading-autobot/internal/indicator"
	"trading-autobot/internal/model"
	"trading-autobot/internal/portfolio"
)

// MinBars is the shortest history the detector evaluates.
const MinBars = 30

// RSI filter thresholds.
const (
	RSIOverbought = 70.0
	RSIOversold   = 30.0
)

// Reading is the indicator state at the latest bar.
type Reading struct {
	Time       time.Time `json:"time"`
	Close      float64   `json:"close"`
	MACD       float64   `json:"macd"`
	Signal     float64   `json:"signal"`
	Hist       float64   `json:"hist"`
	PrevMACD   float64   `json:"prev_macd"`
	PrevSignal float64   `json:"prev_signal"`
	RSI        float64   `json:"rsi"`
	BandUpper  float64   `json:"band_upper"`
	BandMiddle float64   `json:"band_middle"`
	BandLower  float64   `json:"band_lower"`
}

// Detector evaluates MACD crossovers filtered by RSI.
// The zero value is usable and trades with the default periods.
type Detector struct {
	Fast, Slow, SignalPeriod int
	RSIPeriod                int
	BandPeriod               int
	BandDeviations           float64

	// Suggested-volume estimate. EquityHint <= 0 leaves it unset.
	Sizer       portfolio.Sizer
	EquityHint  float64
	RiskPercent float64
	FXRate      float64
	Instrument  model.InstrumentSpec
}

func (d *Detector) periods() (fast, slow, signal, rsi int) {
	fast, slow, signal, rsi = d.Fast, d.Slow, d.SignalPeriod, d.RSIPeriod
	if fast <= 0 {
		fast = indicator.DefaultMACDFast
	}
	if slow <= 0 {
		slow = indicator.DefaultMACDSlow
	}
	if signal <= 0 {
		signal = indicator.DefaultMACDSignal
	}
	if rsi <= 0 {
		rsi = indicator.DefaultRSIPeriod
	}
	return
}

// Read computes the indicator state at the latest bar.
// It returns ErrInsufficientHistory when fewer than MinBars bars are given.
func (d *Detector) Read(bars []model.Bar) (Reading, error) {
	if len(bars) < MinBars {
		return Reading{}, fmt.Errorf("have %d bars, need %d: %w", len(bars), MinBars, model.ErrInsufficientHistory)
	}

	fast, slow, signal, rsiPeriod := d.periods()
	closes := model.Closes(bars)
	macd := indicator.ComputeMACD(closes, fast, slow, signal)
	rsi := indicator.ComputeRSI(closes, rsiPeriod)

	bandPeriod, k := d.BandPeriod, d.BandDeviations
	if bandPeriod <= 0 {
		bandPeriod = 20
	}
	if k <= 0 {
		k = 2
	}
	bb := indicator.ComputeBollinger(closes, bandPeriod, k)

	last := bars[len(bars)-1]
	return Reading{
		Time:       last.Time,
		Close:      last.Close,
		MACD:       macd.Line.Last(),
		Signal:     macd.Signal.Last(),
		Hist:       macd.Hist.Last(),
		PrevMACD:   macd.Line.Prev(),
		PrevSignal: macd.Signal.Prev(),
		RSI:        rsi.Last(),
		BandUpper:  bb.Upper.Last(),
		BandMiddle: bb.Middle.Last(),
		BandLower:  bb.Lower.Last(),
	}, nil
}

// Crossover classifies a reading. ok is false when neither a bullish
// crossover below overbought nor a bearish crossover above oversold
// occurred. The two conditions need opposite crossings, so at most one
// holds.
func Crossover(r Reading) (action model.Action, ok bool) {
	switch {
	case r.PrevMACD < r.PrevSignal && r.MACD > r.Signal && r.RSI < RSIOverbought:
		return model.ActionBuy, true
	case r.PrevMACD > r.PrevSignal && r.MACD < r.Signal && r.RSI > RSIOversold:
		return model.ActionSell, true
	}
	return "", false
}

// Evaluate returns a proposal for the latest bar, nil when there is no
// signal, or an error wrapping ErrInsufficientHistory.
func (d *Detector) Evaluate(bars []model.Bar, mode Mode) (*Proposal, error) {
	r, err := d.Read(bars)
	if err != nil {
		return nil, err
	}
	return d.Propose(r, mode), nil
}

// Detect is Evaluate with insufficient history reported as no signal.
func (d *Detector) Detect(bars []model.Bar, mode Mode) *Proposal {
	p, err := d.Evaluate(bars, mode)
	if err != nil {
		return nil
	}
	return p
}

// Propose builds a proposal from an already computed reading, or nil when
// the reading holds no crossover.
func (d *Detector) Propose(r Reading, mode Mode) *Proposal {
	action, ok := Crossover(r)
	if !ok {
		return nil
	}

	sl, tp := mode.Levels(action, r.Close)
	p := &Proposal{
		Action:     action,
		Entry:      r.Close,
		StopLoss:   sl,
		TakeProfit: tp,
		Mode:       mode,
		BarTime:    r.Time,
		MACD:       r.MACD,
		Signal:     r.Signal,
		RSI:        r.RSI,
	}

	if d.EquityHint > 0 {
		res := d.Sizer.SizeInAccountCurrency(d.EquityHint, d.RiskPercent, p.Entry, p.StopLoss, d.Instrument, d.FXRate)
		p.SuggestedVolume = res.Volume
	}

	slog.Debug("[strategy] crossover",
		"action", string(action),
		"close", r.Close,
		"macd", r.MACD,
		"signal", r.Signal,
		"rsi", r.RSI,
	)
	return p
}
