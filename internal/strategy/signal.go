// Package strategy turns a bar history into a directional trade proposal.
//
// The Detector computes MACD and RSI over the close series, looks for a
// crossover on the latest two points, and attaches stop-loss and
// take-profit levels from the configured trading mode's percentage bands.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"trading-autobot/internal/model"
)

// Mode selects the stop/target band width.
type Mode string

const (
	ModeScalping Mode = "scalping"
	ModeNormal   Mode = "normal"
)

// Bands are fractional offsets from the entry price.
type Bands struct {
	TakeProfit float64
	StopLoss   float64
}

var modeBands = map[Mode]Bands{
	ModeScalping: {TakeProfit: 0.0002, StopLoss: 0.0004},
	ModeNormal:   {TakeProfit: 0.0005, StopLoss: 0.0010},
}

// ParseMode normalizes a configured mode name. An empty name selects
// scalping. Unrecognized names are kept as given and trade with the
// normal bands.
func ParseMode(s string) Mode {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeScalping
	}
	return Mode(s)
}

// Known reports whether m has its own band definition.
func (m Mode) Known() bool {
	_, ok := modeBands[m]
	return ok
}

// Bands returns the take-profit and stop-loss fractions for m.
func (m Mode) Bands() Bands {
	if b, ok := modeBands[m]; ok {
		return b
	}
	return modeBands[ModeNormal]
}

// Levels returns stop-loss and take-profit prices for an entry at price.
func (m Mode) Levels(action model.Action, price float64) (stopLoss, takeProfit float64) {
	b := m.Bands()
	if action == model.ActionBuy {
		return price * (1 - b.StopLoss), price * (1 + b.TakeProfit)
	}
	return price * (1 + b.StopLoss), price * (1 - b.TakeProfit)
}

// Proposal is a detected entry. It is created fresh by each detection and
// never mutated afterwards.
//
// SuggestedVolume is an estimate from the detector's configured equity hint.
// The loop sizes the executed order separately against live equity.
type Proposal struct {
	Action          model.Action `json:"action"`
	Entry           float64      `json:"entry"`
	StopLoss        float64      `json:"stop_loss"`
	TakeProfit      float64      `json:"take_profit"`
	Mode            Mode         `json:"mode"`
	SuggestedVolume float64      `json:"suggested_volume"`
	BarTime         time.Time    `json:"bar_time"`

	MACD   float64 `json:"macd"`
	Signal float64 `json:"signal"`
	RSI    float64 `json:"rsi"`
}

// Validate checks the price ordering: SL < entry < TP for BUY and the
// reverse for SELL.
func (p *Proposal) Validate() error {
	switch p.Action {
	case model.ActionBuy:
		if !(p.StopLoss < p.Entry && p.Entry < p.TakeProfit) {
			return fmt.Errorf("buy levels out of order: sl=%.5f entry=%.5f tp=%.5f", p.StopLoss, p.Entry, p.TakeProfit)
		}
	case model.ActionSell:
		if !(p.StopLoss > p.Entry && p.Entry > p.TakeProfit) {
			return fmt.Errorf("sell levels out of order: sl=%.5f entry=%.5f tp=%.5f", p.StopLoss, p.Entry, p.TakeProfit)
		}
	default:
		return fmt.Errorf("unknown action %q", p.Action)
	}
	return nil
}

// Order builds the market order for p at volume.
func (p *Proposal) Order(symbol string, volume float64, comment string) model.OrderRequest {
	return model.OrderRequest{
		Symbol:     symbol,
		Action:     p.Action,
		Volume:     volume,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Comment:    comment,
	}
}
