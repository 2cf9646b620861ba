// Package portfolio holds the money-management side of the bot: the
// risk-based position sizer, the session governor that gates new entries,
// the closed-deal ledger, and the open-exposure view.
//
// Nothing here talks to a broker. Inputs arrive as plain model values and
// the loop driver owns every stateful object.
package portfolio

import "trading-autobot/internal/model"

// Exposure summarizes the open positions on the traded instrument.
type Exposure struct {
	OpenPositions int     `json:"open_positions"`
	LongVolume    float64 `json:"long_volume"`
	ShortVolume   float64 `json:"short_volume"`
	NetVolume     float64 `json:"net_volume"` // long minus short
	FloatingPnL   float64 `json:"floating_pnl"`
}

// Summarize builds an Exposure from a position snapshot.
func Summarize(positions []model.Position) Exposure {
	var e Exposure
	for _, p := range positions {
		e.OpenPositions++
		e.FloatingPnL += p.Profit
		switch p.Action {
		case model.ActionBuy:
			e.LongVolume += p.Volume
		case model.ActionSell:
			e.ShortVolume += p.Volume
		}
	}
	e.NetVolume = e.LongVolume - e.ShortVolume
	return e
}

// Flat reports whether there are no open positions.
func (e Exposure) Flat() bool { return e.OpenPositions == 0 }
