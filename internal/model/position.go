package model

import "time"

// Position is an open position on the traded instrument.
type Position struct {
	Ticket     string  `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Volume     float64 `json:"volume"`
	PriceOpen  float64 `json:"price_open"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Profit     float64 `json:"profit"` // floating, account currency
}

// Deal is a closed trade as reported by the terminal's history.
type Deal struct {
	Ticket     string    `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Volume     float64   `json:"volume"`
	PriceOpen  float64   `json:"price_open"`
	PriceClose float64   `json:"price_close"`
	ClosedAt   time.Time `json:"closed_at"`
	Profit     float64   `json:"profit"` // realized, account currency
}
