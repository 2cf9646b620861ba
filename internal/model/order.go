package model

// Action is the direction of a market order.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Opposite returns the closing direction for a position opened with a.
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// OrderRequest is a market order with attached protective levels.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Comment    string  `json:"comment"`
}

// OrderResult is the execution sink's answer to an OrderRequest.
// Accepted is true only for a confirmed fill.
type OrderResult struct {
	Accepted bool    `json:"accepted"`
	Ticket   string  `json:"ticket,omitempty"`
	Price    float64 `json:"price,omitempty"` // fill price
	Reason   string  `json:"reason"`
}
