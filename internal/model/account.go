package model

// AccountSnapshot is the account state reported by the terminal at one poll.
type AccountSnapshot struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
}

// MarginLevel returns equity/margin in percent, or 0 when no margin is used.
func (a AccountSnapshot) MarginLevel() float64 {
	if a.Margin <= 0 {
		return 0
	}
	return a.Equity / a.Margin * 100
}
