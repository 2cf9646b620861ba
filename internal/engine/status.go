package engine

import (
	"time"

	"trading-autobot/internal/model"
	"trading-autobot/internal/portfolio"
	"trading-autobot/internal/strategy"
)

// Outcome classifies how a tick ended.
type Outcome string

const (
	OutcomeSummary  Outcome = "summary"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeStopped  Outcome = "stopped"
	OutcomeFilled   Outcome = "filled"
	OutcomeRejected Outcome = "rejected"
	OutcomeError    Outcome = "order_error"
)

// Status is the snapshot published after every tick. Readers on other
// goroutines only ever see complete snapshots.
type Status struct {
	SessionID  string    `json:"session_id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	Tick       uint64    `json:"tick"`
	TickID     string    `json:"tick_id"`
	Time       time.Time `json:"time"`
	Outcome    Outcome   `json:"outcome"`
	Guard      string    `json:"guard,omitempty"`
	MarketOpen bool      `json:"market_open"`

	Account  model.AccountSnapshot   `json:"account"`
	Exposure portfolio.Exposure      `json:"exposure"`
	Session  portfolio.SessionState  `json:"session"`
	Ledger   portfolio.LedgerSummary `json:"ledger"`
	Reading  *strategy.Reading       `json:"reading,omitempty"`

	LastProposal *strategy.Proposal `json:"last_proposal,omitempty"`
	LastOrder    *model.OrderResult `json:"last_order,omitempty"`
}
