package portfolio

import (
	"fmt"
	"log/slog"
	"math"
)

// StopReason names the guard that moved a session to STOPPED.
type StopReason string

const (
	ReasonNone        StopReason = ""
	ReasonDailyLoss   StopReason = "daily_loss_limit"
	ReasonMaxTrades   StopReason = "max_trades_per_day"
	ReasonTarget      StopReason = "target_balance"
	ReasonMinBalance  StopReason = "min_balance"
	ReasonInterrupted StopReason = "interrupted"
)

// SessionLimits defines the configurable session thresholds.
type SessionLimits struct {
	DailyLossLimit  float64 `json:"daily_loss_limit"`   // absolute value is used
	MaxTradesPerDay int     `json:"max_trades_per_day"` // <= 0 disables the cap
	TargetBalance   float64 `json:"target_balance"`     // <= 0 disables the target
	MinBalance      float64 `json:"min_balance"`        // balance floor
}

// DefaultSessionLimits mirrors the conservative defaults of the config layer.
func DefaultSessionLimits(startBalance float64) SessionLimits {
	return SessionLimits{
		DailyLossLimit:  100,
		MaxTradesPerDay: 10,
		TargetBalance:   startBalance * 1.05,
		MinBalance:      startBalance * 0.95,
	}
}

// SessionState is the governor's owned state. CumulativeLoss is never
// positive. Running goes true→false exactly once.
type SessionState struct {
	TradesTaken    int        `json:"trades_taken"`
	CumulativeLoss float64    `json:"cumulative_loss"`
	StartBalance   float64    `json:"start_balance"`
	TargetBalance  float64    `json:"target_balance"`
	MinBalance     float64    `json:"min_balance"`
	PeakBalance    float64    `json:"peak_balance"`
	TroughBalance  float64    `json:"trough_balance"`
	Running        bool       `json:"running"`
	StopReason     StopReason `json:"stop_reason,omitempty"`
}

// Decision is the outcome of one governor check.
type Decision struct {
	Allow   bool       `json:"allow"`
	Reason  StopReason `json:"reason,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Governor gates new entries behind the session limits. It is owned by the
// loop driver and is not safe for concurrent use; readers take State()
// copies.
type Governor struct {
	limits SessionLimits
	state  SessionState
}

// NewGovernor creates a RUNNING governor for a session starting at
// startBalance.
func NewGovernor(limits SessionLimits, startBalance float64) *Governor {
	return &Governor{
		limits: limits,
		state: SessionState{
			StartBalance:  startBalance,
			TargetBalance: limits.TargetBalance,
			MinBalance:    limits.MinBalance,
			PeakBalance:   startBalance,
			TroughBalance: startBalance,
			Running:       true,
		},
	}
}

// Check evaluates the limits against the current balance, in priority
// order: daily loss, trade cap, target, floor. The first breach stops the
// session. A stopped governor always denies.
func (g *Governor) Check(balance float64) Decision {
	if !g.state.Running {
		return Decision{Allow: false, Reason: g.state.StopReason, Message: "session already stopped"}
	}

	if balance > g.state.PeakBalance {
		g.state.PeakBalance = balance
	}
	if balance < g.state.TroughBalance {
		g.state.TroughBalance = balance
	}

	limit := math.Abs(g.limits.DailyLossLimit)
	switch {
	case g.state.CumulativeLoss <= -limit:
		return g.stop(ReasonDailyLoss, fmt.Sprintf("cumulative loss %.2f reached limit -%.2f", g.state.CumulativeLoss, limit))
	case g.limits.MaxTradesPerDay > 0 && g.state.TradesTaken >= g.limits.MaxTradesPerDay:
		return g.stop(ReasonMaxTrades, fmt.Sprintf("trades taken %d reached cap %d", g.state.TradesTaken, g.limits.MaxTradesPerDay))
	case g.limits.TargetBalance > 0 && balance >= g.limits.TargetBalance:
		return g.stop(ReasonTarget, fmt.Sprintf("balance %.2f reached target %.2f", balance, g.limits.TargetBalance))
	case balance <= g.limits.MinBalance:
		return g.stop(ReasonMinBalance, fmt.Sprintf("balance %.2f reached floor %.2f", balance, g.limits.MinBalance))
	}
	return Decision{Allow: true}
}

func (g *Governor) stop(reason StopReason, msg string) Decision {
	g.state.Running = false
	g.state.StopReason = reason
	slog.Warn("[risk] session stopped", "reason", string(reason), "detail", msg)
	return Decision{Allow: false, Reason: reason, Message: msg}
}

// Halt stops the session from outside the limit checks (interrupt, remote
// stop). It returns false when the session was already stopped; the first
// reason is kept.
func (g *Governor) Halt(reason StopReason) bool {
	if !g.state.Running {
		return false
	}
	g.stop(reason, "halted")
	return true
}

// RecordExecution counts one confirmed fill.
func (g *Governor) RecordExecution() {
	g.state.TradesTaken++
}

// RecordClosedTrade folds a closed trade's profit into the session. Only
// losses move CumulativeLoss.
func (g *Governor) RecordClosedTrade(profit float64) {
	if profit < 0 {
		g.state.CumulativeLoss += profit
	}
}

// Running reports whether new entries may still be attempted.
func (g *Governor) Running() bool { return g.state.Running }

// State returns a copy of the session state.
func (g *Governor) State() SessionState { return g.state }

// Limits returns the configured limits.
func (g *Governor) Limits() SessionLimits { return g.limits }

// DrawdownPct is the percentage drop from the session's peak balance to
// balance.
func (s SessionState) DrawdownPct(balance float64) float64 {
	if s.PeakBalance <= 0 {
		return 0
	}
	return (s.PeakBalance - balance) / s.PeakBalance * 100
}
