// Package notification delivers decision-loop events to external channels
// (log, console, Telegram, webhooks, WebSocket, Redis, the audit journal).
//
// Every sink implements Notifier. Sinks are write-only: nothing the loop
// decides depends on a sink's answer.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trading-autobot/internal/model"
	"trading-autobot/internal/portfolio"
	"trading-autobot/internal/strategy"

	"github.com/google/uuid"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is the human-readable rendering of an Event.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// EventKind names what happened on a tick.
type EventKind string

const (
	EventTickSummary    EventKind = "tick_summary"
	EventTickSkipped    EventKind = "tick_skipped"
	EventSignalDetected EventKind = "signal_detected"
	EventOrderResult    EventKind = "order_result"
	EventSessionStopped EventKind = "session_stopped"
	EventSessionSummary EventKind = "session_summary"
)

// Guards that skip or degrade a tick. Governor stops use the governor's
// stop reason as the guard.
const (
	GuardAccountUnavailable   = "account_unavailable"
	GuardDataUnavailable      = "data_unavailable"
	GuardInsufficientHistory  = "insufficient_history"
	GuardMarketClosed         = "market_closed"
	GuardSessionStopped       = "session_stopped"
	GuardExecutionRejected    = "execution_rejected"
	GuardExecutionUnreachable = "execution_unreachable"
)

// SessionSummary is the end-of-run (or periodic) session report.
type SessionSummary struct {
	StartBalance float64                 `json:"start_balance"`
	EndBalance   float64                 `json:"end_balance"`
	PnL          float64                 `json:"pnl"`
	TradesTaken  int                     `json:"trades_taken"`
	Runtime      time.Duration           `json:"runtime"`
	StopReason   string                  `json:"stop_reason,omitempty"`
	Ledger       portfolio.LedgerSummary `json:"ledger"`
}

// Event is one structured notification from the loop. Optional sections
// are nil when they do not apply to the kind.
type Event struct {
	ID      string     `json:"id"`
	Kind    EventKind  `json:"kind"`
	Level   AlertLevel `json:"level"`
	Time    time.Time  `json:"time"`
	TickID  string     `json:"tick_id,omitempty"`
	Symbol  string     `json:"symbol"`
	Guard   string     `json:"guard,omitempty"`
	Message string     `json:"message,omitempty"`

	Account   *model.AccountSnapshot   `json:"account,omitempty"`
	Positions []model.Position         `json:"positions,omitempty"`
	Exposure  *portfolio.Exposure      `json:"exposure,omitempty"`
	Reading   *strategy.Reading        `json:"reading,omitempty"`
	Proposal  *strategy.Proposal       `json:"proposal,omitempty"`
	Volume    float64                  `json:"volume,omitempty"`
	Order     *model.OrderResult       `json:"order,omitempty"`
	Session   *portfolio.SessionState  `json:"session,omitempty"`
	Ledger    *portfolio.LedgerSummary `json:"ledger,omitempty"`
	Summary   *SessionSummary          `json:"summary,omitempty"`
	Warnings  []string                 `json:"warnings,omitempty"`
}

// NewEvent creates an event stamped with a fresh id, the current time, and
// the default level for kind.
func NewEvent(kind EventKind, symbol string) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Level:  defaultLevel(kind),
		Time:   time.Now().UTC(),
		Symbol: symbol,
	}
}

func defaultLevel(kind EventKind) AlertLevel {
	switch kind {
	case EventTickSkipped:
		return AlertWarning
	case EventSessionStopped:
		return AlertCritical
	default:
		return AlertInfo
	}
}

// Alert renders e as a title and message.
func (e Event) Alert() Alert {
	a := Alert{Level: e.Level}
	switch e.Kind {
	case EventSignalDetected:
		a.Title = "Signal " + e.Symbol
		if p := e.Proposal; p != nil {
			a.Title = fmt.Sprintf("%s signal %s", p.Action, e.Symbol)
			a.Message = fmt.Sprintf("entry %.5f sl %.5f tp %.5f volume %.2f (%s)", p.Entry, p.StopLoss, p.TakeProfit, e.Volume, p.Mode)
		}
	case EventOrderResult:
		a.Title = "Order " + e.Symbol
		if o := e.Order; o != nil {
			if o.Accepted {
				a.Title = "Order filled " + e.Symbol
				a.Message = fmt.Sprintf("ticket %s at %.5f volume %.2f", o.Ticket, o.Price, e.Volume)
			} else {
				a.Title = "Order rejected " + e.Symbol
				a.Message = o.Reason
			}
		}
	case EventSessionStopped:
		a.Title = fmt.Sprintf("Session stopped %s: %s", e.Symbol, e.Guard)
		a.Message = e.Message
	case EventTickSkipped:
		a.Title = fmt.Sprintf("Tick skipped %s: %s", e.Symbol, e.Guard)
		a.Message = e.Message
	case EventSessionSummary:
		a.Title = "Session summary " + e.Symbol
		if s := e.Summary; s != nil {
			a.Message = fmt.Sprintf("balance %.2f -> %.2f, P/L %.2f, trades %d, win rate %.1f%%, runtime %s",
				s.StartBalance, s.EndBalance, s.PnL, s.TradesTaken, s.Ledger.WinRate, s.Runtime.Round(time.Second))
		}
	default:
		a.Title = "Tick " + e.Symbol
		a.Message = e.Message
		if r := e.Reading; r != nil && a.Message == "" {
			a.Message = fmt.Sprintf("close %.5f macd %.5f signal %.5f rsi %.1f", r.Close, r.MACD, r.Signal, r.RSI)
		}
	}
	return a
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Notify delivers an event. Returns error if delivery fails.
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses the
// default slog logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	level := slog.LevelInfo
	switch ev.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	if ev.Kind == EventTickSummary {
		level = slog.LevelDebug
	}

	attrs := []any{
		slog.String("kind", string(ev.Kind)),
		slog.String("symbol", ev.Symbol),
	}
	if ev.TickID != "" {
		attrs = append(attrs, slog.String("tick_id", ev.TickID))
	}
	if ev.Guard != "" {
		attrs = append(attrs, slog.String("guard", ev.Guard))
	}
	if ev.Session != nil {
		attrs = append(attrs,
			slog.Int("trades_taken", ev.Session.TradesTaken),
			slog.Float64("cumulative_loss", ev.Session.CumulativeLoss),
		)
	}
	if len(ev.Warnings) > 0 {
		attrs = append(attrs, slog.Any("warnings", ev.Warnings))
	}

	a := ev.Alert()
	n.logger.Log(ctx, level, "[notify] "+a.Title+": "+a.Message, attrs...)
	return nil
}

// Fanout delivers each event to every sink. A failing sink does not stop
// delivery to the others; their errors are joined.
type Fanout struct {
	sinks []Notifier
}

// NewFanout creates a Fanout over sinks. Nil sinks are skipped.
func NewFanout(sinks ...Notifier) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add registers another sink.
func (f *Fanout) Add(n Notifier) {
	if n != nil {
		f.sinks = append(f.sinks, n)
	}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnlyKinds wraps next so it only receives the given event kinds.
func OnlyKinds(next Notifier, kinds ...EventKind) Notifier {
	allowed := make(map[EventKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return NotifierFunc(func(ctx context.Context, ev Event) error {
		if !allowed[ev.Kind] {
			return nil
		}
		return next.Notify(ctx, ev)
	})
}

// AlertKinds are the event kinds worth a push notification.
var AlertKinds = []EventKind{
	EventSignalDetected,
	EventOrderResult,
	EventSessionStopped,
	EventSessionSummary,
}
