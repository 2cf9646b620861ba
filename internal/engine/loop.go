// Package engine drives the decision loop: one strictly sequential tick
// per bar interval, from account refresh through the session governor,
// signal detection, sizing and order submission.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"trading-autobot/internal/logger"
	"trading-autobot/internal/markethours"
	"trading-autobot/internal/marketdata/replay"
	"trading-autobot/internal/metrics"
	"trading-autobot/internal/model"
	"trading-autobot/internal/notification"
	"trading-autobot/internal/portfolio"
	"trading-autobot/internal/strategy"

	"github.com/google/uuid"
)

// Config is the loop's trading configuration.
type Config struct {
	SessionID string
	Symbol    string
	Timeframe string
	BarCount  int
	Mode      strategy.Mode

	RiskPercent float64
	FXRate      float64

	// Limits with a zero TargetBalance or MinBalance derive them from
	// the starting balance and the percentages below.
	Limits          portfolio.SessionLimits
	TargetProfitPct float64
	MaxDrawdownPct  float64

	// Instrument fills fields the account source leaves unknown.
	Instrument model.InstrumentSpec

	MarketHoursGuard bool

	// SessionStart bounds the closed deals counted this session. The zero
	// time counts every deal the account reports.
	SessionStart time.Time
}

// Deps are the loop's collaborators. Metrics and Health are optional.
type Deps struct {
	Bars     model.BarSource
	Account  model.AccountSource
	Orders   model.OrderSink
	Sink     notification.Notifier
	Detector *strategy.Detector
	Sizer    portfolio.Sizer
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
}

// Runner owns the session governor and the deal ledger. Tick and Run
// must be called from a single goroutine; Status and SummaryEvent are
// safe from any goroutine.
type Runner struct {
	cfg       Config
	deps      Deps
	governor  *portfolio.Governor
	ledger    *portfolio.DealLedger
	observers []model.BarObserver

	now     func() time.Time
	started time.Time
	seq     uint64
	last    Status
	status  atomic.Pointer[Status]
}

// New reads the starting balance from the account source and arms the
// governor with it.
func New(ctx context.Context, cfg Config, deps Deps) (*Runner, error) {
	if deps.Bars == nil || deps.Account == nil || deps.Orders == nil {
		return nil, errors.New("engine: bar source, account source and order sink are required")
	}
	if deps.Sink == nil {
		deps.Sink = notification.NewLogNotifier(nil)
	}
	if deps.Detector == nil {
		deps.Detector = &strategy.Detector{}
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()[:8]
	}
	if cfg.BarCount < strategy.MinBars {
		cfg.BarCount = 100
	}
	if cfg.Mode == "" {
		cfg.Mode = strategy.ModeScalping
	}

	snap, err := deps.Account.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: starting balance: %w", err)
	}

	limits := cfg.Limits
	if limits.TargetBalance == 0 && cfg.TargetProfitPct > 0 {
		limits.TargetBalance = snap.Balance * (1 + cfg.TargetProfitPct/100)
	}
	if limits.MinBalance == 0 && cfg.MaxDrawdownPct > 0 {
		limits.MinBalance = snap.Balance * (1 - cfg.MaxDrawdownPct/100)
	}

	d := deps.Detector
	if d.EquityHint <= 0 {
		d.EquityHint = snap.Equity
	}
	if d.RiskPercent <= 0 {
		d.RiskPercent = cfg.RiskPercent
	}
	if d.FXRate <= 0 {
		d.FXRate = cfg.FXRate
	}
	d.Sizer = deps.Sizer
	d.Instrument = d.Instrument.Merge(cfg.Instrument)

	r := &Runner{
		cfg:      cfg,
		deps:     deps,
		governor: portfolio.NewGovernor(limits, snap.Balance),
		ledger:   portfolio.NewDealLedger(cfg.SessionStart),
		now:      time.Now,
	}
	r.started = r.now()

	seen := map[any]bool{}
	for _, c := range []any{deps.Orders, deps.Account, deps.Bars} {
		if o, ok := c.(model.BarObserver); ok && !seen[c] {
			seen[c] = true
			r.observers = append(r.observers, o)
		}
	}

	r.last = Status{
		SessionID: cfg.SessionID,
		Symbol:    cfg.Symbol,
		Timeframe: cfg.Timeframe,
		Mode:      string(cfg.Mode),
		StartedAt: r.started,
		Account:   snap,
		Session:   r.governor.State(),
	}
	r.publish()
	if deps.Metrics != nil {
		metrics.SetBool(deps.Metrics.GovernorRunning, true)
		deps.Metrics.Balance.Set(snap.Balance)
		deps.Metrics.Equity.Set(snap.Equity)
	}

	slog.Info("[engine] session armed",
		"session", cfg.SessionID, "symbol", cfg.Symbol, "mode", cfg.Mode,
		"start_balance", snap.Balance, "target", limits.TargetBalance, "floor", limits.MinBalance,
		"daily_loss_limit", limits.DailyLossLimit, "max_trades", limits.MaxTradesPerDay)
	return r, nil
}

// Governor exposes the session governor for inspection.
func (r *Runner) Governor() *portfolio.Governor { return r.governor }

// Status returns the latest published snapshot.
func (r *Runner) Status() Status {
	return *r.status.Load()
}

func (r *Runner) publish() {
	s := r.last
	r.status.Store(&s)
}

// Tick runs one decision iteration.
func (r *Runner) Tick(ctx context.Context) Outcome {
	start := r.now()
	r.seq++
	tickID := logger.GenerateTickID(r.cfg.SessionID, r.seq)
	ctx = logger.WithTickID(ctx, tickID)

	r.last.Tick = r.seq
	r.last.TickID = tickID
	r.last.Time = start
	r.last.Guard = ""
	r.last.Reading = nil

	outcome := r.tick(ctx)

	r.last.Outcome = outcome
	r.last.Session = r.governor.State()
	r.last.Ledger = r.ledger.Summary()
	r.publish()

	if m := r.deps.Metrics; m != nil {
		label := string(outcome)
		if outcome == OutcomeSkipped && r.last.Guard != "" {
			label = r.last.Guard
		}
		m.ObserveTick(label, r.now().Sub(start))
		metrics.SetBool(m.GovernorRunning, r.governor.Running())
		m.TradesTaken.Set(float64(r.last.Session.TradesTaken))
		m.CumulativeLoss.Set(r.last.Session.CumulativeLoss)
	}
	if h := r.deps.Health; h != nil {
		h.SetLastTick(r.now(), r.governor.Running())
	}
	return outcome
}

func (r *Runner) tick(ctx context.Context) Outcome {
	symbol := r.cfg.Symbol

	if !r.governor.Running() {
		r.skip(ctx, notification.GuardSessionStopped, nil)
		return OutcomeStopped
	}

	bars, barsErr := r.deps.Bars.GetBars(ctx, symbol, r.cfg.Timeframe, r.cfg.BarCount)
	if barsErr == nil {
		if last, ok := model.Last(bars); ok {
			for _, o := range r.observers {
				o.ObserveBar(last)
			}
		}
	}

	snap, err := r.deps.Account.Snapshot(ctx)
	if err != nil {
		return r.skip(ctx, notification.GuardAccountUnavailable, err)
	}
	r.last.Account = snap

	var warnings []string
	positions, err := r.deps.Account.Positions(ctx, symbol)
	if err != nil {
		warnings = append(warnings, "positions: "+err.Error())
		positions = nil
	}
	r.last.Exposure = portfolio.Summarize(positions)

	deals, err := r.deps.Account.ClosedDeals(ctx, symbol, r.ledger.Since())
	if err != nil {
		warnings = append(warnings, "closed deals: "+err.Error())
	}
	for _, d := range r.ledger.Record(deals) {
		r.governor.RecordClosedTrade(d.Profit)
	}

	if m := r.deps.Metrics; m != nil {
		m.Balance.Set(snap.Balance)
		m.Equity.Set(snap.Equity)
		m.OpenPositions.Set(float64(r.last.Exposure.OpenPositions))
	}

	if dec := r.governor.Check(snap.Balance); !dec.Allow {
		ev := r.event(notification.EventSessionStopped)
		ev.Guard = string(dec.Reason)
		ev.Message = dec.Message
		ev.Warnings = warnings
		r.emit(ctx, ev)
		r.last.Guard = string(dec.Reason)
		if m := r.deps.Metrics; m != nil {
			m.StopsTotal.WithLabelValues(string(dec.Reason)).Inc()
		}
		return OutcomeStopped
	}

	clock := r.now()
	if barsErr == nil {
		if last, ok := model.Last(bars); ok {
			clock = last.Time
		}
	}
	r.last.MarketOpen = markethours.IsMarketOpen(clock)
	if m := r.deps.Metrics; m != nil {
		metrics.SetBool(m.MarketOpen, r.last.MarketOpen)
	}
	if r.cfg.MarketHoursGuard && !r.last.MarketOpen {
		return r.skip(ctx, notification.GuardMarketClosed, errors.New(markethours.StatusString(clock)))
	}

	if barsErr != nil {
		return r.skip(ctx, notification.GuardDataUnavailable, barsErr)
	}

	reading, err := r.deps.Detector.Read(bars)
	if err != nil {
		return r.skip(ctx, notification.GuardInsufficientHistory, err)
	}
	r.last.Reading = &reading

	proposal := r.deps.Detector.Propose(reading, r.cfg.Mode)
	if proposal == nil {
		ev := r.event(notification.EventTickSummary)
		ev.Positions = positions
		ev.Reading = &reading
		ev.Warnings = warnings
		r.emit(ctx, ev)
		return OutcomeSummary
	}

	return r.trade(ctx, proposal, snap, warnings)
}

func (r *Runner) trade(ctx context.Context, p *strategy.Proposal, snap model.AccountSnapshot, warnings []string) Outcome {
	symbol := r.cfg.Symbol
	if m := r.deps.Metrics; m != nil {
		m.SignalsTotal.WithLabelValues(string(p.Action)).Inc()
	}

	spec, err := r.deps.Account.Instrument(ctx, symbol)
	if err != nil {
		warnings = append(warnings, "instrument: "+err.Error())
		spec = model.InstrumentSpec{Symbol: symbol}
	}
	spec = spec.Merge(r.cfg.Instrument)

	sized := r.deps.Sizer.Size(snap.Equity, r.cfg.RiskPercent, p.Entry, p.StopLoss, spec)
	for _, w := range sized.Warnings {
		warnings = append(warnings, w.Error())
	}
	r.last.LastProposal = p

	ev := r.event(notification.EventSignalDetected)
	ev.Proposal = p
	ev.Volume = sized.Volume
	ev.Reading = r.last.Reading
	ev.Warnings = warnings
	r.emit(ctx, ev)

	req := p.Order(symbol, sized.Volume, fmt.Sprintf("autobot %s %s", strings.ToLower(string(p.Action)), p.Mode))
	res, err := r.deps.Orders.SubmitMarketOrder(context.WithoutCancel(ctx), req)

	out := r.event(notification.EventOrderResult)
	out.Proposal = p
	out.Volume = sized.Volume
	switch {
	case err != nil:
		res = model.OrderResult{Reason: err.Error()}
		out.Level = notification.AlertWarning
		out.Guard = notification.GuardExecutionUnreachable
		out.Message = fmt.Sprintf("order sink unreachable: %v", err)
	case !res.Accepted:
		out.Level = notification.AlertWarning
		out.Guard = notification.GuardExecutionRejected
		out.Message = fmt.Errorf("%s: %w", res.Reason, model.ErrExecutionRejected).Error()
	default:
		r.governor.RecordExecution()
		out.Message = fmt.Sprintf("filled %s %.2f at %.5f", p.Action, sized.Volume, res.Price)
	}
	out.Order = &res
	r.last.LastOrder = &res
	r.emit(ctx, out)

	result := "accepted"
	outcome := OutcomeFilled
	if err != nil {
		result, outcome = "error", OutcomeError
	} else if !res.Accepted {
		result, outcome = "rejected", OutcomeRejected
	}
	r.last.Guard = out.Guard
	if m := r.deps.Metrics; m != nil {
		m.OrdersTotal.WithLabelValues(result).Inc()
	}
	return outcome
}

func (r *Runner) skip(ctx context.Context, guard string, cause error) Outcome {
	ev := r.event(notification.EventTickSkipped)
	ev.Guard = guard
	if cause != nil {
		ev.Message = cause.Error()
	}
	r.emit(ctx, ev)
	r.last.Guard = guard
	return OutcomeSkipped
}

// event starts an event carrying the current account, exposure, session
// and ledger sections.
func (r *Runner) event(kind notification.EventKind) notification.Event {
	ev := notification.NewEvent(kind, r.cfg.Symbol)
	acct := r.last.Account
	exp := r.last.Exposure
	sess := r.governor.State()
	led := r.ledger.Summary()
	ev.Account = &acct
	ev.Exposure = &exp
	ev.Session = &sess
	ev.Ledger = &led
	return ev
}

func (r *Runner) emit(ctx context.Context, ev notification.Event) {
	ev.TickID = logger.TickID(ctx)
	if err := r.deps.Sink.Notify(ctx, ev); err != nil {
		slog.Warn("[engine] notify failed", append(logger.LogWithTick(ctx), "kind", ev.Kind, "error", err)...)
	}
}

// Run ticks until the governor stops, the pacer ends the run, or ctx is
// cancelled. Each tick runs to completion on a context detached from
// ctx so an order submission is never abandoned. A session_summary event
// is always emitted on return.
func (r *Runner) Run(ctx context.Context, pacer Pacer) error {
	tickCtx := context.WithoutCancel(ctx)
	endReason := ""

	for {
		if ctx.Err() != nil {
			r.interrupt(tickCtx)
			break
		}
		r.Tick(tickCtx)
		if !r.governor.Running() {
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			if errors.Is(err, replay.ErrExhausted) {
				endReason = "replay_exhausted"
				slog.Info("[engine] replay exhausted", "ticks", r.seq)
				break
			}
			if ctx.Err() != nil {
				r.interrupt(tickCtx)
				break
			}
			return fmt.Errorf("engine: pacer: %w", err)
		}
	}

	ev, _ := r.summaryEvent(endReason)
	r.emit(tickCtx, ev)
	return nil
}

func (r *Runner) interrupt(ctx context.Context) {
	if !r.governor.Halt(portfolio.ReasonInterrupted) {
		return
	}
	r.last.Session = r.governor.State()
	r.publish()
	ev := r.event(notification.EventSessionStopped)
	ev.Guard = string(portfolio.ReasonInterrupted)
	ev.Message = "stopped by operator"
	r.emit(ctx, ev)
	if m := r.deps.Metrics; m != nil {
		metrics.SetBool(m.GovernorRunning, false)
		m.StopsTotal.WithLabelValues(string(portfolio.ReasonInterrupted)).Inc()
	}
}

// Summary reports the session from the latest published status.
func (r *Runner) Summary() notification.SessionSummary {
	return summarize(r.Status(), r.now(), "")
}

// SummaryEvent builds a session_summary event from the latest status. It
// is safe to call from the reporter's goroutine.
func (r *Runner) SummaryEvent() (notification.Event, bool) {
	return r.summaryEvent("")
}

func (r *Runner) summaryEvent(endReason string) (notification.Event, bool) {
	st := r.Status()
	sum := summarize(st, r.now(), endReason)
	ev := notification.NewEvent(notification.EventSessionSummary, st.Symbol)
	ev.Summary = &sum
	ev.Account = &st.Account
	ev.Session = &st.Session
	ev.Ledger = &st.Ledger
	return ev, true
}

func summarize(st Status, now time.Time, endReason string) notification.SessionSummary {
	reason := string(st.Session.StopReason)
	if reason == "" {
		reason = endReason
	}
	return notification.SessionSummary{
		StartBalance: st.Session.StartBalance,
		EndBalance:   st.Account.Balance,
		PnL:          st.Account.Balance - st.Session.StartBalance,
		TradesTaken:  st.Session.TradesTaken,
		Runtime:      now.Sub(st.StartedAt),
		StopReason:   reason,
		Ledger:       st.Ledger,
	}
}
