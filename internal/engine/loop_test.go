package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trading-autobot/internal/execution"
	"trading-autobot/internal/marketdata/replay"
	"trading-autobot/internal/metrics"
	"trading-autobot/internal/model"
	"trading-autobot/internal/notification"
	"trading-autobot/internal/portfolio"
	"trading-autobot/internal/strategy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

// accelBars builds 30 bars on an accelerating trend (down when sign > 0)
// followed by one bar reversing by jump, which yields a crossover.
func accelBars(sign, jump float64) []model.Bar {
	bars := make([]model.Bar, 0, 31)
	for i := 0; i < 30; i++ {
		c := 100 - sign*0.01*float64(i*i)
		bars = append(bars, model.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c})
	}
	c := bars[29].Close + sign*jump
	return append(bars, model.Bar{Time: t0.Add(30 * time.Minute), Open: c, High: c, Low: c, Close: c})
}

// flatBars never cross.
func flatBars(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: 100, High: 100, Low: 100, Close: 100}
	}
	return bars
}

type fakeBars struct {
	bars []model.Bar
	err  error
}

func (f *fakeBars) GetBars(_ context.Context, _, _ string, count int) ([]model.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.bars) < count {
		return nil, model.ErrDataUnavailable
	}
	return f.bars[len(f.bars)-count:], nil
}

type fakeAccount struct {
	snap    model.AccountSnapshot
	snapErr error
	deals   []model.Deal
}

func (f *fakeAccount) Snapshot(context.Context) (model.AccountSnapshot, error) {
	return f.snap, f.snapErr
}

func (f *fakeAccount) Positions(context.Context, string) ([]model.Position, error) {
	return nil, nil
}

func (f *fakeAccount) ClosedDeals(_ context.Context, _ string, since time.Time) ([]model.Deal, error) {
	return f.deals, nil
}

func (f *fakeAccount) Instrument(_ context.Context, symbol string) (model.InstrumentSpec, error) {
	return model.InstrumentSpec{Symbol: symbol, Point: 0.01, ContractSize: 100, VolumeMin: 0.01, VolumeMax: 10, VolumeStep: 0.01}, nil
}

type fakeOrders struct {
	result model.OrderResult
	err    error
	reqs   []model.OrderRequest
}

func (f *fakeOrders) SubmitMarketOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	f.reqs = append(f.reqs, req)
	return f.result, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recorder) Notify(_ context.Context, ev notification.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []notification.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) last(kind notification.EventKind) (notification.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return notification.Event{}, false
}

type LoopSuite struct {
	suite.Suite
	bars    *fakeBars
	account *fakeAccount
	orders  *fakeOrders
	sink    *recorder
	reg     *prometheus.Registry
	cfg     Config
}

func (s *LoopSuite) SetupTest() {
	s.bars = &fakeBars{bars: accelBars(1, 4)}
	s.account = &fakeAccount{snap: model.AccountSnapshot{Balance: 1000, Equity: 1000, FreeMargin: 1000}}
	s.orders = &fakeOrders{result: model.OrderResult{Accepted: true, Ticket: "t-1", Price: 100, Reason: "filled"}}
	s.sink = &recorder{}
	s.reg = prometheus.NewRegistry()
	s.cfg = Config{
		SessionID:   "test",
		Symbol:      "XAUUSD",
		Timeframe:   "M1",
		BarCount:    31,
		Mode:        strategy.ModeScalping,
		RiskPercent: 1,
		Limits:      portfolio.SessionLimits{DailyLossLimit: 100, MaxTradesPerDay: 10, TargetBalance: 1050, MinBalance: 950},
	}
}

func (s *LoopSuite) runner() *Runner {
	r, err := New(context.Background(), s.cfg, Deps{
		Bars:    s.bars,
		Account: s.account,
		Orders:  s.orders,
		Sink:    s.sink,
		Metrics: metrics.New(s.reg),
		Health:  metrics.NewHealthStatus(),
	})
	s.Require().NoError(err)
	return r
}

func (s *LoopSuite) TestSignalFillCountsTrade() {
	r := s.runner()
	s.Equal(OutcomeFilled, r.Tick(context.Background()))

	s.Equal([]notification.EventKind{notification.EventSignalDetected, notification.EventOrderResult}, s.sink.kinds())
	s.Require().Len(s.orders.reqs, 1)
	req := s.orders.reqs[0]
	s.Equal(model.ActionBuy, req.Action)
	s.Greater(req.Volume, 0.0)
	s.LessOrEqual(req.Volume, portfolio.DefaultVolumeCeiling)
	s.Less(req.StopLoss, req.TakeProfit)

	s.Equal(1, r.Governor().State().TradesTaken)
	st := r.Status()
	s.Equal(uint64(1), st.Tick)
	s.Equal("test-1", st.TickID)
	s.Equal(OutcomeFilled, st.Outcome)
	s.Require().NotNil(st.LastOrder)
	s.True(st.LastOrder.Accepted)

	ev, ok := s.sink.last(notification.EventOrderResult)
	s.Require().True(ok)
	s.Equal("test-1", ev.TickID)
}

func (s *LoopSuite) TestRejectedOrderDoesNotCount() {
	s.orders.result = model.OrderResult{Accepted: false, Reason: "market closed"}
	r := s.runner()

	s.Equal(OutcomeRejected, r.Tick(context.Background()))
	s.Equal(0, r.Governor().State().TradesTaken)

	ev, ok := s.sink.last(notification.EventOrderResult)
	s.Require().True(ok)
	s.Equal(notification.GuardExecutionRejected, ev.Guard)
	s.Contains(ev.Message, model.ErrExecutionRejected.Error())
}

func (s *LoopSuite) TestUnreachableSinkDoesNotCount() {
	s.orders.err = errors.New("connection refused")
	r := s.runner()

	s.Equal(OutcomeError, r.Tick(context.Background()))
	s.Equal(0, r.Governor().State().TradesTaken)
	ev, _ := s.sink.last(notification.EventOrderResult)
	s.Equal(notification.GuardExecutionUnreachable, ev.Guard)
}

func (s *LoopSuite) TestGovernorStopsBeforeDetection() {
	s.account.deals = []model.Deal{{Ticket: "d1", Symbol: "XAUUSD", Profit: -120, ClosedAt: t0}}
	r := s.runner()

	s.Equal(OutcomeStopped, r.Tick(context.Background()))
	s.Empty(s.orders.reqs)
	s.Equal([]notification.EventKind{notification.EventSessionStopped}, s.sink.kinds())

	ev, _ := s.sink.last(notification.EventSessionStopped)
	s.Equal(string(portfolio.ReasonDailyLoss), ev.Guard)
	s.False(r.Governor().Running())
	s.InDelta(-120.0, r.Governor().State().CumulativeLoss, 1e-9)

	// stopped is terminal: later ticks only report the guard
	s.Equal(OutcomeStopped, r.Tick(context.Background()))
	s.Equal([]notification.EventKind{notification.EventSessionStopped, notification.EventTickSkipped}, s.sink.kinds())
	skipped, _ := s.sink.last(notification.EventTickSkipped)
	s.Equal(notification.GuardSessionStopped, skipped.Guard)
	s.Empty(s.orders.reqs)
	s.Equal(portfolio.ReasonDailyLoss, r.Governor().State().StopReason)
}

func (s *LoopSuite) TestDealsCountedOnce() {
	s.account.deals = []model.Deal{{Ticket: "d1", Symbol: "XAUUSD", Profit: -60, ClosedAt: t0}}
	s.bars.bars = flatBars(40)
	r := s.runner()

	r.Tick(context.Background())
	r.Tick(context.Background())
	s.True(r.Governor().Running())
	s.InDelta(-60.0, r.Governor().State().CumulativeLoss, 1e-9)
}

func (s *LoopSuite) TestNoSignalEmitsSummary() {
	s.bars.bars = flatBars(40)
	r := s.runner()

	s.Equal(OutcomeSummary, r.Tick(context.Background()))
	ev, ok := s.sink.last(notification.EventTickSummary)
	s.Require().True(ok)
	s.Require().NotNil(ev.Reading)
	s.InDelta(100.0, ev.Reading.Close, 1e-12)
	s.Empty(s.orders.reqs)
}

func (s *LoopSuite) TestDataUnavailableSkips() {
	s.bars.err = model.ErrDataUnavailable
	r := s.runner()

	s.Equal(OutcomeSkipped, r.Tick(context.Background()))
	ev, _ := s.sink.last(notification.EventTickSkipped)
	s.Equal(notification.GuardDataUnavailable, ev.Guard)
	s.Equal(notification.GuardDataUnavailable, r.Status().Guard)
	s.Empty(s.orders.reqs)
	s.True(r.Governor().Running())
}

func (s *LoopSuite) TestAccountUnavailableSkips() {
	r := s.runner()
	s.account.snapErr = errors.New("terminal offline")

	s.Equal(OutcomeSkipped, r.Tick(context.Background()))
	ev, _ := s.sink.last(notification.EventTickSkipped)
	s.Equal(notification.GuardAccountUnavailable, ev.Guard)
	s.Empty(s.orders.reqs)
}

func (s *LoopSuite) TestMarketClosedGuard() {
	sat := time.Date(2024, 5, 11, 12, 0, 0, 0, time.UTC)
	bars := flatBars(40)
	for i := range bars {
		bars[i].Time = sat.Add(time.Duration(i) * time.Minute)
	}
	s.bars.bars = bars
	s.cfg.MarketHoursGuard = true
	r := s.runner()

	s.Equal(OutcomeSkipped, r.Tick(context.Background()))
	ev, _ := s.sink.last(notification.EventTickSkipped)
	s.Equal(notification.GuardMarketClosed, ev.Guard)
}

func (s *LoopSuite) TestRunInterruptedHaltsAndSummarizes() {
	r := s.runner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Require().NoError(r.Run(ctx, SleepPacer{Interval: time.Hour}))
	s.False(r.Governor().Running())
	s.Equal(portfolio.ReasonInterrupted, r.Governor().State().StopReason)
	s.Equal([]notification.EventKind{notification.EventSessionStopped, notification.EventSessionSummary}, s.sink.kinds())

	ev, _ := s.sink.last(notification.EventSessionSummary)
	s.Require().NotNil(ev.Summary)
	s.Equal(string(portfolio.ReasonInterrupted), ev.Summary.StopReason)
}

func (s *LoopSuite) TestRunStopsOnGovernor() {
	s.cfg.Limits.MaxTradesPerDay = 1
	r := s.runner()

	// tick 1 fills, tick 2 hits the trade cap
	s.Require().NoError(r.Run(context.Background(), SleepPacer{Interval: time.Millisecond}))
	s.Equal(portfolio.ReasonMaxTrades, r.Governor().State().StopReason)
	s.Len(s.orders.reqs, 1)

	sum := r.Summary()
	s.Equal(1, sum.TradesTaken)
	s.Equal(string(portfolio.ReasonMaxTrades), sum.StopReason)
}

func (s *LoopSuite) TestLimitsDerivedFromPercentages() {
	s.cfg.Limits = portfolio.SessionLimits{DailyLossLimit: 100}
	s.cfg.TargetProfitPct = 5
	s.cfg.MaxDrawdownPct = 5
	r := s.runner()

	s.InDelta(1050.0, r.Governor().Limits().TargetBalance, 1e-9)
	s.InDelta(950.0, r.Governor().Limits().MinBalance, 1e-9)
}

func TestLoopSuite(t *testing.T) {
	suite.Run(t, new(LoopSuite))
}

func TestReplayRunThroughPaperBroker(t *testing.T) {
	bars := accelBars(1, 4)
	feed := replay.NewFeed("TEST", bars, 30)
	paper := execution.NewPaperBroker(execution.PaperConfig{
		Balance:    1000,
		Leverage:   500,
		Instrument: model.InstrumentSpec{Symbol: "TEST", ContractSize: 100},
	})
	sink := &recorder{}

	r, err := New(context.Background(), Config{
		SessionID: "replay",
		Symbol:    "TEST",
		BarCount:  31,
		Limits:    portfolio.SessionLimits{DailyLossLimit: 100},
	}, Deps{Bars: feed, Account: paper, Orders: paper, Sink: sink})
	require.NoError(t, err)

	// tick 1 sees only the 30 warmup bars and skips; tick 2 sees the reversal
	require.NoError(t, r.Run(context.Background(), ReplayPacer{Feed: feed}))
	assert.Equal(t, uint64(2), r.Status().Tick)
	assert.Equal(t, 1, r.Governor().State().TradesTaken)
	assert.Zero(t, feed.Remaining())

	kinds := sink.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, notification.EventSessionSummary, kinds[len(kinds)-1])

	ev, _ := sink.last(notification.EventSessionSummary)
	require.NotNil(t, ev.Summary)
	assert.Equal(t, "replay_exhausted", ev.Summary.StopReason)
	assert.InDelta(t, 1000.0, ev.Summary.StartBalance, 1e-9)
}

func TestSleepPacerWakesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- SleepPacer{Interval: time.Hour}.Wait(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pacer did not wake on cancellation")
	}
}
