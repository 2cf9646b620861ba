// Package metrics exposes the autobot's Prometheus metrics and the
// dependency health probe served by the control plane.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the decision loop.
type Metrics struct {
	TicksTotal   *prometheus.CounterVec // labels: outcome
	SignalsTotal *prometheus.CounterVec // labels: action
	OrdersTotal  *prometheus.CounterVec // labels: result
	TickDur      prometheus.Histogram

	GovernorRunning prometheus.Gauge
	TradesTaken     prometheus.Gauge
	CumulativeLoss  prometheus.Gauge
	Balance         prometheus.Gauge
	Equity          prometheus.Gauge
	OpenPositions   prometheus.Gauge

	NotifyErrors   *prometheus.CounterVec // labels: sink
	NotifyDropped  *prometheus.CounterVec // labels: sink
	WSClients      prometheus.Gauge
	MarketOpen     prometheus.Gauge       // 0=closed, 1=open
	StopsTotal     *prometheus.CounterVec // labels: reason
	RedisBreakerSt prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	RedisTrips     prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg uses
// the global default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_ticks_total",
			Help: "Loop ticks by outcome (summary, signal, skipped guard, stopped)",
		}, []string{"outcome"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_signals_total",
			Help: "Trade proposals by action",
		}, []string{"action"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_orders_total",
			Help: "Order submissions by result (accepted, rejected, error)",
		}, []string{"result"}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autobot_tick_duration_seconds",
			Help:    "Wall time of one decision tick",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		GovernorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_governor_running",
			Help: "1 while the session governor allows trading, 0 once stopped",
		}),
		TradesTaken: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_trades_taken",
			Help: "Confirmed fills this session",
		}),
		CumulativeLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_cumulative_loss",
			Help: "Sum of realized losses this session (non-positive)",
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_balance",
			Help: "Last observed account balance",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_equity",
			Help: "Last observed account equity",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_open_positions",
			Help: "Open positions on the traded symbol",
		}),

		NotifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_notify_errors_total",
			Help: "Notification delivery failures per sink",
		}, []string{"sink"}),
		NotifyDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_notify_dropped_total",
			Help: "Events dropped by a full sink queue",
		}, []string{"sink"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_ws_clients",
			Help: "Connected WebSocket monitor clients",
		}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_market_open",
			Help: "FX market state at the last tick (0=closed, 1=open)",
		}),
		StopsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobot_session_stops_total",
			Help: "Session stops by reason",
		}, []string{"reason"}),
		RedisBreakerSt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autobot_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.SignalsTotal,
		m.OrdersTotal,
		m.TickDur,
		m.GovernorRunning,
		m.TradesTaken,
		m.CumulativeLoss,
		m.Balance,
		m.Equity,
		m.OpenPositions,
		m.NotifyErrors,
		m.NotifyDropped,
		m.WSClients,
		m.MarketOpen,
		m.StopsTotal,
		m.RedisBreakerSt,
		m.RedisTrips,
	)

	return m
}

// ObserveTick records one tick's outcome and duration.
func (m *Metrics) ObserveTick(outcome string, d time.Duration) {
	m.TicksTotal.WithLabelValues(outcome).Inc()
	m.TickDur.Observe(d.Seconds())
}

// SetBool sets g to 1 or 0.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
