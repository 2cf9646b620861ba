package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"trading-autobot/config"
	"trading-autobot/internal/control"
	"trading-autobot/internal/engine"
	"trading-autobot/internal/execution"
	"trading-autobot/internal/gateway"
	"trading-autobot/internal/logger"
	"trading-autobot/internal/marketdata/replay"
	"trading-autobot/internal/metrics"
	"trading-autobot/internal/model"
	"trading-autobot/internal/notification"
	"trading-autobot/internal/store/redis"
	"trading-autobot/internal/store/sqlite"
	"trading-autobot/internal/strategy"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type sessionOptions struct {
	csvPath  string // replay when set
	resample bool   // aggregate the CSV into the configured timeframe
	console  bool
	flatten  bool
}

func runSession(parent context.Context, cfg *config.Config, opts sessionOptions) error {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("autobot", logger.ParseLevel(cfg.LogLevel))

	sessionID := uuid.NewString()[:8]
	replaying := opts.csvPath != ""
	slog.Info("[autobot] starting", "session", sessionID, "symbol", cfg.Symbol, "timeframe", cfg.Timeframe, "replay", replaying)

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go handleSignals(ctx, cancel, cfg.ShutdownGrace)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	health := metrics.NewHealthStatus()

	// ---- Bar source and pacing ----
	var (
		bars  model.BarSource
		pacer engine.Pacer
		rdb   *goredis.Client
	)
	if replaying {
		var feed *replay.Feed
		if opts.resample {
			history, err := readBars(opts.csvPath, cfg.Timeframe)
			if err != nil {
				return err
			}
			feed = replay.NewFeed(cfg.Symbol, history, cfg.BarCount)
		} else {
			f, err := replay.Load(opts.csvPath, cfg.Symbol, cfg.BarCount)
			if err != nil {
				return err
			}
			feed = f
		}
		bars, pacer = feed, engine.ReplayPacer{Feed: feed}
	} else {
		client, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer client.Close()
		rdb = client
		bars, pacer = redis.NewBarReader(rdb), engine.SleepPacer{Interval: cfg.PollInterval}
		health.AddDependency("redis", metrics.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }))
	}

	paper := execution.NewPaperBroker(execution.PaperConfig{
		Balance:    cfg.Paper.Balance,
		Leverage:   cfg.Paper.Leverage,
		Instrument: cfg.Instrument,
	})

	// ---- Notification sinks ----
	fan := notification.NewFanout(counted(m, "log", notification.NewLogNotifier(nil)))
	if opts.console {
		fan.Add(counted(m, "console", notification.NewConsole(os.Stdout)))
	}

	var journal *sqlite.Journal
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
			return fmt.Errorf("journal dir: %w", err)
		}
		j, err := sqlite.Open(cfg.JournalPath, sessionID)
		if err != nil {
			return err
		}
		defer j.Close()
		journal = j
		fan.Add(counted(m, "journal", journal))
		health.AddDependency("journal", journal)
	}

	hub := gateway.NewHub(256)
	defer hub.Close()
	hub.OnDrop = func() { m.NotifyDropped.WithLabelValues("ws").Inc() }
	fan.Add(counted(m, "ws", notification.NotifierFunc(func(ctx context.Context, ev notification.Event) error {
		err := hub.Notify(ctx, ev)
		m.WSClients.Set(float64(hub.ClientCount()))
		return err
	})))

	if rdb != nil {
		pub := redis.NewPublisher(rdb, nil)
		pub.Breaker().OnStateChange = func(from, to redis.State) {
			m.RedisBreakerSt.Set(float64(to))
			if to == redis.StateOpen {
				m.RedisTrips.Inc()
			}
		}
		fan.Add(counted(m, "redis", pub))
	}

	asyncCtx, stopAsync := context.WithCancel(context.Background())
	var asyncWG sync.WaitGroup
	startAsync := func(name string, next notification.Notifier) {
		a := notification.NewAsync(name, notification.OnlyKinds(next, notification.AlertKinds...), 128)
		a.OnDrop = func(notification.Event) { m.NotifyDropped.WithLabelValues(name).Inc() }
		fan.Add(counted(m, name, a))
		asyncWG.Add(1)
		go func() {
			defer asyncWG.Done()
			a.Run(asyncCtx, 5*time.Second)
		}()
	}
	telegramOn, webhookOn := cfg.NotificationsEnabled()
	if telegramOn {
		startAsync("telegram", notification.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	if webhookOn {
		startAsync("webhook", notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	defer func() {
		stopAsync()
		asyncWG.Wait()
	}()

	// ---- Decision loop ----
	// SessionStart stays zero: the paper account is fresh per process, so
	// every deal it reports belongs to this session.
	runner, err := engine.New(ctx, engine.Config{
		SessionID:        sessionID,
		Symbol:           cfg.Symbol,
		Timeframe:        cfg.Timeframe,
		BarCount:         cfg.BarCount,
		Mode:             strategy.ParseMode(cfg.Mode),
		RiskPercent:      cfg.RiskPercent,
		FXRate:           cfg.FXRate,
		Limits:           cfg.SessionLimits(),
		TargetProfitPct:  cfg.TargetProfitPct,
		MaxDrawdownPct:   cfg.MaxDrawdownPct,
		Instrument:       cfg.Instrument,
		MarketHoursGuard: cfg.MarketHoursGuard && !replaying,
	}, engine.Deps{
		Bars:    bars,
		Account: paper,
		Orders:  paper,
		Sink:    fan,
		Sizer:   cfg.Sizer(),
		Metrics: m,
		Health:  health,
	})
	if err != nil {
		return err
	}

	if !replaying {
		reporter, err := notification.NewReporter(ctx, cfg.ReportCron, fan, runner.SummaryEvent)
		if err != nil {
			return err
		}
		reporter.Start()
		defer reporter.Stop()

		health.StartLivenessChecker(ctx, 15*time.Second)

		if cfg.HTTPAddr != "" {
			ctlOpts := control.Options{
				Health:   health,
				Status:   func() any { return runner.Status() },
				Gatherer: reg,
				Stream:   hub,
				Stop: func(reason string) {
					slog.Warn("[autobot] remote stop", "reason", reason)
					cancel()
				},
				TOTPSecret: cfg.ControlTOTPSecret,
			}
			if journal != nil {
				ctlOpts.Journal = journal
			}
			srv := control.NewServer(cfg.HTTPAddr, control.NewRouter(ctlOpts))
			srv.Start()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				srv.Stop(shutdownCtx)
			}()
		}
	}

	if err := runner.Run(ctx, pacer); err != nil {
		return err
	}

	if replaying && opts.flatten {
		paper.Close()
		snap, _ := paper.Snapshot(context.Background())
		slog.Info("[autobot] replay flattened", "balance", snap.Balance)
	}

	sum := runner.Summary()
	slog.Info("[autobot] session finished",
		"session", sessionID, "start_balance", sum.StartBalance, "end_balance", sum.EndBalance,
		"pnl", sum.PnL, "trades", sum.TradesTaken, "stop_reason", sum.StopReason)
	return nil
}

// handleSignals cancels the loop on the first SIGINT/SIGTERM. A second
// signal, or the grace period running out, forces the process to exit.
func handleSignals(ctx context.Context, cancel context.CancelFunc, grace time.Duration) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return
	case sig := <-sigCh:
		slog.Warn("[autobot] shutdown signal received, finishing current tick", "signal", sig.String())
		cancel()
	}

	var force <-chan time.Time
	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		force = timer.C
	}
	select {
	case <-sigCh:
		slog.Error("[autobot] second signal, forcing exit")
	case <-force:
		slog.Error("[autobot] shutdown grace expired, forcing exit", "grace", grace)
	}
	os.Exit(1)
}

// counted wraps a sink so its delivery failures are counted per sink.
func counted(m *metrics.Metrics, name string, next notification.Notifier) notification.Notifier {
	return notification.NotifierFunc(func(ctx context.Context, ev notification.Event) error {
		err := next.Notify(ctx, ev)
		if err != nil {
			m.NotifyErrors.WithLabelValues(name).Inc()
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}
