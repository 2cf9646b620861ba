// Package config loads the autobot configuration: an optional YAML file,
// then a .env file, then process environment overrides, then defaults,
// validated before use.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"trading-autobot/internal/model"
	"trading-autobot/internal/notification"
	"trading-autobot/internal/portfolio"
	"trading-autobot/internal/strategy"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Symbol       string        `yaml:"symbol" validate:"required"`
	Timeframe    string        `yaml:"timeframe" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	BarCount     int           `yaml:"bar_count" validate:"gte=30,lte=5000"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	Mode         string        `yaml:"mode" validate:"required"`

	// Sizing
	RiskPercent     float64 `yaml:"risk_percent" validate:"gt=0,lte=100"`
	MinLot          float64 `yaml:"min_lot" validate:"gt=0"`
	MaxLotCeiling   float64 `yaml:"max_lot_ceiling" validate:"gt=0"`
	AccountCurrency string  `yaml:"account_currency" validate:"omitempty,len=3,alpha"`
	FXRate          float64 `yaml:"fx_rate" validate:"gt=0"`

	// Session limits. Zero TargetBalance/MinBalance derive from the
	// starting balance and the percentages.
	DailyLossLimit  float64 `yaml:"daily_loss_limit" validate:"gte=0"`
	MaxTradesPerDay int     `yaml:"max_trades_per_day" validate:"gte=0"`
	TargetBalance   float64 `yaml:"target_balance" validate:"gte=0"`
	MinBalance      float64 `yaml:"min_balance" validate:"gte=0"`
	TargetProfitPct float64 `yaml:"target_profit_pct" validate:"gte=0"`
	MaxDrawdownPct  float64 `yaml:"max_drawdown_pct" validate:"gte=0,lt=100"`

	// Instrument fills what the account source does not report.
	Instrument model.InstrumentSpec `yaml:"instrument"`

	Paper struct {
		Balance  float64 `yaml:"balance" validate:"gt=0"`
		Leverage float64 `yaml:"leverage" validate:"gte=0"`
	} `yaml:"paper"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`

	JournalPath string `yaml:"journal_path"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`

	HTTPAddr          string        `yaml:"http_addr"`
	ControlTOTPSecret string        `yaml:"control_totp_secret"`
	ReportCron        string        `yaml:"report_cron"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace" validate:"gte=0"`
	MarketHoursGuard  bool          `yaml:"market_hours_guard"`
	LogLevel          string        `yaml:"log_level" validate:"oneof=debug info warn warning error"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Symbol:       "EURUSD",
		Timeframe:    "M5",
		BarCount:     100,
		PollInterval: 10 * time.Second,
		Mode:         string(strategy.ModeScalping),

		RiskPercent:     0.5,
		MinLot:          portfolio.DefaultMinVolume,
		MaxLotCeiling:   portfolio.DefaultVolumeCeiling,
		AccountCurrency: "USD",
		FXRate:          1,

		DailyLossLimit:  100,
		MaxTradesPerDay: 10,
		TargetProfitPct: 5,
		MaxDrawdownPct:  5,

		JournalPath:   "data/journal.db",
		HTTPAddr:      ":9090",
		ReportCron:    notification.DefaultReportSchedule,
		ShutdownGrace: 10 * time.Second,
		LogLevel:      "info",
	}
	cfg.Paper.Balance = 10000
	cfg.Paper.Leverage = 100
	cfg.Redis.Addr = "localhost:6379"
	return cfg
}

// Load reads config from the YAML file at path (skipped when empty or
// missing), loads .env into the environment, then applies environment
// variable overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// .env never overrides variables already set in the process
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env: %v", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SYMBOL", &c.Symbol)
	str("TIMEFRAME", &c.Timeframe)
	integer("BAR_COUNT", &c.BarCount)
	duration("POLL_INTERVAL", &c.PollInterval)
	str("MODE", &c.Mode)

	float("RISK_PERCENT", &c.RiskPercent)
	float("MIN_LOT", &c.MinLot)
	float("MAX_LOT_CEILING", &c.MaxLotCeiling)
	str("ACCOUNT_CURRENCY", &c.AccountCurrency)
	float("FX_RATE", &c.FXRate)

	float("DAILY_LOSS_LIMIT", &c.DailyLossLimit)
	integer("MAX_TRADES_PER_DAY", &c.MaxTradesPerDay)
	float("TARGET_BALANCE", &c.TargetBalance)
	float("MIN_BALANCE", &c.MinBalance)
	float("TARGET_PROFIT_PCT", &c.TargetProfitPct)
	float("MAX_DRAWDOWN_PCT", &c.MaxDrawdownPct)

	float("POINT", &c.Instrument.Point)
	float("TICK_VALUE", &c.Instrument.TickValue)
	float("TICK_SIZE", &c.Instrument.TickSize)
	float("CONTRACT_SIZE", &c.Instrument.ContractSize)
	float("VOLUME_MIN", &c.Instrument.VolumeMin)
	float("VOLUME_MAX", &c.Instrument.VolumeMax)
	float("VOLUME_STEP", &c.Instrument.VolumeStep)

	float("PAPER_BALANCE", &c.Paper.Balance)
	float("PAPER_LEVERAGE", &c.Paper.Leverage)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)

	str("JOURNAL_PATH", &c.JournalPath)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	str("WEBHOOK_URL", &c.WebhookURL)

	str("HTTP_ADDR", &c.HTTPAddr)
	str("CONTROL_TOTP_SECRET", &c.ControlTOTPSecret)
	str("REPORT_CRON", &c.ReportCron)
	duration("SHUTDOWN_GRACE", &c.ShutdownGrace)
	boolean("MARKET_HOURS_GUARD", &c.MarketHoursGuard)
	str("LOG_LEVEL", &c.LogLevel)

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("1m30s") or bare seconds ("15").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func (c *Config) normalize() {
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.Timeframe = strings.ToUpper(strings.TrimSpace(c.Timeframe))
	c.Mode = string(strategy.ParseMode(c.Mode))
	c.AccountCurrency = strings.ToUpper(c.AccountCurrency)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Instrument.Symbol = c.Symbol
	if !strategy.Mode(c.Mode).Known() {
		log.Printf("[config] unknown mode %q, normal bands apply", c.Mode)
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.TargetBalance > 0 && c.MinBalance > 0 && c.MinBalance >= c.TargetBalance {
		return fmt.Errorf("invalid config: min_balance %.2f must be below target_balance %.2f", c.MinBalance, c.TargetBalance)
	}
	return nil
}

// SessionLimits returns the governor limits as configured. Derived
// balances are resolved by the engine once the starting balance is known.
func (c *Config) SessionLimits() portfolio.SessionLimits {
	return portfolio.SessionLimits{
		DailyLossLimit:  c.DailyLossLimit,
		MaxTradesPerDay: c.MaxTradesPerDay,
		TargetBalance:   c.TargetBalance,
		MinBalance:      c.MinBalance,
	}
}

// Sizer returns the position sizer for the configured lot bounds.
func (c *Config) Sizer() portfolio.Sizer {
	return portfolio.Sizer{MinVolume: c.MinLot, Ceiling: c.MaxLotCeiling}
}

// NotificationsEnabled reports which outbound channels are configured.
func (c *Config) NotificationsEnabled() (telegram, webhook bool) {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != "", c.WebhookURL != ""
}
