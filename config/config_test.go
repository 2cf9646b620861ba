package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", cfg.Symbol)
	assert.Equal(t, "M5", cfg.Timeframe)
	assert.Equal(t, "scalping", cfg.Mode)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.InDelta(t, 0.05, cfg.MaxLotCeiling, 1e-12)
	assert.Equal(t, "EURUSD", cfg.Instrument.Symbol)

	limits := cfg.SessionLimits()
	assert.InDelta(t, 100.0, limits.DailyLossLimit, 1e-12)
	assert.Equal(t, 10, limits.MaxTradesPerDay)
	assert.Zero(t, limits.TargetBalance)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYMBOL", "xauusd")
	t.Setenv("TIMEFRAME", "m1")
	t.Setenv("POLL_INTERVAL", "15")
	t.Setenv("MODE", "Normal")
	t.Setenv("RISK_PERCENT", "1.5")
	t.Setenv("MAX_TRADES_PER_DAY", "3")
	t.Setenv("CONTRACT_SIZE", "100")
	t.Setenv("SHUTDOWN_GRACE", "2m")
	t.Setenv("MARKET_HOURS_GUARD", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", cfg.Symbol)
	assert.Equal(t, "M1", cfg.Timeframe)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, "normal", cfg.Mode)
	assert.InDelta(t, 1.5, cfg.RiskPercent, 1e-12)
	assert.Equal(t, 3, cfg.MaxTradesPerDay)
	assert.InDelta(t, 100.0, cfg.Instrument.ContractSize, 1e-12)
	assert.Equal(t, 2*time.Minute, cfg.ShutdownGrace)
	assert.True(t, cfg.MarketHoursGuard)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autobot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbol: GBPUSD
timeframe: H1
poll_interval: 30s
daily_loss_limit: 50
instrument:
  point: 0.0001
  volume_step: 0.1
paper:
  balance: 2500
`), 0o644))
	t.Setenv("DAILY_LOSS_LIMIT", "75")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "GBPUSD", cfg.Symbol)
	assert.Equal(t, "H1", cfg.Timeframe)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.InDelta(t, 75.0, cfg.DailyLossLimit, 1e-12)
	assert.InDelta(t, 0.0001, cfg.Instrument.Point, 1e-12)
	assert.InDelta(t, 0.1, cfg.Instrument.VolumeStep, 1e-12)
	assert.InDelta(t, 2500.0, cfg.Paper.Balance, 1e-12)
	assert.InDelta(t, 100.0, cfg.Paper.Leverage, 1e-12)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", cfg.Symbol)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"RISK_PERCENT": "0",
		"TIMEFRAME":    "M2",
		"BAR_COUNT":    "10",
		"WEBHOOK_URL":  "not a url",
		"LOG_LEVEL":    "loud",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_UnparsableNumber(t *testing.T) {
	t.Setenv("MIN_LOT", "lots")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_LOT")
}

func TestValidate_BalanceOrdering(t *testing.T) {
	cfg := Default()
	cfg.TargetBalance = 900
	cfg.MinBalance = 950
	assert.Error(t, cfg.Validate())

	cfg.TargetBalance = 1050
	assert.NoError(t, cfg.Validate())
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("90")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = parseDuration("1m30s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = parseDuration("soon")
	assert.Error(t, err)
}
