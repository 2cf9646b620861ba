package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"trading-autobot/config"
	"trading-autobot/internal/marketdata/replay"
	"trading-autobot/internal/marketdata/tfbuilder"
	"trading-autobot/internal/model"
	"trading-autobot/internal/store/redis"
	"trading-autobot/internal/store/sqlite"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

// newRootCmd creates the root command.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autobot",
		Short: "Single-instrument MACD/RSI momentum autobot",
		Long: `autobot polls bars for one instrument, detects MACD crossovers filtered by RSI,
sizes positions by risk, and stops the session on loss, trade-count and balance limits.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newLoadBarsCmd())
	rootCmd.AddCommand(newJournalCmd())
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("target-balance") {
		cfg.TargetBalance, _ = cmd.Flags().GetFloat64("target-balance")
	}
	if cmd.Flags().Changed("min-balance") {
		cfg.MinBalance, _ = cmd.Flags().GetFloat64("min-balance")
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode, _ = cmd.Flags().GetString("mode")
	}
	return cfg, cfg.Validate()
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("target-balance", 0, "stop once the balance reaches this value (default: start balance + TARGET_PROFIT_PCT)")
	cmd.Flags().Float64("min-balance", 0, "stop once the balance falls to this value (default: start balance - MAX_DRAWDOWN_PCT)")
	cmd.Flags().String("mode", "", "take-profit/stop-loss bands: scalping or normal")
	cmd.Flags().Bool("no-console", false, "disable the terminal monitor")
}

// newRunCmd trades live bars from Redis through the paper broker.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the polling loop on Redis bars",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			noConsole, _ := cmd.Flags().GetBool("no-console")
			return runSession(cmd.Context(), cfg, sessionOptions{console: !noConsole})
		},
	}
	addSessionFlags(cmd)
	return cmd
}

// newReplayCmd runs a CSV history through the same loop without sleeping.
func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay CSV bars through the decision loop",
		Example: `  autobot replay --csv data/EURUSD_M5.csv
  autobot replay --csv bars.csv --mode normal --no-console`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			csvPath, _ := cmd.Flags().GetString("csv")
			noConsole, _ := cmd.Flags().GetBool("no-console")
			flatten, _ := cmd.Flags().GetBool("flatten")
			resample, _ := cmd.Flags().GetBool("resample")
			return runSession(cmd.Context(), cfg, sessionOptions{
				csvPath:  csvPath,
				resample: resample,
				console:  !noConsole,
				flatten:  flatten,
			})
		},
	}
	cmd.Flags().String("csv", "", "CSV file with time,open,high,low,close[,volume] columns")
	cmd.Flags().Bool("flatten", true, "close open positions at the last bar when the replay ends")
	cmd.Flags().Bool("resample", false, "aggregate finer CSV bars into the configured timeframe")
	cmd.MarkFlagRequired("csv")
	addSessionFlags(cmd)
	return cmd
}

// newLoadBarsCmd seeds the Redis bar stream from a CSV file.
func newLoadBarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load-bars",
		Short: "Append CSV bars to the Redis stream read by 'run'",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			csvPath, _ := cmd.Flags().GetString("csv")
			resample, _ := cmd.Flags().GetBool("resample")

			tf := ""
			if resample {
				tf = cfg.Timeframe
			}
			bars, err := readBars(csvPath, tf)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			if err != nil {
				return err
			}
			defer rdb.Close()

			if err := redis.NewBarWriter(rdb).Append(ctx, cfg.Symbol, cfg.Timeframe, bars...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appended %d bars to %s\n", len(bars), redis.BarStreamKey(cfg.Timeframe, cfg.Symbol))
			return nil
		},
	}
	cmd.Flags().String("csv", "", "CSV file with time,open,high,low,close[,volume] columns")
	cmd.Flags().Bool("resample", false, "aggregate finer CSV bars into the configured timeframe")
	cmd.MarkFlagRequired("csv")
	return cmd
}

// readBars parses a CSV history. A non-empty timeframe resamples it.
func readBars(path, timeframe string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := replay.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if timeframe == "" {
		return bars, nil
	}
	tf, err := tfbuilder.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	out := tfbuilder.Resample(bars, tf)
	log.Printf("[autobot] resampled %d bars into %d %s bars", len(bars), len(out), timeframe)
	return out, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// newJournalCmd prints recent audit journal entries.
func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent events from the audit journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")

			j, err := sqlite.Open(cfg.JournalPath, "")
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.Events(context.WithoutCancel(cmd.Context()), kind, limit)
			if err != nil {
				return err
			}

			t := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))).
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == table.HeaderRow {
						return headerStyle
					}
					return cellStyle
				}).
				Headers("TIME", "SESSION", "TICK", "KIND", "GUARD", "MESSAGE")
			for _, r := range recs {
				t.Row(r.CreatedAt, r.SessionID, r.TickID, r.Kind, r.Guard, truncate(r.Message, 60))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	cmd.Flags().String("kind", "", "only show this event kind")
	cmd.Flags().Int("limit", 20, "number of events")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
