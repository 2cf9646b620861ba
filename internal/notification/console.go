package notification

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	consoleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	consoleBox = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	consoleLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	consoleBuy = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#10B981"))

	consoleSell = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EF4444"))

	consoleWarn = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	consoleStop = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#EF4444")).
			Padding(0, 1)
)

// Console renders events as a terminal monitor: account, positions,
// indicators and governor counters per tick, plus one-line signal and
// order notices.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console sink writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Notify(_ context.Context, ev Event) error {
	out := c.Render(ev)
	if out == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, out)
	return err
}

// Render returns the console text for ev.
func (c *Console) Render(ev Event) string {
	ts := ev.Time.Format("15:04:05")
	switch ev.Kind {
	case EventTickSummary:
		return c.renderTick(ev)
	case EventSignalDetected:
		if ev.Proposal == nil {
			return ""
		}
		p := ev.Proposal
		style := consoleBuy
		if p.Action == "SELL" {
			style = consoleSell
		}
		return fmt.Sprintf("%s %s %s entry %.5f sl %.5f tp %.5f vol %.2f rsi %.1f",
			ts, style.Render(string(p.Action)), ev.Symbol, p.Entry, p.StopLoss, p.TakeProfit, ev.Volume, p.RSI)
	case EventOrderResult:
		if ev.Order == nil {
			return ""
		}
		if ev.Order.Accepted {
			return fmt.Sprintf("%s %s ticket %s at %.5f", ts, consoleBuy.Render("FILLED"), ev.Order.Ticket, ev.Order.Price)
		}
		return fmt.Sprintf("%s %s %s", ts, consoleSell.Render("REJECTED"), ev.Order.Reason)
	case EventTickSkipped:
		return fmt.Sprintf("%s %s", ts, consoleWarn.Render("skipped ["+ev.Guard+"] "+ev.Message))
	case EventSessionStopped:
		return consoleStop.Render(fmt.Sprintf("SESSION STOPPED [%s] %s", ev.Guard, ev.Message))
	case EventSessionSummary:
		return c.renderSummary(ev)
	}
	return ""
}

func (c *Console) renderTick(ev Event) string {
	var lines []string
	lines = append(lines, consoleTitle.Render(fmt.Sprintf("%s  %s", ev.Symbol, ev.Time.Format(time.DateTime))))

	if a := ev.Account; a != nil {
		lines = append(lines, row("balance", "%.2f", a.Balance)+"  "+row("equity", "%.2f", a.Equity)+"  "+
			row("margin", "%.2f", a.Margin)+"  "+row("free", "%.2f", a.FreeMargin))
	}
	if r := ev.Reading; r != nil {
		lines = append(lines, row("close", "%.5f", r.Close)+"  "+row("macd", "%.5f", r.MACD)+"  "+
			row("signal", "%.5f", r.Signal)+"  "+row("rsi", "%.1f", r.RSI))
		lines = append(lines, row("bands", "%.5f / %.5f / %.5f", r.BandLower, r.BandMiddle, r.BandUpper))
	}
	if s := ev.Session; s != nil {
		lines = append(lines, row("trades", "%d", s.TradesTaken)+"  "+row("loss", "%.2f", s.CumulativeLoss)+"  "+
			row("target", "%.2f", s.TargetBalance)+"  "+row("floor", "%.2f", s.MinBalance))
	}
	if l := ev.Ledger; l != nil && l.Deals > 0 {
		lines = append(lines, row("closed", "%d", l.Deals)+"  "+row("win rate", "%.1f%%", l.WinRate)+"  "+
			row("realized", "%.2f", l.RealizedPnL))
	}
	if len(ev.Positions) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("TICKET", "TYPE", "VOLUME", "OPEN", "SL", "TP", "PROFIT")
		for _, p := range ev.Positions {
			t.Row(p.Ticket, string(p.Action), fmt.Sprintf("%.2f", p.Volume), fmt.Sprintf("%.5f", p.PriceOpen),
				fmt.Sprintf("%.5f", p.StopLoss), fmt.Sprintf("%.5f", p.TakeProfit), fmt.Sprintf("%.2f", p.Profit))
		}
		lines = append(lines, t.Render())
	} else {
		lines = append(lines, consoleLabel.Render("no open positions"))
	}
	if ev.Message != "" {
		lines = append(lines, consoleLabel.Render(ev.Message))
	}
	return consoleBox.Render(strings.Join(lines, "\n"))
}

func (c *Console) renderSummary(ev Event) string {
	s := ev.Summary
	if s == nil {
		return ""
	}
	lines := []string{
		consoleTitle.Render("SESSION SUMMARY " + ev.Symbol),
		row("start balance", "%.2f", s.StartBalance),
		row("end balance", "%.2f", s.EndBalance),
		row("profit/loss", "%.2f", s.PnL),
		row("trades", "%d", s.TradesTaken),
		row("closed deals", "%d (%d won, %d lost)", s.Ledger.Deals, s.Ledger.Wins, s.Ledger.Losses),
		row("win rate", "%.1f%%", s.Ledger.WinRate),
		row("runtime", "%s", s.Runtime.Round(time.Second)),
	}
	if s.StopReason != "" {
		lines = append(lines, row("stop reason", "%s", s.StopReason))
	}
	return consoleBox.Render(strings.Join(lines, "\n"))
}

func row(label, format string, args ...any) string {
	return consoleLabel.Render(label+":") + " " + fmt.Sprintf(format, args...)
}
