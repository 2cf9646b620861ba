package portfolio

import (
	"sort"
	"time"

	"trading-autobot/internal/model"
)

// DealLedger records closed deals once each and keeps the session's
// realized P&L statistics.
type DealLedger struct {
	since time.Time
	seen  map[string]struct{}
	deals []model.Deal

	realized    float64
	grossProfit float64
	grossLoss   float64
	wins        int
	losses      int
}

// NewDealLedger creates a ledger counting deals closed at or after since.
func NewDealLedger(since time.Time) *DealLedger {
	return &DealLedger{
		since: since,
		seen:  make(map[string]struct{}),
		deals: make([]model.Deal, 0, 64),
	}
}

// Since is the lower bound to query closed deals from. Re-querying an
// overlapping range is safe: tickets are deduplicated.
func (l *DealLedger) Since() time.Time {
	if n := len(l.deals); n > 0 && l.deals[n-1].ClosedAt.After(l.since) {
		return l.deals[n-1].ClosedAt
	}
	return l.since
}

// Record adds deals not seen before and returns them, oldest first.
// Deals closed before the session start are ignored.
func (l *DealLedger) Record(deals []model.Deal) []model.Deal {
	var fresh []model.Deal
	for _, d := range deals {
		if d.ClosedAt.Before(l.since) {
			continue
		}
		if _, ok := l.seen[d.Ticket]; ok {
			continue
		}
		l.seen[d.Ticket] = struct{}{}
		fresh = append(fresh, d)
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].ClosedAt.Before(fresh[j].ClosedAt) })

	for _, d := range fresh {
		l.deals = append(l.deals, d)
		l.realized += d.Profit
		if d.Profit > 0 {
			l.wins++
			l.grossProfit += d.Profit
		} else if d.Profit < 0 {
			l.losses++
			l.grossLoss += d.Profit
		}
	}
	return fresh
}

// Recent returns up to n deals, newest first.
func (l *DealLedger) Recent(n int) []model.Deal {
	if n <= 0 || n > len(l.deals) {
		n = len(l.deals)
	}
	out := make([]model.Deal, 0, n)
	for i := len(l.deals) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.deals[i])
	}
	return out
}

// LedgerSummary is the realized-trade summary of a session.
type LedgerSummary struct {
	Deals       int     `json:"deals"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"` // percent of deals with profit > 0
	RealizedPnL float64 `json:"realized_pnl"`
	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"`
	AvgPnL      float64 `json:"avg_pnl"`
}

// Summary returns the current ledger statistics.
func (l *DealLedger) Summary() LedgerSummary {
	s := LedgerSummary{
		Deals:       len(l.deals),
		Wins:        l.wins,
		Losses:      l.losses,
		RealizedPnL: l.realized,
		GrossProfit: l.grossProfit,
		GrossLoss:   l.grossLoss,
	}
	if s.Deals > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Deals) * 100
		s.AvgPnL = s.RealizedPnL / float64(s.Deals)
	}
	return s
}
