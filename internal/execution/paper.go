// Package execution holds the order sinks the loop can trade through.
//
// PaperBroker simulates a single-instrument account: market orders fill at
// the last observed close and protective levels are checked against every
// later bar. It implements model.AccountSource, model.OrderSink and
// model.BarObserver.
package execution

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"trading-autobot/internal/model"

	"github.com/google/uuid"
)

const DefaultLeverage = 100

// PaperConfig configures the simulated account.
type PaperConfig struct {
	Balance    float64
	Leverage   float64
	Instrument model.InstrumentSpec
}

type paperPosition struct {
	model.Position
	openedAt time.Time
}

// PaperBroker simulates order execution without real broker calls.
type PaperBroker struct {
	mu         sync.Mutex
	balance    float64
	leverage   float64
	instrument model.InstrumentSpec

	last    model.Bar
	hasLast bool
	open    []paperPosition
	deals   []model.Deal
}

// NewPaperBroker creates a paper account. A non-positive leverage uses
// DefaultLeverage.
func NewPaperBroker(cfg PaperConfig) *PaperBroker {
	if cfg.Leverage <= 0 {
		cfg.Leverage = DefaultLeverage
	}
	return &PaperBroker{
		balance:    cfg.Balance,
		leverage:   cfg.Leverage,
		instrument: cfg.Instrument,
	}
}

// ObserveBar marks bar as the current price and closes positions whose
// stop or target the bar touched. Bars at or before a position's entry bar
// are ignored for that position. The stop is checked first.
func (p *PaperBroker) ObserveBar(bar model.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasLast && !bar.Time.After(p.last.Time) {
		if bar.Time.Equal(p.last.Time) {
			p.last = bar
		}
		return
	}
	p.last = bar
	p.hasLast = true

	kept := p.open[:0]
	for _, pos := range p.open {
		if !bar.Time.After(pos.openedAt) {
			kept = append(kept, pos)
			continue
		}
		exit, hit := exitPrice(pos.Position, bar)
		if !hit {
			kept = append(kept, pos)
			continue
		}
		p.closeLocked(pos, exit, bar.Time)
	}
	p.open = kept
}

func exitPrice(pos model.Position, bar model.Bar) (float64, bool) {
	switch pos.Action {
	case model.ActionBuy:
		if pos.StopLoss > 0 && bar.Low <= pos.StopLoss {
			return pos.StopLoss, true
		}
		if pos.TakeProfit > 0 && bar.High >= pos.TakeProfit {
			return pos.TakeProfit, true
		}
	case model.ActionSell:
		if pos.StopLoss > 0 && bar.High >= pos.StopLoss {
			return pos.StopLoss, true
		}
		if pos.TakeProfit > 0 && bar.Low <= pos.TakeProfit {
			return pos.TakeProfit, true
		}
	}
	return 0, false
}

func (p *PaperBroker) closeLocked(pos paperPosition, price float64, at time.Time) {
	profit := p.profit(pos.Position, price)
	p.balance += profit
	p.deals = append(p.deals, model.Deal{
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Action:     pos.Action,
		Volume:     pos.Volume,
		PriceOpen:  pos.PriceOpen,
		PriceClose: price,
		ClosedAt:   at,
		Profit:     profit,
	})
	log.Printf("[paper] closed %s %s %.2f ticket=%s open=%.5f close=%.5f profit=%.2f",
		pos.Action, pos.Symbol, pos.Volume, pos.Ticket, pos.PriceOpen, price, profit)
}

func (p *PaperBroker) profit(pos model.Position, price float64) float64 {
	diff := price - pos.PriceOpen
	if pos.Action == model.ActionSell {
		diff = -diff
	}
	return diff * pos.Volume * p.contractSize()
}

func (p *PaperBroker) contractSize() float64 {
	if p.instrument.ContractSize > 0 {
		return p.instrument.ContractSize
	}
	return 100000
}

func (p *PaperBroker) marginFor(volume, price float64) float64 {
	return volume * p.contractSize() * price / p.leverage
}

// SubmitMarketOrder fills req at the last observed close. Orders are
// declined, not errored, when no price is known, the symbol differs or
// free margin is short.
func (p *PaperBroker) SubmitMarketOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return model.OrderResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case !p.hasLast:
		return model.OrderResult{Reason: "no price"}, nil
	case p.instrument.Symbol != "" && req.Symbol != p.instrument.Symbol:
		return model.OrderResult{Reason: fmt.Sprintf("unknown symbol %q", req.Symbol)}, nil
	case req.Volume <= 0:
		return model.OrderResult{Reason: "invalid volume"}, nil
	case req.Action != model.ActionBuy && req.Action != model.ActionSell:
		return model.OrderResult{Reason: fmt.Sprintf("invalid action %q", req.Action)}, nil
	}

	price := p.last.Close
	snap := p.snapshotLocked()
	if need := p.marginFor(req.Volume, price); need > snap.FreeMargin {
		log.Printf("[paper] rejected %s %s %.2f: margin %.2f > free %.2f",
			req.Action, req.Symbol, req.Volume, need, snap.FreeMargin)
		return model.OrderResult{Reason: "not enough money"}, nil
	}

	ticket := uuid.NewString()
	p.open = append(p.open, paperPosition{
		Position: model.Position{
			Ticket:     ticket,
			Symbol:     req.Symbol,
			Action:     req.Action,
			Volume:     req.Volume,
			PriceOpen:  price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
		},
		openedAt: p.last.Time,
	})
	log.Printf("[paper] %s %s %.2f at %.5f sl=%.5f tp=%.5f ticket=%s comment=%q",
		req.Action, req.Symbol, req.Volume, price, req.StopLoss, req.TakeProfit, ticket, req.Comment)

	return model.OrderResult{Accepted: true, Ticket: ticket, Price: price, Reason: "filled"}, nil
}

// Snapshot reports balance, equity and margin at the last observed close.
func (p *PaperBroker) Snapshot(ctx context.Context) (model.AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(), nil
}

func (p *PaperBroker) snapshotLocked() model.AccountSnapshot {
	var floating, margin float64
	for _, pos := range p.open {
		if p.hasLast {
			floating += p.profit(pos.Position, p.last.Close)
		}
		margin += p.marginFor(pos.Volume, pos.PriceOpen)
	}
	equity := p.balance + floating
	return model.AccountSnapshot{
		Balance:    p.balance,
		Equity:     equity,
		Margin:     margin,
		FreeMargin: equity - margin,
	}
}

// Positions returns the open positions on symbol with floating profit.
func (p *PaperBroker) Positions(ctx context.Context, symbol string) ([]model.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Position, 0, len(p.open))
	for _, pos := range p.open {
		if pos.Symbol != symbol {
			continue
		}
		cp := pos.Position
		if p.hasLast {
			cp.Profit = p.profit(cp, p.last.Close)
		}
		out = append(out, cp)
	}
	return out, nil
}

// ClosedDeals returns deals on symbol closed at or after since, oldest first.
func (p *PaperBroker) ClosedDeals(ctx context.Context, symbol string, since time.Time) ([]model.Deal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []model.Deal
	for _, d := range p.deals {
		if d.Symbol == symbol && !d.ClosedAt.Before(since) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClosedAt.Before(out[j].ClosedAt) })
	return out, nil
}

// Instrument returns the configured economics of symbol.
func (p *PaperBroker) Instrument(ctx context.Context, symbol string) (model.InstrumentSpec, error) {
	spec := p.instrument
	spec.Symbol = symbol
	return spec, nil
}

// Close force-closes every open position at the last observed close.
func (p *PaperBroker) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasLast {
		return
	}
	for _, pos := range p.open {
		p.closeLocked(pos, p.last.Close, p.last.Time)
	}
	p.open = nil
}
