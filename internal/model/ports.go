package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the decision loop from the terminal connector
// (broker, paper simulator, Redis feed, CSV replay). The loop only ever sees
// these ports.

// BarSource supplies the recent bar history of an instrument.
type BarSource interface {
	// GetBars returns the last count bars, most recent last.
	// Returns an error wrapping ErrDataUnavailable when fewer than count
	// bars can be supplied.
	GetBars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error)
}

// AccountSource reports account, position, and instrument state.
// All calls are fallible; the loop degrades rather than crashing.
type AccountSource interface {
	// Snapshot returns balance, equity, and margin figures.
	Snapshot(ctx context.Context) (AccountSnapshot, error)

	// Positions returns open positions on symbol.
	Positions(ctx context.Context, symbol string) ([]Position, error)

	// ClosedDeals returns deals on symbol closed at or after since.
	ClosedDeals(ctx context.Context, symbol string, since time.Time) ([]Deal, error)

	// Instrument returns the broker economics of symbol. Unknown fields are zero.
	Instrument(ctx context.Context, symbol string) (InstrumentSpec, error)
}

// OrderSink transmits market orders.
type OrderSink interface {
	// SubmitMarketOrder sends req. A non-nil error means the sink could not
	// be reached; a declined order comes back with Accepted=false.
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// BarObserver is implemented by sinks that simulate fills against bars.
type BarObserver interface {
	ObserveBar(bar Bar)
}
