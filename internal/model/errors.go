package model

import "errors"

// Error kinds shared across the decision loop. Callers match them with
// errors.Is; producers wrap them with context.
var (
	// ErrInsufficientHistory: fewer bars than the detector needs.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrDegenerateStop: entry and stop coincide, volume floors to minimum.
	ErrDegenerateStop = errors.New("degenerate stop distance")

	// ErrInstrumentMetadataMissing: tick or contract parameters absent, a
	// documented fallback was used.
	ErrInstrumentMetadataMissing = errors.New("instrument metadata missing")

	// ErrDataUnavailable: market or account source could not answer.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrExecutionRejected: the order sink declined the order.
	ErrExecutionRejected = errors.New("execution rejected")
)
