package engine

import (
	"context"
	"time"
)

// Pacer blocks between ticks. A non-nil error ends the run.
type Pacer interface {
	Wait(ctx context.Context) error
}

// SleepPacer waits a fixed interval, waking early on cancellation.
type SleepPacer struct {
	Interval time.Duration
}

func (p SleepPacer) Wait(ctx context.Context) error {
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Advancer reveals the next bar of a replayed history.
type Advancer interface {
	Advance() error
}

// ReplayPacer steps a replay feed one bar per tick without sleeping.
type ReplayPacer struct {
	Feed Advancer
}

func (p ReplayPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Feed.Advance()
}
