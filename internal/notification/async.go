package notification

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"trading-autobot/internal/ringbuf"
)

// ErrQueueFull is returned when an Async sink drops an event.
var ErrQueueFull = errors.New("notification queue full")

// Async decouples a slow sink from the decision loop. Notify enqueues and
// returns at once; Run delivers in order on its own goroutine.
type Async struct {
	next Notifier
	name string

	mu   sync.Mutex // serializes producers on the SPSC ring
	ring *ringbuf.Ring[Event]
	wake chan struct{}

	// OnDrop is called for every event rejected by a full queue.
	OnDrop func(ev Event)
}

// NewAsync wraps next with a queue of the given capacity.
func NewAsync(name string, next Notifier, capacity int) *Async {
	return &Async{
		next: next,
		name: name,
		ring: ringbuf.New[Event](capacity),
		wake: make(chan struct{}, 1),
	}
}

func (a *Async) Notify(_ context.Context, ev Event) error {
	a.mu.Lock()
	ok := a.ring.Push(ev)
	a.mu.Unlock()

	if !ok {
		if a.OnDrop != nil {
			a.OnDrop(ev)
		}
		return ErrQueueFull
	}
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued events.
func (a *Async) Pending() int { return a.ring.Len() }

// Dropped returns the number of events rejected so far.
func (a *Async) Dropped() uint64 { return a.ring.Overflow() }

// Run delivers queued events until ctx is cancelled, then flushes what is
// left. Deliveries use a context detached from ctx that is cancelled only
// drainTimeout after ctx is done, so an event popped at shutdown is still
// sent.
func (a *Async) Run(ctx context.Context, drainTimeout time.Duration) {
	deliverCtx, cancelDeliver := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDeliver()
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(drainTimeout, cancelDeliver)
	})
	defer stop()

	for {
		a.drain(deliverCtx)
		select {
		case <-ctx.Done():
			a.drain(deliverCtx)
			return
		case <-a.wake:
		}
	}
}

func (a *Async) drain(ctx context.Context) {
	for {
		ev, ok := a.ring.Pop()
		if !ok {
			return
		}
		if err := a.next.Notify(ctx, ev); err != nil {
			log.Printf("[notify] %s: deliver %s: %v", a.name, ev.Kind, err)
		}
	}
}
