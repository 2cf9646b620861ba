package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-autobot/internal/notification"

	goredis "github.com/go-redis/redis/v8"
)

const (
	eventStreamMaxLen = 5000
	latestEventTTL    = 24 * time.Hour
)

// Publisher is a notification sink that writes each event to Redis:
// PUBLISH for live subscribers, SET of the latest event per kind, and a
// capped XADD history. All three go out in one pipeline guarded by a
// circuit breaker, so a Redis outage costs the loop nothing but a fast
// ErrCircuitOpen.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// NewPublisher creates a publisher. A nil breaker gets a default one
// (5 failures, 10s reset).
func NewPublisher(client *goredis.Client, breaker *CircuitBreaker) *Publisher {
	if breaker == nil {
		breaker = NewCircuitBreaker("redis-publisher", 5, 10*time.Second)
	}
	return &Publisher{client: client, breaker: breaker}
}

// Breaker exposes the circuit breaker for health and metrics.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

func (p *Publisher) Notify(ctx context.Context, ev notification.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	payload := string(data)

	return p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Publish(ctx, EventChannel(ev.Symbol), payload)
		pipe.Set(ctx, LatestEventKey(ev.Symbol, string(ev.Kind)), payload, latestEventTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: EventStreamKey(ev.Symbol),
			MaxLen: eventStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"kind": string(ev.Kind), "data": payload},
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis: publish %s: %w", ev.Kind, err)
		}
		return nil
	})
}
