// Package redis connects the bot to Redis: bar history is read from
// per-instrument streams, and decision-loop events are published for
// dashboards and other consumers.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// BarStreamKey is the stream holding closed bars of symbol on timeframe.
func BarStreamKey(timeframe, symbol string) string {
	return "bars:" + timeframe + ":" + symbol
}

// EventChannel is the pub/sub channel events for symbol are published on.
func EventChannel(symbol string) string {
	return "autobot:events:" + symbol
}

// EventStreamKey is the capped stream of events for symbol.
func EventStreamKey(symbol string) string {
	return "autobot:events:stream:" + symbol
}

// LatestEventKey holds the last event of kind for symbol.
func LatestEventKey(symbol, kind string) string {
	return "autobot:latest:" + kind + ":" + symbol
}
