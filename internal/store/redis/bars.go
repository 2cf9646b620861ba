package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"trading-autobot/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// barStreamMaxLen keeps roughly a week of one-minute bars.
const barStreamMaxLen = 10080

// BarReader serves bar history from Redis streams. Each entry carries the
// bar as JSON in its "data" field.
type BarReader struct {
	client *goredis.Client
}

// NewBarReader creates a reader over client.
func NewBarReader(client *goredis.Client) *BarReader {
	return &BarReader{client: client}
}

// GetBars returns the last count bars of symbol, oldest first.
func (r *BarReader) GetBars(ctx context.Context, symbol, timeframe string, count int) ([]model.Bar, error) {
	if count <= 0 {
		return nil, fmt.Errorf("redis: bar count %d: %w", count, model.ErrDataUnavailable)
	}
	stream := BarStreamKey(timeframe, symbol)

	msgs, err := r.client.XRevRangeN(ctx, stream, "+", "-", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: xrevrange %s: %v: %w", stream, err, model.ErrDataUnavailable)
	}

	bars := make([]model.Bar, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var b model.Bar
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			log.Printf("[redis] skip bad bar %s in %s: %v", msgs[i].ID, stream, err)
			continue
		}
		bars = append(bars, b)
	}

	if len(bars) < count {
		return nil, fmt.Errorf("redis: %s has %d bars, %d requested: %w", stream, len(bars), count, model.ErrDataUnavailable)
	}
	return bars, nil
}

// BarWriter appends closed bars to the per-instrument streams.
type BarWriter struct {
	client *goredis.Client
}

// NewBarWriter creates a writer over client.
func NewBarWriter(client *goredis.Client) *BarWriter {
	return &BarWriter{client: client}
}

// Append writes bars, oldest first, in one pipeline.
func (w *BarWriter) Append(ctx context.Context, symbol, timeframe string, bars ...model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	stream := BarStreamKey(timeframe, symbol)

	pipe := w.client.Pipeline()
	for _, b := range bars {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("redis: marshal bar: %w", err)
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: stream,
			MaxLen: barStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(data)},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append %d bars to %s: %w", len(bars), stream, err)
	}
	return nil
}
