// Package sqlite keeps an append-only audit journal of decision-loop
// events. The loop never reads it back; it exists so governor decisions
// and fills can be reconstructed after the fact.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"trading-autobot/internal/notification"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists events to SQLite.
type Journal struct {
	mu        sync.Mutex
	db        *sql.DB
	sessionID string
}

// Open opens (or creates) the journal database at dbPath. Every row is
// tagged with sessionID.
func Open(dbPath, sessionID string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[journal] opened event journal at %s (session %s)", dbPath, sessionID)
	return &Journal{db: db, sessionID: sessionID}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id        TEXT    NOT NULL,
			session_id      TEXT    NOT NULL,
			tick_id         TEXT,
			kind            TEXT    NOT NULL,
			level           TEXT    NOT NULL,
			symbol          TEXT    NOT NULL,
			guard           TEXT,
			message         TEXT,
			action          TEXT,
			price           REAL,
			stop_loss       REAL,
			take_profit     REAL,
			volume          REAL,
			accepted        INTEGER,
			reason          TEXT,
			balance         REAL,
			equity          REAL,
			trades_taken    INTEGER,
			cumulative_loss REAL,
			data            TEXT    NOT NULL,
			created_at      TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
		CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`)
	return err
}

// Notify appends ev to the journal.
func (j *Journal) Notify(ctx context.Context, ev notification.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}

	var (
		action                 sql.NullString
		price, sl, tp          sql.NullFloat64
		accepted               sql.NullBool
		reason                 sql.NullString
		balance, equity        sql.NullFloat64
		tradesTaken            sql.NullInt64
		cumulativeLoss, volume sql.NullFloat64
	)
	if p := ev.Proposal; p != nil {
		action = sql.NullString{String: string(p.Action), Valid: true}
		price = sql.NullFloat64{Float64: p.Entry, Valid: true}
		sl = sql.NullFloat64{Float64: p.StopLoss, Valid: true}
		tp = sql.NullFloat64{Float64: p.TakeProfit, Valid: true}
	}
	if ev.Volume > 0 {
		volume = sql.NullFloat64{Float64: ev.Volume, Valid: true}
	}
	if o := ev.Order; o != nil {
		accepted = sql.NullBool{Bool: o.Accepted, Valid: true}
		reason = sql.NullString{String: o.Reason, Valid: o.Reason != ""}
		if o.Accepted {
			price = sql.NullFloat64{Float64: o.Price, Valid: true}
		}
	}
	if a := ev.Account; a != nil {
		balance = sql.NullFloat64{Float64: a.Balance, Valid: true}
		equity = sql.NullFloat64{Float64: a.Equity, Valid: true}
	}
	if s := ev.Session; s != nil {
		tradesTaken = sql.NullInt64{Int64: int64(s.TradesTaken), Valid: true}
		cumulativeLoss = sql.NullFloat64{Float64: s.CumulativeLoss, Valid: true}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, tick_id, kind, level, symbol, guard, message,
			action, price, stop_loss, take_profit, volume, accepted, reason,
			balance, equity, trades_taken, cumulative_loss, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, j.sessionID, ev.TickID, string(ev.Kind), string(ev.Level), ev.Symbol, ev.Guard, ev.Message,
		action, price, sl, tp, volume, accepted, reason,
		balance, equity, tradesTaken, cumulativeLoss, string(data), ev.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", ev.Kind, err)
	}
	return nil
}

// Record is a row from the events table.
type Record struct {
	ID        int64  `json:"id"`
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	TickID    string `json:"tick_id"`
	Kind      string `json:"kind"`
	Level     string `json:"level"`
	Symbol    string `json:"symbol"`
	Guard     string `json:"guard"`
	Message   string `json:"message"`
	Data      string `json:"data"`
	CreatedAt string `json:"created_at"`
}

// Events returns the last limit events, newest first. An empty kind
// matches every kind.
func (j *Journal) Events(ctx context.Context, kind string, limit int) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, event_id, session_id, COALESCE(tick_id, ''), kind, level, symbol,
			COALESCE(guard, ''), COALESCE(message, ''), data, created_at
		 FROM events
		 WHERE (? = '' OR kind = ?)
		 ORDER BY id DESC LIMIT ?`, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.EventID, &r.SessionID, &r.TickID, &r.Kind, &r.Level, &r.Symbol,
			&r.Guard, &r.Message, &r.Data, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Event decodes the stored event.
func (r Record) Event() (notification.Event, error) {
	var ev notification.Event
	err := json.Unmarshal([]byte(r.Data), &ev)
	return ev, err
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
