// Package gateway streams decision-loop events to WebSocket clients.
//
// The Hub is a notification sink: every event is wrapped in a sequenced
// envelope, kept in a replay buffer, and fanned out to connected clients.
// A client reconnecting with ?since=<seq> receives the events it missed;
// a new client receives the latest event of each kind.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"trading-autobot/internal/notification"

	"github.com/gorilla/websocket"
)

// Envelope is the wire format of one streamed event.
type Envelope struct {
	Seq     int64              `json:"seq"`
	Kind    string             `json:"kind"`
	TS      string             `json:"ts"`
	Initial bool               `json:"initial,omitempty"`
	Data    notification.Event `json:"data"`
}

// Hub manages WebSocket clients and event fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	latest  map[notification.EventKind][]byte
	replay  *ReplayBuffer

	upgrader websocket.Upgrader

	// OnDrop is called when a slow client misses an event.
	OnDrop func()
}

// NewHub creates a Hub keeping the last replaySize envelopes for backfill.
func NewHub(replaySize int) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[notification.EventKind][]byte),
		replay:  NewReplayBuffer(replaySize),
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
	}
}

// Notify sequences ev and broadcasts it. It never blocks on a client.
func (h *Hub) Notify(_ context.Context, ev notification.Event) error {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	data, err := json.Marshal(Envelope{
		Seq:  seq,
		Kind: string(ev.Kind),
		TS:   ev.Time.UTC().Format(time.RFC3339Nano),
		Data: ev,
	})
	if err != nil {
		h.seq--
		h.mu.Unlock()
		return fmt.Errorf("gateway: marshal %s: %w", ev.Kind, err)
	}
	h.replay.Push(seq, data)
	h.latest[ev.Kind] = data
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if !c.enqueue(data) && h.OnDrop != nil {
			h.OnDrop()
		}
	}
	return nil
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256+h.replay.Cap()),
		hub:  h,
	}

	var since int64 = -1
	if s := r.URL.Query().Get("since"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
			since = v
		}
	}

	h.mu.Lock()
	h.clients[client] = true
	backlog := h.backlogLocked(since)
	h.mu.Unlock()

	for _, msg := range backlog {
		client.enqueue(msg)
	}

	log.Printf("[gateway] ws client connected (since=%d, backlog=%d)", since, len(backlog))
	go client.writePump()
	go client.readPump()
}

// backlogLocked returns what a joining client should see first.
func (h *Hub) backlogLocked(since int64) [][]byte {
	if since >= 0 {
		entries := h.replay.Range(since+1, h.seq)
		out := make([][]byte, len(entries))
		for i, e := range entries {
			out[i] = e.Data
		}
		return out
	}

	out := make([][]byte, 0, len(h.latest))
	for _, data := range h.latest {
		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		env.Initial = true
		if b, err := json.Marshal(env); err == nil {
			out = append(out, b)
		}
	}
	return out
}

// RemoveClient unregisters c and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last event.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
