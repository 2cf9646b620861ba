package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trading-autobot/internal/notification"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestHub_BroadcastAndReplay(t *testing.T) {
	hub := NewHub(50)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx := context.Background()
	require.NoError(t, hub.Notify(ctx, notification.NewEvent(notification.EventTickSummary, "XAUUSD")))

	// a fresh client gets the latest event per kind, flagged initial
	live := dial(t, srv, "")
	env := readEnvelope(t, live)
	assert.True(t, env.Initial)
	assert.Equal(t, "tick_summary", env.Kind)
	assert.Equal(t, int64(1), env.Seq)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Notify(ctx, notification.NewEvent(notification.EventSignalDetected, "XAUUSD")))
	env = readEnvelope(t, live)
	assert.False(t, env.Initial)
	assert.Equal(t, "signal_detected", env.Kind)
	assert.Equal(t, int64(2), env.Seq)
	assert.Equal(t, "XAUUSD", env.Data.Symbol)

	// a reconnecting client backfills everything after its last seq
	back := dial(t, srv, "?since=0")
	assert.Equal(t, int64(1), readEnvelope(t, back).Seq)
	assert.Equal(t, int64(2), readEnvelope(t, back).Seq)
	assert.Equal(t, int64(2), hub.Seq())
}
