package live

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *ws.Conn) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Registration is synchronous in ServeHTTP before the read loop; wait
	// for the hub to see the client.
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	return hub, conn
}

func TestBroadcastRollStage(t *testing.T) {
	hub, conn := newTestHub(t)

	hub.BroadcastRollStage(42, 7, "received", 55, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt Event
	require.NoError(t, json.Unmarshal(payload, &evt))
	require.Equal(t, "roll_received", evt.Type)
	require.Equal(t, int64(42), evt.JobOrderID)
	require.Equal(t, int64(7), evt.RollID)
	require.Equal(t, 55.0, evt.Quantity)
	require.Equal(t, "2026-03-14T09:00:00Z", evt.At)
}

func TestBroadcastOrderChange(t *testing.T) {
	hub, conn := newTestHub(t)

	hub.BroadcastOrderChange(42, "created", time.Now())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt Event
	require.NoError(t, json.Unmarshal(payload, &evt))
	require.Equal(t, "order_created", evt.Type)
}

func TestDisconnectedClientIsDropped(t *testing.T) {
	hub, conn := newTestHub(t)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		hub.Broadcast(Event{Type: "noop"})
		return hub.ClientCount() == 0
	}, 2*time.Second, 50*time.Millisecond)
}
