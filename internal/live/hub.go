// Package live streams production events to floor displays over
// WebSocket. Stage boards subscribe once and re-render on each event
// instead of polling the ledger.
package live

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Event is the payload broadcast to all connected clients.
type Event struct {
	Type       string  `json:"type"`
	JobOrderID int64   `json:"job_order_id,omitempty"`
	RollID     int64   `json:"roll_id,omitempty"`
	Stage      string  `json:"stage,omitempty"`
	Quantity   float64 `json:"quantity,omitempty"`
	At         string  `json:"at,omitempty"`
}

// client wraps a connection with a mutex for serialised writes.
type client struct {
	conn *ws.Conn
	mu   sync.Mutex
}

// Hub maintains connected clients and broadcasts events.
type Hub struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Broadcast sends an event to all connected clients, dropping clients
// whose writes fail.
func (h *Hub) Broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("live: marshal event", slog.Any("error", err))
		return
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		writeErr := c.conn.WriteMessage(ws.TextMessage, data)
		c.mu.Unlock()
		if writeErr != nil {
			h.unregister(c)
		}
	}
}

// BroadcastRollStage publishes a roll transition to the floor.
func (h *Hub) BroadcastRollStage(jobOrderID, rollID int64, stage string, quantity float64, at time.Time) {
	h.Broadcast(Event{
		Type:       "roll_" + stage,
		JobOrderID: jobOrderID,
		RollID:     rollID,
		Stage:      stage,
		Quantity:   quantity,
		At:         at.UTC().Format(time.RFC3339),
	})
}

// BroadcastOrderChange publishes a job order header change.
func (h *Hub) BroadcastOrderChange(jobOrderID int64, action string, at time.Time) {
	h.Broadcast(Event{
		Type:       "order_" + action,
		JobOrderID: jobOrderID,
		At:         at.UTC().Format(time.RFC3339),
	})
}

var upgrader = ws.Upgrader{
	// Displays run on the shop LAN behind the reverse proxy; the proxy
	// enforces the allowed origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the connection and keeps it alive with pings.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("live: upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn}
	h.register(c)
	h.logger.Info("live: client connected", slog.Int("total", h.ClientCount()))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			c.mu.Lock()
			err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
	h.logger.Info("live: client disconnected", slog.Int("total", h.ClientCount()))
}

// String implements fmt.Stringer for debug logs.
func (e Event) String() string {
	return fmt.Sprintf("%s job=%d roll=%d", e.Type, e.JobOrderID, e.RollID)
}
