// Package realtime streams license lifecycle events over WebSocket.
//
// Dashboards subscribe instead of polling: credit debits, low-balance
// warnings, resets, and activations are pushed as they happen.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ipvlabs/vendord/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
)

// normalCloseCodes are WebSocket close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// Event is a pushed lifecycle event. Event names match the webhook
// emitter's so a dashboard can treat both channels the same.
type Event struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Subscription filters for a client.
type Subscription struct {
	AllEvents  bool     `json:"allEvents"`
	Events     []string `json:"events"`
	LicenseIDs []string `json:"licenseIds"` // Watch specific licenses
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// MaxClients is the maximum number of concurrent WebSocket connections.
const MaxClients = 1000

// Hub manages all WebSocket connections.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	// Stats
	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case event := <-h.broadcast:
			h.dispatch(event)
		}
	}
}

func (h *Hub) closeAll() {
	h.logger.Info("realtime hub shutting down, closing client connections")
	h.mu.Lock()
	for client := range h.clients {
		close(client.send) // writePump sends CloseMessage on closed channel
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(0)
	h.logger.Info("realtime hub stopped")
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.totalClients.Add(1)
	if current := int64(len(h.clients)); current > h.peakClients.Load() {
		h.peakClients.Store(current)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Info("client connected", "total", n)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Info("client disconnected", "total", n)
}

// dispatch fans the event out to matching clients. A client whose send
// buffer is full is dropped rather than allowed to stall the loop.
func (h *Hub) dispatch(event *Event) {
	h.totalEvents.Add(1)
	payload := h.serialize(event)

	h.mu.RLock()
	var slow []*Client
	for client := range h.clients {
		if h.shouldSend(client, event) {
			select {
			case client.send <- payload:
			default:
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, client := range slow {
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
			}
		}
		h.mu.Unlock()
	}
}

// shouldSend checks if event matches client's subscription.
func (h *Hub) shouldSend(client *Client, event *Event) bool {
	client.mu.RLock()
	sub := client.sub
	client.mu.RUnlock()

	if sub.AllEvents {
		return true
	}

	if len(sub.Events) > 0 {
		matched := false
		for _, name := range sub.Events {
			if name == event.Event {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(sub.LicenseIDs) > 0 {
		data, ok := event.Data.(map[string]interface{})
		if !ok {
			return false
		}
		id, _ := data["license_id"].(string)
		matched := false
		for _, want := range sub.LicenseIDs {
			if want == id {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

func (h *Hub) serialize(event *Event) []byte {
	data, _ := json.Marshal(event)
	return data
}

// Broadcast sends an event to all matching clients.
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event")
	}
}

// Emit satisfies the notifier shape used by the credit service.
func (h *Hub) Emit(ctx context.Context, event string, payload interface{}) {
	h.Broadcast(&Event{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
}

// Stats returns hub statistics.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"connectedClients": len(h.clients),
		"totalEvents":      h.totalEvents.Load(),
		"totalClients":     h.totalClients.Load(),
		"peakClients":      h.peakClients.Load(),
	}
}

// HandleWebSocket upgrades HTTP to WebSocket.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true}, // Default: all events
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from WebSocket (subscription updates, pings).
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

// writePump writes messages to WebSocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
