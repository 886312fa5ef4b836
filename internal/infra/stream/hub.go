// Package stream pushes every cycle's opportunities to WebSocket clients.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"arbscan/internal/domain"
	"arbscan/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 512
	sendBufferSize = 256
	broadcastSize  = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Type        string                    `json:"type"` // "opportunity" | "cycle"
	CycleID     string                    `json:"cycle_id"`
	Opportunity *domain.OpportunityRecord `json:"opportunity,omitempty"`
	Cycle       *CycleSummary             `json:"cycle,omitempty"`
}

// CycleSummary closes every cycle so clients can tell an empty cycle from a
// stalled feed.
type CycleSummary struct {
	StartedAt     time.Time `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
	Quotes        int       `json:"quotes"`
	Opportunities int       `json:"opportunities"`
	Errors        int       `json:"errors"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewHub creates a hub. metrics may be nil.
func NewHub(metrics *infra.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, broadcastSize),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     slog.Default().With("module", "stream"),
	}
}

// Run handles registration and broadcasting until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.IncrementStreamClients()
			}
			h.logger.Info("🔌 Stream client connected", slog.Int("clients", h.ClientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				h.drop(c)
			}
			h.mu.Unlock()
			h.logger.Info("Stream client disconnected", slog.Int("clients", h.ClientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// 느린 클라이언트는 메시지를 건너뜀
					h.logger.Warn("Dropping message for slow stream client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	if h.metrics != nil {
		h.metrics.DecrementStreamClients()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Persist implements domain.ResultSink. Messages that do not fit in the
// broadcast buffer are dropped and reported.
func (h *Hub) Persist(ctx context.Context, result *domain.ScanCycleResult) error {
	msgs := make([]Message, 0, len(result.Opportunities)+1)
	for _, o := range result.Opportunities {
		rec := o.Record()
		msgs = append(msgs, Message{Type: "opportunity", CycleID: result.ID, Opportunity: &rec})
	}
	msgs = append(msgs, Message{Type: "cycle", CycleID: result.ID, Cycle: &CycleSummary{
		StartedAt:     result.StartedAt.UTC(),
		DurationMS:    result.Duration.Milliseconds(),
		Quotes:        len(result.Quotes),
		Opportunities: len(result.Opportunities),
		Errors:        len(result.Errors),
	}})

	dropped := 0
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode stream message: %w", err)
		}
		select {
		case h.broadcast <- b:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("stream buffer full, dropped %d of %d messages", dropped, len(msgs))
	}
	return nil
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Stream upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ServeHTTP makes the hub mountable as an http.Handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWS(w, r)
}

// readPump only services control frames; clients do not send data.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("Stream client closed unexpectedly", slog.Any("error", err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
