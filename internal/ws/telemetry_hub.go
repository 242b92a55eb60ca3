// Package ws pushes per-source telemetry to websocket clients.
package ws

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crosswatch/internal/logging"
	"crosswatch/internal/pipeline"
	"crosswatch/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// client is one websocket connection. Only writePump writes to conn.
type client struct {
	sourceID string
	conn     *websocket.Conn
	send     chan []byte
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// TelemetryHub fans report messages out to the clients of each source
type TelemetryHub struct {
	// clients maps source_id -> set of connections
	clients map[string]map[*client]bool
	logger  logging.Logger
	mu      sync.RWMutex
}

// NewTelemetryHub creates a new telemetry hub
func NewTelemetryHub(logger logging.Logger) *TelemetryHub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TelemetryHub{
		clients: make(map[string]map[*client]bool),
		logger:  logger.Named("ws"),
	}
}

// register adds a connection for a source and starts its writer
func (h *TelemetryHub) register(sourceID string, conn *websocket.Conn) *client {
	c := &client{sourceID: sourceID, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.clients[sourceID] == nil {
		h.clients[sourceID] = make(map[*client]bool)
	}
	h.clients[sourceID][c] = true
	total := len(h.clients[sourceID])
	h.mu.Unlock()

	go h.writePump(c)

	h.logger.Infow("client registered", "source", sourceID, "total", total)
	return c
}

// unregister removes a connection and stops its writer
func (h *TelemetryHub) unregister(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.sourceID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.sourceID)
		}
	}
	h.mu.Unlock()

	c.close()
	h.logger.Debugw("client unregistered", "source", c.sourceID)
}

// HasClients returns true if any client watches the source
func (h *TelemetryHub) HasClients(sourceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sourceID]) > 0
}

// Sources returns the source IDs that have clients, sorted
func (h *TelemetryHub) Sources() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClientCount returns the total number of connected clients
func (h *TelemetryHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// Broadcast queues a message for every client of a source. Clients whose
// queue is full are disconnected.
func (h *TelemetryHub) Broadcast(sourceID string, message []byte) {
	h.mu.RLock()
	var slow []*client
	for c := range h.clients[sourceID] {
		select {
		case c.send <- message:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warnw("dropping slow client", "source", sourceID)
		h.unregister(c)
	}
}

// OnReport implements pipeline.ReportHandler
func (h *TelemetryHub) OnReport(sourceID string, report *session.Report) {
	if !h.HasClients(sourceID) {
		return
	}

	for _, msg := range MessagesFromReport(sourceID, report) {
		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Errorw("error marshaling message", "error", err)
			continue
		}
		h.Broadcast(sourceID, data)
	}
}

// OnSourceStopped disconnects the clients of a stopped source
func (h *TelemetryHub) OnSourceStopped(sourceID string) {
	h.mu.Lock()
	conns := h.clients[sourceID]
	delete(h.clients, sourceID)
	h.mu.Unlock()

	for c := range conns {
		c.close()
	}
	if len(conns) > 0 {
		h.logger.Infow("source stopped, clients disconnected", "source", sourceID, "clients", len(conns))
	}
}

// Close disconnects every client
func (h *TelemetryHub) Close() {
	h.mu.Lock()
	var all []*client
	for _, conns := range h.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*client]bool)
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

// writePump owns all writes to the connection, including pings
func (h *TelemetryHub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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
				h.logger.Debugw("error sending to client", "error", err)
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// Ensure TelemetryHub implements ReportHandler
var (
	_ pipeline.ReportHandler     = (*TelemetryHub)(nil)
	_ pipeline.SourceStopHandler = (*TelemetryHub)(nil)
)
