package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades /ws/telemetry/{id} requests and registers them with the hub
type Handler struct {
	hub    *TelemetryHub
	exists func(sourceID string) bool
}

// NewHandler creates a new WebSocket handler. exists, when non-nil, rejects
// unknown sources before upgrading.
func NewHandler(hub *TelemetryHub, exists func(sourceID string) bool) *Handler {
	return &Handler{hub: hub, exists: exists}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("id")
	if sourceID == "" {
		sourceID = strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/ws/telemetry/"), "/")
	}
	if sourceID == "" || strings.Contains(sourceID, "/") {
		http.Error(w, "source id required", http.StatusBadRequest)
		return
	}
	if h.exists != nil && !h.exists(sourceID) {
		http.Error(w, "source not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warnw("upgrade error", "error", err)
		return
	}

	h.hub.logger.Infow("new connection", "source", sourceID, "remote", r.RemoteAddr)
	c := h.hub.register(sourceID, conn)
	go h.readPump(c)
}

// readPump detects disconnection and keeps the read deadline fresh
func (h *Handler) readPump(c *client) {
	defer h.hub.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.hub.logger.Debugw("read error", "source", c.sourceID, "error", err)
			}
			return
		}
	}
}
