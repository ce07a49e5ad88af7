package middleware

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is deliberately open, see middleware.CORS
	},
}

// Hub fans broadcast messages out to websocket subscribers grouped by key.
// The empty key is the global group; room-scoped subscriptions register
// under their room. Callers broadcast to each group explicitly, because a
// room-scoped frame and its global counterpart differ (the global one
// carries the room in the payload).
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]bool
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]map[*websocket.Conn]bool),
		logger:  logger,
	}
}

func (h *Hub) register(key string, conn *websocket.Conn) {
	h.mu.Lock()
	if h.clients[key] == nil {
		h.clients[key] = make(map[*websocket.Conn]bool)
	}
	h.clients[key][conn] = true
	h.mu.Unlock()
	h.logger.Info("stream subscriber connected", zap.String("key", key))
}

func (h *Hub) unregister(key string, conn *websocket.Conn) {
	h.mu.Lock()
	if conns, ok := h.clients[key]; ok {
		if conns[conn] {
			delete(conns, conn)
			conn.Close()
		}
		if len(conns) == 0 {
			delete(h.clients, key)
		}
	}
	h.mu.Unlock()
	h.logger.Info("stream subscriber disconnected", zap.String("key", key))
}

// Broadcast JSON-encodes v and writes it to every subscriber of key.
// Dead connections are dropped in passing.
func (h *Hub) Broadcast(key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("broadcast encode failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients[key] {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("subscriber write failed, dropping", zap.String("key", key), zap.Error(err))
			delete(h.clients[key], conn)
			conn.Close()
		}
	}
}

// ClientCount returns the number of subscribers for key.
func (h *Hub) ClientCount(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key])
}

// HandleSubscribe upgrades the request and parks the connection in the
// key's group until the peer goes away. Auth happens in the caller before
// the upgrade.
func (h *Hub) HandleSubscribe(c *gin.Context, key string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.register(key, conn)
	defer h.unregister(key, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("subscriber read error", zap.String("key", key), zap.Error(err))
			}
			return
		}
	}
}

// RejectUpgrade completes the handshake and immediately closes with a
// policy violation, the contract for missing/invalid subscribe tokens.
func (h *Hub) RejectUpgrade(c *gin.Context, reason string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	conn.Close()
}
