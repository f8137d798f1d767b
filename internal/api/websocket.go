package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openbeamline/beamcore/internal/beamline"
	"github.com/openbeamline/beamcore/internal/infrastructure/config"
	"github.com/openbeamline/beamcore/internal/infrastructure/logging"
)

// WebSocket message types pushed to clients.
const (
	WSTypeStateChanged = "device.state_changed"
	WSTypeHello        = "hello"
)

// WSMessage is the envelope for all WebSocket messages.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// wsClient is one connected WebSocket client with a buffered send queue.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans state transitions out to connected WebSocket clients.
//
// It satisfies beamline.TransitionSink so the manager can broadcast
// composite-state changes directly. Slow clients are disconnected
// rather than allowed to block the broadcast path.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates a WebSocket hub. Run must be called before clients
// can connect.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// StateTransition broadcasts a composite-state change to all clients.
func (h *Hub) StateTransition(t beamline.Transition) {
	h.Broadcast(WSTypeStateChanged, t)
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(msgType string, payload any) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("marshalling ws message failed", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Send queue full; drop the client.
			h.unregister(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by corsMiddleware for REST; WS clients
	// authenticate with a token instead.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and attaches the client to
// the hub.
//
// Browsers cannot set headers on WebSocket upgrades, so the access
// token is carried in the "token" query parameter instead.
//
// GET /ws?token=...
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeUnauthorized(w, "missing token query parameter")
		return
	}
	if _, err := s.validateToken(token); err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	hub := s.Hub()
	hub.register(client)
	s.logger.Info("websocket client connected", "remote", r.RemoteAddr, "clients", hub.ClientCount())

	go s.writePump(hub, client)
	go s.readPump(hub, client)

	hello, _ := json.Marshal(WSMessage{Type: WSTypeHello, Payload: map[string]any{
		"version": s.version,
		"devices": len(s.beamline.Devices()),
	}})
	select {
	case client.send <- hello:
	default:
	}
}

// readPump drains client frames to keep the connection healthy and to
// observe pong replies. Inbound payloads are ignored.
func (s *Server) readPump(hub *Hub, c *wsClient) {
	defer func() {
		hub.unregister(c)
		c.conn.Close()
	}()

	maxSize := int64(s.wsCfg.MaxMessageSize)
	if maxSize <= 0 {
		maxSize = 8192
	}
	c.conn.SetReadLimit(maxSize)

	pongTimeout := time.Duration(s.wsCfg.PongTimeout) * time.Second
	if pongTimeout <= 0 {
		pongTimeout = 10 * time.Second
	}
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}

	deadline := pingInterval + pongTimeout
	//nolint:errcheck // Deadline failures surface as read errors below
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards queued messages to the client and sends periodic
// pings.
func (s *Server) writePump(hub *Hub, c *wsClient) {
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Connection is being torn down
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				hub.unregister(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				hub.unregister(c)
				return
			}
		}
	}
}
