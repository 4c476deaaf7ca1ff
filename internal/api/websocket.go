package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/infrastructure/config"
	"github.com/nerrad567/facility-core/internal/infrastructure/logging"
	"github.com/nerrad567/facility-core/internal/telemetry"
)

// WebSocket constants.
const (
	WSTypePing     = "ping"
	WSTypePong     = "pong"
	WSTypeEvent    = "event"
	WSTypeError    = "error"
	WSTypeReady    = "ready"
	wsEventChannel = "device:"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// DeviceChannel is the hub channel carrying a device's events.
func DeviceChannel(deviceID string) string { return wsEventChannel + deviceID }

// Hub fans accepted events out to WebSocket clients. Each client follows
// exactly one device channel, chosen when it connects, so clients are
// indexed by channel.
type Hub struct {
	logger *logging.Logger

	mu       sync.RWMutex
	channels map[string]map[*WSClient]struct{}
	count    int
}

// WSClient is one live event stream connection.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	channel string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{logger: logger, channels: make(map[string]map[*WSClient]struct{})}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to its channel.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	members, ok := h.channels[c.channel]
	if !ok {
		members = make(map[*WSClient]struct{})
		h.channels[c.channel] = members
	}
	members[c] = struct{}{}
	h.count++
	n := h.count
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "channel", c.channel, "clients", n)
}

// Unregister removes a client and stops its writer. Unregistering twice
// is harmless.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	if members, ok := h.channels[c.channel]; ok {
		if _, ok := members[c]; ok {
			delete(members, c)
			h.count--
		}
		if len(members) == 0 {
			delete(h.channels, c.channel)
		}
	}
	n := h.count
	h.mu.Unlock()

	c.stop()
	h.logger.Debug("websocket client disconnected", "channel", c.channel, "clients", n)
}

// Broadcast sends payload as an event to every client following channel.
// Slow clients with a full buffer miss the message.
func (h *Hub) Broadcast(channel string, payload any) {
	h.mu.RLock()
	recipients := make([]*WSClient, 0, len(h.channels[channel]))
	for c := range h.channels[channel] {
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()
	if len(recipients) == 0 {
		return
	}

	data, err := encodeMessage(WSTypeEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}
	for _, c := range recipients {
		c.trySend(data)
	}
	h.logger.Debug("broadcast sent", "channel", channel, "recipients", len(recipients))
}

// Deliver implements telemetry.Sink.
func (h *Hub) Deliver(_ context.Context, n telemetry.Notice) error {
	h.Broadcast(DeviceChannel(n.Device.ID), n.Event)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	channels := h.channels
	h.channels = make(map[string]map[*WSClient]struct{})
	h.count = 0
	h.mu.Unlock()

	for _, members := range channels {
		for c := range members {
			c.stop()
			if c.conn != nil {
				c.conn.Close() //nolint:errcheck // Shutting down
			}
		}
	}
}

func encodeMessage(msgType, id, channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// handleLiveEvents streams a device's new events. Ownership is checked
// before the upgrade, so a foreign device is a plain 404.
func (s *Server) handleLiveEvents(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, string(hierarchy.KindDevice))
	if err := s.events.Resolve(r.Context(), principal(r), s.ancestors(r, hierarchy.KindDevice), deviceID); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:     s.hub,
		conn:    conn,
		channel: DeviceChannel(deviceID),
		send:    make(chan []byte, wsSendBufferSize),
	}
	s.hub.Register(client)
	client.sendResponse("", WSTypeReady, map[string]string{"channel": client.channel})

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// Keepalive defaults for an unset websocket config.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// readPump handles inbound frames until the connection fails, then
// unregisters the client. Every frame or pong extends the read deadline.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // Already failing
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	ping, pong := wsTimings(cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }
	extend() //nolint:errcheck // A failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "channel", c.channel, "error", err)
			}
			return
		}
		extend() //nolint:errcheck // See above
		c.handleMessage(message)
	}
}

// writePump drains the send channel and pings on every interval. It ends
// with a close frame once the client is stopped.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ping, pong := wsTimings(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Writer exit
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // Surfaces on write
		return c.conn.WriteMessage(kind, data)
	}
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Best effort
				return
			}
			if write(websocket.TextMessage, message) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// handleMessage answers application-level pings. The channel is fixed by
// the URL, so there is nothing to subscribe to.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// trySend queues data without blocking. Messages to a stopped client or
// one with a full buffer are dropped.
func (c *WSClient) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// stop closes the send channel once, ending writePump.
func (c *WSClient) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	if data, err := encodeMessage(msgType, id, c.channel, payload); err == nil {
		c.trySend(data)
	}
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
