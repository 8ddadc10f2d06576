package websocket

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/logger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the feed is authenticated, origins are not restricted
		return true
	},
}

// Hub maintains the set of active clients and broadcasts events to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	config config.WebSocketConfig
	logger *logger.Logger

	mu    sync.RWMutex
	stats HubStats
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	DroppedEvents      int64     `json:"dropped_events"`
	LastConnectionTime time.Time `json:"last_connection_time"`
	LastDisconnectTime time.Time `json:"last_disconnect_time"`
	LastBroadcastTime  time.Time `json:"last_broadcast_time"`
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.WebSocketConfig, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
		logger:     log.WithComponent("websocket"),
	}
}

// Run dispatches registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket hub")

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event, nil)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ActiveConnections++
	h.stats.LastConnectionTime = time.Now()
	active := h.stats.ActiveConnections
	h.mu.Unlock()

	h.logger.Info("Client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int64("active_connections", active),
	)

	if h.config.Events.BroadcastConnections {
		h.broadcastEvent(Event{
			Type:      EventTypeConnection,
			Timestamp: time.Now(),
			Data: ConnectionEvent{
				Action:    "connected",
				ClientID:  client.ID,
				ClientIP:  client.IP,
				UserAgent: client.UserAgent,
				Message:   fmt.Sprintf("Client %s connected", client.ID),
			},
		}, client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		h.dropLocked(client)
		h.stats.LastDisconnectTime = time.Now()
	}
	active := h.stats.ActiveConnections
	h.mu.Unlock()

	if !ok {
		return
	}

	h.logger.Info("Client disconnected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int64("active_connections", active),
	)

	if h.config.Events.BroadcastConnections {
		h.broadcastEvent(Event{
			Type:      EventTypeConnection,
			Timestamp: time.Now(),
			Data: ConnectionEvent{
				Action:    "disconnected",
				ClientID:  client.ID,
				ClientIP:  client.IP,
				UserAgent: client.UserAgent,
				Message:   fmt.Sprintf("Client %s disconnected", client.ID),
			},
		}, nil)
	}
}

// dropLocked removes a client; h.mu must be held for writing.
func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	h.stats.ActiveConnections--
}

// broadcastEvent delivers event to every subscribed client except exclude
func (h *Hub) broadcastEvent(event Event, exclude *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.TotalBroadcasts++
	h.stats.LastBroadcastTime = time.Now()

	for client := range h.clients {
		if client == exclude || !shouldSendToClient(client, event) {
			continue
		}
		select {
		case client.Send <- event:
			h.stats.TotalMessages++
		default:
			h.logger.Warn("Client send channel full, closing connection", zap.String("client_id", client.ID))
			h.dropLocked(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.dropLocked(client)
	}
}

// shouldSendToClient applies the client's subscription; h.mu must be held.
func shouldSendToClient(client *Client, event Event) bool {
	if event.Type == EventTypePong {
		return false
	}
	sub := client.Subscription
	if sub == nil {
		return true
	}

	if len(sub.Events) > 0 {
		subscribed := false
		for _, eventType := range sub.Events {
			if eventType == event.Type {
				subscribed = true
				break
			}
		}
		if !subscribed {
			return false
		}
	}

	if sub.Filter != nil {
		return applyEventFilter(sub.Filter, event)
	}
	return true
}

func applyEventFilter(filter *EventFilter, event Event) bool {
	switch data := event.Data.(type) {
	case RequestLogEvent:
		if filter.ExcludeHealth && data.Path == "/health" {
			return false
		}
	case RedactionEvent:
		if len(filter.Categories) == 0 {
			return true
		}
		for _, c := range filter.Categories {
			if data.Counts[c] > 0 {
				return true
			}
		}
		return false
	}
	return true
}

// BroadcastEvent queues an event for all clients when its type is enabled
func (h *Hub) BroadcastEvent(event Event) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case h.broadcast <- event:
	default:
		h.mu.Lock()
		h.stats.DroppedEvents++
		h.mu.Unlock()
		h.logger.Warn("Broadcast channel full, dropping event", zap.String("event_type", string(event.Type)))
	}
}

// BroadcastRedaction publishes the summary of one redaction run
func (h *Hub) BroadcastRedaction(ev RedactionEvent) {
	h.BroadcastEvent(Event{Type: EventTypeRedaction, Data: ev, RequestID: ev.RequestID})
}

// BroadcastRequest publishes a completed HTTP request
func (h *Hub) BroadcastRequest(ev RequestLogEvent) {
	h.BroadcastEvent(Event{Type: EventTypeRequestLog, Data: ev, RequestID: ev.RequestID})
}

// BroadcastStatus publishes a system status snapshot
func (h *Hub) BroadcastStatus(ev SystemStatusEvent) {
	h.BroadcastEvent(Event{Type: EventTypeSystemStatus, Data: ev})
}

func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	if !h.config.Enabled {
		return false
	}

	switch eventType {
	case EventTypeRedaction:
		return h.config.Events.BroadcastRedactions
	case EventTypeRequestLog:
		return h.config.Events.BroadcastRequests
	case EventTypeSystemStatus:
		return h.config.Events.BroadcastSystem
	case EventTypeConnection:
		return h.config.Events.BroadcastConnections
	default:
		return false
	}
}

// HandleWebSocket authenticates and upgrades a feed connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="cv-anonymizer"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          "client_" + uuid.NewString(),
		Conn:        conn,
		Send:        make(chan Event, 256),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		IP:          ClientIP(r),
		UserAgent:   r.UserAgent(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.handleClientWrite(client)
	go h.handleClientRead(client)
}

// authorized checks Basic credentials. With no username configured the feed is open.
func (h *Hub) authorized(r *http.Request) bool {
	if h.config.Username == "" {
		return true
	}

	typ, data, err := parseBasicAuth(r.Header.Get("Authorization"))
	if err != nil || !strings.EqualFold(typ, "Basic") {
		return false
	}
	user, pass, ok := parseCredentials(data)
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.config.Password)) == 1
	return userOK && passOK
}

func (h *Hub) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteJSON(event); err != nil {
				h.logger.Error("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleClientRead(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.Conn.Close()
	}()

	conn := client.Conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}

		h.handleClientMessage(client, msg)
	}
}

func (h *Hub) handleClientMessage(client *Client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			return
		}
		var subscription SubscriptionRequest
		if err := json.Unmarshal(raw, &subscription); err != nil {
			h.logger.Warn("Invalid subscription", zap.String("client_id", client.ID), zap.Error(err))
			return
		}

		h.mu.Lock()
		client.Subscription = &subscription
		h.mu.Unlock()

		h.logger.Info("Client subscription updated",
			zap.String("client_id", client.ID),
			zap.Int("event_types", len(subscription.Events)),
		)

	case "ping":
		h.mu.RLock()
		defer h.mu.RUnlock()
		if !h.clients[client] {
			return
		}
		select {
		case client.Send <- Event{Type: EventTypePong, Timestamp: time.Now(), Data: map[string]string{"message": "pong"}}:
		default:
		}
	}
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := h.stats
	stats.ActiveConnections = int64(len(h.clients))
	return stats
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ClientIP extracts the client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseBasicAuth(auth string) (typ string, data string, err error) {
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid auth format")
	}
	return parts[0], parts[1], nil
}

func parseCredentials(data string) (string, string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
