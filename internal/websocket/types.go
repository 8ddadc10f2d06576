package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRedaction is emitted after every redaction run
	EventTypeRedaction EventType = "redaction"
	// EventTypeRequestLog represents a request logging event
	EventTypeRequestLog EventType = "request_log"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// RedactionEvent summarizes one redaction run. It never carries document text.
type RedactionEvent struct {
	RequestID    string         `json:"request_id"`
	Source       string         `json:"source"`
	InputBytes   int            `json:"input_bytes"`
	Counts       map[string]int `json:"counts"`
	TotalMasked  int            `json:"total_masked"`
	Rules        []string       `json:"rules"`
	Sections     []string       `json:"sections"`
	Override     bool           `json:"override"`
	ProcessingMS float64        `json:"processing_ms"`
}

// RequestLogEvent represents a request logging event
type RequestLogEvent struct {
	RequestID    string        `json:"request_id"`
	Method       string        `json:"method"`
	Path         string        `json:"path"`
	StatusCode   int           `json:"status_code"`
	ClientIP     string        `json:"client_ip"`
	UserAgent    string        `json:"user_agent,omitempty"`
	Duration     time.Duration `json:"duration"`
	RequestSize  int64         `json:"request_size"`
	ResponseSize int64         `json:"response_size"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status             string `json:"status"`
	Uptime             string `json:"uptime"`
	TotalRequests      int64  `json:"total_requests"`
	TotalDocuments     int64  `json:"total_documents"`
	ActiveRules        int    `json:"active_rules"`
	ConnectedClients   int    `json:"connected_clients"`
	MemoryUsage        string `json:"memory_usage"`
	ConfigReloadedAt   string `json:"config_reloaded_at,omitempty"`
	ConfigReloadFailed string `json:"config_reload_failed,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows the events a client receives
type EventFilter struct {
	// Categories keeps only redaction events that masked one of these categories.
	Categories    []string `json:"categories,omitempty"`
	ExcludeHealth bool     `json:"exclude_health,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
