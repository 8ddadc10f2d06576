package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.WebSocketConfig {
	cfg := config.GetDefaults().WebSocket
	cfg.Events.BroadcastConnections = false
	return cfg
}

func startHub(t *testing.T, cfg config.WebSocketConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func TestHubBroadcastsRedactions(t *testing.T) {
	hub, srv := startHub(t, testConfig())

	conn, _, err := dial(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastRedaction(RedactionEvent{
		RequestID:   "req-1",
		Source:      "text",
		Counts:      map[string]int{"email": 1},
		TotalMasked: 1,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]interface{}
	require.NoError(t, conn.ReadJSON(&got))

	assert.Equal(t, "redaction", got["type"])
	assert.Equal(t, "req-1", got["request_id"])
	data := got["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total_masked"])

	stats := hub.GetStats()
	assert.Equal(t, int64(1), stats.TotalConnections)
	assert.Equal(t, int64(1), stats.ActiveConnections)
}

func TestHubDisabledEventTypes(t *testing.T) {
	cfg := testConfig()
	cfg.Events.BroadcastRequests = false
	hub := NewHub(cfg, logger.NewNop())

	hub.BroadcastRequest(RequestLogEvent{RequestID: "r", Path: "/v1/redact"})
	assert.Len(t, hub.broadcast, 0)

	hub.BroadcastRedaction(RedactionEvent{RequestID: "r"})
	assert.Len(t, hub.broadcast, 1)

	cfg.Enabled = false
	off := NewHub(cfg, logger.NewNop())
	off.BroadcastRedaction(RedactionEvent{RequestID: "r"})
	assert.Len(t, off.broadcast, 0)
}

func TestHubBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Username = "admin"
	cfg.Password = "s3cret"
	hub, srv := startHub(t, cfg)

	_, resp, err := dial(t, srv, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bad := http.Header{}
	bad.Set("Authorization", "Basic YWRtaW46d3Jvbmc=") // admin:wrong
	_, resp, err = dial(t, srv, bad)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	good := http.Header{}
	good.Set("Authorization", "Basic YWRtaW46czNjcmV0") // admin:s3cret
	conn, _, err := dial(t, srv, good)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHubDisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t, testConfig())

	conn, _, err := dial(t, srv, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestShouldSendToClient(t *testing.T) {
	redaction := Event{Type: EventTypeRedaction, Data: RedactionEvent{Counts: map[string]int{"email": 2, "phone": 0}}}
	health := Event{Type: EventTypeRequestLog, Data: RequestLogEvent{Path: "/health"}}

	tests := []struct {
		name  string
		sub   *SubscriptionRequest
		event Event
		want  bool
	}{
		{"no subscription receives all", nil, redaction, true},
		{"pong is never broadcast", nil, Event{Type: EventTypePong}, false},
		{"event type filter", &SubscriptionRequest{Events: []EventType{EventTypeSystemStatus}}, redaction, false},
		{"category present", &SubscriptionRequest{Filter: &EventFilter{Categories: []string{"email"}}}, redaction, true},
		{"category with zero count", &SubscriptionRequest{Filter: &EventFilter{Categories: []string{"phone"}}}, redaction, false},
		{"health excluded", &SubscriptionRequest{Filter: &EventFilter{ExcludeHealth: true}}, health, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{Subscription: tt.sub}
			assert.Equal(t, tt.want, shouldSendToClient(client, tt.event))
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(r))
}
