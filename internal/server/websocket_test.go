package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wifistate-go/internal/events"
)

func newTestManager(t *testing.T) (*WebSocketManager, *events.Bus, string) {
	t.Helper()
	bus := events.NewBus()
	manager := NewWebSocketManager(bus, zap.NewNop())
	server := httptest.NewServer(http.HandlerFunc(manager.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		manager.Stop()
		bus.Close()
	})
	return manager, bus, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, m *WebSocketManager, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return m.GetActiveConnections() == n },
		2*time.Second, 10*time.Millisecond)
}

type wireEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev wireEvent
	require.NoError(t, json.Unmarshal(message, &ev))
	return ev
}

func TestNewWebSocketManager(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	manager := NewWebSocketManager(bus, zap.NewNop())
	assert.NotNil(t, manager.connections)
	assert.NotNil(t, manager.register)
	assert.NotNil(t, manager.unregister)
	manager.Stop()
	manager.Stop()
}

func TestWebSocketConnection(t *testing.T) {
	manager, bus, url := newTestManager(t)

	conn := dial(t, url)
	waitForConnections(t, manager, 1)
	assert.Equal(t, len(streamedEvents), bus.TotalSubscribers())

	conn.Close()
	waitForConnections(t, manager, 0)
	require.Eventually(t, func() bool { return bus.TotalSubscribers() == 0 },
		2*time.Second, 10*time.Millisecond, "subscriptions are released")
}

func TestWebSocketEventBroadcast(t *testing.T) {
	manager, bus, url := newTestManager(t)
	conn := dial(t, url)
	waitForConnections(t, manager, 1)

	bus.Publish(events.Event{
		Type: events.StateChanged,
		Data: events.StateChangeData{OldState: "scanning", NewState: "connected", NetworkName: "home"},
	})

	ev := readEvent(t, conn)
	assert.Equal(t, string(events.StateChanged), ev.Type)
	assert.NotEmpty(t, ev.ID)

	var data events.StateChangeData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "connected", data.NewState)
	assert.Equal(t, "home", data.NetworkName)
}

func TestWebSocketTypeFilter(t *testing.T) {
	manager, bus, url := newTestManager(t)
	conn := dial(t, url+"?types=reachability_changed,bogus")
	waitForConnections(t, manager, 1)
	assert.Equal(t, 1, bus.TotalSubscribers())

	bus.Publish(events.Event{Type: events.StateChanged, Data: events.StateChangeData{NewState: "scanning"}})
	bus.Publish(events.Event{Type: events.ReachabilityChanged, Data: events.ReachabilityData{Target: "8.8.8.8"}})

	ev := readEvent(t, conn)
	assert.Equal(t, string(events.ReachabilityChanged), ev.Type)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "filtered event types are not streamed")
}

func TestWebSocketMultipleClients(t *testing.T) {
	manager, bus, url := newTestManager(t)

	conns := []*websocket.Conn{dial(t, url), dial(t, url), dial(t, url)}
	waitForConnections(t, manager, 3)

	bus.Publish(events.Event{Type: events.ConfigReloaded})

	for i, conn := range conns {
		ev := readEvent(t, conn)
		assert.Equal(t, string(events.ConfigReloaded), ev.Type, "client %d", i+1)
	}
}

func TestWebSocketManagerStop(t *testing.T) {
	manager, _, url := newTestManager(t)

	conn1 := dial(t, url)
	dial(t, url)
	waitForConnections(t, manager, 2)

	manager.Stop()
	waitForConnections(t, manager, 0)

	require.NoError(t, conn1.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn1.ReadMessage()
	assert.Error(t, err, "connection is closed after Stop")
}
