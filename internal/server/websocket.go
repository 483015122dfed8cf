package server

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wifistate-go/internal/events"
)

const (
	// WebSocket settings
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// streamedEvents are sent to clients that do not ask for specific types.
var streamedEvents = []events.EventType{
	events.StateChanged,
	events.ReachabilityChanged,
	events.RoundFailed,
	events.CycleBlocked,
	events.MonitorStarted,
	events.MonitorStopped,
	events.RadioCommand,
	events.NotificationShown,
	events.NotificationCleared,
	events.ConfigReloaded,
	events.ShellRequest,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds to loopback; browser pages on other origins
		// may still watch the stream.
		return true
	},
}

// WebSocketManager streams bus events to connected clients.
type WebSocketManager struct {
	eventBus    *events.Bus
	logger      *zap.Logger
	connections map[*websocket.Conn]*wsClient
	mu          sync.RWMutex
	register    chan *wsClient
	unregister  chan *wsClient
	stopChan    chan struct{}
	stopOnce    sync.Once
}

type subscription struct {
	eventType events.EventType
	ch        <-chan events.Event
}

// wsClient is one connected client.
type wsClient struct {
	conn          *websocket.Conn
	send          chan []byte
	manager       *WebSocketManager
	subscriptions []subscription
	stopChan      chan struct{} // closed by readPump
	quit          chan struct{} // closed by the manager
	quitOnce      sync.Once
}

// NewWebSocketManager creates a manager and starts its registration loop.
func NewWebSocketManager(eventBus *events.Bus, logger *zap.Logger) *WebSocketManager {
	manager := &WebSocketManager{
		eventBus:    eventBus,
		logger:      logger.Named("websocket"),
		connections: make(map[*websocket.Conn]*wsClient),
		register:    make(chan *wsClient),
		unregister:  make(chan *wsClient),
		stopChan:    make(chan struct{}),
	}

	go manager.run()

	return manager
}

// run manages client registration
func (m *WebSocketManager) run() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			m.connections[client.conn] = client
			total := len(m.connections)
			m.mu.Unlock()
			m.logger.Debug("WebSocket client registered", zap.Int("total_clients", total))

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.connections[client.conn]; ok {
				delete(m.connections, client.conn)
				client.stop()
			}
			total := len(m.connections)
			m.mu.Unlock()
			m.logger.Debug("WebSocket client unregistered", zap.Int("total_clients", total))

		case <-m.stopChan:
			m.mu.Lock()
			for conn, client := range m.connections {
				client.stop()
				conn.Close()
			}
			m.connections = make(map[*websocket.Conn]*wsClient)
			m.mu.Unlock()
			return
		}
	}
}

// Stop closes every connection. It is safe to call more than once.
func (m *WebSocketManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// HandleWebSocket upgrades the request. The optional "types" query parameter
// is a comma separated list of event types to stream.
func (m *WebSocketManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	var subs []subscription
	for _, t := range requestedTypes(r) {
		subs = append(subs, subscription{eventType: t, ch: m.eventBus.Subscribe(t)})
	}

	client := &wsClient{
		conn:          conn,
		send:          make(chan []byte, 256),
		manager:       m,
		subscriptions: subs,
		stopChan:      make(chan struct{}),
		quit:          make(chan struct{}),
	}

	select {
	case m.register <- client:
	case <-m.stopChan:
		client.unsubscribe()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
	go client.eventPump()
}

// GetActiveConnections returns the number of connected clients.
func (m *WebSocketManager) GetActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func requestedTypes(r *http.Request) []events.EventType {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return streamedEvents
	}

	known := make(map[events.EventType]bool, len(streamedEvents))
	for _, t := range streamedEvents {
		known[t] = true
	}

	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		t := events.EventType(strings.TrimSpace(part))
		if known[t] {
			out = append(out, t)
		}
	}
	return out
}

func (c *wsClient) stop() {
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *wsClient) unsubscribe() {
	for _, sub := range c.subscriptions {
		c.manager.eventBus.Unsubscribe(sub.eventType, sub.ch)
	}
}

// readPump handles pongs and detects disconnects
func (c *wsClient) readPump() {
	defer func() {
		close(c.stopChan)
		select {
		case c.manager.unregister <- c:
		case <-c.manager.stopChan:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump sends queued messages and keepalive pings
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.manager.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-c.stopChan:
			return
		}
	}
}

// eventPump forwards events from every subscribed channel to the client
func (c *wsClient) eventPump() {
	defer c.unsubscribe()

	n := len(c.subscriptions)
	cases := make([]reflect.SelectCase, n+2)
	for i, sub := range c.subscriptions {
		cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sub.ch)}
	}
	cases[n] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(c.stopChan)}
	cases[n+1] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(c.quit)}

	for {
		chosen, value, ok := reflect.Select(cases)
		if chosen >= n {
			return
		}
		if !ok {
			// Bus closed this subscription.
			cases[chosen].Chan = reflect.ValueOf(nil)
			continue
		}

		event, ok := value.Interface().(events.Event)
		if !ok {
			continue
		}

		data, err := json.Marshal(event)
		if err != nil {
			c.manager.logger.Warn("Failed to marshal event", zap.Error(err))
			continue
		}

		select {
		case c.send <- data:
		default:
			c.manager.logger.Warn("WebSocket send buffer full, dropping event",
				zap.String("event_type", string(event.Type)))
		}
	}
}
