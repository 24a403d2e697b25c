package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-switch/internal/entity"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/logging"
)

// EventSwitchStateChanged is the type of every event pushed to WebSocket
// clients.
const EventSwitchStateChanged = "switch.state_changed"

// outboxSize bounds how many events a slow client may lag behind before
// further events are dropped for it.
const outboxSize = 256

// Event is one message pushed to WebSocket clients.
type Event struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Payload   SwitchEvent `json:"payload"`
}

// SwitchEvent is the payload of a switch.state_changed event.
type SwitchEvent struct {
	entity.StateChange
	State string `json:"state"`
}

// Hub pushes switch state changes to every connected WebSocket client.
// Clients are listen-only; anything they send is read and discarded.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:     uuid.NewString(),
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}
}

// stop ends the client's write loop. The outbox is never closed, so a
// concurrent broadcast cannot panic.
func (c *wsClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// offer queues data without blocking; a full outbox drops it.
func (c *wsClient) offer(data []byte) bool {
	select {
	case <-c.done:
		return false
	case c.outbox <- data:
		return true
	default:
		return false
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are vetted by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub returns an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*wsClient]struct{})}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.stop()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client_id", c.id, "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.stop()
	h.logger.Debug("websocket client disconnected", "client_id", c.id, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnStateChange pushes the change to every client. It never blocks, so the
// hub observes the registry directly.
func (h *Hub) OnStateChange(change entity.StateChange) {
	data, err := json.Marshal(Event{
		Type:      EventSwitchStateChanged,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   SwitchEvent{StateChange: change, State: change.State()},
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.offer(data) {
			h.logger.Debug("websocket event dropped", "client_id", c.id, "entity_id", change.EntityID)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(conn)
	s.hub.add(c)
	go s.writeLoop(c)
	go s.readLoop(c)
}

// readLoop keeps the read deadline moving on pongs and detects the peer
// going away.
func (s *Server) readLoop(c *wsClient) {
	defer func() {
		s.hub.remove(c)
		c.conn.Close()
	}()

	wait := s.wsTimings()
	c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(wait.idle)) }
	extend("") //nolint:errcheck // Read below reports a broken conn
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
		extend("") //nolint:errcheck // Next read reports a broken conn
	}
}

func (s *Server) writeLoop(c *wsClient) {
	wait := s.wsTimings()
	ticker := time.NewTicker(wait.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(wait.pong)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.done:
			write(websocket.CloseMessage, nil) //nolint:errcheck // Closing anyway
			return
		case data := <-c.outbox:
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

type wsTimings struct {
	ping, pong, idle time.Duration
}

func (s *Server) wsTimings() wsTimings {
	t := wsTimings{
		ping: time.Duration(s.wsCfg.PingInterval) * time.Second,
		pong: time.Duration(s.wsCfg.PongTimeout) * time.Second,
	}
	if t.ping <= 0 {
		t.ping = time.Duration(config.DefaultPingInterval) * time.Second
	}
	if t.pong <= 0 {
		t.pong = time.Duration(config.DefaultPongTimeout) * time.Second
	}
	t.idle = t.ping + t.pong
	return t
}
