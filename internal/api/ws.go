package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

// Event is the envelope broadcast to websocket subscribers
type Event struct {
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// Event types.
const (
	EventRunFinished = "run_finished"
	EventAlertRaised = "alert_raised"
)

// Hub broadcasts pipeline events to connected websocket clients. It
// implements the pipeline's event sink; a slow client is dropped rather
// than allowed to stall a broadcast.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
	closed  bool
}

// NewHub creates a hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard origin enforcement happens at the proxy layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  log,
		clients: make(map[*websocket.Conn]chan Event),
	}
}

// ServeWS upgrades a connection and streams events until the client
// disconnects
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	events := make(chan Event, 16)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = events
	h.mu.Unlock()

	go h.writeLoop(conn, events)
	h.readLoop(conn)
}

// writeLoop pushes events to one client
func (h *Hub) writeLoop(conn *websocket.Conn, events chan Event) {
	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			h.drop(conn)
			return
		}
	}
	conn.Close()
}

// readLoop drains client frames so pings and closes are processed
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if events, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(events)
	}
	conn.Close()
}

// broadcast fans an event out to every client, dropping any whose
// buffer is full.
func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	var stalled []*websocket.Conn
	for conn, events := range h.clients {
		select {
		case events <- ev:
		default:
			stalled = append(stalled, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range stalled {
		h.logger.Warn("Dropping stalled websocket client")
		h.drop(conn)
	}
}

// RunFinished implements the pipeline event sink
func (h *Hub) RunFinished(run contracts.RunRecord) {
	h.broadcast(Event{Type: EventRunFinished, At: time.Now().UTC(), Data: run})
}

// AlertsRaised implements the pipeline event sink
func (h *Hub) AlertsRaised(alerts []contracts.Alert) {
	for _, a := range alerts {
		h.broadcast(Event{Type: EventAlertRaised, At: time.Now().UTC(), Data: a})
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn, events := range h.clients {
		delete(h.clients, conn)
		close(events)
	}
}
