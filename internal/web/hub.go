package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/simtrack/simtrack/internal/session"
)

const writeWait = 5 * time.Second

// Hub fans refresh signals out to open preview pages. Pages reload
// themselves on any signal, so the payload only names the reason.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	nextID  uint64
	clients map[uint64]*client
}

// client serializes writes to one connection. gorilla connections allow
// a single concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[uint64]*client),
	}
}

// Subscribe wires the hub to the lifecycle events that invalidate an
// open preview page.
func (h *Hub) Subscribe(bus *session.Bus) {
	refresh := func(session.Payload) { h.Notify("refresh") }
	bus.On(session.EventSettingsChanged, refresh)
	bus.On(session.EventChatChanged, refresh)
	bus.On(session.EventMessageEdited, refresh)
	bus.On(session.EventMessageSwiped, refresh)
}

// Notify broadcasts one signal to every connected page. Dead
// connections are closed and dropped by their reader loop.
func (h *Hub) Notify(reason string) {
	msg, err := json.Marshal(map[string]string{"event": reason})
	if err != nil {
		return
	}

	h.mu.Lock()
	conns := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	}
}

// ServeWS upgrades the request and parks the connection until the peer
// leaves. Inbound messages are ignored; the read loop only observes
// close.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}

	id := h.add(conn)
	defer h.remove(id)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Count reports connected pages.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.clients[id] = &client{conn: conn}
	return id
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}
