package http

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livequiz-service/internal/app"
)

// client is one WebSocket connection. Frames are written by a single
// writer goroutine draining send, so handler code never writes the socket
// directly.
type client struct {
	id   string
	conn *websocket.Conn
	send chan app.Event

	mu          sync.Mutex
	closed      bool
	sessionCode string
	identity    app.Identity
}

func (c *client) bind(sessionCode string, identity app.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCode = sessionCode
	c.identity = identity
}

func (c *client) binding() (string, app.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionCode, c.identity
}

// Hub tracks connections and session rooms and implements app.Broadcaster.
// Sends never block: a slow client drops frames rather than stalling a
// session transition.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
	log     zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
		log:     logger,
	}
}

func (h *Hub) register(id string, conn *websocket.Conn) *client {
	c := &client{id: id, conn: conn, send: make(chan app.Event, 32)}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

// unregister removes the connection from its room and closes its send
// channel. Delivery attempts racing with teardown see the closed flag and
// drop the frame instead of hitting a closed channel.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	code, _ := c.binding()
	if code != "" {
		if room, ok := h.rooms[code]; ok {
			delete(room, c.id)
			if len(room) == 0 {
				delete(h.rooms, code)
			}
		}
	}
	h.mu.Unlock()

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func (h *Hub) joinRoom(c *client, code string) {
	h.mu.Lock()
	room, ok := h.rooms[code]
	if !ok {
		room = make(map[string]*client)
		h.rooms[code] = room
	}
	room[c.id] = c
	h.mu.Unlock()
}

// BroadcastToSession fans an event out to every connection in the room.
func (h *Hub) BroadcastToSession(code string, event app.Event) {
	h.mu.RLock()
	room := h.rooms[code]
	targets := make([]*client, 0, len(room))
	for _, c := range room {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, event)
	}
}

// SendToConnection delivers an event to a single connection, if still present.
func (h *Hub) SendToConnection(connectionID string, event app.Event) {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if ok {
		h.deliver(c, event)
	}
}

func (h *Hub) deliver(c *client, event app.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- event:
	default:
		h.log.Warn().Str("connection", c.id).Str("event", event.Type).Msg("send buffer full, dropping frame")
	}
}
