// Package fanout delivers session events to every connection joined to a PIN.
package fanout

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"live-quiz-service/internal/domain"
)

// DefaultQueueSize bounds the per-connection outbound queue.
const DefaultQueueSize = 64

// Envelope is the wire shape of every outbound message.
type Envelope struct {
	Type    domain.EventType `json:"type"`
	Payload domain.Event     `json:"payload"`
}

// Encode renders ev as an envelope.
func Encode(ev domain.Event) ([]byte, error) {
	return json.Marshal(Envelope{Type: ev.Type(), Payload: ev})
}

// Client is one live connection. The transport drains Send; the hub closes it on Unregister.
type Client struct {
	ID            string
	Send          chan []byte
	pin           string
	role          domain.Role
	participantID string
}

// Membership describes which room a client is in.
type Membership struct {
	PIN           string
	Role          domain.Role
	ParticipantID string
}

// Hub routes events to the connections of each session.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	rooms     map[string]map[string]*Client
	queueSize int
	dropped   atomic.Int64
	log       *slog.Logger
}

// NewHub creates an empty hub. queueSize <= 0 uses DefaultQueueSize.
func NewHub(queueSize int, log *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		queueSize: queueSize,
		log:       log.With("component", "fanout"),
	}
}

// Register adds a connection that is not yet in any room.
func (h *Hub) Register(id string) *Client {
	c := &Client{ID: id, Send: make(chan []byte, h.queueSize)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[id]; ok {
		h.removeLocked(old)
		close(old.Send)
	}
	h.clients[id] = c
	return c
}

// Join moves a connection into the room for pin, leaving any previous room.
func (h *Hub) Join(id string, m Membership) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	h.removeLocked(c)
	c.pin, c.role, c.participantID = m.PIN, m.Role, m.ParticipantID
	room := h.rooms[m.PIN]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[m.PIN] = room
	}
	room[id] = c
	return true
}

// Membership reports the room a connection is in.
func (h *Hub) Membership(id string) (Membership, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok || c.pin == "" {
		return Membership{}, false
	}
	return Membership{PIN: c.pin, Role: c.role, ParticipantID: c.participantID}, true
}

// Leave removes a connection from its room but keeps it registered.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		h.removeLocked(c)
	}
}

// Unregister drops the connection and closes its Send channel.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	h.removeLocked(c)
	delete(h.clients, id)
	close(c.Send)
}

// CloseRoom detaches every connection from pin.
func (h *Hub) CloseRoom(pin string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.rooms[pin] {
		c.pin, c.role, c.participantID = "", "", ""
	}
	delete(h.rooms, pin)
}

// Broadcast queues ev for every connection in pin. It never blocks: a connection
// whose queue is full misses the message.
func (h *Hub) Broadcast(pin string, ev domain.Event) {
	data, err := Encode(ev)
	if err != nil {
		h.log.Error("encode event", "type", ev.Type(), "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[pin] {
		h.enqueue(c, data)
	}
}

// SendTo queues ev for a single connection.
func (h *Hub) SendTo(id string, ev domain.Event) bool {
	data, err := Encode(ev)
	if err != nil {
		h.log.Error("encode event", "type", ev.Type(), "error", err)
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	return h.enqueue(c, data)
}

// Members counts the connections joined to pin.
func (h *Hub) Members(pin string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[pin])
}

// Dropped is the number of messages discarded because a queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) enqueue(c *Client, data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		h.dropped.Add(1)
		h.log.Warn("client queue full, dropping message", "conn_id", c.ID, "pin", c.pin)
		return false
	}
}

func (h *Hub) removeLocked(c *Client) {
	if c.pin == "" {
		return
	}
	if room := h.rooms[c.pin]; room != nil {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, c.pin)
		}
	}
	c.pin, c.role, c.participantID = "", "", ""
}
