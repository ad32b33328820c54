package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
)

const defaultSendBuffer = 32

// Envelope is the wire shape of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one live session as the hub sees it.
type Client struct {
	ID    dispatch.ConnID
	Send  chan []byte
	rooms map[dispatch.Room]struct{}
}

// Hub fans outbound events out to connected sessions. It implements
// dispatch.Notifier; all delivery is non-blocking and a full client buffer
// drops the frame.
type Hub struct {
	mu         sync.RWMutex
	clients    map[dispatch.ConnID]*Client
	sendBuffer int
	log        *slog.Logger
}

func NewHub(sendBuffer int, log *slog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{clients: make(map[dispatch.ConnID]*Client), sendBuffer: sendBuffer, log: log}
}

func (h *Hub) Register(id dispatch.ConnID) *Client {
	c := &Client{ID: id, Send: make(chan []byte, h.sendBuffer), rooms: make(map[dispatch.Room]struct{})}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = c
	return c
}

// Unregister forgets the client and closes its send channel. Calling it twice
// is harmless.
func (h *Hub) Unregister(id dispatch.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.Send)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Send(conn dispatch.ConnID, event string, payload any) error {
	frame, err := encode(event, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[conn]
	if !ok {
		return dispatch.ErrStaleConnection
	}
	h.deliver(c, event, frame)
	return nil
}

func (h *Hub) Broadcast(room dispatch.Room, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		h.log.Error("encode broadcast", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if _, ok := c.rooms[room]; !ok {
			continue
		}
		h.deliver(c, event, frame)
	}
}

func (h *Hub) Join(conn dispatch.ConnID, room dispatch.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[conn]; ok {
		c.rooms[room] = struct{}{}
	}
}

func (h *Hub) deliver(c *Client, event string, frame []byte) {
	select {
	case c.Send <- frame:
	default:
		h.log.Warn("drop frame for slow client", "conn_id", c.ID, "event", event)
	}
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
