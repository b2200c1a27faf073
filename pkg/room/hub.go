// Package room relays events between the participants of a room. Membership
// itself lives in the session registry; the hub only knows how to reach a
// connection and how to fan a message out.
package room

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"coderooms/pkg/session"
)

// Socket event names, client and server side.
const (
	EventJoin           = "join"
	EventJoined         = "joined"
	EventSyncCode       = "sync-code"
	EventCodeChange     = "code-change"
	EventLanguageChange = "language-change"
	EventAutoSave       = "auto-save"
	EventDisconnected   = "disconnected"
)

// Envelope is the wire format: an event name plus its JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one connected participant.
type Client struct {
	ID       string
	Username string
	UserID   string // identity bound to the connection token, empty if anonymous
	Conn     *websocket.Conn
	Send     chan []byte

	closeOnce sync.Once
}

// CloseSend closes the outbound channel exactly once.
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Hub tracks connected clients and broadcasts room events.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	registry *session.Registry
}

// NewHub creates a hub backed by the given membership registry.
func NewHub(registry *session.Registry) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		registry: registry,
	}
}

// Registry exposes the membership registry the hub fans out over.
func (h *Hub) Registry() *session.Registry {
	return h.registry
}

// Register adds a connected client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
}

// Unregister removes the client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	c.CloseSend()
}

// ClientCount reports how many connections the hub currently tracks.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func marshalEnvelope(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// SendTo delivers an event to a single connection.
func (h *Hub) SendTo(connID, event string, payload interface{}) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Printf("sendTo %s: %v", connID, err)
		return
	}

	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case client.Send <- data:
	default:
		// drop on slow client
	}
}

// BroadcastToRoom sends an event to every member of the room except
// excludeConnID. Pass an empty excludeConnID to reach everyone.
func (h *Hub) BroadcastToRoom(roomID, excludeConnID, event string, payload interface{}) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Printf("broadcast to %s: %v", roomID, err)
		return
	}

	members := h.registry.MembersOf(roomID)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range members {
		if m.SocketID == excludeConnID {
			continue
		}
		client, ok := h.clients[m.SocketID]
		if !ok {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// drop on slow client; intermediate states are expendable
		}
	}
}
