package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"coderooms/pkg/db"
	"coderooms/pkg/room"
)

// eventHandler processes one inbound socket event.
type eventHandler func(c *room.Client, payload json.RawMessage)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512 * 1024 // code payloads, not chat lines
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades the connection and starts the pumps. The token
// query parameter binds an identity to the connection; without one the
// client can still mirror edits but auto-save is ignored.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	var userID string
	if token := r.URL.Query().Get("token"); token != "" {
		if id, err := h.auth.ParseToken(token); err == nil {
			userID = id
		} else {
			log.Printf("websocket token rejected: %v", err)
		}
	}

	client := &room.Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}

	h.hub.Register(client)

	go h.writePump(client)
	go h.readPump(client)
}

// readPump reads events off the connection and dispatches them through the
// handler table. It owns the disconnect path: registry leave, departure
// notifications, hub unregister.
func (h *Handlers) readPump(c *room.Client) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("panic in readPump for %s: %v\n%s", c.ID, rec, debug.Stack())
		}
		h.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket unexpected close for %s: %v", c.ID, err)
			}
			break
		}

		var env room.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("error parsing message from %s: %v", c.ID, err)
			continue
		}

		handler, ok := h.events[env.Event]
		if !ok {
			log.Printf("unknown event %q from %s", env.Event, c.ID)
			continue
		}
		handler(c, env.Payload)
	}
}

// writePump drains the send channel onto the connection and keeps the
// transport alive with pings.
func (h *Handlers) writePump(c *room.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("websocket write error for %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnect removes the connection from every room it joined and tells the
// remaining members.
func (h *Handlers) disconnect(c *room.Client) {
	departures := h.hub.Registry().Leave(c.ID)
	h.hub.Unregister(c)

	for _, dep := range departures {
		h.hub.BroadcastToRoom(dep.RoomID, "", room.EventDisconnected, map[string]string{
			"socketId": c.ID,
			"username": dep.Username,
		})
	}
}

// onJoin records membership and pushes the updated member list to the whole
// room, joiner included. The peers react by offering the newcomer current
// code via sync-code.
func (h *Handlers) onJoin(c *room.Client, payload json.RawMessage) {
	var req struct {
		RoomID   string `json:"roomId"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		log.Printf("invalid join payload from %s", c.ID)
		return
	}

	c.Username = req.Username
	clients := h.hub.Registry().Join(c.ID, req.RoomID, req.Username)

	h.hub.BroadcastToRoom(req.RoomID, "", room.EventJoined, map[string]interface{}{
		"clients":  clients,
		"username": req.Username,
		"socketId": c.ID,
	})
}

// onSyncCode hands current code to exactly one peer, the one whose join
// triggered the request.
func (h *Handlers) onSyncCode(c *room.Client, payload json.RawMessage) {
	var req struct {
		SocketID string `json:"socketId"`
		Code     string `json:"code"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.SocketID == "" {
		return
	}

	h.hub.SendTo(req.SocketID, room.EventCodeChange, map[string]string{"code": req.Code})
}

// onCodeChange mirrors an edit to everyone else in the room. The sender
// never sees its own edit back.
func (h *Handlers) onCodeChange(c *room.Client, payload json.RawMessage) {
	var req struct {
		RoomID string `json:"roomId"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		return
	}

	h.hub.BroadcastToRoom(req.RoomID, c.ID, room.EventCodeChange, map[string]string{"code": req.Code})
}

// onLanguageChange switches the peers' editor mode without persisting.
func (h *Handlers) onLanguageChange(c *room.Client, payload json.RawMessage) {
	var req struct {
		RoomID   string `json:"roomId"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		return
	}

	h.hub.BroadcastToRoom(req.RoomID, c.ID, room.EventLanguageChange, map[string]string{"language": req.Language})
}

// onAutoSave persists code with the connection-bound identity. Silent by
// contract: no reply, no error surfaced to the transport.
func (h *Handlers) onAutoSave(c *room.Client, payload json.RawMessage) {
	var req struct {
		FileID string `json:"fileId"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	if c.UserID == "" {
		return
	}

	ref, err := db.ParseRef(req.FileID)
	if err != nil {
		return
	}
	h.autoSaver.Save(context.Background(), ref, req.Code, c.UserID)
}
