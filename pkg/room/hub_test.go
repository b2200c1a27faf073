package room

import (
	"encoding/json"
	"testing"

	"coderooms/pkg/session"
)

func newTestClient(id string) *Client {
	return &Client{ID: id, Send: make(chan []byte, 16)}
}

func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case data := <-c.Send:
			var env Envelope
			if err := json.Unmarshal(data, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	hub := NewHub(session.NewRegistry())

	a := newTestClient("a")
	b := newTestClient("b")
	c := newTestClient("c")
	for _, client := range []*Client{a, b, c} {
		hub.Register(client)
		hub.Registry().Join(client.ID, "room-1", client.ID)
	}

	hub.BroadcastToRoom("room-1", "a", EventCodeChange, map[string]string{"code": "x = 1"})

	if got := len(drain(a)); got != 0 {
		t.Errorf("sender received %d messages, want 0", got)
	}
	for _, client := range []*Client{b, c} {
		msgs := drain(client)
		if len(msgs) != 1 {
			t.Fatalf("client %s received %d messages, want 1", client.ID, len(msgs))
		}
		if msgs[0].Event != EventCodeChange {
			t.Errorf("event = %q, want %q", msgs[0].Event, EventCodeChange)
		}
		var payload struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(msgs[0].Payload, &payload); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if payload.Code != "x = 1" {
			t.Errorf("code = %q", payload.Code)
		}
	}
}

func TestBroadcastStaysInRoom(t *testing.T) {
	hub := NewHub(session.NewRegistry())

	a := newTestClient("a")
	b := newTestClient("b")
	hub.Register(a)
	hub.Register(b)
	hub.Registry().Join(a.ID, "room-1", "alice")
	hub.Registry().Join(b.ID, "room-2", "bob")

	hub.BroadcastToRoom("room-1", "", EventCodeChange, map[string]string{"code": "y"})

	if got := len(drain(a)); got != 1 {
		t.Errorf("room member received %d messages, want 1", got)
	}
	if got := len(drain(b)); got != 0 {
		t.Errorf("other room received %d messages, want 0", got)
	}
}

func TestSendTo(t *testing.T) {
	hub := NewHub(session.NewRegistry())

	a := newTestClient("a")
	b := newTestClient("b")
	hub.Register(a)
	hub.Register(b)

	hub.SendTo("b", EventCodeChange, map[string]string{"code": "synced"})

	if got := len(drain(a)); got != 0 {
		t.Errorf("untargeted client received %d messages", got)
	}
	if got := len(drain(b)); got != 1 {
		t.Errorf("target received %d messages, want 1", got)
	}

	// Unknown target is a no-op, not a panic.
	hub.SendTo("ghost", EventCodeChange, map[string]string{"code": "lost"})
}

func TestUnregisterClosesSend(t *testing.T) {
	hub := NewHub(session.NewRegistry())

	a := newTestClient("a")
	hub.Register(a)
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(a)
	hub.Unregister(a) // double unregister must not panic

	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-a.Send; ok {
		t.Error("send channel should be closed")
	}
}

func TestSlowClientDoesNotBlockBroadcast(t *testing.T) {
	hub := NewHub(session.NewRegistry())

	slow := &Client{ID: "slow", Send: make(chan []byte)} // unbuffered, nobody reading
	fast := newTestClient("fast")
	hub.Register(slow)
	hub.Register(fast)
	hub.Registry().Join("slow", "room-1", "slow")
	hub.Registry().Join("fast", "room-1", "fast")

	// Must return without blocking on the slow client.
	hub.BroadcastToRoom("room-1", "", EventCodeChange, map[string]string{"code": "z"})

	if got := len(drain(fast)); got != 1 {
		t.Errorf("fast client received %d messages, want 1", got)
	}
}
