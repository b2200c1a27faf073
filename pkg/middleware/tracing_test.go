package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

func TestTracingAllowsWebSocketUpgrade(t *testing.T) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	r := mux.NewRouter()
	r.Use(Tracing)
	r.Use(Recovery)
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade failed through the middleware chain: %v", err)
			return
		}
		defer conn.Close()

		// Echo one frame to prove the hijacked connection is usable.
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("server read failed: %v", err)
			return
		}
		if err := conn.WriteMessage(mt, msg); err != nil {
			t.Errorf("server write failed: %v", err)
		}
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if string(msg) != "ping" {
		t.Errorf("echo = %q, want ping", msg)
	}
}

func TestStatusWriterHijackWithoutSupport(t *testing.T) {
	// httptest.ResponseRecorder is not a Hijacker; the wrapper must surface
	// an error instead of panicking.
	w := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := w.Hijack(); err == nil {
		t.Error("expected an error from Hijack on a non-hijackable writer")
	}
}
