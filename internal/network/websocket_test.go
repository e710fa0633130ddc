package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/siohaza/skirmish/internal/protocol"
)

type echoHandler struct {
	connected    chan Conn
	names        chan string
	messages     chan []byte
	disconnected chan string
}

func newEchoHandler() *echoHandler {
	return &echoHandler{
		connected:    make(chan Conn, 4),
		names:        make(chan string, 4),
		messages:     make(chan []byte, 4),
		disconnected: make(chan string, 4),
	}
}

func (h *echoHandler) HandleConnect(conn Conn, name string) {
	h.names <- name
	h.connected <- conn
}

func (h *echoHandler) HandleMessage(conn Conn, data []byte) {
	h.messages <- data
	_ = conn.Send(data)
}

func (h *echoHandler) HandleDisconnect(conn Conn) {
	h.disconnected <- conn.ID()
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestWSServerRoundTrip(t *testing.T) {
	h := newEchoHandler()
	s := NewWSServer("", 8, false, h, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ws := dial(t, srv, "?name=Bob")

	if name := waitFor(t, h.names, "connect"); name != "Bob" {
		t.Fatalf("expected name Bob, got %q", name)
	}
	conn := waitFor(t, h.connected, "conn")

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"t":"requestStart"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := waitFor(t, h.messages, "message"); string(got) != `{"t":"requestStart"}` {
		t.Fatalf("unexpected message %s", got)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage || string(data) != `{"t":"requestStart"}` {
		t.Fatalf("unexpected echo %d %s", kind, data)
	}

	ws.Close()
	if id := waitFor(t, h.disconnected, "disconnect"); id != conn.ID() {
		t.Fatalf("expected disconnect for %s, got %s", conn.ID(), id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestWSServerCloseSendsReason(t *testing.T) {
	h := newEchoHandler()
	s := NewWSServer("", 8, true, h, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ws := dial(t, srv, "")
	defer ws.Close()

	conn := waitFor(t, h.connected, "conn")
	if err := conn.Send([]byte("bye")); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = conn.Close(protocol.DisconnectReasonServerFull)

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("expected queued frame before close, got %v", err)
	}
	if kind != websocket.BinaryMessage || string(data) != "bye" {
		t.Fatalf("unexpected frame %d %s", kind, data)
	}

	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("expected close code %d, got %v", websocket.CloseTryAgainLater, err)
	}

	waitFor(t, h.disconnected, "disconnect")
	if err := conn.Send([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestUpgradeAfterStopIsRefused(t *testing.T) {
	h := newEchoHandler()
	s := NewWSServer("", 8, false, h, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	ws := dial(t, srv, "")
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected close code %d, got %v", websocket.CloseGoingAway, err)
	}

	select {
	case <-h.connected:
		t.Fatalf("handler saw a connection after stop")
	default:
	}
	s.mu.Lock()
	n := len(s.conns)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no tracked connections, got %d", n)
	}
}

func TestSendQueueFull(t *testing.T) {
	c := &wsConn{send: make(chan []byte, 1), done: make(chan struct{})}

	if err := c.Send([]byte("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.Send([]byte("b")); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("expected ErrSendQueueFull, got %v", err)
	}

	_ = c.Close(protocol.DisconnectReasonUndefined)
	_ = c.Close(protocol.DisconnectReasonUndefined)
	if err := c.Send([]byte("c")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestIsValidOrigin(t *testing.T) {
	cases := []struct {
		host, origin string
		want         bool
	}{
		{"game.example", "", true},
		{"game.example", "https://game.example", true},
		{"game.example", "http://localhost:5173", true},
		{"game.example", "http://127.0.0.1:8080", true},
		{"game.example", "https://evil.example", false},
	}

	for _, tc := range cases {
		r, _ := http.NewRequest(http.MethodGet, "http://"+tc.host+"/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := isValidOrigin(r); got != tc.want {
			t.Errorf("origin %q: got %v, want %v", tc.origin, got, tc.want)
		}
	}
}
