package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/siohaza/skirmish/internal/match"
	"github.com/siohaza/skirmish/internal/protocol"
	"github.com/siohaza/skirmish/pkg/config"
)

var t0 = time.Unix(1_700_000_000, 0)

type fakeConn struct {
	id     string
	frames [][]byte
	closed bool
	reason protocol.DisconnectReason
	err    error
}

func (f *fakeConn) ID() string         { return f.id }
func (f *fakeConn) RemoteAddr() string { return "test:" + f.id }

func (f *fakeConn) Send(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) Close(reason protocol.DisconnectReason) error {
	f.closed = true
	f.reason = reason
	return nil
}

func (f *fakeConn) envelopes(t *testing.T, codec protocol.Codec) []protocol.Envelope {
	t.Helper()
	out := make([]protocol.Envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		env, err := codec.DecodeEnvelope(frame)
		if err != nil {
			t.Fatalf("conn %s: bad frame %q: %v", f.id, frame, err)
		}
		out = append(out, env)
	}
	return out
}

func (f *fakeConn) types(t *testing.T, codec protocol.Codec) []string {
	t.Helper()
	var out []string
	for _, env := range f.envelopes(t, codec) {
		out = append(out, env.T)
	}
	return out
}

func (f *fakeConn) last(t *testing.T, codec protocol.Codec, event string) (protocol.Envelope, bool) {
	t.Helper()
	envs := f.envelopes(t, codec)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].T == event {
			return envs[i], true
		}
	}
	return protocol.Envelope{}, false
}

func count(types []string, event string) int {
	n := 0
	for _, t := range types {
		if t == event {
			n++
		}
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func (s *Server) connect(conns ...*fakeConn) {
	for _, c := range conns {
		s.handleCommand(connectCmd{conn: c})
	}
}

func (s *Server) send(c *fakeConn, frame string, at time.Time) {
	s.handleCommand(messageCmd{conn: c, data: []byte(frame), at: at})
}

func TestConnectAssignsSlotsAndRejectsThird(t *testing.T) {
	s := newTestServer(t, nil)
	c1, c2, c3 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}, &fakeConn{id: "c3"}

	s.connect(c1, c2, c3)

	if got := c1.types(t, s.codec); len(got) != 2 || got[0] != protocol.EventInit || got[1] != protocol.EventPlayerJoined {
		t.Fatalf("c1 expected init then playerJoined, got %v", got)
	}
	if got := c2.types(t, s.codec); len(got) != 1 || got[0] != protocol.EventInit {
		t.Fatalf("c2 expected init only, got %v", got)
	}
	if got := c3.types(t, s.codec); len(got) != 1 || got[0] != protocol.EventGameFull {
		t.Fatalf("c3 expected gameFull, got %v", got)
	}
	if !c3.closed || c3.reason != protocol.DisconnectReasonServerFull {
		t.Fatalf("c3 should be closed as server full")
	}
	if _, ok := s.sessions["c3"]; ok {
		t.Fatalf("rejected connection kept a session")
	}

	env, _ := c2.last(t, s.codec, protocol.EventInit)
	init, err := protocol.DecodePayload[protocol.Init](s.codec, env)
	if err != nil {
		t.Fatalf("decode init: %v", err)
	}
	if init.Slot != 1 || len(init.Players) != 2 || init.State != "waiting" {
		t.Fatalf("unexpected init %+v", init)
	}
}

func TestMessagesDriveMatch(t *testing.T) {
	s := newTestServer(t, nil)
	c1, c2 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}
	s.connect(c1, c2)

	s.send(c1, `{"t":"requestStart"}`, t0)
	for i := 0; i <= 3; i++ {
		s.update(t0.Add(time.Duration(i) * time.Second))
	}

	types := c2.types(t, s.codec)
	if count(types, protocol.EventCountdown) != 3 || count(types, protocol.EventGameStart) != 1 {
		t.Fatalf("expected countdown x3 and gameStart, got %v", types)
	}
	if count(types, protocol.EventGameUpdate) != 1 {
		t.Fatalf("expected the first snapshot on the start tick, got %v", types)
	}

	s.send(c1, `{"t":"keyUpdate","p":{"up":false,"down":false,"left":false,"right":true}}`, t0.Add(3*time.Second))
	s.update(t0.Add(3*time.Second + 33*time.Millisecond))

	env, _ := c2.last(t, s.codec, protocol.EventGameUpdate)
	snap, err := protocol.DecodePayload[protocol.Snapshot](s.codec, env)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	p1 := s.sessions["c1"]
	if got := snap.Players[p1.playerID]; got.X != 107 || got.Y != 300 {
		t.Fatalf("expected c1 to move right by 7, got %+v", got)
	}
	if snap.Tick != 2 || snap.GameTime != 60 {
		t.Fatalf("unexpected snapshot clock %+v", snap)
	}
}

func TestRequestRestartIsAnAlias(t *testing.T) {
	s := newTestServer(t, nil)
	c1, c2 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}
	s.connect(c1, c2)

	s.send(c2, `{"t":"requestRestart"}`, t0)
	s.update(t0)
	if s.match.State() != match.StateCountdown {
		t.Fatalf("expected countdown, got %s", s.match.State())
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	s := newTestServer(t, nil)
	c1, c2 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}
	s.connect(c1, c2)
	before := len(c1.frames)

	for _, frame := range []string{
		"not json",
		`{"p":{}}`,
		`{"t":"dance"}`,
		`{"t":"shoot","p":{}}`,
		`{"t":"shoot","p":{"angle":1.5}}`,
		`{"t":"keyUpdate","p":"up"}`,
	} {
		s.send(c1, frame, t0)
	}
	s.update(t0)

	if len(c1.frames) != before || s.match.State() != match.StateWaiting {
		t.Fatalf("malformed frames changed state: %v", c1.types(t, s.codec)[before:])
	}

	stranger := &fakeConn{id: "stranger"}
	s.send(stranger, `{"t":"requestStart"}`, t0)
	s.update(t0.Add(time.Millisecond))
	if s.match.State() != match.StateWaiting {
		t.Fatalf("unknown connection started the match")
	}
}

func TestShootFromServerPosition(t *testing.T) {
	s := newTestServer(t, nil)
	c1, c2 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}
	s.connect(c1, c2)

	s.send(c1, `{"t":"requestStart"}`, t0)
	s.update(t0)
	start := t0.Add(3 * time.Second)
	s.update(t0.Add(time.Second))
	s.update(t0.Add(2 * time.Second))
	s.update(start)

	s.send(c1, `{"t":"shoot","p":{"x":999,"y":999,"angle":0}}`, start)
	s.update(start.Add(33 * time.Millisecond))

	env, _ := c1.last(t, s.codec, protocol.EventGameUpdate)
	snap, err := protocol.DecodePayload[protocol.Snapshot](s.codec, env)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Bullets) != 1 || snap.Bullets[0].X != 100 || snap.Bullets[0].Y != 300 {
		t.Fatalf("expected one bullet at the shooter, got %+v", snap.Bullets)
	}
}

func TestDisconnectNotifiesPeer(t *testing.T) {
	s := newTestServer(t, nil)
	c1, c2 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}
	s.connect(c1, c2)

	s.send(c1, `{"t":"requestStart"}`, t0)
	s.update(t0)

	s.handleCommand(disconnectCmd{conn: c2})
	types := c1.types(t, s.codec)
	if count(types, protocol.EventPlayerLeft) != 1 || count(types, protocol.EventMatchReset) != 1 {
		t.Fatalf("expected playerLeft and matchReset, got %v", types)
	}
	if s.match.State() != match.StateWaiting || s.match.PendingEvents() != 0 {
		t.Fatalf("expected waiting with no timers, got %s with %d", s.match.State(), s.match.PendingEvents())
	}

	frames := len(c1.frames)
	s.handleCommand(disconnectCmd{conn: c2})
	s.handleCommand(disconnectCmd{conn: &fakeConn{id: "never-joined"}})
	if len(c1.frames) != frames {
		t.Fatalf("repeated disconnect emitted events")
	}

	c3 := &fakeConn{id: "c3"}
	s.connect(c3)
	if got := c3.types(t, s.codec); len(got) != 1 || got[0] != protocol.EventInit {
		t.Fatalf("freed slot should admit a new player, got %v", got)
	}
}

func TestSendFailureIsIsolated(t *testing.T) {
	s := newTestServer(t, nil)
	c1, c2 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}
	s.connect(c1, c2)
	c1.err = errors.New("broken pipe")

	s.send(c2, `{"t":"requestStart"}`, t0)
	s.update(t0)

	if count(c2.types(t, s.codec), protocol.EventCountdown) != 1 {
		t.Fatalf("healthy connection missed the countdown")
	}
}

func TestMsgpackEncoding(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Encoding = config.EncodingMsgpack
	})
	if s.codec.Name() != "msgpack" {
		t.Fatalf("expected msgpack codec, got %s", s.codec.Name())
	}

	c1, c2 := &fakeConn{id: "c1"}, &fakeConn{id: "c2"}
	s.connect(c1, c2)

	start, err := s.codec.Encode(protocol.EventRequestStart, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s.handleCommand(messageCmd{conn: c1, data: start, at: t0})
	s.update(t0)

	if count(c2.types(t, s.codec), protocol.EventCountdown) != 1 {
		t.Fatalf("expected msgpack countdown, got %v", c2.types(t, s.codec))
	}
}

func TestLuaGameModeIsWired(t *testing.T) {
	script := filepath.Join(t.TempDir(), "duel.lua")
	body := `
name = "scripted"

function on_player_join(p)
  broadcast_message("welcome " .. p.name)
end

function kill_reward(killer, victim)
  return 9
end
`
	if err := os.WriteFile(script, []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Scripting.Gamemode = script
	})
	if s.gameModeName() != "scripted" {
		t.Fatalf("expected scripted game mode, got %q", s.gameModeName())
	}

	c1 := &fakeConn{id: "c1"}
	s.connect(c1)

	env, ok := c1.last(t, s.codec, protocol.EventAnnouncement)
	if !ok {
		t.Fatalf("expected an announcement, got %v", c1.types(t, s.codec))
	}
	msg, err := protocol.DecodePayload[protocol.Announcement](s.codec, env)
	if err != nil || msg.Message != "welcome Player 1" {
		t.Fatalf("unexpected announcement %+v %v", msg, err)
	}
}

func TestMissingGameModeScriptFails(t *testing.T) {
	cfg := config.Default()
	cfg.Scripting.Gamemode = filepath.Join(t.TempDir(), "missing.lua")
	if _, err := New(cfg, quietLogger()); err == nil {
		t.Fatalf("expected error for missing script")
	}
}

func TestWebsocketEndToEnd(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Port = 0
	})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, port, err := net.SplitHostPort(s.Addr())
	if err != nil {
		t.Fatalf("addr %q: %v", s.Addr(), err)
	}
	url := "ws://127.0.0.1:" + port + "/ws"

	dial := func(name string) *websocket.Conn {
		ws, _, err := websocket.DefaultDialer.Dial(url+"?name="+name, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { ws.Close() })
		return ws
	}

	read := func(ws *websocket.Conn, want string) protocol.Envelope {
		t.Helper()
		_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				t.Fatalf("waiting for %s: %v", want, err)
			}
			env, err := s.codec.DecodeEnvelope(data)
			if err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			if env.T == want {
				return env
			}
		}
	}

	a := dial("Alice")
	env := read(a, protocol.EventInit)
	init, err := protocol.DecodePayload[protocol.Init](s.codec, env)
	if err != nil || init.Players[init.PlayerID].Name != "Alice" {
		t.Fatalf("unexpected init %+v %v", init, err)
	}

	b := dial("Bob")
	read(b, protocol.EventInit)
	read(a, protocol.EventPlayerJoined)

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"t":"requestStart"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	env = read(b, protocol.EventCountdown)
	countdown, err := protocol.DecodePayload[protocol.Countdown](s.codec, env)
	if err != nil || countdown.Seconds != 3 {
		t.Fatalf("unexpected countdown %+v %v", countdown, err)
	}

	c := dial("Carol")
	read(c, protocol.EventGameFull)
}
