package broadcast

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/siohaza/skirmish/internal/protocol"
)

type fakeTarget struct {
	id     string
	err    error
	frames [][]byte
}

func (f *fakeTarget) ID() string { return f.id }

func (f *fakeTarget) Send(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, data)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDueHonorsCadence(t *testing.T) {
	every := New(1, protocol.JSONCodec{}, nil)
	other := New(2, protocol.JSONCodec{}, nil)
	clamped := New(0, protocol.JSONCodec{}, nil)

	for tick := uint64(1); tick <= 6; tick++ {
		if !every.Due(tick) || !clamped.Due(tick) {
			t.Fatalf("tick %d: expected every-tick broadcaster to be due", tick)
		}
		if other.Due(tick) != (tick%2 == 0) {
			t.Fatalf("tick %d: unexpected every-other-tick result", tick)
		}
	}
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	b := New(1, protocol.JSONCodec{}, quietLogger())

	bad := &fakeTarget{id: "bad", err: errors.New("broken pipe")}
	good := &fakeTarget{id: "good"}

	snap := protocol.Snapshot{
		Players:  map[string]protocol.PlayerState{"a": {X: 100, Y: 300, Health: 100}},
		Bullets:  []protocol.BulletState{},
		GameTime: 42,
		Tick:     9,
	}

	failed, err := b.Broadcast(snap, []Target{bad, good})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(failed) != 1 || failed[0] != "bad" {
		t.Fatalf("expected only bad to fail, got %v", failed)
	}
	if len(good.frames) != 1 {
		t.Fatalf("expected good to receive the snapshot")
	}

	var frame struct {
		T string            `json:"t"`
		P protocol.Snapshot `json:"p"`
	}
	if err := json.Unmarshal(good.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.T != protocol.EventGameUpdate || frame.P.Tick != 9 || frame.P.GameTime != 42 {
		t.Fatalf("unexpected frame %+v", frame)
	}
}
