package broadcast

import (
	"fmt"
	"log/slog"

	"github.com/siohaza/skirmish/internal/protocol"
)

// Target is anything a frame can be written to. network.Conn satisfies it.
type Target interface {
	ID() string
	Send(data []byte) error
}

type Broadcaster struct {
	every  uint64
	codec  protocol.Codec
	logger *slog.Logger
}

// New returns a broadcaster that fires every n ticks. n below 1 is treated
// as 1.
func New(every int, codec protocol.Codec, logger *slog.Logger) *Broadcaster {
	if every < 1 {
		every = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{every: uint64(every), codec: codec, logger: logger}
}

func (b *Broadcaster) Every() int {
	return int(b.every)
}

func (b *Broadcaster) Due(tick uint64) bool {
	return tick%b.every == 0
}

// Broadcast encodes snap once and writes it to every target. It returns the
// ids of targets whose send failed; one failure never skips the rest.
func (b *Broadcaster) Broadcast(snap protocol.Snapshot, targets []Target) ([]string, error) {
	data, err := b.codec.Encode(protocol.EventGameUpdate, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	var failed []string
	for _, t := range targets {
		if err := t.Send(data); err != nil {
			b.logger.Warn("snapshot send failed", "conn", t.ID(), "tick", snap.Tick, "error", err)
			failed = append(failed, t.ID())
		}
	}
	return failed, nil
}
