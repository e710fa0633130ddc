package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/siohaza/skirmish/internal/input"
	"github.com/siohaza/skirmish/internal/protocol"
	"github.com/siohaza/skirmish/internal/validation"
)

var errInvalidAngle = errors.New("shoot angle missing or not finite")

func (s *Server) handleKeyUpdate(playerID string, env protocol.Envelope) error {
	keys, err := protocol.DecodePayload[protocol.KeyUpdate](s.codec, env)
	if err != nil {
		return err
	}

	s.match.SetIntent(playerID, input.Intent{
		Up:    keys.Up,
		Down:  keys.Down,
		Left:  keys.Left,
		Right: keys.Right,
	})
	return nil
}

// handleShoot queues a shot. A client-reported position is ignored; bullets
// leave from the shooter's server-side position.
func (s *Server) handleShoot(playerID string, env protocol.Envelope, at time.Time) error {
	shoot, err := protocol.DecodePayload[protocol.Shoot](s.codec, env)
	if err != nil {
		return err
	}

	if shoot.Angle == nil || !validation.IsFiniteAngle(*shoot.Angle) {
		return errInvalidAngle
	}

	if err := s.match.Shoot(playerID, *shoot.Angle, at); err != nil {
		return fmt.Errorf("shot rejected: %w", err)
	}
	return nil
}
