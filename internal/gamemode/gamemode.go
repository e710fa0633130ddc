package gamemode

import (
	"github.com/siohaza/skirmish/internal/callbacks"
	"github.com/siohaza/skirmish/internal/player"
)

// GameMode observes the match and decides how much a kill is worth.
type GameMode interface {
	callbacks.Callbacks
	Name() string
	KillReward(killer, victim *player.Player) int
	Close()
}

type BaseGameMode struct {
	callbacks.DefaultCallbacks
	name   string
	reward int
}

func NewBaseGameMode(name string, reward int) *BaseGameMode {
	return &BaseGameMode{name: name, reward: reward}
}

func (b *BaseGameMode) Name() string {
	return b.name
}

func (b *BaseGameMode) KillReward(killer, victim *player.Player) int {
	return b.reward
}

func (b *BaseGameMode) Close() {}
