package callbacks

import "github.com/siohaza/skirmish/internal/player"

// Callbacks observes match events. They run on the match goroutine between
// ticks, so implementations must not block.
type Callbacks interface {
	OnConnect(p *player.Player)
	OnDisconnect(playerID string)
	OnMatchStart()
	OnPlayerDamage(victim *player.Player, damage int)
	OnPlayerKill(killer, victim *player.Player)
	OnPlayerRespawn(p *player.Player)
	OnWeaponFire(p *player.Player)
	OnMatchEnd(winnerID string)
}

type DefaultCallbacks struct{}

func (d *DefaultCallbacks) OnConnect(p *player.Player)                       {}
func (d *DefaultCallbacks) OnDisconnect(playerID string)                     {}
func (d *DefaultCallbacks) OnMatchStart()                                    {}
func (d *DefaultCallbacks) OnPlayerDamage(victim *player.Player, damage int) {}
func (d *DefaultCallbacks) OnPlayerKill(killer, victim *player.Player)       {}
func (d *DefaultCallbacks) OnPlayerRespawn(p *player.Player)                 {}
func (d *DefaultCallbacks) OnWeaponFire(p *player.Player)                    {}
func (d *DefaultCallbacks) OnMatchEnd(winnerID string)                       {}

type CallbackChain struct {
	callbacks []Callbacks
}

func NewCallbackChain() *CallbackChain {
	return &CallbackChain{
		callbacks: make([]Callbacks, 0),
	}
}

func (c *CallbackChain) Register(cb Callbacks) {
	c.callbacks = append(c.callbacks, cb)
}

func (c *CallbackChain) Len() int {
	return len(c.callbacks)
}

func (c *CallbackChain) OnConnect(p *player.Player) {
	for _, cb := range c.callbacks {
		cb.OnConnect(p)
	}
}

func (c *CallbackChain) OnDisconnect(playerID string) {
	for _, cb := range c.callbacks {
		cb.OnDisconnect(playerID)
	}
}

func (c *CallbackChain) OnMatchStart() {
	for _, cb := range c.callbacks {
		cb.OnMatchStart()
	}
}

func (c *CallbackChain) OnPlayerDamage(victim *player.Player, damage int) {
	for _, cb := range c.callbacks {
		cb.OnPlayerDamage(victim, damage)
	}
}

func (c *CallbackChain) OnPlayerKill(killer, victim *player.Player) {
	for _, cb := range c.callbacks {
		cb.OnPlayerKill(killer, victim)
	}
}

func (c *CallbackChain) OnPlayerRespawn(p *player.Player) {
	for _, cb := range c.callbacks {
		cb.OnPlayerRespawn(p)
	}
}

func (c *CallbackChain) OnWeaponFire(p *player.Player) {
	for _, cb := range c.callbacks {
		cb.OnWeaponFire(p)
	}
}

func (c *CallbackChain) OnMatchEnd(winnerID string) {
	for _, cb := range c.callbacks {
		cb.OnMatchEnd(winnerID)
	}
}
