package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	MaxPlayers = 2
	MaxHealth  = 100
)

var ErrFull = errors.New("all player slots are taken")

var slotColors = [MaxPlayers]string{"#ff0000", "#0000ff"}

type Player struct {
	ID       string
	ConnID   string
	Slot     int
	Name     string
	Color    string
	X        float64
	Y        float64
	Health   int
	Wallet   int
	Kills    int
	LastShot time.Time
}

func New(id, connID string, slot int) *Player {
	return &Player{
		ID:     id,
		ConnID: connID,
		Slot:   slot,
		Name:   fmt.Sprintf("Player %d", slot+1),
		Color:  slotColors[slot%MaxPlayers],
	}
}

func (p *Player) IsAlive() bool {
	return p.Health > 0
}

// Damage subtracts amount from health without going below zero and reports
// whether this call took the player from alive to dead.
func (p *Player) Damage(amount int) bool {
	if p.Health <= 0 {
		return false
	}
	p.Health -= amount
	if p.Health <= 0 {
		p.Health = 0
		return true
	}
	return false
}

// Respawn moves the player and restores health, clamped to [0, MaxHealth].
func (p *Player) Respawn(x, y float64, health int) {
	p.X = x
	p.Y = y
	p.Health = min(max(health, 0), MaxHealth)
}

// Reset puts the player back to match-start state.
func (p *Player) Reset(x, y float64, health int) {
	p.Respawn(x, y, health)
	p.Wallet = 0
	p.Kills = 0
	p.LastShot = time.Time{}
}

// CanShoot reports whether a shot at now is outside the cooldown window.
func (p *Player) CanShoot(now time.Time, cooldown time.Duration) bool {
	if p.LastShot.IsZero() {
		return true
	}
	return now.Sub(p.LastShot) > cooldown
}

func (p *Player) Credit(reward int) {
	p.Wallet += reward
	p.Kills++
}

type Manager struct {
	slots [MaxPlayers]*Player
	mu    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{}
}

// Add assigns the first free slot to a new player with a fresh id.
func (m *Manager) Add(connID string) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for slot := 0; slot < MaxPlayers; slot++ {
		if m.slots[slot] == nil {
			p := New(uuid.NewString(), connID, slot)
			m.slots[slot] = p
			return p, nil
		}
	}
	return nil, ErrFull
}

func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for slot, p := range m.slots {
		if p != nil && p.ID == id {
			m.slots[slot] = nil
			return true
		}
	}
	return false
}

func (m *Manager) Get(id string) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.slots {
		if p != nil && p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (m *Manager) GetByConn(connID string) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.slots {
		if p != nil && p.ConnID == connID {
			return p, true
		}
	}
	return nil, false
}

// GetAll returns the players in slot order.
func (m *Manager) GetAll() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()

	players := make([]*Player, 0, MaxPlayers)
	for _, p := range m.slots {
		if p != nil {
			players = append(players, p)
		}
	}
	return players
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.slots {
		if p != nil {
			count++
		}
	}
	return count
}

// ForEach visits players in slot order. The slot list is copied first so fn
// may add or remove players.
func (m *Manager) ForEach(fn func(*Player)) {
	for _, p := range m.GetAll() {
		fn(p)
	}
}
