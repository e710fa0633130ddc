package gamestate

import (
	"fmt"
	"sync"
	"time"

	"github.com/siohaza/skirmish/internal/physics"
	"github.com/siohaza/skirmish/internal/player"
	"github.com/siohaza/skirmish/pkg/config"
)

var ErrFull = player.ErrFull

type GameState struct {
	Config    *config.Config
	Players   *player.Manager
	bullets   []*Bullet
	bulletSeq uint64
	arena     physics.Bounds
	mu        sync.RWMutex
}

type Bullet struct {
	ID        string
	OwnerID   string
	Position  physics.Vec2
	Angle     float64
	Speed     float64
	Damage    int
	SpawnedAt time.Time
}

type BulletSpec struct {
	OwnerID   string
	Position  physics.Vec2
	Angle     float64
	Speed     float64
	Damage    int
	SpawnedAt time.Time
}

// PlayerView is a copy of a player's public and scoring fields.
type PlayerView struct {
	ID     string
	Slot   int
	Name   string
	Color  string
	X      float64
	Y      float64
	Health int
	Wallet int
	Kills  int
}

type BulletView struct {
	ID      string
	OwnerID string
	X       float64
	Y       float64
	Angle   float64
}

func New(cfg *config.Config) *GameState {
	return &GameState{
		Config:  cfg,
		Players: player.NewManager(),
		bullets: make([]*Bullet, 0),
		arena:   physics.Arena(cfg.Arena.Width, cfg.Arena.Height, cfg.Arena.PlayerRadius),
	}
}

// PlayerBounds is the region a player's center may occupy.
func (gs *GameState) PlayerBounds() physics.Bounds {
	return gs.arena
}

// BulletBounds is the region outside of which bullets expire.
func (gs *GameState) BulletBounds() physics.Bounds {
	return physics.Arena(gs.Config.Arena.Width, gs.Config.Arena.Height, 0).Expand(gs.Config.Arena.BulletMargin)
}

func (gs *GameState) SpawnPosition(slot int) physics.Vec2 {
	x, y := gs.Config.SpawnPoint(slot)
	return gs.arena.Clamp(physics.Vec2{X: x, Y: y})
}

// AddPlayer admits a connection into the first free slot, already placed at
// its spawn point with full health.
func (gs *GameState) AddPlayer(connID string) (*player.Player, error) {
	p, err := gs.Players.Add(connID)
	if err != nil {
		return nil, fmt.Errorf("failed to admit connection %s: %w", connID, err)
	}

	spawn := gs.SpawnPosition(p.Slot)
	p.Reset(spawn.X, spawn.Y, gs.Config.Match.MaxHealth)
	return p, nil
}

// RemovePlayer drops the player and any bullets it still owns. Removing an
// absent id is a no-op.
func (gs *GameState) RemovePlayer(id string) bool {
	if !gs.Players.Remove(id) {
		return false
	}

	gs.mu.Lock()
	defer gs.mu.Unlock()

	kept := gs.bullets[:0]
	for _, b := range gs.bullets {
		if b.OwnerID != id {
			kept = append(kept, b)
		}
	}
	clear(gs.bullets[len(kept):])
	gs.bullets = kept
	return true
}

func (gs *GameState) MovePlayer(p *player.Player, to physics.Vec2) {
	clamped := gs.arena.Clamp(to)
	p.X = clamped.X
	p.Y = clamped.Y
}

// ResetPlayers restores every player to its match-start state.
func (gs *GameState) ResetPlayers() {
	gs.Players.ForEach(func(p *player.Player) {
		spawn := gs.SpawnPosition(p.Slot)
		p.Reset(spawn.X, spawn.Y, gs.Config.Match.MaxHealth)
	})
}

func (gs *GameState) AddBullet(spec BulletSpec) string {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.bulletSeq++
	id := fmt.Sprintf("%s-%d-%d", spec.OwnerID, spec.SpawnedAt.UnixMilli(), gs.bulletSeq)

	gs.bullets = append(gs.bullets, &Bullet{
		ID:        id,
		OwnerID:   spec.OwnerID,
		Position:  spec.Position,
		Angle:     spec.Angle,
		Speed:     spec.Speed,
		Damage:    spec.Damage,
		SpawnedAt: spec.SpawnedAt,
	})
	return id
}

func (gs *GameState) RemoveBullet(id string) bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	for i, b := range gs.bullets {
		if b.ID == id {
			gs.bullets = append(gs.bullets[:i], gs.bullets[i+1:]...)
			return true
		}
	}
	return false
}

func (gs *GameState) ClearBullets() {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.bullets = gs.bullets[:0]
}

func (gs *GameState) BulletCount() int {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return len(gs.bullets)
}

// LiveBullets returns the bullets in spawn order. The slice is a copy, the
// bullets are not.
func (gs *GameState) LiveBullets() []*Bullet {
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	bullets := make([]*Bullet, len(gs.bullets))
	copy(bullets, gs.bullets)
	return bullets
}

func (gs *GameState) Bullets() []BulletView {
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	views := make([]BulletView, 0, len(gs.bullets))
	for _, b := range gs.bullets {
		views = append(views, BulletView{
			ID:      b.ID,
			OwnerID: b.OwnerID,
			X:       b.Position.X,
			Y:       b.Position.Y,
			Angle:   b.Angle,
		})
	}
	return views
}

func viewOf(p *player.Player) PlayerView {
	return PlayerView{
		ID:     p.ID,
		Slot:   p.Slot,
		Name:   p.Name,
		Color:  p.Color,
		X:      p.X,
		Y:      p.Y,
		Health: p.Health,
		Wallet: p.Wallet,
		Kills:  p.Kills,
	}
}

// PlayerViews returns copies of every player in slot order.
func (gs *GameState) PlayerViews() []PlayerView {
	players := gs.Players.GetAll()
	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, viewOf(p))
	}
	return views
}

func (gs *GameState) PlayerView(id string) (PlayerView, bool) {
	p, ok := gs.Players.Get(id)
	if !ok {
		return PlayerView{}, false
	}
	return viewOf(p), true
}
