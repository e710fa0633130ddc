package match

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/siohaza/skirmish/internal/callbacks"
	"github.com/siohaza/skirmish/internal/gamestate"
	"github.com/siohaza/skirmish/internal/input"
	"github.com/siohaza/skirmish/internal/player"
	"github.com/siohaza/skirmish/internal/protocol"
	"github.com/siohaza/skirmish/internal/schedule"
	"github.com/siohaza/skirmish/internal/simulation"
	"github.com/siohaza/skirmish/pkg/config"
)

var (
	ErrFull          = gamestate.ErrFull
	ErrInvalidState  = errors.New("action not allowed in current match state")
	ErrUnknownPlayer = errors.New("unknown player")
)

type State int

const (
	StateWaiting State = iota
	StateCountdown
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateCountdown:
		return "countdown"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outbox delivers encoded events to connected players. Implementations must
// not block.
type Outbox interface {
	SendTo(playerID, event string, payload any)
	Broadcast(event string, payload any, except ...string)
}

// lifecycleOwner keys the countdown and match clock events so they can be
// cancelled without touching per-player respawns.
const lifecycleOwner = "match"

// Match is the single live duel. All methods must be called from the same
// goroutine.
type Match struct {
	cfg       *config.Config
	gs        *gamestate.GameState
	gate      *input.Gate
	sched     *schedule.Scheduler
	rules     simulation.Rules
	outbox    Outbox
	callbacks callbacks.Callbacks
	logger    *slog.Logger

	state        State
	countdown    int
	remaining    int
	tick         uint64
	fires        []simulation.FireRequest
	pendingStart bool
	countdownID  schedule.ID
	clockID      schedule.ID
}

func New(cfg *config.Config, outbox Outbox, logger *slog.Logger) *Match {
	if logger == nil {
		logger = slog.Default()
	}
	return &Match{
		cfg:       cfg,
		gs:        gamestate.New(cfg),
		gate:      input.NewGate(),
		sched:     schedule.New(),
		rules:     simulation.RulesFromConfig(cfg),
		outbox:    outbox,
		callbacks: &callbacks.DefaultCallbacks{},
		logger:    logger,
		state:     StateWaiting,
		remaining: cfg.Match.DurationSeconds,
		fires:     make([]simulation.FireRequest, 0, 8),
	}
}

func (m *Match) SetCallbacks(cb callbacks.Callbacks) {
	if cb == nil {
		cb = &callbacks.DefaultCallbacks{}
	}
	m.callbacks = cb
}

// SetRewardFunc overrides the configured kill reward. A nil fn restores it.
func (m *Match) SetRewardFunc(fn simulation.RewardFunc) {
	m.rules.Reward = fn
}

func (m *Match) GameState() *gamestate.GameState { return m.gs }
func (m *Match) State() State                    { return m.state }
func (m *Match) StateName() string               { return m.state.String() }
func (m *Match) Remaining() int                  { return m.remaining }
func (m *Match) TickCount() uint64               { return m.tick }
func (m *Match) PlayerCount() int                { return m.gs.Players.Count() }
func (m *Match) PendingEvents() int              { return m.sched.Pending() }

// Join admits a connection. On ErrFull nothing is mutated.
func (m *Match) Join(connID, name string) (*player.Player, error) {
	p, err := m.gs.AddPlayer(connID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		p.Name = protocol.SanitizeName(name, p.Name)
	}

	m.logger.Info("player joined", "id", p.ID, "slot", p.Slot, "name", p.Name, "conn", connID)

	m.outbox.SendTo(p.ID, protocol.EventInit, m.initFor(p))
	m.outbox.Broadcast(protocol.EventPlayerJoined, playerInfo(p), p.ID)
	m.callbacks.OnConnect(p)
	return p, nil
}

// Leave removes a player. It reports false for an id that is not present.
func (m *Match) Leave(id string) bool {
	if !m.gs.RemovePlayer(id) {
		return false
	}

	m.gate.Remove(id)
	m.sched.CancelOwner(id)
	m.dropFires(id)

	m.logger.Info("player left", "id", id, "state", m.state.String())

	m.outbox.Broadcast(protocol.EventPlayerLeft, protocol.PlayerLeft{ID: id})
	m.callbacks.OnDisconnect(id)

	switch {
	case m.state == StateCountdown, m.state == StateActive:
		m.resetToWaiting()
	case m.state == StateEnded && m.gs.Players.Count() < player.MaxPlayers:
		m.resetToWaiting()
	}
	return true
}

func (m *Match) dropFires(id string) {
	kept := m.fires[:0]
	for _, f := range m.fires {
		if f.PlayerID != id {
			kept = append(kept, f)
		}
	}
	m.fires = kept
}

// resetToWaiting drops every pending event, including respawns, so a player
// left dead by the cancelled respawn is revived here.
func (m *Match) resetToWaiting() {
	m.sched.CancelAll()
	m.gs.ClearBullets()
	m.fires = m.fires[:0]
	m.pendingStart = false
	m.countdown = 0
	m.remaining = m.cfg.Match.DurationSeconds
	m.state = StateWaiting

	m.logger.Info("match reset to waiting")
	m.outbox.Broadcast(protocol.EventMatchReset, protocol.Empty{})

	for _, p := range m.gs.Players.GetAll() {
		if p.IsAlive() {
			continue
		}
		spawn := m.gs.SpawnPosition(p.Slot)
		p.Respawn(spawn.X, spawn.Y, m.cfg.Match.MaxHealth)
		m.outbox.SendTo(p.ID, protocol.EventRespawn, protocol.Respawn{X: spawn.X, Y: spawn.Y})
		m.callbacks.OnPlayerRespawn(p)
	}
}

// SetIntent overwrites the player's movement intent. Unknown ids are ignored.
func (m *Match) SetIntent(id string, intent input.Intent) bool {
	if _, ok := m.gs.Players.Get(id); !ok {
		return false
	}
	m.gate.SetIntent(id, intent)
	return true
}

// Shoot queues a fire request for the next tick. at is the arrival time used
// for the cooldown check.
func (m *Match) Shoot(id string, angle float64, at time.Time) error {
	if m.state != StateActive {
		return fmt.Errorf("shoot while %s: %w", m.state, ErrInvalidState)
	}
	if _, ok := m.gs.Players.Get(id); !ok {
		return fmt.Errorf("shoot from %s: %w", id, ErrUnknownPlayer)
	}
	m.fires = append(m.fires, simulation.FireRequest{PlayerID: id, Angle: angle, At: at})
	return nil
}

// RequestStart asks for a countdown. It is honored on the next tick.
func (m *Match) RequestStart(id string) error {
	if _, ok := m.gs.Players.Get(id); !ok {
		return fmt.Errorf("start from %s: %w", id, ErrUnknownPlayer)
	}
	if !m.canStart() {
		return fmt.Errorf("start while %s with %d players: %w", m.state, m.gs.Players.Count(), ErrInvalidState)
	}
	m.pendingStart = true
	return nil
}

func (m *Match) canStart() bool {
	if m.state != StateWaiting && m.state != StateEnded {
		return false
	}
	return m.gs.Players.Count() == player.MaxPlayers
}

// Tick drains due events, honors a pending start and, while Active, runs one
// simulation step. It reports whether the world advanced.
func (m *Match) Tick(now time.Time) bool {
	m.sched.RunDue(now)

	if m.pendingStart {
		m.pendingStart = false
		if m.canStart() {
			m.enterCountdown(now)
		}
	}

	if m.state != StateActive {
		m.fires = m.fires[:0]
		return false
	}

	m.tick++
	result := simulation.Step(m.gs, m.gate, m.fires, now, m.rules)
	m.fires = m.fires[:0]
	m.handleResult(result, now)
	return true
}

func (m *Match) enterCountdown(now time.Time) {
	m.sched.CancelOwner(lifecycleOwner)
	m.gs.ClearBullets()
	m.state = StateCountdown
	m.countdown = m.cfg.Match.CountdownSeconds

	m.logger.Info("countdown started", "seconds", m.countdown)
	m.outbox.Broadcast(protocol.EventCountdown, protocol.Countdown{Seconds: m.countdown})

	m.countdownID = m.sched.Every(now.Add(time.Second), time.Second, lifecycleOwner, func(due time.Time) {
		m.countdown--
		if m.countdown > 0 {
			m.outbox.Broadcast(protocol.EventCountdown, protocol.Countdown{Seconds: m.countdown})
			return
		}
		m.sched.Cancel(m.countdownID)
		m.startMatch(due)
	})
}

func (m *Match) startMatch(now time.Time) {
	m.gs.ResetPlayers()
	m.gs.ClearBullets()
	m.gs.Players.ForEach(func(p *player.Player) {
		m.sched.CancelOwner(p.ID)
	})
	m.fires = m.fires[:0]
	m.remaining = m.cfg.Match.DurationSeconds
	m.state = StateActive

	m.logger.Info("match started", "duration", m.remaining, "tick", m.tick)
	m.outbox.Broadcast(protocol.EventGameStart, protocol.GameStart{GameTime: m.remaining})
	m.callbacks.OnMatchStart()

	m.clockID = m.sched.Every(now.Add(time.Second), time.Second, lifecycleOwner, func(time.Time) {
		m.remaining--
		if m.remaining > 0 {
			return
		}
		m.remaining = 0
		m.sched.Cancel(m.clockID)
		m.endMatch()
	})
}

func (m *Match) endMatch() {
	m.sched.CancelOwner(lifecycleOwner)
	m.gs.ClearBullets()
	m.fires = m.fires[:0]
	m.state = StateEnded

	standings := m.Standings()
	winner := Winner(standings)

	end := protocol.GameEnd{Players: standings}
	if winner != "" {
		end.Winner = &winner
	}

	m.logger.Info("match ended", "winner", winner, "tick", m.tick)
	m.outbox.Broadcast(protocol.EventGameEnd, end)
	m.callbacks.OnMatchEnd(winner)
}

func (m *Match) handleResult(result simulation.Result, now time.Time) {
	for _, shot := range result.Fired {
		if p, ok := m.gs.Players.Get(shot.ShooterID); ok {
			m.callbacks.OnWeaponFire(p)
		}
	}

	for _, hit := range result.Hits {
		if victim, ok := m.gs.Players.Get(hit.VictimID); ok {
			m.callbacks.OnPlayerDamage(victim, hit.Damage)
		}
	}

	for _, kill := range result.Kills {
		victim, ok := m.gs.Players.Get(kill.VictimID)
		if !ok {
			continue
		}

		if killer, ok := m.gs.Players.Get(kill.KillerID); ok {
			m.logger.Info("player killed", "killer", killer.ID, "victim", victim.ID, "reward", kill.Reward)
			m.outbox.SendTo(killer.ID, protocol.EventScoreUpdate, protocol.ScoreUpdate{Wallet: kill.Wallet, Kills: kill.Kills})
			m.callbacks.OnPlayerKill(killer, victim)
		}

		m.scheduleRespawn(victim.ID, now)
	}
}

func (m *Match) scheduleRespawn(victimID string, now time.Time) {
	m.sched.At(now.Add(m.cfg.RespawnDelay()), victimID, func(time.Time) {
		p, ok := m.gs.Players.Get(victimID)
		if !ok {
			return
		}

		spawn := m.gs.SpawnPosition(p.Slot)
		p.Respawn(spawn.X, spawn.Y, m.cfg.Match.MaxHealth)

		m.logger.Debug("player respawned", "id", p.ID, "x", spawn.X, "y", spawn.Y)
		m.outbox.SendTo(p.ID, protocol.EventRespawn, protocol.Respawn{X: spawn.X, Y: spawn.Y})
		m.callbacks.OnPlayerRespawn(p)
	})
}

// Announce sends a free-form message to every player.
func (m *Match) Announce(message string) {
	m.outbox.Broadcast(protocol.EventAnnouncement, protocol.Announcement{Message: message})
}

// Snapshot is the reduced broadcast view of the world.
func (m *Match) Snapshot() protocol.Snapshot {
	snap := protocol.Snapshot{
		Players:  make(map[string]protocol.PlayerState, player.MaxPlayers),
		Bullets:  make([]protocol.BulletState, 0, m.gs.BulletCount()),
		GameTime: m.remaining,
		Tick:     m.tick,
	}
	for _, v := range m.gs.PlayerViews() {
		snap.Players[v.ID] = protocol.PlayerState{X: v.X, Y: v.Y, Health: v.Health}
	}
	for _, b := range m.gs.Bullets() {
		snap.Bullets = append(snap.Bullets, protocol.BulletState{ID: b.ID, X: b.X, Y: b.Y, Angle: b.Angle})
	}
	return snap
}

// Standings lists wallet and kills per player in slot order.
func (m *Match) Standings() []protocol.Standing {
	views := m.gs.PlayerViews()
	standings := make([]protocol.Standing, 0, len(views))
	for _, v := range views {
		standings = append(standings, protocol.Standing{ID: v.ID, Wallet: v.Wallet, Kills: v.Kills})
	}
	return standings
}

// Winner returns the id with the strictly highest wallet, or "" on a tie or
// an empty list.
func Winner(standings []protocol.Standing) string {
	winner := ""
	best := 0
	tied := false
	for i, s := range standings {
		switch {
		case i == 0 || s.Wallet > best:
			winner, best, tied = s.ID, s.Wallet, false
		case s.Wallet == best:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return winner
}

func (m *Match) initFor(p *player.Player) protocol.Init {
	players := make(map[string]protocol.PlayerInfo, player.MaxPlayers)
	m.gs.Players.ForEach(func(other *player.Player) {
		players[other.ID] = playerInfo(other)
	})
	return protocol.Init{
		PlayerID: p.ID,
		Slot:     p.Slot,
		Tick:     m.tick,
		Players:  players,
		GameTime: m.remaining,
		Wallet:   p.Wallet,
		Kills:    p.Kills,
		State:    m.state.String(),
	}
}

func playerInfo(p *player.Player) protocol.PlayerInfo {
	return protocol.PlayerInfo{
		ID:     p.ID,
		Name:   p.Name,
		Slot:   p.Slot,
		Color:  p.Color,
		X:      p.X,
		Y:      p.Y,
		Health: p.Health,
	}
}
