package simulation

import (
	"time"

	"github.com/siohaza/skirmish/internal/gamestate"
	"github.com/siohaza/skirmish/internal/input"
	"github.com/siohaza/skirmish/internal/physics"
	"github.com/siohaza/skirmish/internal/player"
	"github.com/siohaza/skirmish/pkg/config"
)

// RewardFunc returns the wallet credit for a kill.
type RewardFunc func(killer, victim *player.Player) int

type Rules struct {
	PlayerSpeed  float64
	BulletSpeed  float64
	BulletDamage int
	PlayerRadius float64
	BulletRadius float64
	FireCooldown time.Duration
	KillReward   int
	Shape        physics.Shape

	// Reward overrides KillReward when set.
	Reward RewardFunc
}

func RulesFromConfig(cfg *config.Config) Rules {
	shape, _ := physics.ParseShape(cfg.Arena.Collision)
	return Rules{
		PlayerSpeed:  cfg.Match.PlayerSpeed,
		BulletSpeed:  cfg.Match.BulletSpeed,
		BulletDamage: cfg.Match.BulletDamage,
		PlayerRadius: cfg.Arena.PlayerRadius,
		BulletRadius: cfg.Arena.BulletRadius,
		FireCooldown: cfg.FireCooldown(),
		KillReward:   cfg.Match.KillReward,
		Shape:        shape,
	}
}

type FireRequest struct {
	PlayerID string
	Angle    float64
	At       time.Time
}

type Hit struct {
	BulletID  string
	ShooterID string
	VictimID  string
	Damage    int
	Health    int
}

type Kill struct {
	KillerID string
	VictimID string
	Reward   int
	Wallet   int
	Kills    int
}

type Shot struct {
	BulletID  string
	ShooterID string
}

type Result struct {
	Hits    []Hit
	Kills   []Kill
	Expired []string
	Fired   []Shot
	Dropped int
}

// Step advances the world by one tick: movement, bullet advance, collision,
// then fire requests. now is recorded as the spawn time of new bullets.
func Step(gs *gamestate.GameState, gate *input.Gate, fires []FireRequest, now time.Time, rules Rules) Result {
	var result Result

	movePlayers(gs, gate, rules)
	advanceBullets(gs, &result)
	resolveCollisions(gs, rules, &result)
	processFires(gs, fires, now, rules, &result)

	return result
}

func movePlayers(gs *gamestate.GameState, gate *input.Gate, rules Rules) {
	gs.Players.ForEach(func(p *player.Player) {
		intent := gate.Intent(p.ID)
		if intent.Idle() {
			return
		}
		to := physics.Step(physics.Vec2{X: p.X, Y: p.Y}, intent.Up, intent.Down, intent.Left, intent.Right, rules.PlayerSpeed)
		gs.MovePlayer(p, to)
	})
}

func advanceBullets(gs *gamestate.GameState, result *Result) {
	bounds := gs.BulletBounds()
	for _, b := range gs.LiveBullets() {
		b.Position = physics.Advance(b.Position, b.Angle, b.Speed)
		if !bounds.Contains(b.Position) {
			gs.RemoveBullet(b.ID)
			result.Expired = append(result.Expired, b.ID)
		}
	}
}

func resolveCollisions(gs *gamestate.GameState, rules Rules, result *Result) {
	players := gs.Players.GetAll()

	for _, b := range gs.LiveBullets() {
		for _, target := range players {
			if target.ID == b.OwnerID || !target.IsAlive() {
				continue
			}
			if !rules.Shape.Hit(b.Position, rules.BulletRadius, physics.Vec2{X: target.X, Y: target.Y}, rules.PlayerRadius) {
				continue
			}

			gs.RemoveBullet(b.ID)
			killed := target.Damage(b.Damage)
			result.Hits = append(result.Hits, Hit{
				BulletID:  b.ID,
				ShooterID: b.OwnerID,
				VictimID:  target.ID,
				Damage:    b.Damage,
				Health:    target.Health,
			})

			if killed {
				result.Kills = append(result.Kills, creditKill(gs, b.OwnerID, target, rules))
			}
			break
		}
	}
}

func creditKill(gs *gamestate.GameState, killerID string, victim *player.Player, rules Rules) Kill {
	kill := Kill{KillerID: killerID, VictimID: victim.ID}

	killer, ok := gs.Players.Get(killerID)
	if !ok {
		return kill
	}

	reward := rules.KillReward
	if rules.Reward != nil {
		reward = rules.Reward(killer, victim)
	}
	if reward < 0 {
		reward = 0
	}

	killer.Credit(reward)
	kill.Reward = reward
	kill.Wallet = killer.Wallet
	kill.Kills = killer.Kills
	return kill
}

func processFires(gs *gamestate.GameState, fires []FireRequest, now time.Time, rules Rules, result *Result) {
	for _, req := range fires {
		p, ok := gs.Players.Get(req.PlayerID)
		if !ok || !p.IsAlive() || !p.CanShoot(req.At, rules.FireCooldown) {
			result.Dropped++
			continue
		}

		p.LastShot = req.At
		id := gs.AddBullet(gamestate.BulletSpec{
			OwnerID:   p.ID,
			Position:  physics.Vec2{X: p.X, Y: p.Y},
			Angle:     req.Angle,
			Speed:     rules.BulletSpeed,
			Damage:    rules.BulletDamage,
			SpawnedAt: now,
		})
		result.Fired = append(result.Fired, Shot{BulletID: id, ShooterID: p.ID})
	}
}
