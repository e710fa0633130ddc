package gamemode

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/siohaza/skirmish/internal/player"
	"github.com/siohaza/skirmish/pkg/lua"
)

// MaxKillReward bounds what a script may award per kill.
const MaxKillReward = 1_000_000

// LuaGameMode forwards match events to a script. Every method must be called
// from the goroutine that owns the match.
type LuaGameMode struct {
	vm            *lua.VM
	api           *lua.GameAPI
	name          string
	defaultReward int
	logger        *slog.Logger
}

func NewLuaGameMode(scriptPath string, defaultReward int, api *lua.GameAPI, logger *slog.Logger) (*LuaGameMode, error) {
	if logger == nil {
		logger = slog.Default()
	}

	vm := lua.NewVM()

	if api != nil {
		api.RegisterFunctions(vm)
	}

	if err := vm.LoadFile(scriptPath); err != nil {
		vm.Close()
		return nil, fmt.Errorf("failed to load gamemode script: %w", err)
	}

	name, err := vm.GetGlobalString("name")
	if err != nil {
		name = "lua_gamemode"
	}

	gm := &LuaGameMode{
		vm:            vm,
		api:           api,
		name:          name,
		defaultReward: defaultReward,
		logger:        logger,
	}

	if vm.HasFunction("on_init") {
		if err := vm.CallFunction("on_init"); err != nil {
			vm.Close()
			return nil, fmt.Errorf("failed to call on_init: %w", err)
		}
	}

	return gm, nil
}

func (gm *LuaGameMode) Name() string {
	return gm.name
}

func (gm *LuaGameMode) call(hook string, args ...interface{}) {
	if !gm.vm.HasFunction(hook) {
		return
	}

	if err := gm.vm.CallFunction(hook, args...); err != nil {
		gm.logger.Error("lua gamemode hook error", "hook", hook, "error", err)
	}
}

func (gm *LuaGameMode) OnConnect(p *player.Player) {
	gm.call("on_player_join", lua.PlayerArg(p))
}

func (gm *LuaGameMode) OnDisconnect(playerID string) {
	gm.call("on_player_leave", playerID)
}

func (gm *LuaGameMode) OnMatchStart() {
	gm.call("on_match_start")
}

func (gm *LuaGameMode) OnPlayerDamage(victim *player.Player, damage int) {
	gm.call("on_player_damage", lua.PlayerArg(victim), damage)
}

func (gm *LuaGameMode) OnPlayerKill(killer, victim *player.Player) {
	gm.call("on_player_kill", lua.PlayerArg(killer), lua.PlayerArg(victim))
}

func (gm *LuaGameMode) OnPlayerRespawn(p *player.Player) {
	gm.call("on_player_respawn", lua.PlayerArg(p))
}

func (gm *LuaGameMode) OnWeaponFire(p *player.Player) {
	gm.call("on_weapon_fire", lua.PlayerArg(p))
}

// OnMatchEnd passes nil to the script on a tie.
func (gm *LuaGameMode) OnMatchEnd(winnerID string) {
	if winnerID == "" {
		gm.call("on_match_end", nil)
		return
	}
	gm.call("on_match_end", winnerID)
}

// KillReward asks kill_reward(killer, victim) when the script defines it and
// falls back to the configured reward otherwise or on any script error. The
// result is clamped to [0, MaxKillReward].
func (gm *LuaGameMode) KillReward(killer, victim *player.Player) int {
	if !gm.vm.HasFunction("kill_reward") {
		return gm.defaultReward
	}

	results, err := gm.vm.CallFunctionWithReturn("kill_reward", 1, lua.PlayerArg(killer), lua.PlayerArg(victim))
	if err != nil {
		gm.logger.Error("lua gamemode kill_reward error", "error", err)
		return gm.defaultReward
	}
	if len(results) > 0 {
		if reward, ok := results[0].(float64); ok && !math.IsNaN(reward) {
			return int(math.Min(math.Max(reward, 0), MaxKillReward))
		}
	}
	return gm.defaultReward
}

func (gm *LuaGameMode) Close() {
	if gm.vm != nil {
		gm.vm.Close()
	}
}
