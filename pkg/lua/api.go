package lua

import (
	"fmt"

	"github.com/siohaza/skirmish/internal/gamestate"
	"github.com/siohaza/skirmish/internal/player"

	"github.com/Shopify/go-lua"
)

type ServerInterface interface {
	Announce(message string)
	MatchState() string
	RemainingTime() int
	ServerName() string
}

type GameAPI struct {
	gameState *gamestate.GameState
	server    ServerInterface
}

func NewGameAPI(gs *gamestate.GameState) *GameAPI {
	return &GameAPI{
		gameState: gs,
	}
}

func (api *GameAPI) SetServer(srv ServerInterface) {
	api.server = srv
}

func (api *GameAPI) RegisterFunctions(vm *VM) {
	state := vm.State()

	state.Register("get_player", api.getPlayer)
	state.Register("get_player_by_slot", api.getPlayerBySlot)
	state.Register("get_players", api.getPlayers)
	state.Register("get_player_count", api.getPlayerCount)
	state.Register("get_match_state", api.getMatchState)
	state.Register("get_remaining_time", api.getRemainingTime)
	state.Register("get_server_name", api.getServerName)
	state.Register("get_arena_size", api.getArenaSize)
	state.Register("broadcast_message", api.broadcastMessage)
}

func (api *GameAPI) getPlayerCount(state *lua.State) int {
	state.PushInteger(api.gameState.Players.Count())
	return 1
}

func (api *GameAPI) getPlayer(state *lua.State) int {
	id, _ := state.ToString(1)

	p, _ := api.gameState.Players.Get(id)
	pushPlayerTable(state, p)
	return 1
}

func (api *GameAPI) getPlayerBySlot(state *lua.State) int {
	slot, _ := state.ToInteger(1)

	var found *player.Player
	api.gameState.Players.ForEach(func(p *player.Player) {
		if p.Slot == slot {
			found = p
		}
	})
	pushPlayerTable(state, found)
	return 1
}

func (api *GameAPI) getPlayers(state *lua.State) int {
	state.NewTable()
	for i, p := range api.gameState.Players.GetAll() {
		pushPlayerTable(state, p)
		state.RawSetInt(-2, i+1)
	}
	return 1
}

func pushPlayerTable(state *lua.State, p *player.Player) {
	if p == nil {
		state.PushNil()
		return
	}

	state.NewTable()
	state.PushString(p.ID)
	state.SetField(-2, "id")
	state.PushString(p.Name)
	state.SetField(-2, "name")
	state.PushInteger(p.Slot)
	state.SetField(-2, "slot")
	state.PushString(p.Color)
	state.SetField(-2, "color")
	state.PushNumber(p.X)
	state.SetField(-2, "x")
	state.PushNumber(p.Y)
	state.SetField(-2, "y")
	state.PushInteger(p.Health)
	state.SetField(-2, "health")
	state.PushBoolean(p.IsAlive())
	state.SetField(-2, "alive")
	state.PushInteger(p.Wallet)
	state.SetField(-2, "wallet")
	state.PushInteger(p.Kills)
	state.SetField(-2, "kills")
}

func (api *GameAPI) getMatchState(state *lua.State) int {
	if api.server == nil {
		state.PushString("")
		return 1
	}

	state.PushString(api.server.MatchState())
	return 1
}

func (api *GameAPI) getRemainingTime(state *lua.State) int {
	if api.server == nil {
		state.PushInteger(0)
		return 1
	}

	state.PushInteger(api.server.RemainingTime())
	return 1
}

func (api *GameAPI) getServerName(state *lua.State) int {
	if api.server == nil {
		state.PushString("")
		return 1
	}

	state.PushString(api.server.ServerName())
	return 1
}

func (api *GameAPI) getArenaSize(state *lua.State) int {
	state.PushNumber(api.gameState.Config.Arena.Width)
	state.PushNumber(api.gameState.Config.Arena.Height)
	return 2
}

func (api *GameAPI) broadcastMessage(state *lua.State) int {
	message, _ := state.ToString(1)

	if api.server != nil && message != "" {
		api.server.Announce(message)
	}

	return 0
}

func PushPlayer(state *lua.State, p *player.Player) {
	pushPlayerTable(state, p)
}

// PlayerArg wraps p so it can be passed to CallFunction as a table.
func PlayerArg(p *player.Player) func(*lua.State) {
	return func(state *lua.State) {
		pushPlayerTable(state, p)
	}
}

// CheckPlayer resolves a player table passed back from a script.
func CheckPlayer(state *lua.State, idx int, gs *gamestate.GameState) (*player.Player, error) {
	if !state.IsTable(idx) {
		return nil, fmt.Errorf("expected table at index %d", idx)
	}

	state.Field(idx, "id")
	if state.TypeOf(-1) != lua.TypeString {
		state.Pop(1)
		return nil, fmt.Errorf("player.id is not a string")
	}
	id, _ := state.ToString(-1)
	state.Pop(1)

	p, ok := gs.Players.Get(id)
	if !ok {
		return nil, fmt.Errorf("player with id %s not found", id)
	}

	return p, nil
}
