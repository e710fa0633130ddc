package protocol

const (
	MaxPlayers    = 2
	PlayerNameLen = 16
)

// inbound, client to server
const (
	EventKeyUpdate      = "keyUpdate"
	EventShoot          = "shoot"
	EventRequestStart   = "requestStart"
	EventRequestRestart = "requestRestart"
)

// outbound, server to client
const (
	EventInit         = "init"
	EventPlayerJoined = "playerJoined"
	EventPlayerLeft   = "playerLeft"
	EventCountdown    = "countdown"
	EventGameStart    = "gameStart"
	EventGameUpdate   = "gameUpdate"
	EventScoreUpdate  = "scoreUpdate"
	EventRespawn      = "respawn"
	EventGameEnd      = "gameEnd"
	EventGameFull     = "gameFull"
	EventMatchReset   = "matchReset"
	EventAnnouncement = "announcement"
)

// DisconnectReason is passed to ENet peers when the server drops them.
type DisconnectReason uint32

const (
	DisconnectReasonUndefined  DisconnectReason = 0
	DisconnectReasonServerFull DisconnectReason = 4
	DisconnectReasonShutdown   DisconnectReason = 5
)

type KeyUpdate struct {
	Up    bool `json:"up"`
	Down  bool `json:"down"`
	Left  bool `json:"left"`
	Right bool `json:"right"`
}

// Shoot carries the aim angle in radians. Clients may also send their own
// position, which the server ignores in favor of its own.
type Shoot struct {
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Angle *float64 `json:"angle"`
}

type Empty struct{}

type PlayerInfo struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Slot   int     `json:"slot"`
	Color  string  `json:"color"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Health int     `json:"health"`
}

type Init struct {
	PlayerID string                `json:"playerId"`
	Slot     int                   `json:"slot"`
	Tick     uint64                `json:"tick"`
	Players  map[string]PlayerInfo `json:"players"`
	GameTime int                   `json:"gameTime"`
	Wallet   int                   `json:"wallet"`
	Kills    int                   `json:"kills"`
	State    string                `json:"state"`
}

type PlayerLeft struct {
	ID string `json:"id"`
}

type Countdown struct {
	Seconds int `json:"seconds"`
}

type GameStart struct {
	GameTime int `json:"gameTime"`
}

// PlayerState is the per-player part of a snapshot. It deliberately has no
// scoring or input fields.
type PlayerState struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Health int     `json:"health"`
}

type BulletState struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

type Snapshot struct {
	Players  map[string]PlayerState `json:"players"`
	Bullets  []BulletState          `json:"bullets"`
	GameTime int                    `json:"gameTime"`
	Tick     uint64                 `json:"tick"`
}

type ScoreUpdate struct {
	Wallet int `json:"wallet"`
	Kills  int `json:"kills"`
}

type Respawn struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Standing struct {
	ID     string `json:"id"`
	Wallet int    `json:"wallet"`
	Kills  int    `json:"kills"`
}

// GameEnd has a nil Winner on a tie.
type GameEnd struct {
	Winner  *string    `json:"winner"`
	Players []Standing `json:"players"`
}

type Announcement struct {
	Message string `json:"message"`
}
