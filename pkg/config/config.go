package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Match     MatchConfig     `toml:"match"`
	Arena     ArenaConfig     `toml:"arena"`
	Scripting ScriptingConfig `toml:"scripting"`
}

type ServerConfig struct {
	Name     string `toml:"name"`
	Port     int    `toml:"port"`
	ENetPort int    `toml:"enet_port"`
	PingPort int    `toml:"ping_port"`
	Encoding string `toml:"encoding"`

	// per-connection outbound queue length for websocket clients
	SendQueue int `toml:"send_queue"`

	// logging configuration
	LogToFile bool `toml:"log_to_file"`
}

type MatchConfig struct {
	TickRate         int     `toml:"tick_rate"`
	BroadcastEvery   int     `toml:"broadcast_every"`
	CountdownSeconds int     `toml:"countdown_seconds"`
	DurationSeconds  int     `toml:"duration_seconds"`
	RespawnDelayMs   int     `toml:"respawn_delay_ms"`
	FireCooldownMs   int     `toml:"fire_cooldown_ms"`
	KillReward       int     `toml:"kill_reward"`
	BulletDamage     int     `toml:"bullet_damage"`
	BulletSpeed      float64 `toml:"bullet_speed"`
	PlayerSpeed      float64 `toml:"player_speed"`
	MaxHealth        int     `toml:"max_health"`
}

type ArenaConfig struct {
	Width        float64     `toml:"width"`
	Height       float64     `toml:"height"`
	PlayerRadius float64     `toml:"player_radius"`
	BulletRadius float64     `toml:"bullet_radius"`
	BulletMargin float64     `toml:"bullet_margin"`
	Collision    string      `toml:"collision"`
	Spawns       [][]float64 `toml:"spawns"`
}

type ScriptingConfig struct {
	Gamemode string `toml:"gamemode"`
}

const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"

	CollisionCircle = "circle"
	CollisionRect   = "rect"

	// HealthLimit caps max_health; player health never leaves [0, HealthLimit].
	HealthLimit = 100
)

// Default returns a configuration with every field set to its default.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills every zero numeric field, so a zero in the file means
// "use the default". Validate rejects values that stay out of range after that.
func (c *Config) applyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "skirmish"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.Encoding == "" {
		c.Server.Encoding = EncodingJSON
	}
	if c.Server.SendQueue == 0 {
		c.Server.SendQueue = 64
	}

	// match defaults
	if c.Match.TickRate == 0 {
		c.Match.TickRate = 30
	}
	if c.Match.BroadcastEvery == 0 {
		c.Match.BroadcastEvery = 1
	}
	if c.Match.CountdownSeconds == 0 {
		c.Match.CountdownSeconds = 3
	}
	if c.Match.DurationSeconds == 0 {
		c.Match.DurationSeconds = 60
	}
	if c.Match.RespawnDelayMs == 0 {
		c.Match.RespawnDelayMs = 2000
	}
	if c.Match.FireCooldownMs == 0 {
		c.Match.FireCooldownMs = 300
	}
	if c.Match.KillReward == 0 {
		c.Match.KillReward = 5
	}
	if c.Match.BulletDamage == 0 {
		c.Match.BulletDamage = 10
	}
	if c.Match.BulletSpeed == 0 {
		c.Match.BulletSpeed = 18
	}
	if c.Match.PlayerSpeed == 0 {
		c.Match.PlayerSpeed = 7
	}
	if c.Match.MaxHealth == 0 {
		c.Match.MaxHealth = 100
	}

	// arena defaults
	if c.Arena.Width == 0 {
		c.Arena.Width = 800
	}
	if c.Arena.Height == 0 {
		c.Arena.Height = 600
	}
	if c.Arena.PlayerRadius == 0 {
		c.Arena.PlayerRadius = 15
	}
	if c.Arena.BulletRadius == 0 {
		c.Arena.BulletRadius = 5
	}
	if c.Arena.BulletMargin == 0 {
		c.Arena.BulletMargin = 50
	}
	if c.Arena.Collision == "" {
		c.Arena.Collision = CollisionCircle
	}
	if len(c.Arena.Spawns) == 0 {
		c.Arena.Spawns = [][]float64{
			{100, c.Arena.Height / 2},
			{c.Arena.Width - 100, c.Arena.Height / 2},
		}
	}
}

// ApplyEnv loads envFile when it exists and applies environment overrides.
// Variables already present in the process environment win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	overrides := []struct {
		name   string
		target *int
	}{
		{"PORT", &c.Server.Port},
		{"SKIRMISH_ENET_PORT", &c.Server.ENetPort},
		{"SKIRMISH_PING_PORT", &c.Server.PingPort},
	}

	for _, o := range overrides {
		raw := os.Getenv(o.name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", o.name, raw, err)
		}
		*o.target = value
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.ENetPort < 0 || c.Server.ENetPort > 65535 {
		return fmt.Errorf("invalid enet_port: %d", c.Server.ENetPort)
	}

	if c.Server.PingPort < 0 || c.Server.PingPort > 65535 {
		return fmt.Errorf("invalid ping_port: %d", c.Server.PingPort)
	}

	if c.Server.ENetPort != 0 && c.Server.ENetPort == c.Server.PingPort {
		return fmt.Errorf("enet_port and ping_port must differ")
	}

	if c.Server.Encoding != EncodingJSON && c.Server.Encoding != EncodingMsgpack {
		return fmt.Errorf("unknown encoding: %q", c.Server.Encoding)
	}

	if c.Server.SendQueue <= 0 {
		return fmt.Errorf("send_queue must be positive")
	}

	if c.Match.TickRate <= 0 || c.Match.TickRate > 240 {
		return fmt.Errorf("tick_rate must be between 1 and 240")
	}

	if c.Match.BroadcastEvery <= 0 {
		return fmt.Errorf("broadcast_every must be at least 1")
	}

	if c.Match.CountdownSeconds <= 0 {
		return fmt.Errorf("countdown_seconds must be at least 1")
	}

	if c.Match.DurationSeconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive")
	}

	if c.Match.RespawnDelayMs < 0 || c.Match.FireCooldownMs < 0 {
		return fmt.Errorf("respawn_delay_ms and fire_cooldown_ms cannot be negative")
	}

	if c.Match.KillReward < 0 {
		return fmt.Errorf("kill_reward cannot be negative")
	}

	if c.Match.MaxHealth <= 0 || c.Match.MaxHealth > HealthLimit {
		return fmt.Errorf("max_health must be between 1 and %d", HealthLimit)
	}

	if c.Match.BulletDamage <= 0 {
		return fmt.Errorf("bullet_damage must be positive")
	}

	if c.Match.BulletSpeed <= 0 || c.Match.PlayerSpeed <= 0 {
		return fmt.Errorf("bullet_speed and player_speed must be positive")
	}

	if c.Arena.Width <= 0 || c.Arena.Height <= 0 {
		return fmt.Errorf("arena dimensions must be positive")
	}

	if c.Arena.PlayerRadius <= 0 || c.Arena.BulletRadius <= 0 {
		return fmt.Errorf("player_radius and bullet_radius must be positive")
	}

	if 2*c.Arena.PlayerRadius > c.Arena.Width || 2*c.Arena.PlayerRadius > c.Arena.Height {
		return fmt.Errorf("arena too small for player_radius %.1f", c.Arena.PlayerRadius)
	}

	if c.Arena.Collision != CollisionCircle && c.Arena.Collision != CollisionRect {
		return fmt.Errorf("unknown collision shape: %q", c.Arena.Collision)
	}

	if len(c.Arena.Spawns) != 2 {
		return fmt.Errorf("exactly two spawn points must be specified")
	}

	for i, spawn := range c.Arena.Spawns {
		if len(spawn) != 2 {
			return fmt.Errorf("spawn %d must have two coordinates", i+1)
		}
		if spawn[0] < 0 || spawn[0] > c.Arena.Width || spawn[1] < 0 || spawn[1] > c.Arena.Height {
			return fmt.Errorf("spawn %d lies outside the arena", i+1)
		}
	}

	return nil
}

func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Match.TickRate)
}

func (c *Config) RespawnDelay() time.Duration {
	return time.Duration(c.Match.RespawnDelayMs) * time.Millisecond
}

func (c *Config) FireCooldown() time.Duration {
	return time.Duration(c.Match.FireCooldownMs) * time.Millisecond
}

// SpawnPoint returns the start position for a zero-based slot.
func (c *Config) SpawnPoint(slot int) (float64, float64) {
	if slot < 0 || slot >= len(c.Arena.Spawns) || len(c.Arena.Spawns[slot]) < 2 {
		return c.Arena.Width / 2, c.Arena.Height / 2
	}
	return c.Arena.Spawns[slot][0], c.Arena.Spawns[slot][1]
}
