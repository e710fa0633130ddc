package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := writeFile(t, "config.toml", `
[server]
name = "duel"

[match]
broadcast_every = 2
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Name != "duel" {
		t.Fatalf("expected name duel, got %q", cfg.Server.Name)
	}
	if cfg.Match.BroadcastEvery != 2 {
		t.Fatalf("expected broadcast_every 2, got %d", cfg.Match.BroadcastEvery)
	}
	if cfg.Server.Port != 3000 || cfg.Match.TickRate != 30 || cfg.Match.KillReward != 5 {
		t.Fatalf("unexpected defaults: port=%d tick=%d reward=%d", cfg.Server.Port, cfg.Match.TickRate, cfg.Match.KillReward)
	}
	if cfg.FireCooldown() != 300*time.Millisecond || cfg.RespawnDelay() != 2*time.Second {
		t.Fatalf("unexpected durations: cooldown=%v respawn=%v", cfg.FireCooldown(), cfg.RespawnDelay())
	}

	x, y := cfg.SpawnPoint(1)
	if x != 700 || y != 300 {
		t.Fatalf("expected second spawn at (700,300), got (%v,%v)", x, y)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfigEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"port":      func(c *Config) { c.Server.Port = 70000 },
		"encoding":  func(c *Config) { c.Server.Encoding = "xml" },
		"collision": func(c *Config) { c.Arena.Collision = "capsule" },
		"spawns":    func(c *Config) { c.Arena.Spawns = [][]float64{{1, 1}} },
		"spawn oob": func(c *Config) { c.Arena.Spawns[0] = []float64{-10, 5} },
		"ports":     func(c *Config) { c.Server.ENetPort, c.Server.PingPort = 4000, 4000 },
		"health":    func(c *Config) { c.Match.MaxHealth = 150 },
		"speed":     func(c *Config) { c.Match.PlayerSpeed = 0 },
		"countdown": func(c *Config) { c.Match.CountdownSeconds = 0 },
	}

	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigZeroMeansDefault(t *testing.T) {
	path := writeFile(t, "config.toml", `
[match]
player_speed = 0
countdown_seconds = 0
max_health = 80
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Match.PlayerSpeed != 7 || cfg.Match.CountdownSeconds != 3 {
		t.Fatalf("zero should select defaults, got speed %v countdown %d", cfg.Match.PlayerSpeed, cfg.Match.CountdownSeconds)
	}
	if cfg.Match.MaxHealth != 80 {
		t.Fatalf("max_health = %d", cfg.Match.MaxHealth)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestApplyEnvOverridesPorts(t *testing.T) {
	envFile := writeFile(t, ".env", "SKIRMISH_PING_PORT=4101\n")
	t.Setenv("PORT", "4100")

	cfg := Default()
	if err := cfg.ApplyEnv(envFile); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	defer os.Unsetenv("SKIRMISH_PING_PORT")

	if cfg.Server.Port != 4100 {
		t.Fatalf("expected port 4100, got %d", cfg.Server.Port)
	}
	if cfg.Server.PingPort != 4101 {
		t.Fatalf("expected ping port 4101, got %d", cfg.Server.PingPort)
	}
}

func TestApplyEnvMissingFileIsIgnored(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	cfg := Default()
	if err := cfg.ApplyEnv(""); err == nil {
		t.Fatalf("expected error for invalid PORT")
	}
}
