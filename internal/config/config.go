// Package config loads service configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/resonance-app/gamesync/internal/game"
	"github.com/resonance-app/gamesync/internal/room"
)

// Config is the top-level service configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	NATS   NATSConfig   `yaml:"nats"`
	Rooms  RoomsConfig  `yaml:"rooms"`
	Game   GameConfig   `yaml:"game"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type RoomsConfig struct {
	JoinTimeoutSec   int `yaml:"join_timeout_sec"`
	GracePeriodSec   int `yaml:"grace_period_sec"`
	IdleTimeoutSec   int `yaml:"idle_timeout_sec"`
	TeardownDelaySec int `yaml:"teardown_delay_sec"`
}

type GameConfig struct {
	TugUnitDelta   float64   `yaml:"tug_unit_delta"`
	TugMilestones  []float64 `yaml:"tug_milestones"`
	GridSize       int       `yaml:"grid_size"`
	MatchWindowMs  int       `yaml:"match_window_ms"`
	SyncThreshold  float64   `yaml:"sync_threshold"`
	HoldDurationMs int       `yaml:"hold_duration_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	rules := game.DefaultRules()
	rooms := room.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:           "3000",
			AllowedOrigins: []string{"*"},
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "gamesync.outcomes",
		},
		Rooms: RoomsConfig{
			JoinTimeoutSec:   int(rooms.JoinTimeout / time.Second),
			GracePeriodSec:   int(rooms.GracePeriod / time.Second),
			IdleTimeoutSec:   int(rooms.IdleTimeout / time.Second),
			TeardownDelaySec: int(rooms.TeardownDelay / time.Second),
		},
		Game: GameConfig{
			TugUnitDelta:   rules.TugUnitDelta,
			TugMilestones:  rules.TugMilestones,
			GridSize:       rules.GridSize,
			MatchWindowMs:  int(rules.MatchWindow / time.Millisecond),
			SyncThreshold:  rules.SyncThreshold,
			HoldDurationMs: int(rules.HoldDuration / time.Millisecond),
		},
	}
}

// Load reads the YAML file at path if it exists, then applies env overrides.
// An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Enabled = getEnvAsBool("NATS_ENABLED", cfg.NATS.Enabled)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.Rooms.JoinTimeoutSec = getEnvAsInt("ROOM_JOIN_TIMEOUT_SEC", cfg.Rooms.JoinTimeoutSec)
	cfg.Rooms.GracePeriodSec = getEnvAsInt("ROOM_GRACE_PERIOD_SEC", cfg.Rooms.GracePeriodSec)
	cfg.Rooms.IdleTimeoutSec = getEnvAsInt("ROOM_IDLE_TIMEOUT_SEC", cfg.Rooms.IdleTimeoutSec)
	cfg.Rooms.TeardownDelaySec = getEnvAsInt("ROOM_TEARDOWN_DELAY_SEC", cfg.Rooms.TeardownDelaySec)

	return cfg, nil
}

// RoomConfig assembles the room-manager configuration.
func (c *Config) RoomConfig() room.Config {
	rc := room.DefaultConfig()
	rc.JoinTimeout = time.Duration(c.Rooms.JoinTimeoutSec) * time.Second
	rc.GracePeriod = time.Duration(c.Rooms.GracePeriodSec) * time.Second
	rc.IdleTimeout = time.Duration(c.Rooms.IdleTimeoutSec) * time.Second
	rc.TeardownDelay = time.Duration(c.Rooms.TeardownDelaySec) * time.Second
	rc.Rules = c.Rules()
	return rc
}

// Rules assembles the game tunables.
func (c *Config) Rules() game.Rules {
	return game.Rules{
		TugUnitDelta:  c.Game.TugUnitDelta,
		TugMilestones: c.Game.TugMilestones,
		GridSize:      c.Game.GridSize,
		MatchWindow:   time.Duration(c.Game.MatchWindowMs) * time.Millisecond,
		SyncThreshold: c.Game.SyncThreshold,
		HoldDuration:  time.Duration(c.Game.HoldDurationMs) * time.Millisecond,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
