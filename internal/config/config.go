package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr string
	StreamAddr string

	RedisURL    string
	DatabaseURL string

	// Game holds tunables that are awkward as flat env vars; an optional
	// YAML file (ARENA_CONFIG) overrides the defaults.
	Game GameConfig
}

type GameConfig struct {
	SessionTTLSec   int   `yaml:"session_ttl_seconds"`
	MatchTTLSec     int   `yaml:"match_ttl_seconds"`
	ClockInitialSec int   `yaml:"clock_initial_seconds"`
	AIDifficulty    int   `yaml:"ai_difficulty"`
	AISeed          int64 `yaml:"ai_seed"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr: ":8080",
		StreamAddr: ":8081",
		Game: GameConfig{
			SessionTTLSec:   24 * 3600,
			MatchTTLSec:     300,
			ClockInitialSec: 600,
			AIDifficulty:    1,
			AISeed:          1,
		},
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("STREAM_ADDR")); v != "" {
		cfg.StreamAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Game.SessionTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Game.MatchTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AI_DIFFICULTY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Game.AIDifficulty = n
		}
	}

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg.Game); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
