package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	UserAPIBaseURL string
	UserAPIToken   string

	BattleStartDelaySec  int
	BattleSessionTTLSec  int
	BattleMaxParticipant int

	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:           ":8080",
		BattleStartDelaySec:  3,
		BattleSessionTTLSec:  86400,
		BattleMaxParticipant: 4,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.UserAPIBaseURL = strings.TrimSpace(os.Getenv("USER_API_BASE_URL"))
	cfg.UserAPIToken = strings.TrimSpace(os.Getenv("USER_API_TOKEN"))

	if v := strings.TrimSpace(os.Getenv("BATTLE_START_DELAY")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BattleStartDelaySec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BATTLE_SESSION_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BattleSessionTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BATTLE_MAX_PARTICIPANTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			cfg.BattleMaxParticipant = n
		}
	}

	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
