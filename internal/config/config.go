package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	WhiteProvider string
	BlackProvider string

	MoveTimeout  time.Duration
	StuckWindow  time.Duration
	StepInterval time.Duration

	LLMMaxTokens   int
	LLMTemperature float64

	ProvidersFile string
	UILayout      string
}

// Load는 .env(있으면)와 환경변수로 설정을 구성.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		ListenAddr:     ":8080",
		WhiteProvider:  "groq",
		BlackProvider:  "groq",
		MoveTimeout:    5 * time.Second,
		StuckWindow:    5 * time.Second,
		StepInterval:   250 * time.Millisecond,
		LLMMaxTokens:   100,
		LLMTemperature: 0.3,
		ProvidersFile:  "providers.yaml",
		UILayout:       "side",
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("ARENA_WHITE_PROVIDER")); v != "" {
		cfg.WhiteProvider = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_BLACK_PROVIDER")); v != "" {
		cfg.BlackProvider = v
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_MOVE_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MoveTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_STUCK_WINDOW_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StuckWindow = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_STEP_INTERVAL_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StepInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_LLM_MAX_TOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLMMaxTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_LLM_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.LLMTemperature = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_PROVIDERS_FILE")); v != "" {
		cfg.ProvidersFile = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_UI_LAYOUT")); v != "" {
		cfg.UILayout = v
	}

	if cfg.MoveTimeout > cfg.StuckWindow {
		return nil, errors.New("ARENA_MOVE_TIMEOUT_MS must not exceed ARENA_STUCK_WINDOW_MS")
	}

	return cfg, nil
}
