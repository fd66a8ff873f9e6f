package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every knob the engine reads from the environment.
type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string
	LogLevel    string
	LogFormat   string

	ScanInterval        time.Duration
	StallThreshold      time.Duration
	NudgeCooldown       time.Duration
	InactivityThreshold time.Duration

	RunNudgeScans bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return def
}

// Load reads configuration from the environment, with a local .env file as
// fallback. A missing DATABASE_URL is not fatal; callers may run on the
// in-memory store.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                 getenv("APP_ENV", "development"),
		ListenAddr:          getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogFormat:           getenv("LOG_FORMAT", "text"),
		ScanInterval:        getenvDuration("SCAN_INTERVAL", 15*time.Minute),
		StallThreshold:      getenvDuration("STALL_THRESHOLD", 2*time.Hour),
		NudgeCooldown:       getenvDuration("NUDGE_COOLDOWN", 4*time.Hour),
		InactivityThreshold: getenvDuration("INACTIVITY_THRESHOLD", 72*time.Hour),
		RunNudgeScans:       getenvBool("RUN_NUDGE_SCANS", true),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}
