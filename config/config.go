package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"atrx/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all runtime configuration for the decision process and the
// execution agent. Risk policy (tier tables, phase bounds, thresholds)
// lives in the separate Policy value object loaded from YAML.
type Config struct {
	// Persistence
	DBPath string

	// Risk policy file (optional; built-in defaults apply when empty)
	PolicyPath string

	// Trading phase the account is currently in
	Phase string

	// Account bootstrap (used only when no persisted state exists yet)
	InitialBalance float64

	// Decision cycle
	CycleInterval time.Duration // fixed interval between decision cycles
	PollTimeout   time.Duration // bounded producer-side wait for terminal outcome

	// Intent replay file for the file-backed intent source
	IntentFile string

	// Session schedule
	SessionTimezone string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	cfg.DBPath = getEnv("DB_PATH", "./data/atrx.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.PolicyPath = getEnv("POLICY_PATH", "")

	cfg.Phase = strings.ToLower(getEnv("PHASE", "challenge"))
	switch cfg.Phase {
	case "challenge", "verification", "funded":
	default:
		errs = append(errs, fmt.Sprintf("invalid PHASE %q (want challenge, verification or funded)", cfg.Phase))
	}

	var err error
	cfg.InitialBalance, err = getEnvAsFloatRequired("INITIAL_BALANCE", 100000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_BALANCE: %v", err))
	} else if cfg.InitialBalance <= 0 {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}

	cycleSeconds := getEnvAsInt("CYCLE_INTERVAL_SECONDS", 30)
	if cycleSeconds <= 0 {
		errs = append(errs, "CYCLE_INTERVAL_SECONDS must be positive")
	}
	cfg.CycleInterval = time.Duration(cycleSeconds) * time.Second

	pollSeconds := getEnvAsInt("POLL_TIMEOUT_SECONDS", 10)
	if pollSeconds <= 0 {
		errs = append(errs, "POLL_TIMEOUT_SECONDS must be positive")
	}
	cfg.PollTimeout = time.Duration(pollSeconds) * time.Second

	cfg.IntentFile = getEnv("INTENT_FILE", "")

	cfg.SessionTimezone = getEnv("SESSION_TIMEZONE", "UTC")
	if _, err := time.LoadLocation(cfg.SessionTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SESSION_TIMEZONE %q: %v", cfg.SessionTimezone, err))
	}

	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
