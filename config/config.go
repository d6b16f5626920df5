package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DBPath string

	// Logging
	LogLevel  string // debug, info, warn, error
	LogPretty bool

	// HTTP API
	HTTPPort int

	// Market data provider
	QuoteProvider    string // "yahoo" or "binance"
	BinanceAPIKey    string
	BinanceSecretKey string

	// Quote client resilience
	QuoteMaxRetries int           // Attempts before giving up on a rate-limited call
	QuoteBaseDelay  time.Duration // First backoff delay
	QuoteMaxDelay   time.Duration // Backoff ceiling
	QuoteTimeout    time.Duration // Per-attempt timeout

	// Caching (zero TTL disables the cache)
	PriceCacheTTL   time.Duration
	ProfileCacheTTL time.Duration

	// Background health probe
	HealthSymbol   string
	HealthSchedule string

	// Transaction history paging
	HistoryDefaultLimit int
	HistoryMaxLimit     int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/portfolio.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogPretty = getEnvAsBool("LOG_PRETTY", false)

	// HTTP API
	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8080)
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		errs = append(errs, "HTTP_PORT must be between 1 and 65535")
	}

	// Market data provider
	cfg.QuoteProvider = strings.ToLower(getEnv("QUOTE_PROVIDER", "yahoo"))
	switch cfg.QuoteProvider {
	case "yahoo":
	case "binance":
		cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
		cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	default:
		errs = append(errs, fmt.Sprintf("unsupported QUOTE_PROVIDER '%s' (expected yahoo or binance)", cfg.QuoteProvider))
	}

	// Quote client resilience
	cfg.QuoteMaxRetries = getEnvAsInt("QUOTE_MAX_RETRIES", 3)
	if cfg.QuoteMaxRetries < 1 {
		errs = append(errs, "QUOTE_MAX_RETRIES must be at least 1")
	}

	var err error
	cfg.QuoteBaseDelay, err = getEnvAsDuration("QUOTE_BASE_DELAY", 2*time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUOTE_BASE_DELAY: %v", err))
	} else if cfg.QuoteBaseDelay <= 0 {
		errs = append(errs, "QUOTE_BASE_DELAY must be positive")
	}

	cfg.QuoteMaxDelay, err = getEnvAsDuration("QUOTE_MAX_DELAY", 30*time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUOTE_MAX_DELAY: %v", err))
	} else if cfg.QuoteMaxDelay < cfg.QuoteBaseDelay {
		errs = append(errs, "QUOTE_MAX_DELAY must be at least QUOTE_BASE_DELAY")
	}

	cfg.QuoteTimeout, err = getEnvAsDuration("QUOTE_TIMEOUT", 10*time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUOTE_TIMEOUT: %v", err))
	} else if cfg.QuoteTimeout <= 0 {
		errs = append(errs, "QUOTE_TIMEOUT must be positive")
	}

	// Caching
	cfg.PriceCacheTTL, err = getEnvAsDuration("PRICE_CACHE_TTL", time.Minute)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_CACHE_TTL: %v", err))
	} else if cfg.PriceCacheTTL < 0 {
		errs = append(errs, "PRICE_CACHE_TTL cannot be negative")
	}

	cfg.ProfileCacheTTL, err = getEnvAsDuration("PROFILE_CACHE_TTL", time.Hour)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PROFILE_CACHE_TTL: %v", err))
	} else if cfg.ProfileCacheTTL < 0 {
		errs = append(errs, "PROFILE_CACHE_TTL cannot be negative")
	}

	// Background health probe
	cfg.HealthSymbol = getEnv("HEALTH_SYMBOL", "SPY")
	cfg.HealthSchedule = getEnv("HEALTH_SCHEDULE", "@every 5m")

	// Transaction history paging
	cfg.HistoryDefaultLimit = getEnvAsInt("HISTORY_DEFAULT_LIMIT", 10)
	cfg.HistoryMaxLimit = getEnvAsInt("HISTORY_MAX_LIMIT", 50)
	if cfg.HistoryDefaultLimit <= 0 {
		errs = append(errs, "HISTORY_DEFAULT_LIMIT must be positive")
	}
	if cfg.HistoryMaxLimit < cfg.HistoryDefaultLimit {
		errs = append(errs, "HISTORY_MAX_LIMIT must be at least HISTORY_DEFAULT_LIMIT")
	}

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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
