package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Market (pool/odds engine)
	MarketTargetPriceCents int64
	MarketDuration         time.Duration
	MarketFeedSize         int

	// Matchmaking
	MatchRetryAttempts int
	PredictionMaxAge   time.Duration
	SweepInterval      time.Duration

	// Storage
	StorageMode  string // "postgres" or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Notifications
	NotifyMode    string // "redis" or "memory"
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Read cache
	CacheTTL time.Duration

	// Simulation (presentation-only activity feed)
	SimBetInterval   time.Duration
	SimPriceInterval time.Duration
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Market defaults: $40,000 target, 24h window, 8-entry feed
		MarketTargetPriceCents: getInt64OrDefault("MARKET_TARGET_PRICE_CENTS", 40_000_00),
		MarketDuration:         getDurationOrDefault("MARKET_DURATION", 24*time.Hour),
		MarketFeedSize:         getIntOrDefault("MARKET_FEED_SIZE", 8),

		// Matchmaking defaults
		MatchRetryAttempts: getIntOrDefault("MATCH_RETRY_ATTEMPTS", 1),
		PredictionMaxAge:   getDurationOrDefault("PREDICTION_MAX_AGE", 1*time.Hour),
		SweepInterval:      getDurationOrDefault("SWEEP_INTERVAL", 5*time.Minute),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "memory"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "btcbattle"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "btcbattle123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "btcbattle"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		// Notification defaults
		NotifyMode:    getEnvOrDefault("NOTIFY_MODE", "memory"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getIntOrDefault("REDIS_DB", 0),

		// Cache defaults
		CacheTTL: getDurationOrDefault("CACHE_TTL", 5*time.Second),

		// Simulation defaults (mirrors the UI's 5s bet cadence)
		SimBetInterval:   getDurationOrDefault("SIM_BET_INTERVAL", 5*time.Second),
		SimPriceInterval: getDurationOrDefault("SIM_PRICE_INTERVAL", 2*time.Second),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.MarketTargetPriceCents <= 0 {
		return fmt.Errorf("MARKET_TARGET_PRICE_CENTS must be positive, got %d", c.MarketTargetPriceCents)
	}

	if c.MarketDuration <= 0 {
		return fmt.Errorf("MARKET_DURATION must be positive, got %s", c.MarketDuration)
	}

	if c.MarketFeedSize <= 0 {
		return fmt.Errorf("MARKET_FEED_SIZE must be positive, got %d", c.MarketFeedSize)
	}

	if c.StorageMode != "postgres" && c.StorageMode != "memory" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'memory', got %q", c.StorageMode)
	}

	if c.NotifyMode != "redis" && c.NotifyMode != "memory" {
		return fmt.Errorf("NOTIFY_MODE must be 'redis' or 'memory', got %q", c.NotifyMode)
	}

	if c.MatchRetryAttempts < 0 {
		return fmt.Errorf("MATCH_RETRY_ATTEMPTS cannot be negative, got %d", c.MatchRetryAttempts)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
