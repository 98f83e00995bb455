// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Money settings (amounts are integers in the smallest currency unit)
	Currency   string
	MinTopup   int64
	MaxTopup   int64
	PlatformID string // reserved wallet account that collects platform fees

	// Security
	AdminSecret  string // bootstrap secret for issuing the first admin API key
	RateLimitRPS int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled when empty
}

// Defaults
const (
	DefaultPort       = "8080"
	DefaultEnv        = "development"
	DefaultLogLevel   = "info"
	DefaultCurrency   = "VND"
	DefaultMinTopup   = 10_000
	DefaultMaxTopup   = 100_000_000
	DefaultPlatformID = "platform"
	DefaultRateLimit  = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:  os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		Currency:     getEnv("CURRENCY", DefaultCurrency),
		MinTopup:     getEnvInt64("MIN_TOPUP", DefaultMinTopup),
		MaxTopup:     getEnvInt64("MAX_TOPUP", DefaultMaxTopup),
		PlatformID:   getEnv("PLATFORM_ACCOUNT_ID", DefaultPlatformID),
		AdminSecret:  os.Getenv("ADMIN_SECRET"),
		RateLimitRPS: int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PlatformID == "" {
		return fmt.Errorf("PLATFORM_ACCOUNT_ID must not be empty")
	}
	if c.MinTopup <= 0 {
		return fmt.Errorf("MIN_TOPUP must be positive")
	}
	if c.MaxTopup < c.MinTopup {
		return fmt.Errorf("MAX_TOPUP must be >= MIN_TOPUP")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
