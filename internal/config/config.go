// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string `validate:"required,numeric"`
	Env       string `validate:"oneof=development staging production test"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Notifications
	RedisURL      string // optional, completion events are only logged if not set
	NotifyChannel string `validate:"required"`

	// Tracing
	OTLPEndpoint string

	// Settlement
	DefaultCurrency       string        `validate:"required,len=3,lowercase"`
	CompletionMaxAttempts int           `validate:"min=1,max=10"`
	CompletionRetryDelay  time.Duration `validate:"min=0"`
	CompletionTimeout     time.Duration `validate:"min=1s"`

	// HTTP
	RateLimitRPM int `validate:"min=1"`
}

const (
	DefaultPort                  = "8080"
	DefaultEnv                   = "development"
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "text"
	DefaultNotifyChannel         = "storeops:reservations"
	DefaultCurrency              = "twd"
	DefaultCompletionMaxAttempts = 3
	DefaultCompletionRetryDelay  = 50 * time.Millisecond
	DefaultCompletionTimeout     = 15 * time.Second
	DefaultRateLimitRPM          = 120
)

var validate = validator.New()

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:             getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		NotifyChannel:         getEnv("NOTIFY_CHANNEL", DefaultNotifyChannel),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DefaultCurrency:       strings.ToLower(getEnv("DEFAULT_CURRENCY", DefaultCurrency)),
		CompletionMaxAttempts: getEnvInt("COMPLETION_MAX_ATTEMPTS", DefaultCompletionMaxAttempts),
		CompletionRetryDelay:  getEnvDuration("COMPLETION_RETRY_DELAY", DefaultCompletionRetryDelay),
		CompletionTimeout:     getEnvDuration("COMPLETION_TIMEOUT", DefaultCompletionTimeout),
		RateLimitRPM:          getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against its field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.DatabaseURL != "" && !strings.HasPrefix(c.DatabaseURL, "postgres") {
		return fmt.Errorf("invalid config: DATABASE_URL must be a postgres:// or postgresql:// URL")
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
