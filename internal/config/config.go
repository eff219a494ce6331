// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Provider gateway settings
	TranscriptionBaseURL string
	TranscriptionKeys    []string // Ordered fallback list
	DescriptionBaseURL   string
	DescriptionKeys      []string
	RotationMode         string // "fixed" or "round-robin"
	PollInterval         time.Duration
	PollMaxAttempts      int
	TranscriptCacheTTL   time.Duration // 0 disables the cache

	// Credits
	ResetCheckInterval time.Duration // How often the reset timer scans for due licenses

	// Subscriptions
	StripeSecretKey string // Optional; a static always-active oracle is used when unset

	// Notifications
	WebhookURLs   []string
	WebhookSecret string

	// Security
	AdminKey     string // Admin API key
	RateLimitRPM int

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultTranscriptionURL   = "https://api.supadata.ai/v1"
	DefaultRotationMode       = "fixed"
	DefaultPollInterval       = 5 * time.Second
	DefaultPollMaxAttempts    = 30
	DefaultCacheTTL           = time.Hour
	DefaultResetCheckInterval = time.Hour
	DefaultRateLimitRPM       = 60
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:            getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		TranscriptionBaseURL: getEnv("TRANSCRIPTION_BASE_URL", DefaultTranscriptionURL),
		TranscriptionKeys:    getEnvList("TRANSCRIPTION_API_KEYS"),
		DescriptionBaseURL:   os.Getenv("DESCRIPTION_BASE_URL"),
		DescriptionKeys:      getEnvList("DESCRIPTION_API_KEYS"),
		RotationMode:         getEnv("KEY_ROTATION_MODE", DefaultRotationMode),
		PollInterval:         getEnvDuration("JOB_POLL_INTERVAL", DefaultPollInterval),
		PollMaxAttempts:      getEnvInt("JOB_POLL_MAX_ATTEMPTS", DefaultPollMaxAttempts),
		TranscriptCacheTTL:   getEnvDuration("TRANSCRIPT_CACHE_TTL", DefaultCacheTTL),
		ResetCheckInterval:   getEnvDuration("RESET_CHECK_INTERVAL", DefaultResetCheckInterval),
		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		WebhookURLs:          getEnvList("WEBHOOK_URLS"),
		WebhookSecret:        os.Getenv("WEBHOOK_SECRET"),
		AdminKey:             os.Getenv("ADMIN_KEY"),
		RateLimitRPM:         getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	switch c.RotationMode {
	case "fixed", "round-robin":
	default:
		return fmt.Errorf("KEY_ROTATION_MODE must be %q or %q, got %q", "fixed", "round-robin", c.RotationMode)
	}

	if c.PollMaxAttempts < 1 {
		return fmt.Errorf("JOB_POLL_MAX_ATTEMPTS must be at least 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("JOB_POLL_INTERVAL must be positive")
	}

	if c.IsProduction() {
		if len(c.TranscriptionKeys) == 0 {
			return fmt.Errorf("TRANSCRIPTION_API_KEYS is required in production")
		}
		if c.AdminKey == "" {
			return fmt.Errorf("ADMIN_KEY is required in production")
		}
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

// getEnvList parses a comma-separated env var, dropping empty entries.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
