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

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Redis connection string for the webhook dedup cache (optional)

	// Payment provider
	StripeSecretKey     string // API key used for settlement transfers and payouts
	StripeWebhookSecret string // Endpoint secret for inbound event signature verification

	// Fee settings
	PlatformFeePct float64 // Platform share of every withdrawal, in percent

	// Withdrawal bounds (decimal strings, e.g. "10.00")
	MinWithdrawal string
	MaxWithdrawal string

	// Mobile money payout channel (optional)
	MobileMoneyURL    string
	MobileMoneyAPIKey string

	// Notification collaborator
	NotifyURL    string // Where typed ledger events are POSTed (optional)
	NotifySecret string // HMAC secret for signing notification payloads

	// Observability
	OTLPEndpoint string

	// Security
	AdminSecret string // Admin API secret
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultPlatformFeePct = 5.0
	DefaultMinWithdrawal  = "10.00"
	DefaultMaxWithdrawal  = "25000.00"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:            os.Getenv("REDIS_URL"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PlatformFeePct:      getEnvFloat("PLATFORM_FEE_PCT", DefaultPlatformFeePct),
		MinWithdrawal:       getEnv("MIN_WITHDRAWAL", DefaultMinWithdrawal),
		MaxWithdrawal:       getEnv("MAX_WITHDRAWAL", DefaultMaxWithdrawal),
		MobileMoneyURL:      os.Getenv("MOBILE_MONEY_URL"),
		MobileMoneyAPIKey:   os.Getenv("MOBILE_MONEY_API_KEY"),
		NotifyURL:           os.Getenv("NOTIFY_URL"),
		NotifySecret:        os.Getenv("NOTIFY_SECRET"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PlatformFeePct < 0 || c.PlatformFeePct >= 100 {
		return fmt.Errorf("PLATFORM_FEE_PCT must be in [0, 100), got %v", c.PlatformFeePct)
	}

	// Outside development every money-moving call goes through Stripe,
	// so the key and webhook secret are mandatory there.
	if !c.IsDevelopment() {
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required outside development")
		}
		if c.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required outside development")
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
