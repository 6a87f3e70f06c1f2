// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration, sourced from environment
// variables (loaded from .env for local runs).
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	DBPath      string `envconfig:"DB_PATH" default:"./data/bizpilot.db"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:""`

	// EngineAddr is the gRPC address of the external reasoning engine.
	EngineAddr string `envconfig:"ENGINE_ADDR" default:"localhost:50051"`

	// PendingActionTTL bounds how long an unconfirmed action stays pending.
	PendingActionTTL time.Duration `envconfig:"PENDING_ACTION_TTL" default:"15m"`

	RateLimit RateLimitConfig
	SSE       SSEConfig
}

// RateLimitConfig controls per-user chat throttling.
type RateLimitConfig struct {
	RequestsPerWindow int           `envconfig:"RATE_LIMIT_REQUESTS" default:"20"`
	WindowDuration    time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// SSEConfig controls server-sent-event streaming behavior.
type SSEConfig struct {
	KeepaliveInterval  time.Duration `envconfig:"SSE_KEEPALIVE_INTERVAL" default:"10s"`
	RetryDelay         time.Duration `envconfig:"SSE_RETRY_DELAY" default:"5s"`
	MaxRequestBodySize int64         `envconfig:"MAX_REQUEST_BODY_SIZE" default:"1048576"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.PendingActionTTL <= 0 {
		return fmt.Errorf("PENDING_ACTION_TTL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.SSE.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.Environment == "development" {
		return true
	}
	return strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
