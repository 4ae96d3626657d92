// Package server provides configuration helpers that define runtime defaults,
// validation, and environment loading for the relay service.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"BURST"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL"`
}

// Config holds the server configuration settings.
type Config struct {
	Port             string          `env:"SERVER_PORT"`
	AllowedOrigins   []string        `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize   int64           `env:"MAX_MESSAGE_SIZE"`
	SendBufferSize   int             `env:"SEND_BUFFER_SIZE"`
	DeliveryInterval time.Duration   `env:"DELIVERY_INTERVAL"`
	MaxRoomMessages  int             `env:"MAX_ROOM_MESSAGES"`
	ShutdownTimeout  time.Duration   `env:"SHUTDOWN_TIMEOUT"`
	LogLevel         string          `env:"LOG_LEVEL"`
	RateLimit        RateLimitConfig `envPrefix:"RATE_LIMIT_"`
}

func defaultConfig() Config {
	return Config{
		Port: ":9000",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:3001",
		},
		MaxMessageSize:   4096,
		SendBufferSize:   64,
		DeliveryInterval: 100 * time.Millisecond,
		ShutdownTimeout:  10 * time.Second,
		LogLevel:         "info",
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}

	if cfg.DeliveryInterval <= 0 {
		cfg.DeliveryInterval = defaults.DeliveryInterval
	}

	if cfg.MaxRoomMessages < 0 {
		cfg.MaxRoomMessages = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.AllowedOrigins = origins

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables. Unset
// variables keep their defaults; malformed values are reported as errors.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
