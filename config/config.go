package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration of the chat client.
type Config struct {
	// API
	APIURL         string        `env:"CHAT_API_URL,notEmpty"`
	APIToken       string        `env:"CHAT_API_TOKEN"`
	RequestTimeout time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"15s"`

	// Viewer
	ViewerID     string `env:"CHAT_VIEWER_ID,notEmpty"`
	Conversation string `env:"CHAT_CONVERSATION"`

	// Push feed
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// Optional direct database source. When set, history is read from
	// Postgres instead of the API.
	DatabaseURL string `env:"DATABASE_URL"`

	PresenceInterval time.Duration `env:"CHAT_PRESENCE_INTERVAL" envDefault:"2m"`
	LogLevel         string        `env:"CHAT_LOG_LEVEL" envDefault:"info"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	cfg.APIToken = strings.TrimSpace(cfg.APIToken)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	if cfg.PresenceInterval <= 0 {
		return nil, fmt.Errorf("CHAT_PRESENCE_INTERVAL must be positive, got %s", cfg.PresenceInterval)
	}
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("CHAT_REQUEST_TIMEOUT must not be negative, got %s", cfg.RequestTimeout)
	}
	return cfg, nil
}

// Level returns the slog level named by LogLevel. Unknown names map to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
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

// UseDatabase reports whether history should be read from Postgres.
func (c *Config) UseDatabase() bool {
	return c.DatabaseURL != ""
}
