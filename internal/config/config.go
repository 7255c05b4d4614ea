// Package config loads the relay configuration from an optional YAML file
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimit configures the per-IP limit on WebSocket upgrade attempts.
type RateLimit struct {
	Max           int `yaml:"max"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the configured sliding window.
func (r RateLimit) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Config holds the relay's runtime settings. The room set is fixed for the
// process lifetime once loaded.
type Config struct {
	ListenAddr  string   `yaml:"listen_addr"`
	Rooms       []string `yaml:"rooms"`
	DefaultRoom string   `yaml:"default_room"`

	// HistorySize caps per-room history; zero keeps it unbounded.
	HistorySize int `yaml:"history_size"`

	// RedisAddr enables the Redis-backed history store when set.
	RedisAddr string `yaml:"redis_addr"`

	MaxConns           int `yaml:"max_conns"`
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
	SessionTTLSeconds  int `yaml:"session_ttl_seconds"`

	RateLimit RateLimit `yaml:"rate_limit"`
}

// IdleTimeout returns the connection idle timeout; zero disables reaping.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// SessionTTL returns how long an idle identity session survives.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:        ":8080",
		Rooms:             []string{"General", "News", "Sport", "Engineering"},
		DefaultRoom:       "General",
		HistorySize:       50,
		SessionTTLSeconds: 300,
		RateLimit: RateLimit{
			Max:           30,
			WindowSeconds: 60,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.RedisAddr = redisAddr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Rooms) == 0 {
		return fmt.Errorf("config: at least one room is required")
	}
	if c.DefaultRoom == "" {
		c.DefaultRoom = c.Rooms[0]
	}
	for _, room := range c.Rooms {
		if room == c.DefaultRoom {
			return nil
		}
	}
	return fmt.Errorf("config: default room %q is not in the room list", c.DefaultRoom)
}
