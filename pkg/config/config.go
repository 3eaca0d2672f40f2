// Package config provides the unified configuration system for RelayHub.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kart-io/relayhub/pkg/logger"
)

// Store backend names.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Queue backend names.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config represents the unified configuration structure.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Store settings
	Store StoreConfig `json:"store"`

	// Queue settings
	Queue QueueConfig `json:"queue"`

	// Feature flags
	Features FeatureConfig `json:"features"`

	// Auth settings
	Auth AuthConfig `json:"auth"`

	// Telemetry settings
	Telemetry TelemetryConfig `json:"telemetry"`

	// Instance-level logger
	Logger logger.Logger `json:"-"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `json:"backend"` // "memory" or "sqlite"
	DSN     string `json:"dsn,omitempty"`
}

// QueueConfig configures the job queue and runner.
type QueueConfig struct {
	Backend  string       `json:"backend"` // "memory" or "redis"
	Capacity int          `json:"capacity"`
	Workers  int          `json:"workers"`
	Redis    *RedisConfig `json:"redis,omitempty"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// FeatureConfig holds feature flags gating pipeline behavior.
type FeatureConfig struct {
	// TopicNotificationsEnabled controls whether topic-type recipients
	// are honored; when false, topic entries in `to` are rejected.
	TopicNotificationsEnabled bool `json:"topic_notifications_enabled"`
}

// EnvironmentKey binds an API key to an organization/environment pair.
type EnvironmentKey struct {
	APIKey         string `json:"api_key"`
	OrganizationID string `json:"organization_id"`
	EnvironmentID  string `json:"environment_id"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	JWTSecret string           `json:"jwt_secret,omitempty"`
	Keys      []EnvironmentKey `json:"keys,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
}

// Option defines a functional option for configuration.
type Option func(*Config) error

// New creates a new configuration with the given options.
func New(opts ...Option) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Backend: StoreMemory},
		Queue: QueueConfig{
			Backend:  QueueMemory,
			Capacity: 1024,
			Workers:  4,
		},
		Features: FeatureConfig{TopicNotificationsEnabled: true},
		Telemetry: TelemetryConfig{
			ServiceName:    "relayhub",
			ServiceVersion: "0.1.0",
			Environment:    "development",
			OTLPEndpoint:   "http://localhost:4318",
			SampleRate:     1.0,
		},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("sqlite store requires a dsn")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Queue.Backend {
	case QueueMemory:
	case QueueRedis:
		if c.Queue.Redis == nil || c.Queue.Redis.Addr == "" {
			return fmt.Errorf("redis queue requires an address")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = 1024
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	return nil
}

// GetLogger returns the configured logger, falling back to the default.
func (c *Config) GetLogger() logger.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.New()
}

// EnvironmentForKey resolves an API key to its environment binding.
func (c *Config) EnvironmentForKey(apiKey string) (EnvironmentKey, bool) {
	for _, k := range c.Auth.Keys {
		if k.APIKey == apiKey {
			return k, true
		}
	}
	return EnvironmentKey{}, false
}

// FromEnv loads settings from RELAYHUB_* environment variables.
func FromEnv() Option {
	return func(c *Config) error {
		if v := os.Getenv("RELAYHUB_ADDR"); v != "" {
			c.Server.Addr = v
		}
		if v := os.Getenv("RELAYHUB_STORE_BACKEND"); v != "" {
			c.Store.Backend = v
		}
		if v := os.Getenv("RELAYHUB_STORE_DSN"); v != "" {
			c.Store.DSN = v
		}
		if v := os.Getenv("RELAYHUB_QUEUE_BACKEND"); v != "" {
			c.Queue.Backend = v
		}
		if v := os.Getenv("RELAYHUB_QUEUE_WORKERS"); v != "" {
			workers, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid RELAYHUB_QUEUE_WORKERS: %w", err)
			}
			c.Queue.Workers = workers
		}
		if v := os.Getenv("RELAYHUB_REDIS_ADDR"); v != "" {
			if c.Queue.Redis == nil {
				c.Queue.Redis = &RedisConfig{}
			}
			c.Queue.Redis.Addr = v
			c.Queue.Redis.Password = os.Getenv("RELAYHUB_REDIS_PASSWORD")
		}
		if v := os.Getenv("RELAYHUB_TOPIC_NOTIFICATIONS"); v != "" {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid RELAYHUB_TOPIC_NOTIFICATIONS: %w", err)
			}
			c.Features.TopicNotificationsEnabled = enabled
		}
		if v := os.Getenv("RELAYHUB_JWT_SECRET"); v != "" {
			c.Auth.JWTSecret = v
		}
		if v := os.Getenv("RELAYHUB_OTLP_ENDPOINT"); v != "" {
			c.Telemetry.Enabled = true
			c.Telemetry.OTLPEndpoint = v
		}
		return nil
	}
}
