package config

import "github.com/kart-io/relayhub/pkg/logger"

// WithServerAddr sets the HTTP listen address.
func WithServerAddr(addr string) Option {
	return func(c *Config) error {
		c.Server.Addr = addr
		return nil
	}
}

// WithMemoryStore selects the in-memory persistence backend.
func WithMemoryStore() Option {
	return func(c *Config) error {
		c.Store = StoreConfig{Backend: StoreMemory}
		return nil
	}
}

// WithSQLiteStore selects the SQLite persistence backend.
func WithSQLiteStore(dsn string) Option {
	return func(c *Config) error {
		c.Store = StoreConfig{Backend: StoreSQLite, DSN: dsn}
		return nil
	}
}

// WithMemoryQueue selects the in-process queue backend.
func WithMemoryQueue(capacity int) Option {
	return func(c *Config) error {
		c.Queue.Backend = QueueMemory
		c.Queue.Capacity = capacity
		return nil
	}
}

// WithRedisQueue selects the Redis queue backend.
func WithRedisQueue(redis *RedisConfig) Option {
	return func(c *Config) error {
		c.Queue.Backend = QueueRedis
		c.Queue.Redis = redis
		return nil
	}
}

// WithWorkers sets the runner worker count.
func WithWorkers(n int) Option {
	return func(c *Config) error {
		c.Queue.Workers = n
		return nil
	}
}

// WithTopicNotifications toggles topic-type recipients.
func WithTopicNotifications(enabled bool) Option {
	return func(c *Config) error {
		c.Features.TopicNotificationsEnabled = enabled
		return nil
	}
}

// WithAuth configures JWT secret and API key bindings.
func WithAuth(jwtSecret string, keys ...EnvironmentKey) Option {
	return func(c *Config) error {
		c.Auth.JWTSecret = jwtSecret
		c.Auth.Keys = keys
		return nil
	}
}

// WithTelemetry enables OpenTelemetry export to the given endpoint.
func WithTelemetry(serviceName, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		if serviceName != "" {
			c.Telemetry.ServiceName = serviceName
		}
		if endpoint != "" {
			c.Telemetry.OTLPEndpoint = endpoint
		}
		return nil
	}
}

// WithLogger sets the instance-level logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Config) error {
		c.Logger = log
		return nil
	}
}
