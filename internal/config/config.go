package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the room lifecycle service configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Platform    PlatformConfig    `mapstructure:"platform"`
	Rooms       RoomsConfig       `mapstructure:"rooms"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tenants     TenantsConfig     `mapstructure:"tenants"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig represents the room directory and config store backend.
// Backend "memory" keeps everything in process.
type DatabaseConfig struct {
	Backend        string `mapstructure:"backend"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// RedisConfig represents the Redis lease backend for admission locks
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PlatformConfig represents the chat platform gateway client
type PlatformConfig struct {
	Backend           string        `mapstructure:"backend"`
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
}

// RoomsConfig represents the room lifecycle settings
type RoomsConfig struct {
	// ConcurrencyLimit bounds parallel room creations per batch
	ConcurrencyLimit     int           `mapstructure:"concurrency_limit"`
	DefaultEvictionDelay time.Duration `mapstructure:"default_eviction_delay"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	EvictionTimeout      time.Duration `mapstructure:"eviction_timeout"`
	LockBackend          string        `mapstructure:"lock_backend"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
}

// RateLimiterConfig represents inbound HTTP rate limiting
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	TenantConfigTTL time.Duration `mapstructure:"tenant_config_ttl"`
	MaxSize         int           `mapstructure:"max_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TenantsConfig points at an optional YAML file of tenant settings.
// With the memory backend the file is the config store; with postgres it
// seeds tenants that are not stored yet.
type TenantsConfig struct {
	File string `mapstructure:"file"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Backend {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return errors.New("database.host is required")
		}
		if c.Database.Database == "" {
			return errors.New("database.database is required")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required")
		}
	default:
		return fmt.Errorf("database.backend must be one of: memory, postgres")
	}

	switch c.Platform.Backend {
	case "memory":
	case "http":
		if c.Platform.BaseURL == "" {
			return errors.New("platform.base_url is required")
		}
		if c.Platform.RequestsPerSecond <= 0 {
			return errors.New("platform.requests_per_second must be positive")
		}
	default:
		return fmt.Errorf("platform.backend must be one of: memory, http")
	}

	if c.Rooms.ConcurrencyLimit <= 0 {
		return errors.New("rooms.concurrency_limit must be positive")
	}
	if c.Rooms.DefaultEvictionDelay <= 0 {
		return errors.New("rooms.default_eviction_delay must be positive")
	}
	if c.Rooms.SweepInterval <= 0 {
		return errors.New("rooms.sweep_interval must be positive")
	}

	switch c.Rooms.LockBackend {
	case "memory":
	case "redis":
		if c.Redis.Host == "" {
			return errors.New("redis.host is required for the redis lock backend")
		}
		if c.Rooms.LockTTL <= 0 {
			return errors.New("rooms.lock_ttl must be positive")
		}
	default:
		return fmt.Errorf("rooms.lock_backend must be one of: memory, redis")
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return errors.New("rate_limiter.requests_per_second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return errors.New("rate_limiter.burst_size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Backend:        "memory",
			Host:           "localhost",
			Port:           5432,
			Database:       "tempvoice",
			User:           "tempvoice",
			MaxConnections: 20,
			MinConnections: 2,
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			KeyPrefix: "tempvoice:admission:",
		},
		Platform: PlatformConfig{
			Backend:           "memory",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			MaxRetries:        2,
			RetryBackoff:      200 * time.Millisecond,
		},
		Rooms: RoomsConfig{
			ConcurrencyLimit:     2,
			DefaultEvictionDelay: 30 * time.Second,
			SweepInterval:        5 * time.Minute,
			EvictionTimeout:      10 * time.Second,
			LockBackend:          "memory",
			LockTTL:              2 * time.Minute,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           true,
			RequestsPerSecond: 100,
			BurstSize:         50,
		},
		Cache: CacheConfig{
			TenantConfigTTL: 5 * time.Minute,
			MaxSize:         10000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
