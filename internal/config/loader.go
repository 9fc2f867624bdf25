package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"server.host":                  "SERVER_HOST",
	"server.port":                  "SERVER_PORT",
	"server.shutdown_timeout":      "SERVER_SHUTDOWN_TIMEOUT",
	"database.backend":             "DATABASE_BACKEND",
	"database.host":                "DATABASE_HOST",
	"database.port":                "DATABASE_PORT",
	"database.database":            "DATABASE_NAME",
	"database.user":                "DATABASE_USER",
	"database.password":            "DATABASE_PASSWORD",
	"redis.host":                   "REDIS_HOST",
	"redis.port":                   "REDIS_PORT",
	"redis.password":               "REDIS_PASSWORD",
	"redis.db":                     "REDIS_DB",
	"platform.backend":             "PLATFORM_BACKEND",
	"platform.base_url":            "PLATFORM_BASE_URL",
	"platform.token":               "PLATFORM_TOKEN",
	"rooms.concurrency_limit":      "ROOMS_CONCURRENCY_LIMIT",
	"rooms.default_eviction_delay": "ROOMS_DEFAULT_EVICTION_DELAY",
	"rooms.sweep_interval":         "ROOMS_SWEEP_INTERVAL",
	"rooms.lock_backend":           "ROOMS_LOCK_BACKEND",
	"rate_limiter.enabled":         "RATE_LIMITER_ENABLED",
	"metrics.enabled":              "METRICS_ENABLED",
	"metrics.port":                 "METRICS_PORT",
	"tenants.file":                 "TENANTS_FILE",
	"logging.level":                "LOG_LEVEL",
	"logging.format":               "LOG_FORMAT",
}

// Load builds the configuration from defaults, the YAML file at configPath
// (skipped when empty or unreadable) and the environment, in that order.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Unset keys keep their defaults
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
