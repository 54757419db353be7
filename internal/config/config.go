// Package config loads the engine configuration from betterquery.yml and
// the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config represents the engine configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
}

// DatabaseConfig holds the storage backend settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// CacheConfig holds cache backend settings.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend    string        `mapstructure:"backend"`
	RedisAddr  string        `mapstructure:"redis_addr"`
	RedisDB    int           `mapstructure:"redis_db"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Prefix     string        `mapstructure:"prefix"`
}

// SchedulerConfig holds job scheduler settings.
type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	History      bool          `mapstructure:"history"`
}

// RealtimeConfig holds realtime fanout settings.
type RealtimeConfig struct {
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
}

// Load reads betterquery.yml from the working directory, falling back to
// defaults and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "bq:")
	v.SetDefault("scheduler.poll_interval", time.Second)
	v.SetDefault("scheduler.history", true)
	v.SetDefault("realtime.heartbeat_timeout", 90*time.Second)

	v.SetConfigName("betterquery")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file, defaults apply.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// DatabaseURL returns the database URL from the environment or config.
func (c *Config) DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return c.Database.URL
}
