// Package config loads and validates the studio configuration via viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the complete studio configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Bus        BusConfig        `mapstructure:"bus"`
	Delegation DelegationConfig `mapstructure:"delegation"`
	Decomposer DecomposerConfig `mapstructure:"decomposer"`
	Registry   RegistryConfig   `mapstructure:"registry"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// BusConfig controls the message bus.
type BusConfig struct {
	// QueueSize is the per-subscription delivery queue capacity (default: 256)
	QueueSize int `mapstructure:"queue_size"`
}

// DelegationConfig controls the request/reply protocol.
type DelegationConfig struct {
	// DefaultTimeoutSeconds applies when a caller delegates without an
	// explicit timeout (default: 30)
	DefaultTimeoutSeconds int `mapstructure:"default_timeout_seconds"`
}

// DecomposerConfig controls task decomposition.
type DecomposerConfig struct {
	// CacheSize bounds the decomposition result cache; 0 disables it
	// (default: 64)
	CacheSize int `mapstructure:"cache_size"`
	// StrategyFile is an optional YAML file with additional fixed pipeline
	// strategies, reloaded on change (default: "")
	StrategyFile string `mapstructure:"strategy_file"`
}

// RegistryConfig controls the agent registry.
type RegistryConfig struct {
	// HeartbeatStaleSeconds marks an agent's health as stale after this
	// long without a heartbeat (default: 60)
	HeartbeatStaleSeconds int `mapstructure:"heartbeat_stale_seconds"`
}

// SetDefaults registers default values with viper. Call before reading the
// config file so defaults apply even when no file exists.
func SetDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("bus.queue_size", 256)
	viper.SetDefault("delegation.default_timeout_seconds", 30)
	viper.SetDefault("decomposer.cache_size", 64)
	viper.SetDefault("decomposer.strategy_file", "")
	viper.SetDefault("registry.heartbeat_stale_seconds", 60)
}

// ConfigDir returns the directory searched for the config file, honoring
// XDG_CONFIG_HOME.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "studio")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "studio")
}

// Load unmarshals the current viper state into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultTimeout returns the delegation default as a duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Delegation.DefaultTimeoutSeconds) * time.Second
}

// HeartbeatStale returns the registry staleness threshold as a duration.
func (c *Config) HeartbeatStale() time.Duration {
	return time.Duration(c.Registry.HeartbeatStaleSeconds) * time.Second
}

// Watch re-reads the config file on change and invokes onChange with the
// freshly loaded (and valid) configuration. Invalid intermediate states are
// skipped.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load()
		if err != nil {
			return
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// normalizeLevel lowercases and trims a configured log level.
func normalizeLevel(level string) string {
	return strings.ToLower(strings.TrimSpace(level))
}
