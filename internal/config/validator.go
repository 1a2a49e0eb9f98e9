package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g., "bus.queue_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if level := normalizeLevel(c.Logging.Level); !slices.Contains(ValidLogLevels(), level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Bus.QueueSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "bus.queue_size",
			Value:   c.Bus.QueueSize,
			Message: "must be at least 1",
		})
	}

	if c.Delegation.DefaultTimeoutSeconds < 1 {
		errs = append(errs, ValidationError{
			Field:   "delegation.default_timeout_seconds",
			Value:   c.Delegation.DefaultTimeoutSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Decomposer.CacheSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "decomposer.cache_size",
			Value:   c.Decomposer.CacheSize,
			Message: "must not be negative",
		})
	}

	if path := c.Decomposer.StrategyFile; path != "" {
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, ValidationError{
				Field:   "decomposer.strategy_file",
				Value:   path,
				Message: "file does not exist or is not readable",
			})
		}
	}

	if c.Registry.HeartbeatStaleSeconds < 1 {
		errs = append(errs, ValidationError{
			Field:   "registry.heartbeat_stale_seconds",
			Value:   c.Registry.HeartbeatStaleSeconds,
			Message: "must be at least 1",
		})
	}

	return errs
}
