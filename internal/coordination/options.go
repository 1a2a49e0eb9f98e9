package coordination

import (
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/logging"
)

// hubConfig holds optional configuration for a Hub.
type hubConfig struct {
	logger    *logging.Logger
	timeout   time.Duration
	cacheSize int
	queueSize int
}

// Option configures a Hub.
type Option func(*hubConfig)

// WithLogger sets the logger shared by the hub's components.
func WithLogger(logger *logging.Logger) Option {
	return func(c *hubConfig) { c.logger = logger }
}

// WithDefaultTimeout sets the delegation timeout used when callers pass a
// non-positive timeout. Zero or negative values keep the default.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *hubConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDecomposeCacheSize sets the decomposer's result cache capacity.
// Zero disables caching; negative values keep the default.
func WithDecomposeCacheSize(n int) Option {
	return func(c *hubConfig) {
		if n >= 0 {
			c.cacheSize = n
		}
	}
}

// WithBusQueueSize sets the bus's per-subscription delivery queue capacity.
// Non-positive values keep the default.
func WithBusQueueSize(n int) Option {
	return func(c *hubConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}
