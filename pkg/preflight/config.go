package preflight

import (
	"errors"
	"time"
)

// Default configuration values.
const (
	// DefaultTimeout is the default timeout for simulation requests.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheTTL is how long cached suggestions stay valid. Resource
	// suggestions go stale as ledger state moves, so the window is short.
	DefaultCacheTTL = 2 * time.Minute
)

// Configuration errors.
var (
	ErrNoEndpoint     = errors.New("simulation endpoint is required")
	ErrInvalidTimeout = errors.New("timeout must be positive")
)

// Config holds the configuration for the preflight client.
type Config struct {
	// Endpoint is the simulation service URL.
	Endpoint string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// CachePath is the file path of the local suggestion cache.
	// Empty disables caching.
	CachePath string

	// CacheTTL is the maximum age of a cached suggestion.
	CacheTTL time.Duration
}

// WithDefaults returns a copy of the config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}
