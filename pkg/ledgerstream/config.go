package ledgerstream

import (
	"errors"
	"time"
)

// Default configuration values.
const (
	// DefaultMaxMessageSize is the maximum gRPC message size.
	DefaultMaxMessageSize = 4 << 20

	// DefaultKeepaliveTime is the keepalive ping interval.
	DefaultKeepaliveTime = 30 * time.Second

	// DefaultKeepaliveTimeout is the keepalive ping timeout.
	DefaultKeepaliveTimeout = 10 * time.Second

	// DefaultReconnectMinDelay is the initial reconnect backoff.
	DefaultReconnectMinDelay = time.Second

	// DefaultReconnectMaxDelay caps the reconnect backoff.
	DefaultReconnectMaxDelay = 30 * time.Second

	// DefaultMaxReconnects bounds reconnection attempts. 0 means unlimited.
	DefaultMaxReconnects = 0

	// DefaultBufferSize is the update channel capacity.
	DefaultBufferSize = 256
)

// Configuration errors.
var (
	ErrNoEndpoint = errors.New("ledger stream endpoint is required")
	ErrNoFilter   = errors.New("at least one contract filter is required")
)

// Config holds the configuration for the ledger stream client.
type Config struct {
	// Endpoint is the gRPC endpoint (host:port).
	Endpoint string

	// UseTLS enables transport security.
	UseTLS bool

	// Contracts filters the subscription to nonce entries under these
	// contract IDs (raw 32-byte values). At least one is required.
	Contracts [][]byte

	// MaxMessageSize is the maximum gRPC message size.
	MaxMessageSize int

	// ReconnectMinDelay is the initial reconnect backoff.
	ReconnectMinDelay time.Duration

	// ReconnectMaxDelay caps the reconnect backoff.
	ReconnectMaxDelay time.Duration

	// MaxReconnects bounds reconnection attempts. 0 means unlimited.
	MaxReconnects int

	// BufferSize is the update channel capacity.
	BufferSize int
}

// WithDefaults returns a copy of the config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ReconnectMinDelay == 0 {
		c.ReconnectMinDelay = DefaultReconnectMinDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}
	if len(c.Contracts) == 0 {
		return ErrNoFilter
	}
	return nil
}
