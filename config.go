package meshkeep

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultMaxPeers             = 10000
	DefaultTargetPeers          = 50
	DefaultBroadcastIntervalMs  = 5000
	DefaultDisposeIntervalMs    = 2000
	DefaultNameMaxLen           = 32
	DefaultEventBufferSize      = 100
	DefaultCongestionCooldownMs = 5 * 60 * 1000
)

// Config holds the configuration for a Peer Manager.
type Config struct {
	// MaxPeers is the congestion ceiling: once the number of CONNECTED
	// peers reaches this, relayed signal requests whose source isn't
	// already CONNECTED are rejected with a Congested disconnect window.
	MaxPeers int

	// TargetPeers gates new outbound admission: below this count, or
	// when upgrading a peer that's already non-DISCONNECTED, dialing is
	// allowed; at or above it, new DISCONNECTED peers are not dialed.
	TargetPeers int

	// BroadcastIntervalMs is the period of the periodic known-peer-list
	// broadcast task.
	BroadcastIntervalMs int

	// DisposeIntervalMs is the period of the periodic disposal sweep
	// that removes DISCONNECTED peer records with no further retries
	// pending and no connected neighbour referencing them.
	DisposeIntervalMs int

	// NameMaxLen is the maximum accepted length of a peer's display
	// name; longer names fail the identity handshake.
	NameMaxLen int

	// Whitelisted is a set of addresses exempt from retry backoff: a
	// failed connection to a whitelisted address gets cooldown = 0 and
	// does not increment consecutiveFailures.
	Whitelisted []string

	// IsWorker is advertised to peers during the identity handshake.
	IsWorker bool

	// BroadcastWorkers controls whether worker peers are included in
	// the peer list this node gossips. Changes take effect on the next
	// broadcast tick.
	BroadcastWorkers bool

	// EventBufferSize is the buffer size for non-blocking event
	// notification channels (connection state, known-peers-changed).
	EventBufferSize int

	// Logger is the logger for the manager. If nil, a NopLogger is used.
	Logger Logger

	// Metrics is the metrics collector for the manager. If nil, a
	// NopMetrics is used.
	Metrics Metrics
}

// Validate checks that the configuration is valid and returns an error
// describing any problems found.
func (c *Config) Validate() error {
	if c.MaxPeers < 0 {
		return fmt.Errorf("%w: maxPeers cannot be negative", ErrInvalidConfig)
	}
	if c.TargetPeers < 0 {
		return fmt.Errorf("%w: targetPeers cannot be negative", ErrInvalidConfig)
	}
	if c.BroadcastIntervalMs < 0 {
		return fmt.Errorf("%w: broadcastIntervalMs cannot be negative", ErrInvalidConfig)
	}
	if c.DisposeIntervalMs < 0 {
		return fmt.Errorf("%w: disposeIntervalMs cannot be negative", ErrInvalidConfig)
	}
	if c.NameMaxLen < 0 {
		return fmt.Errorf("%w: nameMaxLen cannot be negative", ErrInvalidConfig)
	}
	if c.EventBufferSize < 0 {
		return fmt.Errorf("%w: event buffer size cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults sets default values for any unset optional fields.
func (c *Config) applyDefaults() {
	if c.MaxPeers == 0 {
		c.MaxPeers = DefaultMaxPeers
	}
	if c.TargetPeers == 0 {
		c.TargetPeers = DefaultTargetPeers
	}
	if c.BroadcastIntervalMs == 0 {
		c.BroadcastIntervalMs = DefaultBroadcastIntervalMs
	}
	if c.DisposeIntervalMs == 0 {
		c.DisposeIntervalMs = DefaultDisposeIntervalMs
	}
	if c.NameMaxLen == 0 {
		c.NameMaxLen = DefaultNameMaxLen
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
}

// BroadcastInterval returns BroadcastIntervalMs as a time.Duration.
func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMs) * time.Millisecond
}

// DisposeInterval returns DisposeIntervalMs as a time.Duration.
func (c *Config) DisposeInterval() time.Duration {
	return time.Duration(c.DisposeIntervalMs) * time.Millisecond
}

// IsWhitelistedAddress reports whether address appears in c.Whitelisted.
func (c *Config) IsWhitelistedAddress(address string) bool {
	for _, a := range c.Whitelisted {
		if a == address {
			return true
		}
	}
	return false
}

// ConfigOption is a functional option for configuring a Peer Manager.
type ConfigOption func(*Config)

// WithMaxPeers sets the congestion ceiling.
func WithMaxPeers(n int) ConfigOption {
	return func(c *Config) { c.MaxPeers = n }
}

// WithTargetPeers sets the outbound-admission target.
func WithTargetPeers(n int) ConfigOption {
	return func(c *Config) { c.TargetPeers = n }
}

// WithBroadcastIntervalMs sets the known-peer-list broadcast period.
func WithBroadcastIntervalMs(ms int) ConfigOption {
	return func(c *Config) { c.BroadcastIntervalMs = ms }
}

// WithDisposeIntervalMs sets the disposal sweep period.
func WithDisposeIntervalMs(ms int) ConfigOption {
	return func(c *Config) { c.DisposeIntervalMs = ms }
}

// WithNameMaxLen sets the maximum accepted peer display-name length.
func WithNameMaxLen(n int) ConfigOption {
	return func(c *Config) { c.NameMaxLen = n }
}

// WithWhitelisted sets the set of addresses exempt from retry backoff.
func WithWhitelisted(addresses []string) ConfigOption {
	return func(c *Config) { c.Whitelisted = addresses }
}

// WithIsWorker sets whether this node advertises itself as a worker.
func WithIsWorker(isWorker bool) ConfigOption {
	return func(c *Config) { c.IsWorker = isWorker }
}

// WithBroadcastWorkers sets whether worker peers are gossiped.
func WithBroadcastWorkers(broadcastWorkers bool) ConfigOption {
	return func(c *Config) { c.BroadcastWorkers = broadcastWorkers }
}

// WithEventBufferSize sets the buffer size for event channels.
func WithEventBufferSize(size int) ConfigOption {
	return func(c *Config) { c.EventBufferSize = size }
}

// WithLogger sets the logger for the manager.
func WithLogger(l Logger) ConfigOption {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics sets the metrics collector for the manager.
func WithMetrics(m Metrics) ConfigOption {
	return func(c *Config) { c.Metrics = m }
}

// NewConfig creates a new Config and applies any provided options. It
// applies defaults for unset optional fields but does not validate the
// configuration.
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	c.applyDefaults()
	return c
}
