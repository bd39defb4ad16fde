package transport

import (
	"time"

	"github.com/turbomcp/turbomcp/pkg/protocol"
)

// Default timeout and size values
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultTotalTimeout   = time.Duration(0) // 0 means no overall deadline
	DefaultReadTimeout    = 60 * time.Second
	DefaultMaxMessageSize = protocol.DefaultMaxMessageSize
)

// Config holds the tunables common to every transport: timeouts, size
// limits, and optional TLS. Per-transport opaque options (e.g. a socket path, a child process argv) are carried outside Config by the concrete
// constructor.
type Config struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	TotalTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int
	TLS            *protocol.TLSConfig
}

// Option configures a Config.
type Option func(*Config)

// WithConnectTimeout overrides the connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithRequestTimeout overrides the per-request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// WithTotalTimeout overrides the overall connection deadline (0 disables it).
func WithTotalTimeout(d time.Duration) Option {
	return func(c *Config) { c.TotalTimeout = d }
}

// WithReadTimeout overrides the idle-read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithMaxMessageSize overrides the maximum accepted frame size in bytes.
func WithMaxMessageSize(n int) Option {
	return func(c *Config) { c.MaxMessageSize = n }
}

// WithTLS attaches a TLS configuration to transports that terminate TLS
// themselves (TCP, Streamable HTTP client).
func WithTLS(tls protocol.TLSConfig) Option {
	return func(c *Config) { c.TLS = &tls }
}

// NewConfig builds a Config with the package defaults, then applies opts.
func NewConfig(opts ...Option) Config {
	c := Config{
		ConnectTimeout: DefaultConnectTimeout,
		RequestTimeout: DefaultRequestTimeout,
		TotalTimeout:   DefaultTotalTimeout,
		ReadTimeout:    DefaultReadTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
