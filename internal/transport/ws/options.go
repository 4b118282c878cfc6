package ws

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Defaults for a Bridge.
const (
	DefaultBufferSize       = 1024
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultDialTimeout      = 5 * time.Second
)

// DialFunc opens the upstream connection to the TCP server.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type options struct {
	bufSize   int
	handshake time.Duration
	dial      DialFunc
	log       zerolog.Logger
}

func defaultOptions() options {
	d := &net.Dialer{Timeout: DefaultDialTimeout}
	return options{
		bufSize:   DefaultBufferSize,
		handshake: DefaultHandshakeTimeout,
		dial:      d.DialContext,
		log:       zerolog.Nop(),
	}
}

// Option configures a Bridge.
type Option func(*options)

// WithBufferSize sets the largest frame relayed in either direction, header
// included. It should match the buffer size of the TCP server.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufSize = n
		}
	}
}

// WithHandshakeTimeout bounds the time a browser may take to complete the
// WebSocket upgrade.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshake = d
		}
	}
}

// WithDialer replaces the upstream dialer.
func WithDialer(dial DialFunc) Option {
	return func(o *options) { o.dial = dial }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}
