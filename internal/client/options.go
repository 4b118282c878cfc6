package client

import (
	"time"

	"github.com/omochice/messi/internal/transport/tcp"
	"github.com/rs/zerolog"
)

// Defaults for a client.
const (
	DefaultKeepAliveInterval = 2 * time.Second
	DefaultReconnectInterval = 1 * time.Second
	DefaultBufferSize        = 1024
)

type options struct {
	keepAlive time.Duration
	reconnect time.Duration
	bufSize   int
	dialer    tcp.Dialer
	log       zerolog.Logger
}

func defaultOptions() options {
	return options{
		keepAlive: DefaultKeepAliveInterval,
		reconnect: DefaultReconnectInterval,
		bufSize:   DefaultBufferSize,
		log:       zerolog.Nop(),
	}
}

// Option configures a Client.
type Option func(*options)

// WithKeepAlive sets the interval between keep-alive checks. A PING is sent
// every interval and the connection is dropped if no PONG arrived by the
// next check.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.keepAlive = d
		}
	}
}

// WithReconnect sets the delay before retrying a failed or lost connection.
func WithReconnect(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reconnect = d
		}
	}
}

// WithBufferSize sets the size of the input and output message buffers,
// header included.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufSize = n
		}
	}
}

// WithDialer replaces the socket dialer.
func WithDialer(d tcp.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}
