package server

import (
	"time"

	"github.com/omochice/messi/internal/transport/tcp"
	"github.com/rs/zerolog"
)

// Defaults for a server.
const (
	DefaultCapacity          = 10
	DefaultBufferSize        = 1024
	DefaultKeepAliveDeadline = 3 * time.Second
)

type options struct {
	capacity  int
	bufSize   int
	keepAlive time.Duration
	listen    tcp.ListenFunc
	log       zerolog.Logger
}

func defaultOptions() options {
	return options{
		capacity:  DefaultCapacity,
		bufSize:   DefaultBufferSize,
		keepAlive: DefaultKeepAliveDeadline,
		listen:    tcp.Listen,
		log:       zerolog.Nop(),
	}
}

// Option configures a Server.
type Option func(*options)

// WithCapacity sets the maximum number of connected clients.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithBufferSize sets the size of each client's message buffer and of the
// shared output buffer, header included.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufSize = n
		}
	}
}

// WithKeepAlive sets how long a client may go without sending a PING before
// it is destroyed.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.keepAlive = d
		}
	}
}

// WithListener replaces the function creating the listening socket.
func WithListener(listen tcp.ListenFunc) Option {
	return func(o *options) { o.listen = listen }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}
