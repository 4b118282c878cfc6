// Package tcp provides non-blocking TCP sockets for the event-driven runtimes.
//
// Sockets are plain descriptors registered with an event loop. Reads and
// writes never block: when no progress is possible they report
// protocol.ErrWouldBlock.
package tcp

import "github.com/omochice/messi/pkg/protocol"

// Conn is a connected non-blocking stream socket.
type Conn interface {
	// Fd returns the descriptor to register with the event loop.
	Fd() int

	// Read reads available bytes into p. It returns protocol.ErrWouldBlock
	// if nothing is available and protocol.ErrConnectionClosed once the peer
	// has closed its side.
	Read(p []byte) (int, error)

	// Write writes as much of p as the socket accepts without blocking.
	Write(p []byte) (int, error)

	// Close closes the socket.
	Close() error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}

// Dialer opens connections to a server.
type Dialer interface {
	Dial(addr protocol.Address) (Conn, error)
}

// Listener accepts connections without blocking.
type Listener interface {
	// Fd returns the descriptor to register with the event loop.
	Fd() int

	// Accept returns one pending connection, or protocol.ErrWouldBlock when
	// the backlog is empty.
	Accept() (Conn, error)

	// Addr returns the bound address.
	Addr() protocol.Address

	Close() error
}

// ListenFunc creates a listener bound to addr.
type ListenFunc func(addr protocol.Address) (Listener, error)
