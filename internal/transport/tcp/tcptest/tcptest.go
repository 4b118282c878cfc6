// Package tcptest provides scripted in-memory sockets for testing code built
// on the tcp package.
package tcptest

import (
	"fmt"
	"sync"

	"github.com/omochice/messi/internal/transport/tcp"
	"github.com/omochice/messi/pkg/protocol"
)

var (
	fdMu   sync.Mutex
	nextFD = 1000
)

func allocFD() int {
	fdMu.Lock()
	defer fdMu.Unlock()
	nextFD++
	return nextFD
}

// Conn is a fake socket. Bytes queued with Feed are returned by Read one
// chunk at a time, never merging chunks, so tests control exactly how a
// stream is split across reads.
type Conn struct {
	fd     int
	remote string

	mu         sync.Mutex
	chunks     [][]byte
	eof        bool
	readErr    error
	writeErr   error
	writeLimit int
	written    []byte
	closed     bool
	reads      int
	writes     int
}

// NewConn returns a fake socket with a fresh descriptor number.
func NewConn(remote string) *Conn {
	return &Conn{fd: allocFD(), remote: remote, writeLimit: -1}
}

// Feed queues a chunk for a single future Read.
func (c *Conn) Feed(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, append([]byte(nil), chunk...))
}

// FeedSplit queues b as chunks of at most n bytes.
func (c *Conn) FeedSplit(b []byte, n int) {
	for len(b) > 0 {
		k := min(n, len(b))
		c.Feed(b[:k])
		b = b[k:]
	}
}

// CloseRemote makes Read report a closed connection once queued chunks are
// consumed.
func (c *Conn) CloseRemote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eof = true
}

// FailReads makes subsequent reads fail with err once queued chunks are
// consumed.
func (c *Conn) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// FailWrites makes subsequent writes fail with err.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// LimitWrites makes each subsequent write accept at most n bytes.
func (c *Conn) LimitWrites(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLimit = n
}

// Written returns and clears everything written so far.
func (c *Conn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.written
	c.written = nil
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Calls reports how many reads and writes were attempted, including failed
// ones.
func (c *Conn) Calls() (reads, writes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads, c.writes
}

// Fd implements tcp.Conn.
func (c *Conn) Fd() int { return c.fd }

// Read implements tcp.Conn.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.closed {
		return 0, fmt.Errorf("read: use of closed fake conn %d", c.fd)
	}
	if len(c.chunks) > 0 {
		n := copy(p, c.chunks[0])
		if n == len(c.chunks[0]) {
			c.chunks = c.chunks[1:]
		} else {
			c.chunks[0] = c.chunks[0][n:]
		}
		return n, nil
	}
	if c.readErr != nil {
		return 0, c.readErr
	}
	if c.eof {
		return 0, protocol.ErrConnectionClosed
	}
	return 0, protocol.ErrWouldBlock
}

// Write implements tcp.Conn.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.closed {
		return 0, fmt.Errorf("write: use of closed fake conn %d", c.fd)
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	n := len(p)
	if c.writeLimit >= 0 && n > c.writeLimit {
		n = c.writeLimit
	}
	c.written = append(c.written, p[:n]...)
	return n, nil
}

// Close implements tcp.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// RemoteAddr implements tcp.Conn.
func (c *Conn) RemoteAddr() string { return c.remote }

// Dialer hands out scripted results. Each Dial consumes the next queued
// result; with none queued it fails with connection refused.
type Dialer struct {
	mu      sync.Mutex
	results []dialResult
	dialed  []protocol.Address
}

type dialResult struct {
	conn *Conn
	err  error
}

// ErrRefused is the error returned by Dialer when no result is queued.
var ErrRefused = fmt.Errorf("connect: connection refused")

// Succeed queues a successful dial returning conn.
func (d *Dialer) Succeed(conn *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, dialResult{conn: conn})
}

// Fail queues a failed dial.
func (d *Dialer) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, dialResult{err: err})
}

// Dialed returns the addresses of all dial attempts.
func (d *Dialer) Dialed() []protocol.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Address(nil), d.dialed...)
}

// Dial implements tcp.Dialer.
func (d *Dialer) Dial(addr protocol.Address) (tcp.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, addr)
	if len(d.results) == 0 {
		return nil, ErrRefused
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

// Listener is a fake listening socket with a queue of pending connections.
type Listener struct {
	fd   int
	addr protocol.Address

	mu      sync.Mutex
	pending []*Conn
	closed  bool
}

// NewListener returns a fake listener reporting addr.
func NewListener(addr protocol.Address) *Listener {
	return &Listener{fd: allocFD(), addr: addr}
}

// Listen returns a tcp.ListenFunc that always hands out l.
func (l *Listener) Listen() tcp.ListenFunc {
	return func(protocol.Address) (tcp.Listener, error) { return l, nil }
}

// Enqueue adds a connection to the accept backlog.
func (l *Listener) Enqueue(conn *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, conn)
}

// Closed reports whether Close was called.
func (l *Listener) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Fd implements tcp.Listener.
func (l *Listener) Fd() int { return l.fd }

// Addr implements tcp.Listener.
func (l *Listener) Addr() protocol.Address { return l.addr }

// Accept implements tcp.Listener.
func (l *Listener) Accept() (tcp.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil, protocol.ErrWouldBlock
	}
	c := l.pending[0]
	l.pending = l.pending[1:]
	return c, nil
}

// Close implements tcp.Listener.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
