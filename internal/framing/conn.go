// Package framing implements the per-socket I/O state machine shared by the
// client and server runtimes.
//
// A Conn accumulates bytes from a non-blocking socket into a single message
// buffer, first the fixed header and then the declared payload, and
// dispatches each complete frame. Partial reads are preserved across any
// number of readiness notifications.
package framing

import (
	"errors"
	"fmt"

	"github.com/omochice/messi/internal/transport/tcp"
	"github.com/omochice/messi/pkg/protocol"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state %d", int(s))
	}
}

// Stage is the reassembly stage of the frame in progress.
type Stage int

const (
	AwaitingHeader Stage = iota
	AwaitingPayload
)

func (s Stage) String() string {
	if s == AwaitingHeader {
		return "awaiting-header"
	}
	return "awaiting-payload"
}

// Handler receives the frames dispatched by OnReadable.
type Handler interface {
	// HandleUser is called with the payload of each inbound user frame. The
	// payload aliases the message buffer and is only valid during the call.
	// A non-nil error stops reading and is returned from OnReadable.
	HandleUser(payload []byte) error

	// HandlePing is called after an inbound PING has been answered.
	HandlePing()
}

// HandlerFuncs adapts a pair of functions to Handler. Nil fields are no-ops.
type HandlerFuncs struct {
	User func(payload []byte) error
	Ping func()
}

func (h HandlerFuncs) HandleUser(payload []byte) error {
	if h.User == nil {
		return nil
	}
	return h.User(payload)
}

func (h HandlerFuncs) HandlePing() {
	if h.Ping != nil {
		h.Ping()
	}
}

// Conn is the I/O state of one connection. The zero value is not usable; use
// New.
type Conn struct {
	inbound protocol.MessageType
	sock    tcp.Conn
	state   State

	buf       []byte
	stage     Stage
	header    protocol.Header
	received  int
	remaining int

	pongReceived bool

	// epoch changes whenever the socket is attached or detached, so a read
	// loop can tell that a handler tore the connection down.
	epoch uint64
}

// New returns a disconnected Conn with a message buffer of bufSize bytes,
// header included. User frames are accepted only with the inbound type.
func New(bufSize int, inbound protocol.MessageType) *Conn {
	if bufSize < protocol.HeaderSize {
		bufSize = protocol.HeaderSize
	}
	c := &Conn{inbound: inbound, buf: make([]byte, bufSize)}
	c.reset()
	return c
}

func (c *Conn) reset() {
	c.stage = AwaitingHeader
	c.header = protocol.Header{}
	c.received = 0
	c.remaining = protocol.HeaderSize
}

// MarkConnecting records that a connection attempt is in progress.
func (c *Conn) MarkConnecting() {
	if c.sock == nil {
		c.state = Connecting
	}
}

// MarkDisconnected records that a connection attempt failed.
func (c *Conn) MarkDisconnected() {
	if c.sock == nil {
		c.state = Disconnected
	}
}

// Attach binds a freshly connected socket. The message buffer is reset and
// the peer is considered alive.
func (c *Conn) Attach(sock tcp.Conn) {
	c.sock = sock
	c.state = Connected
	c.pongReceived = true
	c.epoch++
	c.reset()
}

// Detach unbinds and returns the socket, or nil if none was attached. The
// caller deregisters and closes it.
func (c *Conn) Detach() tcp.Conn {
	sock := c.sock
	c.sock = nil
	c.state = Disconnected
	c.epoch++
	c.reset()
	return sock
}

// Socket returns the attached socket, or nil.
func (c *Conn) Socket() tcp.Conn { return c.sock }

// State returns the lifecycle state.
func (c *Conn) State() State { return c.state }

// Stage returns the reassembly stage.
func (c *Conn) Stage() Stage { return c.stage }

// Buffered returns how many bytes of the frame in progress are buffered.
func (c *Conn) Buffered() int { return c.received }

// Remaining returns how many bytes the current stage still needs.
func (c *Conn) Remaining() int { return c.remaining }

// MaxPayload returns the largest payload the buffer can hold.
func (c *Conn) MaxPayload() int { return len(c.buf) - protocol.HeaderSize }

// PongReceived reports whether a PONG arrived since the last PING was sent.
func (c *Conn) PongReceived() bool { return c.pongReceived }

// OnReadable reads from the socket until it would block, dispatching every
// complete frame to h. It returns nil when the socket has no more data, or
// when h detached the connection. Any other outcome is returned as an error
// and the owner must tear the connection down.
func (c *Conn) OnReadable(h Handler) error {
	epoch := c.epoch
	for c.sock != nil && c.epoch == epoch {
		if c.stage == AwaitingPayload && c.remaining == 0 {
			err := c.dispatch(h)
			if c.epoch != epoch {
				return nil
			}
			c.reset()
			if err != nil {
				return err
			}
			continue
		}

		n, err := c.sock.Read(c.buf[c.received : c.received+c.remaining])
		if errors.Is(err, protocol.ErrWouldBlock) {
			return nil
		} else if err != nil {
			return err
		}
		c.received += n
		c.remaining -= n
		if c.remaining > 0 || c.stage != AwaitingHeader {
			continue
		}

		hdr, err := protocol.DecodeHeader(c.buf[:protocol.HeaderSize])
		if err != nil {
			return err
		}
		if int64(hdr.Size) > int64(c.MaxPayload()) {
			return fmt.Errorf("%w: %v frame declares %d bytes, buffer holds %d",
				protocol.ErrMessageTooBig, hdr.Type, hdr.Size, c.MaxPayload())
		}
		c.header = hdr
		c.stage = AwaitingPayload
		c.remaining = int(hdr.Size)
	}
	return nil
}

func (c *Conn) dispatch(h Handler) error {
	payload := c.buf[protocol.HeaderSize:c.received]
	switch c.header.Type {
	case c.inbound:
		return h.HandleUser(payload)
	case protocol.MessageTypePing:
		if err := c.SendControl(protocol.MessageTypePong); err != nil {
			return err
		}
		h.HandlePing()
		return nil
	case protocol.MessageTypePong:
		c.pongReceived = true
		return nil
	default:
		return fmt.Errorf("%w: %v", protocol.ErrUnexpectedMessageType, c.header.Type)
	}
}

// Write writes a complete frame. A write that does not take the whole frame
// is reported as protocol.ErrShortWrite; partial writes are never retried.
func (c *Conn) Write(frame []byte) error {
	if c.sock == nil {
		return protocol.ErrNotConnected
	}
	n, err := c.sock.Write(frame)
	if errors.Is(err, protocol.ErrWouldBlock) {
		return fmt.Errorf("%w: send buffer full", protocol.ErrShortWrite)
	} else if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("%w: %d of %d bytes", protocol.ErrShortWrite, n, len(frame))
	}
	return nil
}

// SendControl writes a frame with an empty payload.
func (c *Conn) SendControl(mt protocol.MessageType) error {
	var hdr [protocol.HeaderSize]byte
	return c.Write(protocol.PutHeader(hdr[:], mt, 0))
}

// Ping sends a PING and marks the PONG as outstanding.
func (c *Conn) Ping() error {
	if err := c.SendControl(protocol.MessageTypePing); err != nil {
		return err
	}
	c.pongReceived = false
	return nil
}
