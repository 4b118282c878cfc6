package protocol

import (
	"errors"
	"fmt"
)

// Errors reported by the framing layer and the runtimes.
var (
	// ErrWouldBlock is reported by non-blocking sockets when no progress can
	// be made. It is never surfaced to applications.
	ErrWouldBlock = errors.New("operation would block")

	ErrConnectionClosed      = errors.New("connection closed")
	ErrMalformedHeader       = errors.New("malformed header")
	ErrMessageTooBig         = errors.New("message too big")
	ErrMessageDecode         = errors.New("message decode error")
	ErrMessageEncode         = errors.New("message encode error")
	ErrUnexpectedMessageType = errors.New("unexpected message type")
	ErrShortWrite            = errors.New("short write")
	ErrKeepAliveTimeout      = errors.New("keep-alive timeout")
	ErrSlotsExhausted        = errors.New("client slots exhausted")
	ErrSocketSetup           = errors.New("socket setup failed")
	ErrTimer                 = errors.New("timer failure")
	ErrNotConnected          = errors.New("not connected")
	ErrUnknownClient         = errors.New("unknown client")
	ErrDisconnectRequested   = errors.New("disconnect requested")
)

// URIError reports a malformed connect target.
type URIError struct {
	URI    string
	Reason string
}

func (e *URIError) Error() string {
	return fmt.Sprintf("invalid uri %q: %s", e.URI, e.Reason)
}

// DisconnectReason describes why a connection was torn down.
type DisconnectReason int

const (
	ReasonConnectionClosed DisconnectReason = iota
	ReasonIOError
	ReasonMessageTooBig
	ReasonMessageDecodeError
	ReasonProtocolError
	ReasonKeepAliveTimeout
	ReasonRequested
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonConnectionClosed:
		return "CONNECTION_CLOSED"
	case ReasonIOError:
		return "IO_ERROR"
	case ReasonMessageTooBig:
		return "MESSAGE_TOO_BIG"
	case ReasonMessageDecodeError:
		return "MESSAGE_DECODE_ERROR"
	case ReasonProtocolError:
		return "PROTOCOL_ERROR"
	case ReasonKeepAliveTimeout:
		return "KEEP_ALIVE_TIMEOUT"
	case ReasonRequested:
		return "REQUESTED"
	default:
		return fmt.Sprintf("reason %d", int(r))
	}
}

// ReasonOf maps a connection error to the reason reported to applications.
// Errors outside the taxonomy are I/O errors.
func ReasonOf(err error) DisconnectReason {
	switch {
	case errors.Is(err, ErrConnectionClosed):
		return ReasonConnectionClosed
	case errors.Is(err, ErrMessageTooBig):
		return ReasonMessageTooBig
	case errors.Is(err, ErrMessageDecode):
		return ReasonMessageDecodeError
	case errors.Is(err, ErrUnexpectedMessageType), errors.Is(err, ErrMalformedHeader):
		return ReasonProtocolError
	case errors.Is(err, ErrKeepAliveTimeout):
		return ReasonKeepAliveTimeout
	case errors.Is(err, ErrDisconnectRequested):
		return ReasonRequested
	default:
		return ReasonIOError
	}
}
