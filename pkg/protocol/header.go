// Package protocol defines the wire format shared by messi clients and servers.
//
// Every frame on the wire is an 8 byte header followed by the payload:
//
//	+----------------+----------------+-------------------+
//	| type (u32, BE) | size (u32, BE) | payload (size)    |
//	+----------------+----------------+-------------------+
//
// USER frames carry the codec's encoding of an application message. PING and
// PONG frames have an empty payload.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the encoded size of a Header in bytes.
const HeaderSize = 8

// MessageType is the type tag of a frame.
type MessageType uint32

// Reserved message types. Application messages are multiplexed inside USER
// frames by the codec and never use these values directly.
const (
	MessageTypeClientToServerUser MessageType = 1
	MessageTypeServerToClientUser MessageType = 2
	MessageTypePing               MessageType = 3
	MessageTypePong               MessageType = 4
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeClientToServerUser:
		return "CLIENT_TO_SERVER_USER"
	case MessageTypeServerToClientUser:
		return "SERVER_TO_CLIENT_USER"
	case MessageTypePing:
		return "PING"
	case MessageTypePong:
		return "PONG"
	default:
		return fmt.Sprintf("TYPE:%d", uint32(mt))
	}
}

// IsControl reports whether mt is a keep-alive message type.
func (mt MessageType) IsControl() bool {
	return mt == MessageTypePing || mt == MessageTypePong
}

// Header is the fixed frame header.
type Header struct {
	Type MessageType
	Size uint32
}

// EncodeHeader returns the wire encoding of a header with the given type and
// payload size.
func EncodeHeader(mt MessageType, size uint32) []byte {
	return PutHeader(make([]byte, HeaderSize), mt, size)
}

// PutHeader writes the header into the first HeaderSize bytes of buf and
// returns buf. It panics if buf is too short.
func PutHeader(buf []byte, mt MessageType, size uint32) []byte {
	binary.BigEndian.PutUint32(buf[0:4], uint32(mt))
	binary.BigEndian.PutUint32(buf[4:8], size)
	return buf
}

// DecodeHeader decodes the header at the front of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d < %d bytes", ErrMalformedHeader, len(b), HeaderSize)
	}
	return Header{
		Type: MessageType(binary.BigEndian.Uint32(b[0:4])),
		Size: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}
