package protocol

import (
	"errors"
	"fmt"
	"io"
)

// AppendFrame appends a complete frame with the given type and payload to dst.
func AppendFrame(dst []byte, mt MessageType, payload []byte) []byte {
	var hdr [HeaderSize]byte
	PutHeader(hdr[:], mt, uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// ReadFrame reads one complete frame from r, blocking until it is available.
// It is meant for goroutine-per-connection peers; the event-driven runtimes
// use their own reassembly buffer instead. The returned slice holds the
// header followed by the payload.
func ReadFrame(r io.Reader, maxPayload int) (Header, []byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, nil, ErrConnectionClosed
		}
		return Header{}, nil, fmt.Errorf("read header: %w", err)
	}
	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return Header{}, nil, err
	}
	if int64(h.Size) > int64(maxPayload) {
		return h, nil, fmt.Errorf("%w: %d > %d bytes", ErrMessageTooBig, h.Size, maxPayload)
	}
	frame := make([]byte, HeaderSize+int(h.Size))
	copy(frame, hdr[:])
	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		return h, nil, fmt.Errorf("read payload: %w", err)
	}
	return h, frame, nil
}

// CheckFrame verifies that b holds exactly one complete frame whose payload
// does not exceed maxPayload.
func CheckFrame(b []byte, maxPayload int) (Header, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Header{}, err
	}
	if int64(h.Size) > int64(maxPayload) {
		return h, fmt.Errorf("%w: %d > %d bytes", ErrMessageTooBig, h.Size, maxPayload)
	}
	if got := len(b) - HeaderSize; got != int(h.Size) {
		return h, fmt.Errorf("%w: header declares %d payload bytes, have %d", ErrMalformedHeader, h.Size, got)
	}
	return h, nil
}
