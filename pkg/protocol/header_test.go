package protocol_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/omochice/messi/pkg/protocol"
)

func TestHeader_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		typ  protocol.MessageType
		size uint32
	}{
		{name: "ping", typ: protocol.MessageTypePing, size: 0},
		{name: "pong", typ: protocol.MessageTypePong, size: 0},
		{name: "client user", typ: protocol.MessageTypeClientToServerUser, size: 17},
		{name: "server user", typ: protocol.MessageTypeServerToClientUser, size: 1016},
		{name: "max size", typ: protocol.MessageType(99), size: math.MaxUint32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := protocol.EncodeHeader(tt.typ, tt.size)
			if len(buf) != protocol.HeaderSize {
				t.Fatalf("EncodeHeader() length = %d, want %d", len(buf), protocol.HeaderSize)
			}
			got, err := protocol.DecodeHeader(buf)
			if err != nil {
				t.Fatalf("DecodeHeader() error = %v", err)
			}
			want := protocol.Header{Type: tt.typ, Size: tt.size}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("DecodeHeader() (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestHeader_BigEndian(t *testing.T) {
	got := protocol.EncodeHeader(protocol.MessageTypeServerToClientUser, 0x010203)
	want := []byte{0, 0, 0, 2, 0, 1, 2, 3}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeHeader() = %v, want %v", got, want)
	}
}

func TestDecodeHeader_Short(t *testing.T) {
	for n := 0; n < protocol.HeaderSize; n++ {
		_, err := protocol.DecodeHeader(make([]byte, n))
		if !errors.Is(err, protocol.ErrMalformedHeader) {
			t.Errorf("DecodeHeader(%d bytes) error = %v, want ErrMalformedHeader", n, err)
		}
	}
}

func TestMessageType_String(t *testing.T) {
	tests := []struct {
		typ  protocol.MessageType
		want string
	}{
		{protocol.MessageTypeClientToServerUser, "CLIENT_TO_SERVER_USER"},
		{protocol.MessageTypeServerToClientUser, "SERVER_TO_CLIENT_USER"},
		{protocol.MessageTypePing, "PING"},
		{protocol.MessageTypePong, "PONG"},
		{protocol.MessageType(42), "TYPE:42"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("MessageType(%d).String() = %q, want %q", uint32(tt.typ), got, tt.want)
		}
	}
}
