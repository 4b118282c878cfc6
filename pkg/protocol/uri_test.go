package protocol_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/omochice/messi/pkg/protocol"
)

func TestParseTCPURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    protocol.Address
		wantErr bool
	}{
		{name: "ipv4", uri: "tcp://127.0.0.1:6000", want: protocol.Address{Host: "127.0.0.1", Port: 6000}},
		{name: "hostname", uri: "tcp://localhost:7000", want: protocol.Address{Host: "localhost", Port: 7000}},
		{name: "ipv6", uri: "tcp://[::1]:6000", want: protocol.Address{Host: "::1", Port: 6000}},
		{name: "port zero", uri: "tcp://127.0.0.1:0", want: protocol.Address{Host: "127.0.0.1", Port: 0}},
		{name: "wrong scheme", uri: "udp://127.0.0.1:6000", wantErr: true},
		{name: "no scheme", uri: "127.0.0.1:6000", wantErr: true},
		{name: "missing colon", uri: "tcp://127.0.0.1", wantErr: true},
		{name: "missing host", uri: "tcp://:6000", wantErr: true},
		{name: "bad port", uri: "tcp://127.0.0.1:http", wantErr: true},
		{name: "port out of range", uri: "tcp://127.0.0.1:70000", wantErr: true},
		{name: "host too long", uri: "tcp://" + strings.Repeat("a", protocol.MaxHostLen+1) + ":1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.ParseTCPURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTCPURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if tt.wantErr {
				var uerr *protocol.URIError
				if !errors.As(err, &uerr) {
					t.Errorf("ParseTCPURI(%q) error type = %T, want *URIError", tt.uri, err)
				}
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseTCPURI(%q) (-want, +got):\n%s", tt.uri, diff)
			}
		})
	}
}

func TestAddress_String(t *testing.T) {
	if got := (protocol.Address{Host: "::1", Port: 6000}).URI(); got != "tcp://[::1]:6000" {
		t.Errorf("URI() = %q", got)
	}
	if got := (protocol.Address{Host: "127.0.0.1", Port: 6000}).String(); got != "127.0.0.1:6000" {
		t.Errorf("String() = %q", got)
	}
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		err  error
		want protocol.DisconnectReason
	}{
		{protocol.ErrConnectionClosed, protocol.ReasonConnectionClosed},
		{protocol.ErrMessageTooBig, protocol.ReasonMessageTooBig},
		{protocol.ErrMessageDecode, protocol.ReasonMessageDecodeError},
		{protocol.ErrUnexpectedMessageType, protocol.ReasonProtocolError},
		{protocol.ErrKeepAliveTimeout, protocol.ReasonKeepAliveTimeout},
		{protocol.ErrDisconnectRequested, protocol.ReasonRequested},
		{protocol.ErrShortWrite, protocol.ReasonIOError},
		{errors.New("connection reset by peer"), protocol.ReasonIOError},
	}
	for _, tt := range tests {
		if got := protocol.ReasonOf(tt.err); got != tt.want {
			t.Errorf("ReasonOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
