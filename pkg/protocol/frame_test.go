package protocol_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/omochice/messi/pkg/protocol"
)

func TestReadFrame(t *testing.T) {
	var stream []byte
	stream = protocol.AppendFrame(stream, protocol.MessageTypeClientToServerUser, []byte("hello"))
	stream = protocol.AppendFrame(stream, protocol.MessageTypePing, nil)

	r := bytes.NewReader(stream)

	h, frame, err := protocol.ReadFrame(r, 64)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if h.Type != protocol.MessageTypeClientToServerUser || h.Size != 5 {
		t.Errorf("ReadFrame() header = %+v", h)
	}
	if got := string(frame[protocol.HeaderSize:]); got != "hello" {
		t.Errorf("ReadFrame() payload = %q, want %q", got, "hello")
	}

	h, frame, err = protocol.ReadFrame(r, 64)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if h.Type != protocol.MessageTypePing || len(frame) != protocol.HeaderSize {
		t.Errorf("ReadFrame() = %+v, %d bytes", h, len(frame))
	}

	if _, _, err := protocol.ReadFrame(r, 64); !errors.Is(err, protocol.ErrConnectionClosed) {
		t.Errorf("ReadFrame() at EOF error = %v, want ErrConnectionClosed", err)
	}
}

func TestReadFrame_TooBig(t *testing.T) {
	stream := protocol.AppendFrame(nil, protocol.MessageTypeClientToServerUser, make([]byte, 65))
	_, _, err := protocol.ReadFrame(bytes.NewReader(stream), 64)
	if !errors.Is(err, protocol.ErrMessageTooBig) {
		t.Errorf("ReadFrame() error = %v, want ErrMessageTooBig", err)
	}
}

func TestCheckFrame(t *testing.T) {
	good := protocol.AppendFrame(nil, protocol.MessageTypeClientToServerUser, []byte("abc"))

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "complete frame", input: good},
		{name: "truncated header", input: good[:4], wantErr: protocol.ErrMalformedHeader},
		{name: "truncated payload", input: good[:len(good)-1], wantErr: protocol.ErrMalformedHeader},
		{name: "trailing bytes", input: append(append([]byte{}, good...), 0), wantErr: protocol.ErrMalformedHeader},
		{name: "too big", input: protocol.AppendFrame(nil, protocol.MessageTypeClientToServerUser, make([]byte, 9)), wantErr: protocol.ErrMessageTooBig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.CheckFrame(tt.input, 8)
			if tt.wantErr == nil && err != nil {
				t.Errorf("CheckFrame() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckFrame() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
