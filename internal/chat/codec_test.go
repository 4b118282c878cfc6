package chat_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/omochice/messi/internal/chat"
	"google.golang.org/protobuf/testing/protopack"
)

func TestCodec_ClientToServer(t *testing.T) {
	tests := []struct {
		name string
		msg  chat.ClientToServer
	}{
		{
			name: "connect_req",
			msg:  chat.ClientToServer{Kind: chat.ClientToServerConnectReq, ConnectReq: chat.ConnectReq{User: "Erik"}},
		},
		{
			name: "connect_req without user",
			msg:  chat.ClientToServer{Kind: chat.ClientToServerConnectReq},
		},
		{
			name: "message_ind",
			msg:  chat.ClientToServer{Kind: chat.ClientToServerMessageInd, MessageInd: chat.MessageInd{User: "Fia", Text: "Hello."}},
		},
		{
			name: "message_ind with empty text",
			msg:  chat.ClientToServer{Kind: chat.ClientToServerMessageInd, MessageInd: chat.MessageInd{User: "Kalle"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := chat.ClientCodec{}.Encode(nil, tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := chat.ServerCodec{}.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.msg, got); diff != "" {
				t.Errorf("Decode(Encode()) (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestCodec_ServerToClient(t *testing.T) {
	tests := []struct {
		name string
		msg  chat.ServerToClient
	}{
		{name: "connect_rsp", msg: chat.ServerToClient{Kind: chat.ServerToClientConnectRsp}},
		{
			name: "message_ind",
			msg:  chat.ServerToClient{Kind: chat.ServerToClientMessageInd, MessageInd: chat.MessageInd{User: "Erik", Text: "Hej!"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := chat.ServerCodec{}.Encode(nil, tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := chat.ClientCodec{}.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.msg, got); diff != "" {
				t.Errorf("Decode(Encode()) (-want, +got):\n%s", diff)
			}
		})
	}
}

// The encoding must match what protobuf produces for the chat schema.
func TestCodec_WireFormat(t *testing.T) {
	msg := chat.ClientToServer{
		Kind:       chat.ClientToServerMessageInd,
		MessageInd: chat.MessageInd{User: "Fia", Text: "Hello."},
	}
	want := protopack.Message{
		protopack.Tag{Number: 2, Type: protopack.BytesType},
		protopack.LengthPrefix{
			protopack.Tag{Number: 1, Type: protopack.BytesType}, protopack.String("Fia"),
			protopack.Tag{Number: 2, Type: protopack.BytesType}, protopack.String("Hello."),
		},
	}.Marshal()

	got, err := chat.ClientCodec{}.Encode(nil, msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Encode() (-want, +got):\n%s", diff)
	}

	rsp, err := chat.ServerCodec{}.Encode(nil, chat.ServerToClient{Kind: chat.ServerToClientConnectRsp})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	wantRsp := protopack.Message{
		protopack.Tag{Number: 1, Type: protopack.BytesType}, protopack.LengthPrefix{},
	}.Marshal()
	if diff := cmp.Diff(wantRsp, rsp); diff != "" {
		t.Errorf("Encode(connect_rsp) (-want, +got):\n%s", diff)
	}
}

func TestCodec_EncodeAppends(t *testing.T) {
	prefix := []byte{0xde, 0xad}
	data, err := chat.ClientCodec{}.Encode(prefix, chat.ClientToServer{
		Kind:       chat.ClientToServerConnectReq,
		ConnectReq: chat.ConnectReq{User: "Erik"},
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if diff := cmp.Diff(prefix, data[:2]); diff != "" {
		t.Errorf("prefix (-want, +got):\n%s", diff)
	}
	got, err := chat.ServerCodec{}.Decode(data[2:])
	if err != nil || got.ConnectReq.User != "Erik" {
		t.Errorf("Decode() = %+v, %v", got, err)
	}
}

func TestCodec_UnknownFieldsSkipped(t *testing.T) {
	data := protopack.Message{
		protopack.Tag{Number: 9, Type: protopack.VarintType}, protopack.Varint(42),
		protopack.Tag{Number: 1, Type: protopack.BytesType},
		protopack.LengthPrefix{
			protopack.Tag{Number: 1, Type: protopack.BytesType}, protopack.String("Kalle"),
			protopack.Tag{Number: 7, Type: protopack.BytesType}, protopack.String("ignored"),
		},
	}.Marshal()

	got, err := chat.ServerCodec{}.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := chat.ClientToServer{Kind: chat.ClientToServerConnectReq, ConnectReq: chat.ConnectReq{User: "Kalle"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode() (-want, +got):\n%s", diff)
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated tag", data: []byte{0xff}},
		{name: "truncated length", data: []byte{0x12, 0x05, 'a'}},
		{name: "only unknown fields", data: protopack.Message{
			protopack.Tag{Number: 5, Type: protopack.BytesType}, protopack.String("x"),
		}.Marshal()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (chat.ServerCodec{}).Decode(tt.data); err == nil {
				t.Error("ServerCodec.Decode() error = nil, want error")
			}
			if _, err := (chat.ClientCodec{}).Decode(tt.data); err == nil {
				t.Error("ClientCodec.Decode() error = nil, want error")
			}
		})
	}
}

func TestCodec_EncodeEmpty(t *testing.T) {
	if _, err := (chat.ClientCodec{}).Encode(nil, chat.ClientToServer{}); err == nil {
		t.Error("ClientCodec.Encode() of empty message succeeded")
	}
	if _, err := (chat.ServerCodec{}).Encode(nil, chat.ServerToClient{}); err == nil {
		t.Error("ServerCodec.Encode() of empty message succeeded")
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind fmtStringer
		want string
	}{
		{chat.ClientToServerConnectReq, "CONNECT_REQ"},
		{chat.ClientToServerMessageInd, "MESSAGE_IND"},
		{chat.ServerToClientConnectRsp, "CONNECT_RSP"},
		{chat.ServerToClientNone, "NONE"},
		{chat.ClientToServerKind(99), "KIND:99"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

type fmtStringer interface{ String() string }
