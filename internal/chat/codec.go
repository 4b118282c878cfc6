package chat

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the chat schema.
const (
	fieldConnect    protowire.Number = 1 // connect_req, connect_rsp
	fieldMessageInd protowire.Number = 2
	fieldUser       protowire.Number = 1
	fieldText       protowire.Number = 2
)

var errEmptyMessage = errors.New("no message set")

// ClientCodec is the codec of the client side: it encodes ClientToServer and
// decodes ServerToClient.
type ClientCodec struct{}

// Encode implements protocol.Codec.
func (ClientCodec) Encode(dst []byte, m ClientToServer) ([]byte, error) {
	switch m.Kind {
	case ClientToServerConnectReq:
		return appendConnectReq(dst, fieldConnect, &m.ConnectReq), nil
	case ClientToServerMessageInd:
		return appendMessageInd(dst, fieldMessageInd, &m.MessageInd), nil
	default:
		return dst, fmt.Errorf("encode client message: %w", errEmptyMessage)
	}
}

// Decode implements protocol.Codec.
func (ClientCodec) Decode(b []byte) (ServerToClient, error) {
	var m ServerToClient
	err := consumeFields(b, func(num protowire.Number, v []byte) error {
		switch num {
		case fieldConnect:
			m.Kind = ServerToClientConnectRsp
			m.ConnectRsp = ConnectRsp{}
			return consumeFields(v, nil)
		case fieldMessageInd:
			m.Kind = ServerToClientMessageInd
			return decodeMessageInd(v, &m.MessageInd)
		}
		return nil
	})
	if err != nil {
		return ServerToClient{}, fmt.Errorf("decode server message: %w", err)
	}
	if m.Kind == ServerToClientNone {
		return ServerToClient{}, fmt.Errorf("decode server message: %w", errEmptyMessage)
	}
	return m, nil
}

// ServerCodec is the codec of the server side: it encodes ServerToClient and
// decodes ClientToServer.
type ServerCodec struct{}

// Encode implements protocol.Codec.
func (ServerCodec) Encode(dst []byte, m ServerToClient) ([]byte, error) {
	switch m.Kind {
	case ServerToClientConnectRsp:
		dst = protowire.AppendTag(dst, fieldConnect, protowire.BytesType)
		return protowire.AppendVarint(dst, 0), nil
	case ServerToClientMessageInd:
		return appendMessageInd(dst, fieldMessageInd, &m.MessageInd), nil
	default:
		return dst, fmt.Errorf("encode server message: %w", errEmptyMessage)
	}
}

// Decode implements protocol.Codec.
func (ServerCodec) Decode(b []byte) (ClientToServer, error) {
	var m ClientToServer
	err := consumeFields(b, func(num protowire.Number, v []byte) error {
		switch num {
		case fieldConnect:
			m.Kind = ClientToServerConnectReq
			return decodeConnectReq(v, &m.ConnectReq)
		case fieldMessageInd:
			m.Kind = ClientToServerMessageInd
			return decodeMessageInd(v, &m.MessageInd)
		}
		return nil
	})
	if err != nil {
		return ClientToServer{}, fmt.Errorf("decode client message: %w", err)
	}
	if m.Kind == ClientToServerNone {
		return ClientToServer{}, fmt.Errorf("decode client message: %w", errEmptyMessage)
	}
	return m, nil
}

func sizeString(num protowire.Number, s string) int {
	if s == "" {
		return 0
	}
	return protowire.SizeTag(num) + protowire.SizeBytes(len(s))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendConnectReq(b []byte, num protowire.Number, m *ConnectReq) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(sizeString(fieldUser, m.User)))
	return appendString(b, fieldUser, m.User)
}

func appendMessageInd(b []byte, num protowire.Number, m *MessageInd) []byte {
	size := sizeString(fieldUser, m.User) + sizeString(fieldText, m.Text)
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(size))
	b = appendString(b, fieldUser, m.User)
	return appendString(b, fieldText, m.Text)
}

func decodeConnectReq(b []byte, m *ConnectReq) error {
	*m = ConnectReq{}
	return consumeFields(b, func(num protowire.Number, v []byte) error {
		if num == fieldUser {
			m.User = string(v)
		}
		return nil
	})
}

func decodeMessageInd(b []byte, m *MessageInd) error {
	*m = MessageInd{}
	return consumeFields(b, func(num protowire.Number, v []byte) error {
		switch num {
		case fieldUser:
			m.User = string(v)
		case fieldText:
			m.Text = string(v)
		}
		return nil
	})
}

// consumeFields walks the fields of an encoded message and calls fn with
// each length-delimited one. Fields of other wire types are skipped; fn may
// be nil to only validate b.
func consumeFields(b []byte, fn func(num protowire.Number, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if fn != nil {
			if err := fn(num, v); err != nil {
				return err
			}
		}
	}
	return nil
}
