// Package chat is the chat protocol built on the messi runtime: its
// messages, their protobuf wire codec, typed client and server wrappers, and
// the chat room applications.
//
// The schema is
//
//	message ClientToServer { oneof messages { ConnectReq connect_req = 1; MessageInd message_ind = 2; } }
//	message ServerToClient { oneof messages { ConnectRsp connect_rsp = 1; MessageInd message_ind = 2; } }
//	message ConnectReq { string user = 1; }
//	message ConnectRsp { }
//	message MessageInd { string user = 1; string text = 2; }
package chat

import "fmt"

// ConnectReq announces a user to the server.
type ConnectReq struct {
	User string
}

// ConnectRsp acknowledges a ConnectReq.
type ConnectRsp struct{}

// MessageInd is a chat line.
type MessageInd struct {
	User string
	Text string
}

// ClientToServerKind tells which message a ClientToServer holds.
type ClientToServerKind int

const (
	ClientToServerNone ClientToServerKind = iota
	ClientToServerConnectReq
	ClientToServerMessageInd
)

// String returns the string representation of ClientToServerKind
func (k ClientToServerKind) String() string {
	switch k {
	case ClientToServerNone:
		return "NONE"
	case ClientToServerConnectReq:
		return "CONNECT_REQ"
	case ClientToServerMessageInd:
		return "MESSAGE_IND"
	default:
		return fmt.Sprintf("KIND:%d", int(k))
	}
}

// ClientToServer is the union of messages sent by clients. Only the field
// selected by Kind is meaningful.
type ClientToServer struct {
	Kind       ClientToServerKind
	ConnectReq ConnectReq
	MessageInd MessageInd
}

// ServerToClientKind tells which message a ServerToClient holds.
type ServerToClientKind int

const (
	ServerToClientNone ServerToClientKind = iota
	ServerToClientConnectRsp
	ServerToClientMessageInd
)

// String returns the string representation of ServerToClientKind
func (k ServerToClientKind) String() string {
	switch k {
	case ServerToClientNone:
		return "NONE"
	case ServerToClientConnectRsp:
		return "CONNECT_RSP"
	case ServerToClientMessageInd:
		return "MESSAGE_IND"
	default:
		return fmt.Sprintf("KIND:%d", int(k))
	}
}

// ServerToClient is the union of messages sent by the server.
type ServerToClient struct {
	Kind       ServerToClientKind
	ConnectRsp ConnectRsp
	MessageInd MessageInd
}
