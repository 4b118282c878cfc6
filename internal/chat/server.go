package chat

import (
	"expvar"

	"github.com/omochice/messi/internal/loop"
	"github.com/omochice/messi/internal/server"
	"github.com/omochice/messi/pkg/protocol"
)

var _ protocol.Codec[ServerToClient, ClientToServer] = ServerCodec{}

// ServerHandler receives the events of a chat Server.
type ServerHandler interface {
	OnClientConnected(s *Server, id server.ClientID)
	OnClientDisconnected(s *Server, id server.ClientID, reason protocol.DisconnectReason)
	OnConnectReq(s *Server, id server.ClientID, m *ConnectReq)
	OnMessageInd(s *Server, id server.ClientID, m *MessageInd)
}

// NopServerHandler ignores every event. Embed it to implement a subset of
// ServerHandler.
type NopServerHandler struct{}

func (NopServerHandler) OnClientConnected(*Server, server.ClientID)                               {}
func (NopServerHandler) OnClientDisconnected(*Server, server.ClientID, protocol.DisconnectReason) {}
func (NopServerHandler) OnConnectReq(*Server, server.ClientID, *ConnectReq)                       {}
func (NopServerHandler) OnMessageInd(*Server, server.ClientID, *MessageInd)                       {}

// Server is a chat server. Populate the message returned by one of the Init
// methods, then call Send, Reply or Broadcast.
type Server struct {
	handler ServerHandler
	rt      *server.Server[ServerToClient, ClientToServer]
	out     ServerToClient
}

// NewServer returns a stopped chat server listening on uri.
func NewServer(uri string, lp loop.Loop, h ServerHandler, opts ...server.Option) (*Server, error) {
	if h == nil {
		h = NopServerHandler{}
	}
	s := &Server{handler: h}
	rt, err := server.New[ServerToClient, ClientToServer](uri, lp, ServerCodec{}, serverEvents{s}, opts...)
	if err != nil {
		return nil, err
	}
	s.rt = rt
	return s, nil
}

// Start starts listening.
func (s *Server) Start() error { return s.rt.Start() }

// Stop closes the listener and all clients without invoking callbacks.
func (s *Server) Stop() { s.rt.Stop() }

// Addr returns the listening address.
func (s *Server) Addr() protocol.Address { return s.rt.Addr() }

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int { return s.rt.ClientCount() }

// Metrics returns the runtime counters.
func (s *Server) Metrics() *expvar.Map { return s.rt.Metrics() }

// InitConnectRsp selects a ConnectRsp as the next message to send.
func (s *Server) InitConnectRsp() *ConnectRsp {
	s.out = ServerToClient{Kind: ServerToClientConnectRsp}
	return &s.out.ConnectRsp
}

// InitMessageInd selects a MessageInd as the next message to send and
// returns it for populating.
func (s *Server) InitMessageInd() *MessageInd {
	s.out = ServerToClient{Kind: ServerToClientMessageInd}
	return &s.out.MessageInd
}

// Send sends the prepared message to one client.
func (s *Server) Send(id server.ClientID) error { return s.rt.Send(id, s.out) }

// Reply sends the prepared message to the client being served.
func (s *Server) Reply() error { return s.rt.Reply(s.out) }

// Broadcast sends the prepared message to every client.
func (s *Server) Broadcast() error { return s.rt.Broadcast(s.out) }

// Disconnect destroys one client.
func (s *Server) Disconnect(id server.ClientID) error { return s.rt.Disconnect(id) }

// DisconnectCurrent destroys the client being served.
func (s *Server) DisconnectCurrent() error { return s.rt.DisconnectCurrent() }

// serverEvents dispatches runtime events by message kind.
type serverEvents struct{ s *Server }

func (e serverEvents) OnClientConnected(id server.ClientID) {
	e.s.handler.OnClientConnected(e.s, id)
}

func (e serverEvents) OnClientDisconnected(id server.ClientID, reason protocol.DisconnectReason) {
	e.s.handler.OnClientDisconnected(e.s, id, reason)
}

func (e serverEvents) OnMessage(id server.ClientID, m ClientToServer) {
	switch m.Kind {
	case ClientToServerConnectReq:
		e.s.handler.OnConnectReq(e.s, id, &m.ConnectReq)
	case ClientToServerMessageInd:
		e.s.handler.OnMessageInd(e.s, id, &m.MessageInd)
	}
}
