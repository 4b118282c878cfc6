package chat

import (
	"expvar"

	"github.com/omochice/messi/internal/client"
	"github.com/omochice/messi/internal/framing"
	"github.com/omochice/messi/internal/loop"
	"github.com/omochice/messi/pkg/protocol"
)

var _ protocol.Codec[ClientToServer, ServerToClient] = ClientCodec{}

// ClientHandler receives the events of a chat Client.
type ClientHandler interface {
	OnConnected(c *Client)
	OnDisconnected(c *Client, reason protocol.DisconnectReason)
	OnConnectRsp(c *Client, m *ConnectRsp)
	OnMessageInd(c *Client, m *MessageInd)
}

// NopClientHandler ignores every event. Embed it to implement a subset of
// ClientHandler.
type NopClientHandler struct{}

func (NopClientHandler) OnConnected(*Client)                               {}
func (NopClientHandler) OnDisconnected(*Client, protocol.DisconnectReason) {}
func (NopClientHandler) OnConnectRsp(*Client, *ConnectRsp)                 {}
func (NopClientHandler) OnMessageInd(*Client, *MessageInd)                 {}

// Client is a chat client. Populate the message returned by one of the
// Init methods, then call Send.
type Client struct {
	user    string
	handler ClientHandler
	rt      *client.Client[ClientToServer, ServerToClient]
	out     ClientToServer
}

// NewClient returns a stopped chat client for user connecting to uri.
func NewClient(user, uri string, lp loop.Loop, h ClientHandler, opts ...client.Option) (*Client, error) {
	if h == nil {
		h = NopClientHandler{}
	}
	c := &Client{user: user, handler: h}
	rt, err := client.New[ClientToServer, ServerToClient](uri, lp, ClientCodec{}, clientEvents{c}, opts...)
	if err != nil {
		return nil, err
	}
	c.rt = rt
	return c, nil
}

// User returns the user name given to NewClient.
func (c *Client) User() string { return c.user }

// State returns the connection state.
func (c *Client) State() framing.State { return c.rt.State() }

// Metrics returns the runtime counters.
func (c *Client) Metrics() *expvar.Map { return c.rt.Metrics() }

// Start connects to the server, retrying until it succeeds.
func (c *Client) Start() error { return c.rt.Start() }

// Stop disconnects without invoking any callback.
func (c *Client) Stop() { c.rt.Stop() }

// Close stops the client and releases its timers.
func (c *Client) Close() error { return c.rt.Close() }

// InitConnectReq selects a ConnectReq as the next message to send and
// returns it for populating.
func (c *Client) InitConnectReq() *ConnectReq {
	c.out = ClientToServer{Kind: ClientToServerConnectReq}
	return &c.out.ConnectReq
}

// InitMessageInd selects a MessageInd as the next message to send and
// returns it for populating.
func (c *Client) InitMessageInd() *MessageInd {
	c.out = ClientToServer{Kind: ClientToServerMessageInd}
	return &c.out.MessageInd
}

// Send sends the message prepared by the last Init call.
func (c *Client) Send() error { return c.rt.Send(c.out) }

// clientEvents dispatches runtime events by message kind.
type clientEvents struct{ c *Client }

func (e clientEvents) OnConnected() { e.c.handler.OnConnected(e.c) }

func (e clientEvents) OnDisconnected(reason protocol.DisconnectReason) {
	e.c.handler.OnDisconnected(e.c, reason)
}

func (e clientEvents) OnMessage(m ServerToClient) {
	switch m.Kind {
	case ServerToClientConnectRsp:
		e.c.handler.OnConnectRsp(e.c, &m.ConnectRsp)
	case ServerToClientMessageInd:
		e.c.handler.OnMessageInd(e.c, &m.MessageInd)
	}
}
