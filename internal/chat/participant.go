package chat

import (
	"errors"

	"github.com/omochice/messi/pkg/protocol"
	"github.com/rs/zerolog"
)

// ErrNotJoined is returned by Participant.Say before the server accepted the
// user.
var ErrNotJoined = errors.New("not joined")

// Participant is the client end of the chat room. It announces its user on
// every connect and hands incoming lines to OnLine.
type Participant struct {
	// OnLine is called for every relayed chat line.
	OnLine func(user, text string)
	// OnJoined is called when the server accepts the user.
	OnJoined func()
	// OnLeft is called when the connection is lost.
	OnLeft func(reason protocol.DisconnectReason)

	client *Client
	joined bool
	log    zerolog.Logger
}

// NewParticipant returns a participant; attach it with Attach or pass it as
// the handler of NewClient.
func NewParticipant(log zerolog.Logger) *Participant {
	return &Participant{log: log}
}

// Attach binds the participant to the client it handles.
func (p *Participant) Attach(c *Client) { p.client = c }

// Joined reports whether the server answered the last ConnectReq.
func (p *Participant) Joined() bool { return p.joined }

// Say sends a chat line as the client's user.
func (p *Participant) Say(text string) error {
	if !p.joined || p.client == nil {
		return ErrNotJoined
	}
	m := p.client.InitMessageInd()
	m.User = p.client.User()
	m.Text = text
	return p.client.Send()
}

// OnConnected implements ClientHandler.
func (p *Participant) OnConnected(c *Client) {
	p.client = c
	m := c.InitConnectReq()
	m.User = c.User()
	if err := c.Send(); err != nil {
		p.log.Warn().Err(err).Msg("connect request not sent")
	}
}

// OnDisconnected implements ClientHandler.
func (p *Participant) OnDisconnected(c *Client, reason protocol.DisconnectReason) {
	p.joined = false
	p.log.Info().Stringer("reason", reason).Msg("disconnected from the server")
	if p.OnLeft != nil {
		p.OnLeft(reason)
	}
}

// OnConnectRsp implements ClientHandler.
func (p *Participant) OnConnectRsp(c *Client, m *ConnectRsp) {
	p.joined = true
	p.log.Info().Str("user", c.User()).Msg("connected to the server")
	if p.OnJoined != nil {
		p.OnJoined()
	}
}

// OnMessageInd implements ClientHandler.
func (p *Participant) OnMessageInd(c *Client, m *MessageInd) {
	if p.OnLine != nil {
		p.OnLine(m.User, m.Text)
	}
}
