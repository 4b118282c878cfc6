// Package client implements the client side of the messi runtime.
//
// A Client keeps one connection to a server alive: it connects on Start,
// sends a PING every keep-alive interval, drops the connection when a PONG
// is missed, and reconnects after a fixed delay whenever the connection is
// lost. All methods must be called from the goroutine running the loop.
package client

import (
	"expvar"
	"fmt"

	"github.com/omochice/messi/internal/framing"
	"github.com/omochice/messi/internal/loop"
	"github.com/omochice/messi/internal/transport/tcp"
	"github.com/omochice/messi/pkg/protocol"
	"github.com/rs/zerolog"
)

// Handler receives the events of a Client. Callbacks may call back into the
// client, including Stop and Start.
type Handler[In any] interface {
	OnConnected()
	OnDisconnected(reason protocol.DisconnectReason)
	OnMessage(msg In)
}

// NopHandler ignores every event. Embed it to implement a subset of Handler.
type NopHandler[In any] struct{}

func (NopHandler[In]) OnConnected()                             {}
func (NopHandler[In]) OnDisconnected(protocol.DisconnectReason) {}
func (NopHandler[In]) OnMessage(In)                             {}

// Client is a reconnecting client sending Out messages and receiving In
// messages.
type Client[Out, In any] struct {
	addr    protocol.Address
	lp      loop.Loop
	codec   protocol.Codec[Out, In]
	handler Handler[In]
	opts    options
	log     zerolog.Logger
	metrics *clientMetrics

	conn      *framing.Conn
	frames    framing.Handler
	out       []byte
	keepAlive loop.Timer
	reconnect loop.Timer
	running   bool
}

// New returns a stopped client for the server at uri, which must have the
// form tcp://host:port. It fails if the URI is malformed or the timers cannot
// be created.
func New[Out, In any](uri string, lp loop.Loop, codec protocol.Codec[Out, In], h Handler[In], opts ...Option) (*Client[Out, In], error) {
	addr, err := protocol.ParseTCPURI(uri)
	if err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = tcp.SocketDialer{}
	}
	if h == nil {
		h = NopHandler[In]{}
	}

	c := &Client[Out, In]{
		addr:    addr,
		lp:      lp,
		codec:   codec,
		handler: h,
		opts:    o,
		log:     o.log.With().Str("server", addr.String()).Logger(),
		metrics: newClientMetrics(),
		conn:    framing.New(o.bufSize, protocol.MessageTypeServerToClientUser),
		out:     make([]byte, o.bufSize),
	}
	c.frames = framing.HandlerFuncs{User: c.handleUser}

	if c.keepAlive, err = lp.NewTimer(c.onKeepAlive); err != nil {
		return nil, fmt.Errorf("keep-alive timer: %w", err)
	}
	if c.reconnect, err = lp.NewTimer(c.onReconnect); err != nil {
		c.keepAlive.Close()
		return nil, fmt.Errorf("reconnect timer: %w", err)
	}
	return c, nil
}

// Addr returns the server address.
func (c *Client[Out, In]) Addr() protocol.Address { return c.addr }

// State returns the connection state.
func (c *Client[Out, In]) State() framing.State { return c.conn.State() }

// Metrics returns the activity counters of the client.
func (c *Client[Out, In]) Metrics() *expvar.Map { return c.metrics.emap }

// Start connects to the server. If the attempt fails, it is retried every
// reconnect interval until it succeeds or Stop is called. Start on a
// connected client does nothing. The only error is a failure to arm the
// reconnect timer.
func (c *Client[Out, In]) Start() error {
	c.running = true
	if c.conn.State() != framing.Disconnected {
		return nil
	}
	c.reconnect.Stop()
	return c.connect()
}

// Stop closes the connection and disarms both timers without invoking any
// callback. Stop is idempotent.
func (c *Client[Out, In]) Stop() {
	c.running = false
	c.reconnect.Stop()
	c.teardown()
}

// Close stops the client and releases its timers. The client cannot be
// restarted afterwards.
func (c *Client[Out, In]) Close() error {
	c.Stop()
	kerr := c.keepAlive.Close()
	rerr := c.reconnect.Close()
	if kerr != nil {
		return kerr
	}
	return rerr
}

// Send encodes msg and writes it to the server. It reports
// protocol.ErrNotConnected if there is no connection and
// protocol.ErrMessageEncode if msg cannot be encoded into the output buffer.
// A failed write is not reported: the connection is dropped, OnDisconnected
// fires and a reconnect is scheduled.
func (c *Client[Out, In]) Send(msg Out) error {
	if c.conn.State() != framing.Connected {
		return protocol.ErrNotConnected
	}
	frame, err := c.encode(msg)
	if err != nil {
		return err
	}
	if err := c.conn.Write(frame); err != nil {
		c.log.Debug().Err(err).Msg("send failed")
		c.disconnect(err)
		return nil
	}
	c.metrics.framesSent.Add(1)
	return nil
}

func (c *Client[Out, In]) encode(msg Out) ([]byte, error) {
	b, err := c.codec.Encode(c.out[:protocol.HeaderSize], msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrMessageEncode, err)
	}
	if len(b) > len(c.out) {
		return nil, fmt.Errorf("%w: %d bytes exceeds buffer of %d", protocol.ErrMessageEncode, len(b), len(c.out))
	}
	size := uint32(len(b) - protocol.HeaderSize)
	return protocol.PutHeader(b, protocol.MessageTypeClientToServerUser, size), nil
}

func (c *Client[Out, In]) connect() error {
	c.conn.MarkConnecting()
	sock, err := c.opts.dialer.Dial(c.addr)
	if err != nil {
		c.conn.MarkDisconnected()
		c.metrics.connectFailed.Add(1)
		c.log.Debug().Err(err).Dur("retry", c.opts.reconnect).Msg("connect failed")
		return c.scheduleReconnect()
	}
	if err := c.lp.Register(sock.Fd(), c.onReadable); err != nil {
		sock.Close()
		c.conn.MarkDisconnected()
		c.metrics.connectFailed.Add(1)
		c.log.Error().Err(err).Msg("register socket")
		return c.scheduleReconnect()
	}
	c.conn.Attach(sock)
	if err := c.keepAlive.Start(c.opts.keepAlive, false); err != nil {
		c.log.Error().Err(err).Msg("arm keep-alive timer")
		c.teardown()
		return c.scheduleReconnect()
	}

	c.metrics.connects.Add(1)
	c.log.Info().Msg("connected")
	c.handler.OnConnected()
	return nil
}

func (c *Client[Out, In]) scheduleReconnect() error {
	if !c.running {
		return nil
	}
	if err := c.reconnect.Start(c.opts.reconnect, false); err != nil {
		return fmt.Errorf("reconnect timer: %w", err)
	}
	return nil
}

// teardown releases the socket and the keep-alive timer.
func (c *Client[Out, In]) teardown() {
	c.keepAlive.Stop()
	sock := c.conn.Detach()
	if sock == nil {
		return
	}
	if err := c.lp.Deregister(sock.Fd()); err != nil {
		c.log.Warn().Err(err).Msg("deregister socket")
	}
	sock.Close()
}

// disconnect drops the connection because of err, reports it and schedules
// a reconnect.
func (c *Client[Out, In]) disconnect(err error) {
	if c.conn.Socket() == nil {
		return
	}
	reason := protocol.ReasonOf(err)
	c.teardown()
	c.metrics.disconnects.Add(1)
	c.log.Info().Err(err).Stringer("reason", reason).Msg("disconnected")

	c.handler.OnDisconnected(reason)
	if c.conn.State() != framing.Disconnected {
		return // reconnected from the callback
	}
	if err := c.scheduleReconnect(); err != nil {
		c.log.Error().Err(err).Msg("schedule reconnect")
	}
}

func (c *Client[Out, In]) onReadable(loop.Events) {
	if err := c.conn.OnReadable(c.frames); err != nil {
		c.disconnect(err)
	}
}

func (c *Client[Out, In]) handleUser(payload []byte) error {
	msg, err := c.codec.Decode(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrMessageDecode, err)
	}
	c.metrics.framesReceived.Add(1)
	c.handler.OnMessage(msg)
	return nil
}

func (c *Client[Out, In]) onKeepAlive() {
	if c.conn.State() != framing.Connected {
		return
	}
	if !c.conn.PongReceived() {
		c.disconnect(fmt.Errorf("%w: no pong within %v", protocol.ErrKeepAliveTimeout, c.opts.keepAlive))
		return
	}
	if err := c.conn.Ping(); err != nil {
		c.disconnect(err)
		return
	}
	c.metrics.pingsSent.Add(1)
	if err := c.keepAlive.Start(c.opts.keepAlive, false); err != nil {
		c.disconnect(err)
	}
}

func (c *Client[Out, In]) onReconnect() {
	if !c.running || c.conn.State() != framing.Disconnected {
		return
	}
	if err := c.connect(); err != nil {
		c.log.Error().Err(err).Msg("reconnect")
	}
}
