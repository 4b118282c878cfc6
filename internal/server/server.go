// Package server implements the server side of the messi runtime.
//
// A Server listens on one address and serves up to a fixed number of
// clients. Each client gets a slot holding its message buffer and keep-alive
// timer; a connection arriving while every slot is taken is closed at once.
// All methods must be called from the goroutine running the loop.
package server

import (
	"errors"
	"expvar"
	"fmt"

	"github.com/omochice/messi/internal/loop"
	"github.com/omochice/messi/internal/transport/tcp"
	"github.com/omochice/messi/pkg/protocol"
	"github.com/rs/zerolog"
)

// Handler receives the events of a Server. Callbacks may call back into the
// server, including Disconnect and Stop.
type Handler[In any] interface {
	OnClientConnected(id ClientID)
	OnClientDisconnected(id ClientID, reason protocol.DisconnectReason)
	OnMessage(id ClientID, msg In)
}

// NopHandler ignores every event. Embed it to implement a subset of Handler.
type NopHandler[In any] struct{}

func (NopHandler[In]) OnClientConnected(ClientID)                               {}
func (NopHandler[In]) OnClientDisconnected(ClientID, protocol.DisconnectReason) {}
func (NopHandler[In]) OnMessage(ClientID, In)                                   {}

// Server serves clients sending In messages and receiving Out messages.
type Server[Out, In any] struct {
	addr    protocol.Address
	lp      loop.Loop
	codec   protocol.Codec[Out, In]
	handler Handler[In]
	opts    options
	log     zerolog.Logger
	metrics *serverMetrics

	listener tcp.Listener
	slots    *slotTable
	out      []byte

	current    ClientID
	hasCurrent bool
	stopping   bool
}

// New returns a stopped server for uri, which must have the form
// tcp://host:port. Port 0 binds an ephemeral port on Start.
func New[Out, In any](uri string, lp loop.Loop, codec protocol.Codec[Out, In], h Handler[In], opts ...Option) (*Server[Out, In], error) {
	addr, err := protocol.ParseTCPURI(uri)
	if err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if h == nil {
		h = NopHandler[In]{}
	}
	return &Server[Out, In]{
		addr:    addr,
		lp:      lp,
		codec:   codec,
		handler: h,
		opts:    o,
		log:     o.log,
		metrics: newServerMetrics(),
		slots:   newSlotTable(o.capacity, o.bufSize),
		out:     make([]byte, o.bufSize),
	}, nil
}

// Addr returns the listening address, or the configured one before Start.
func (s *Server[Out, In]) Addr() protocol.Address {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return s.addr
}

// Capacity returns the maximum number of clients.
func (s *Server[Out, In]) Capacity() int { return len(s.slots.slots) }

// ClientCount returns the number of connected clients.
func (s *Server[Out, In]) ClientCount() int { return s.slots.count }

// Clients returns the IDs of the connected clients, most recent first.
func (s *Server[Out, In]) Clients() []ClientID {
	ids := make([]ClientID, 0, s.slots.count)
	s.slots.each(func(id ClientID) { ids = append(ids, id) })
	return ids
}

// RemoteAddr returns the peer address of a client, or "" if id is unknown.
func (s *Server[Out, In]) RemoteAddr(id ClientID) string {
	if sl, ok := s.slots.lookup(id); ok {
		return sl.remote
	}
	return ""
}

// Current returns the client whose message is being dispatched. It is only
// valid inside OnMessage.
func (s *Server[Out, In]) Current() (ClientID, bool) { return s.current, s.hasCurrent }

// Metrics returns the activity counters of the server.
func (s *Server[Out, In]) Metrics() *expvar.Map { return s.metrics.emap }

// Start creates the listening socket and registers it with the loop. On
// failure the server is left stopped and Start may be retried. Start on a
// started server does nothing.
func (s *Server[Out, In]) Start() error {
	if s.listener != nil {
		return nil
	}
	l, err := s.opts.listen(s.addr)
	if err != nil {
		return err
	}
	if err := s.lp.Register(l.Fd(), s.onListenerReadable); err != nil {
		l.Close()
		return fmt.Errorf("%w: register listener: %v", protocol.ErrSocketSetup, err)
	}
	s.listener = l
	s.log = s.opts.log.With().Str("listen", l.Addr().String()).Logger()
	s.log.Info().Int("capacity", s.Capacity()).Msg("server started")
	return nil
}

// Stop closes the listener and every client connection and returns all
// slots to the free list. OnClientDisconnected is not invoked. Stop is
// idempotent.
func (s *Server[Out, In]) Stop() {
	if s.stopping {
		return
	}
	s.stopping = true
	defer func() { s.stopping = false }()

	if s.listener != nil {
		if err := s.lp.Deregister(s.listener.Fd()); err != nil {
			s.log.Warn().Err(err).Msg("deregister listener")
		}
		s.listener.Close()
		s.listener = nil
	}
	s.slots.each(func(id ClientID) { s.destroy(id, nil) })
	s.hasCurrent = false
	s.log.Info().Msg("server stopped")
}

func (s *Server[Out, In]) onListenerReadable(loop.Events) {
	if s.listener == nil {
		return
	}
	sock, err := s.listener.Accept()
	if errors.Is(err, protocol.ErrWouldBlock) {
		return
	} else if err != nil {
		s.log.Error().Err(err).Msg("accept failed")
		return
	}

	id, ok := s.slots.alloc()
	if !ok {
		s.metrics.rejected.Add(1)
		s.log.Warn().Str("remote", sock.RemoteAddr()).Err(protocol.ErrSlotsExhausted).Msg("connection rejected")
		sock.Close()
		return
	}
	if err := s.initClient(id, sock); err != nil {
		s.slots.release(id)
		sock.Close()
		s.log.Error().Err(err).Str("remote", sock.RemoteAddr()).Msg("client setup failed")
		return
	}

	s.metrics.accepted.Add(1)
	s.metrics.clients.Set(int64(s.slots.count))
	s.log.Info().Stringer("client", id).Str("remote", sock.RemoteAddr()).Msg("client connected")
	s.handler.OnClientConnected(id)
}

// initClient prepares the slot of id for sock. On failure everything it
// set up is undone; the caller releases the slot and closes the socket.
func (s *Server[Out, In]) initClient(id ClientID, sock tcp.Conn) (err error) {
	sl, _ := s.slots.lookup(id)

	timer, err := s.lp.NewTimer(func() { s.onKeepAliveExpired(id) })
	if err != nil {
		return fmt.Errorf("keep-alive timer: %w", err)
	}
	defer func() {
		if err != nil {
			timer.Close()
		}
	}()
	if err := timer.Start(s.opts.keepAlive, false); err != nil {
		return fmt.Errorf("keep-alive timer: %w", err)
	}
	if err := s.lp.Register(sock.Fd(), func(loop.Events) { s.onClientReadable(id) }); err != nil {
		return fmt.Errorf("%w: register client: %v", protocol.ErrSocketSetup, err)
	}

	sl.conn.Attach(sock)
	sl.timer = timer
	sl.frames = clientFrames[Out, In]{s: s, id: id}
	sl.remote = sock.RemoteAddr()
	return nil
}

// destroy tears down a client. A nil err means the server is stopping and
// no callback is made.
func (s *Server[Out, In]) destroy(id ClientID, err error) {
	sl, ok := s.slots.lookup(id)
	if !ok {
		return
	}
	if sock := sl.conn.Detach(); sock != nil {
		if derr := s.lp.Deregister(sock.Fd()); derr != nil {
			s.log.Warn().Err(derr).Stringer("client", id).Msg("deregister client")
		}
		sock.Close()
	}
	if sl.timer != nil {
		sl.timer.Close()
	}
	s.slots.release(id)
	s.metrics.disconnected.Add(1)
	s.metrics.clients.Set(int64(s.slots.count))

	if err == nil {
		return
	}
	reason := protocol.ReasonOf(err)
	s.log.Info().Stringer("client", id).Stringer("reason", reason).Err(err).Msg("client disconnected")
	if !s.stopping {
		s.handler.OnClientDisconnected(id, reason)
	}
}

func (s *Server[Out, In]) onClientReadable(id ClientID) {
	sl, ok := s.slots.lookup(id)
	if !ok {
		return
	}
	if err := sl.conn.OnReadable(sl.frames); err != nil {
		s.destroy(id, err)
	}
}

func (s *Server[Out, In]) onKeepAliveExpired(id ClientID) {
	s.destroy(id, fmt.Errorf("%w: no ping within %v", protocol.ErrKeepAliveTimeout, s.opts.keepAlive))
}

func (s *Server[Out, In]) handleUser(id ClientID, payload []byte) error {
	msg, err := s.codec.Decode(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrMessageDecode, err)
	}
	s.metrics.framesReceived.Add(1)

	s.current, s.hasCurrent = id, true
	defer func() { s.current, s.hasCurrent = ClientID{}, false }()
	s.handler.OnMessage(id, msg)
	return nil
}

func (s *Server[Out, In]) restartKeepAlive(id ClientID) {
	sl, ok := s.slots.lookup(id)
	if !ok || sl.timer == nil {
		return
	}
	if err := sl.timer.Start(s.opts.keepAlive, false); err != nil {
		s.destroy(id, err)
	}
}

func (s *Server[Out, In]) encode(msg Out) ([]byte, error) {
	b, err := s.codec.Encode(s.out[:protocol.HeaderSize], msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrMessageEncode, err)
	}
	if len(b) > len(s.out) {
		return nil, fmt.Errorf("%w: %d bytes exceeds buffer of %d", protocol.ErrMessageEncode, len(b), len(s.out))
	}
	return protocol.PutHeader(b, protocol.MessageTypeServerToClientUser, uint32(len(b)-protocol.HeaderSize)), nil
}

// write sends frame to one client. A client whose write fails is left for
// the caller to destroy.
func (s *Server[Out, In]) write(id ClientID, frame []byte) error {
	sl, ok := s.slots.lookup(id)
	if !ok {
		return protocol.ErrUnknownClient
	}
	if err := sl.conn.Write(frame); err != nil {
		s.metrics.writeFailed.Add(1)
		return err
	}
	s.metrics.framesSent.Add(1)
	return nil
}

// Send encodes msg and writes it to client id. It reports
// protocol.ErrUnknownClient for a stale id and protocol.ErrMessageEncode if
// msg does not fit the output buffer. If the write fails the client is
// destroyed and nil is returned.
func (s *Server[Out, In]) Send(id ClientID, msg Out) error {
	if _, ok := s.slots.lookup(id); !ok {
		return protocol.ErrUnknownClient
	}
	frame, err := s.encode(msg)
	if err != nil {
		return err
	}
	if err := s.write(id, frame); err != nil {
		s.destroy(id, err)
	}
	return nil
}

// Reply sends msg to the client whose message is being dispatched. Outside
// OnMessage it does nothing.
func (s *Server[Out, In]) Reply(msg Out) error {
	if !s.hasCurrent {
		return nil
	}
	return s.Send(s.current, msg)
}

// Broadcast encodes msg once and writes it to every connected client.
// Clients whose write fails are destroyed after the others were served.
func (s *Server[Out, In]) Broadcast(msg Out) error {
	frame, err := s.encode(msg)
	if err != nil {
		return err
	}
	s.metrics.broadcasts.Add(1)

	type failure struct {
		id  ClientID
		err error
	}
	var failed []failure
	s.slots.each(func(id ClientID) {
		if err := s.write(id, frame); err != nil {
			failed = append(failed, failure{id, err})
		}
	})
	for _, f := range failed {
		s.destroy(f.id, f.err)
	}
	return nil
}

// Disconnect destroys client id. OnClientDisconnected fires with
// protocol.ReasonRequested.
func (s *Server[Out, In]) Disconnect(id ClientID) error {
	if _, ok := s.slots.lookup(id); !ok {
		return protocol.ErrUnknownClient
	}
	s.destroy(id, protocol.ErrDisconnectRequested)
	return nil
}

// DisconnectCurrent destroys the client whose message is being
// dispatched. Outside OnMessage it does nothing.
func (s *Server[Out, In]) DisconnectCurrent() error {
	if !s.hasCurrent {
		return nil
	}
	return s.Disconnect(s.current)
}

// clientFrames routes the frames of one client back to the server.
type clientFrames[Out, In any] struct {
	s  *Server[Out, In]
	id ClientID
}

func (f clientFrames[Out, In]) HandleUser(payload []byte) error { return f.s.handleUser(f.id, payload) }

func (f clientFrames[Out, In]) HandlePing() { f.s.restartKeepAlive(f.id) }
