// Package ws bridges WebSocket peers to a framed TCP server. Every binary
// WebSocket message carries exactly one frame; frames from the server are
// sent back one per message.
package ws

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/messi/pkg/protocol"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNotBinary is reported when a peer sends a text message.
var ErrNotBinary = errors.New("websocket message is not binary")

// Bridge relays WebSocket sessions to a TCP server.
type Bridge struct {
	upstream protocol.Address
	opts     options
	metrics  *bridgeMetrics
	log      zerolog.Logger
}

// NewBridge returns a bridge relaying to the server at uri.
func NewBridge(uri string, opts ...Option) (*Bridge, error) {
	addr, err := protocol.ParseTCPURI(uri)
	if err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Bridge{
		upstream: addr,
		opts:     o,
		metrics:  newBridgeMetrics(),
		log:      o.log.With().Str("upstream", addr.String()).Logger(),
	}, nil
}

// Upstream returns the address of the TCP server.
func (b *Bridge) Upstream() protocol.Address { return b.upstream }

// Metrics returns the session and frame counters.
func (b *Bridge) Metrics() *expvar.Map { return b.metrics.emap }

// Serve accepts connections from lst and relays each in its own goroutine
// until ctx ends or lst is closed. Active sessions are closed when ctx ends,
// and Serve waits for them to finish before returning.
func (b *Bridge) Serve(ctx context.Context, lst net.Listener) error {
	stop := context.AfterFunc(ctx, func() { lst.Close() })
	defer stop()

	g := taskgroup.New(nil)
	for {
		conn, err := lst.Accept()
		if err != nil {
			g.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		g.Go(func() error {
			if err := b.Handle(ctx, conn); err != nil {
				b.log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("session ended")
			}
			return nil
		})
	}
}

// Handle upgrades conn to WebSocket, dials the server and relays frames until
// either side fails or ctx ends. The connection is always closed on return.
// A session closed cleanly by either peer returns nil.
func (b *Bridge) Handle(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log := b.log.With().Str("remote", conn.RemoteAddr().String()).Logger()

	conn.SetDeadline(time.Now().Add(b.opts.handshake))
	if _, err := ws.Upgrade(conn); err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	conn.SetDeadline(time.Time{})

	b.metrics.sessions.Add(1)
	b.metrics.sessionsActive.Add(1)
	defer b.metrics.sessionsActive.Add(-1)

	out := &peerWriter{conn: conn}
	hostport := net.JoinHostPort(b.upstream.Host, strconv.Itoa(b.upstream.Port))
	up, err := b.opts.dial(ctx, "tcp", hostport)
	if err != nil {
		b.metrics.upstreamFailed.Add(1)
		log.Warn().Err(err).Msg("upstream unavailable")
		out.close(ws.StatusInternalServerError, "upstream unavailable")
		return fmt.Errorf("dial upstream: %w", err)
	}
	defer up.Close()

	log.Info().Msg("session started")
	err = b.relay(ctx, conn, up, out)
	log.Info().Err(err).Msg("session closed")
	return err
}

func (b *Bridge) relay(ctx context.Context, conn, up net.Conn, out *peerWriter) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		conn.Close()
		up.Close()
	})
	defer stop()

	g.Go(func() error { return b.pumpUp(conn, up, out) })
	g.Go(func() error { return b.pumpDown(up, out) })

	err := g.Wait()
	if isClosed(err) {
		return nil
	}
	return err
}

// pumpUp relays browser messages to the server. It never returns nil so the
// group tears down the other direction as well.
func (b *Bridge) pumpUp(conn, up net.Conn, out *peerWriter) error {
	maxPayload := b.opts.bufSize - protocol.HeaderSize
	control := func(hdr ws.Header, r io.Reader) error {
		return out.send(func(w io.Writer) error {
			return wsutil.ControlFrameHandler(w, ws.StateServerSide)(hdr, r)
		})
	}
	rd := &wsutil.Reader{
		Source:         conn,
		State:          ws.StateServerSide,
		OnIntermediate: control,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return err
			}
			continue
		}
		if hdr.OpCode != ws.OpBinary {
			b.metrics.framesRejected.Add(1)
			if err := rd.Discard(); err != nil {
				return err
			}
			out.close(ws.StatusUnsupportedData, "binary frames only")
			return ErrNotBinary
		}

		msg, err := io.ReadAll(io.LimitReader(rd, int64(b.opts.bufSize)+1))
		if err != nil {
			return err
		}
		if _, err := protocol.CheckFrame(msg, maxPayload); err != nil {
			b.metrics.framesRejected.Add(1)
			out.close(ws.StatusPolicyViolation, "malformed frame")
			return err
		}
		if _, err := up.Write(msg); err != nil {
			return fmt.Errorf("write upstream: %w", err)
		}
		b.metrics.framesUp.Add(1)
	}
}

// pumpDown relays server frames to the browser.
func (b *Bridge) pumpDown(up net.Conn, out *peerWriter) error {
	maxPayload := b.opts.bufSize - protocol.HeaderSize
	for {
		_, frame, err := protocol.ReadFrame(up, maxPayload)
		if err != nil {
			if errors.Is(err, protocol.ErrConnectionClosed) {
				out.close(ws.StatusNormalClosure, "")
			} else if errors.Is(err, protocol.ErrMessageTooBig) {
				out.close(ws.StatusMessageTooBig, "frame too big")
			}
			return err
		}
		if err := out.send(func(w io.Writer) error {
			return wsutil.WriteServerBinary(w, frame)
		}); err != nil {
			return fmt.Errorf("write peer: %w", err)
		}
		b.metrics.framesDown.Add(1)
	}
}

// peerWriter serializes whole WebSocket frames onto the connection shared by
// both pumps.
type peerWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

// send runs fn against a buffer and writes the result in one call. Output
// produced before fn failed is still written; a close reply is the common
// case.
func (p *peerWriter) send(fn func(io.Writer) error) error {
	var buf bytes.Buffer
	ferr := fn(&buf)
	if buf.Len() > 0 {
		p.mu.Lock()
		_, err := p.conn.Write(buf.Bytes())
		p.mu.Unlock()
		if err != nil && ferr == nil {
			ferr = err
		}
	}
	return ferr
}

func (p *peerWriter) close(code ws.StatusCode, reason string) {
	p.send(func(w io.Writer) error {
		return wsutil.WriteServerMessage(w, ws.OpClose, ws.NewCloseFrameBody(code, reason))
	})
}

// isClosed reports whether err only records an orderly end of the session.
func isClosed(err error) bool {
	var ce wsutil.ClosedError
	switch {
	case err == nil:
		return true
	case errors.As(err, &ce):
		return ce.Code == ws.StatusNormalClosure || ce.Code == ws.StatusGoingAway || ce.Code == ws.StatusNoStatusRcvd
	case errors.Is(err, protocol.ErrConnectionClosed), errors.Is(err, io.EOF):
		return true
	}
	return false
}
