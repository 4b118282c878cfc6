package ws

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/messi/pkg/protocol"
)

// Client is the browser side of a bridge session, used by tools and tests.
// Writes may be issued concurrently with ReadFrame.
type Client struct {
	conn net.Conn
	r    io.Reader
	out  *peerWriter
}

// Dial opens a WebSocket session to the bridge at url, e.g. "ws://host:port/".
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return &Client{conn: conn, r: unbuffer(br, conn), out: &peerWriter{conn: conn}}, nil
}

// unbuffer returns a reader for conn that first yields the bytes br read past
// the handshake response, and hands br back to the gobwas pool.
func unbuffer(br *bufio.Reader, conn io.Reader) io.Reader {
	if br == nil {
		return conn
	}
	n := br.Buffered()
	if n == 0 {
		ws.PutReader(br)
		return conn
	}
	head := make([]byte, n)
	io.ReadFull(br, head) // buffered, cannot fail
	ws.PutReader(br)
	return io.MultiReader(bytes.NewReader(head), conn)
}

// WriteFrame sends one frame as a single binary message. WriteFrame does not
// check the frame, so tests can send malformed ones.
func (c *Client) WriteFrame(frame []byte) error {
	// Masking is done in place.
	p := append([]byte(nil), frame...)
	return c.out.send(func(w io.Writer) error {
		return wsutil.WriteClientBinary(w, p)
	})
}

// WriteText sends a text message.
func (c *Client) WriteText(text string) error {
	return c.out.send(func(w io.Writer) error {
		return wsutil.WriteClientText(w, []byte(text))
	})
}

// Send frames payload with message type mt and sends it.
func (c *Client) Send(mt protocol.MessageType, payload []byte) error {
	return c.WriteFrame(protocol.AppendFrame(nil, mt, payload))
}

// ReadFrame returns the next binary message from the bridge. A close from the
// bridge is reported as a wsutil.ClosedError.
func (c *Client) ReadFrame() ([]byte, error) {
	control := func(hdr ws.Header, r io.Reader) error {
		return c.out.send(func(w io.Writer) error {
			return wsutil.ControlFrameHandler(w, ws.StateClientSide)(hdr, r)
		})
	}
	rd := &wsutil.Reader{
		Source:         c.r,
		State:          ws.StateClientSide,
		OnIntermediate: control,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode != ws.OpBinary {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(rd)
	}
}

// Close sends a close message and closes the connection.
func (c *Client) Close() error {
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	_ = c.out.send(func(w io.Writer) error {
		return wsutil.WriteClientMessage(w, ws.OpClose, body)
	})
	return c.conn.Close()
}

// RemoteAddr returns the address of the bridge.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
