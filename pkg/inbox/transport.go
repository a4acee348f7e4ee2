package inbox

import (
	"bytes"
	"fmt"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	nctx "github.com/prolic/hanostr/pkg/nostr/context"
)

// Conn is the minimal framed-message contract C3 needs from a socket:
// whole-message write/read, independent of the underlying websocket
// library's frame/control-handling details.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage(ctx nctx.T) ([]byte, error)
	Close() error
}

// Dialer opens a Conn to a relay URI. Production code uses wsDialer;
// tests substitute an in-memory fake.
type Dialer interface {
	Dial(ctx nctx.T, uri string) (Conn, error)
}

// wsDialer is the real Dialer, built on gobwas/ws the same way the
// teacher's own relay client connects: a raw net.Conn wrapped in a
// wsutil.Reader/Writer pair, with control frames (ping/pong/close)
// handled transparently.
type wsDialer struct{}

// NewWSDialer returns the production websocket Dialer.
func NewWSDialer() Dialer { return wsDialer{} }

type wsConn struct {
	conn           net.Conn
	controlHandler wsutil.FrameHandlerFunc
	reader         *wsutil.Reader
	writer         *wsutil.Writer
}

func (wsDialer) Dial(ctx nctx.T, uri string) (Conn, error) {
	dialer := ws.Dialer{Header: ws.HandshakeHeaderHTTP(http.Header{})}
	conn, _, _, err := dialer.Dial(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("inbox: dial %s: %w", uri, err)
	}
	c := &wsConn{conn: conn}
	c.controlHandler = wsutil.ControlFrameHandler(conn, ws.StateClientSide)
	c.reader = &wsutil.Reader{
		Source:         conn,
		State:          ws.StateClientSide,
		OnIntermediate: c.controlHandler,
		CheckUTF8:      false,
	}
	c.writer = wsutil.NewWriter(conn, ws.StateClientSide, ws.OpText)
	return c, nil
}

func (c *wsConn) WriteMessage(data []byte) (err error) {
	if _, err = c.writer.Write(data); err != nil {
		return fmt.Errorf("inbox: write message: %w", err)
	}
	return c.writer.Flush()
}

func (c *wsConn) ReadMessage(ctx nctx.T) (msg []byte, err error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		var h ws.Header
		if h, err = c.reader.NextFrame(); err != nil {
			_ = c.conn.Close()
			return nil, fmt.Errorf("inbox: advance frame: %w", err)
		}
		if h.OpCode.IsControl() {
			if err = c.controlHandler(h, c.reader); err != nil {
				return nil, fmt.Errorf("inbox: control frame: %w", err)
			}
			continue
		}
		if h.OpCode == ws.OpBinary || h.OpCode == ws.OpText {
			break
		}
		if err = c.reader.Discard(); err != nil {
			return nil, fmt.Errorf("inbox: discard frame: %w", err)
		}
	}
	buf := new(bytes.Buffer)
	if _, err = buf.ReadFrom(c.reader); err != nil {
		return nil, fmt.Errorf("inbox: read message: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *wsConn) Close() error { return c.conn.Close() }
