package inbox

import (
	"errors"
	"sync"

	nctx "github.com/prolic/hanostr/pkg/nostr/context"
)

// fakeConn is an in-memory Conn used to drive RelayConnection's state
// machine deterministically in tests, without a real socket.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	inbox   chan []byte
	closeCh chan struct{}
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:   make(chan []byte, 64),
		closeCh: make(chan struct{}),
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("fakeConn: write on closed connection")
	}
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) ReadMessage(ctx nctx.T) ([]byte, error) {
	select {
	case m, ok := <-c.inbox:
		if !ok {
			return nil, errors.New("fakeConn: closed")
		}
		return m, nil
	case <-c.closeCh:
		return nil, errors.New("fakeConn: closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

// deliver injects a raw frame as if it had arrived from the relay.
func (c *fakeConn) deliver(raw []byte) {
	select {
	case c.inbox <- raw:
	case <-c.closeCh:
	}
}

func (c *fakeConn) writtenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

// fakeDialer hands out fakeConns per URI and can be told to fail dials
// for a URI, so tests can drive RelayConnection's reconnect/backoff path.
type fakeDialer struct {
	mu        sync.Mutex
	conns     map[string]*fakeConn
	fail      map[string]bool
	dialCount map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		conns:     map[string]*fakeConn{},
		fail:      map[string]bool{},
		dialCount: map[string]int{},
	}
}

func (d *fakeDialer) Dial(ctx nctx.T, uri string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialCount[uri]++
	if d.fail[uri] {
		return nil, errors.New("fakeDialer: dial failed")
	}
	c := newFakeConn()
	d.conns[uri] = c
	return c, nil
}

func (d *fakeDialer) setFail(uri string, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[uri] = fail
}

func (d *fakeDialer) connFor(uri string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[uri]
}

func (d *fakeDialer) dialsFor(uri string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCount[uri]
}
