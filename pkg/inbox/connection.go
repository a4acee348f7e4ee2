package inbox

import (
	"context"
	"math/rand"
	"sync"
	"time"

	log2 "github.com/prolic/hanostr/pkg/log"
)

var connLog = log2.GetLogger()

// ConnState enumerates the lifecycle of a single relay connection.
type ConnState int

const (
	Idle ConnState = iota
	Connecting
	Connected
	Disconnecting
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// These are vars rather than consts so tests can shrink them to keep
// backoff/ping-timeout coverage fast; production callers never touch them.
var (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 60 * time.Second
	missedPingMax  = 3
	pingInterval   = 20 * time.Second
)

// RelayConnection is C3: the per-relay connection lifecycle, a state
// machine driven by its own pair of I/O goroutines, with exponential
// back-off-with-jitter reconnection and replay of whatever subscriptions
// were open at the moment of disconnect.
type RelayConnection struct {
	URI    string
	dialer Dialer

	mu          sync.Mutex
	state       ConnState
	conn        Conn
	pendingSubs map[string][]byte
	missedPongs int

	outbound  chan []byte
	frames    chan *Frame
	stateCh   chan ConnState
	ctx       context.Context
	cancel    context.CancelFunc
	stoppedCh chan struct{}
}

// NewRelayConnection creates a connection in the Idle state. Call
// Connect to start its I/O goroutines.
func NewRelayConnection(uri string, dialer Dialer) *RelayConnection {
	return &RelayConnection{
		URI:         uri,
		dialer:      dialer,
		state:       Idle,
		pendingSubs: map[string][]byte{},
		outbound:    make(chan []byte, 64),
		frames:      make(chan *Frame, 256),
		stateCh:     make(chan ConnState, 8),
	}
}

func (r *RelayConnection) setState(s ConnState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	select {
	case r.stateCh <- s:
	default:
	}
}

// State returns the connection's current lifecycle state.
func (r *RelayConnection) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// StateChanges exposes a channel of state transitions, for diagnostics
// and tests.
func (r *RelayConnection) StateChanges() <-chan ConnState { return r.stateCh }

// Frames exposes the channel of decoded inbound frames.
func (r *RelayConnection) Frames() <-chan *Frame { return r.frames }

// Connect is idempotent: it starts the reconnect loop if not already
// running and blocks until the first connect attempt settles (success
// or failure), honoring ctx's deadline.
func (r *RelayConnection) Connect(ctx context.Context) (connected bool, err error) {
	r.mu.Lock()
	if r.state != Idle {
		r.mu.Unlock()
		return r.State() == Connected, nil
	}
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	r.ctx = runCtx
	r.cancel = cancel
	r.stoppedCh = make(chan struct{})

	firstAttempt := make(chan bool, 1)
	go r.run(firstAttempt)

	select {
	case ok := <-firstAttempt:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Disconnect tears down the connection and stops reconnect attempts.
func (r *RelayConnection) Disconnect() {
	r.mu.Lock()
	if r.state == Idle {
		r.mu.Unlock()
		return
	}
	r.state = Disconnecting
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if r.cancel != nil {
		r.cancel()
	}
	<-r.stoppedCh
	r.setState(Idle)
}

// Send queues an outbound frame. It registers REQ payloads for replay on
// reconnect when subID is non-empty; CLOSE removes the registration.
func (r *RelayConnection) Send(subID string, payload []byte, isClose bool) {
	r.mu.Lock()
	if subID != "" {
		if isClose {
			delete(r.pendingSubs, subID)
		} else {
			r.pendingSubs[subID] = payload
		}
	}
	r.mu.Unlock()
	select {
	case r.outbound <- payload:
	case <-r.ctx.Done():
	}
}

func (r *RelayConnection) run(firstAttempt chan bool) {
	defer close(r.stoppedCh)
	backoff := initialBackoff
	reported := false
	report := func(ok bool) {
		if !reported {
			reported = true
			firstAttempt <- ok
		}
	}
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}
		r.setState(Connecting)
		dialCtx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
		conn, err := r.dialer.Dial(dialCtx, r.URI)
		cancel()
		if err != nil {
			connLog.W.F("%s: connect failed: %v", r.URI, err)
			r.setState(Failed)
			report(false)
			if !r.sleepBackoff(backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff
		r.mu.Lock()
		r.conn = conn
		r.missedPongs = 0
		replay := make([][]byte, 0, len(r.pendingSubs))
		for _, payload := range r.pendingSubs {
			replay = append(replay, payload)
		}
		r.mu.Unlock()
		r.setState(Connected)
		report(true)
		for _, payload := range replay {
			select {
			case r.outbound <- payload:
			default:
			}
		}
		r.ioLoop(conn)
		select {
		case <-r.ctx.Done():
			return
		default:
		}
		r.setState(Failed)
		if !r.sleepBackoff(backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (r *RelayConnection) sleepBackoff(d time.Duration) bool {
	jitter := time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (r *RelayConnection) ioLoop(conn Conn) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			raw, err := conn.ReadMessage(r.ctx)
			if err != nil {
				return
			}
			frame, err := ParseFrame(raw)
			if err != nil {
				connLog.D.F("%s: %v", r.URI, err)
				continue
			}
			select {
			case r.frames <- frame:
				r.mu.Lock()
				r.missedPongs = 0
				r.mu.Unlock()
			case <-r.ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.ctx.Done():
			_ = conn.Close()
			return
		case payload := <-r.outbound:
			if err := conn.WriteMessage(payload); err != nil {
				connLog.W.F("%s: write failed: %v", r.URI, err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			r.mu.Lock()
			r.missedPongs++
			missed := r.missedPongs
			r.mu.Unlock()
			if missed > missedPingMax {
				connLog.W.F("%s: idle, disconnecting", r.URI)
				_ = conn.Close()
				return
			}
		}
	}
}
