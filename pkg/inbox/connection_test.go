package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setTestBackoff(t *testing.T, initial, max time.Duration) func() {
	t.Helper()
	oldInitial, oldMax := initialBackoff, maxBackoff
	initialBackoff, maxBackoff = initial, max
	return func() { initialBackoff, maxBackoff = oldInitial, oldMax }
}

func setTestPing(t *testing.T, interval time.Duration, maxMissed int) func() {
	t.Helper()
	oldInterval, oldMax := pingInterval, missedPingMax
	pingInterval, missedPingMax = interval, maxMissed
	return func() { pingInterval, missedPingMax = oldInterval, oldMax }
}

func TestConnectSucceedsAndTransitionsToConnected(t *testing.T) {
	dialer := newFakeDialer()
	rc := NewRelayConnection("wss://relay.example", dialer)
	ok, err := rc.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Connected, rc.State())
	rc.Disconnect()
}

// A failing first dial makes Connect return false for that attempt;
// once the dialer starts succeeding, the run loop's backoff retry must
// bring the connection up on its own.
func TestConnectRetriesWithBackoffThenSucceeds(t *testing.T) {
	defer setTestBackoff(t, time.Millisecond, 5*time.Millisecond)()

	dialer := newFakeDialer()
	dialer.setFail("wss://retry.example", true)
	rc := NewRelayConnection("wss://retry.example", dialer)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := rc.Connect(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	dialer.setFail("wss://retry.example", false)
	require.Eventually(t, func() bool { return rc.State() == Connected }, time.Second, time.Millisecond)
	require.GreaterOrEqual(t, dialer.dialsFor("wss://retry.example"), 2)
	rc.Disconnect()
}

// With no traffic at all, missedPongs must climb past missedPingMax and
// force a disconnect -- the intended "3 missed pings" idle behavior.
func TestIdleConnectionDisconnectsAfterMissedPings(t *testing.T) {
	defer setTestPing(t, 5*time.Millisecond, 2)()

	dialer := newFakeDialer()
	rc := NewRelayConnection("wss://idle.example", dialer)
	ok, err := rc.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	var sawFailed bool
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case s := <-rc.StateChanges():
			if s == Failed {
				sawFailed = true
				break loop
			}
		case <-deadline:
			break loop
		}
	}
	require.True(t, sawFailed, "expected the connection to disconnect once idle past missedPingMax ticks")
	rc.Disconnect()
}

// Frames arriving faster than the ping interval must keep resetting
// missedPongs, so a genuinely active relay is never disconnected as if
// it were idle.
func TestActiveTrafficPreventsIdleDisconnect(t *testing.T) {
	defer setTestPing(t, 5*time.Millisecond, 2)()

	dialer := newFakeDialer()
	rc := NewRelayConnection("wss://active.example", dialer)
	ok, err := rc.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	conn := dialer.connFor("wss://active.example")
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.deliver([]byte(`["NOTICE","keepalive"]`))
			case <-stop:
				return
			}
		}
	}()

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, Connected, rc.State())
	rc.Disconnect()
}

// A REQ sent while connected is registered as a pending sub; once the
// underlying connection drops, the reconnect loop must replay it on the
// fresh connection without the caller resending anything.
func TestSendRegistersPendingSubAndReplaysOnReconnect(t *testing.T) {
	defer setTestBackoff(t, time.Millisecond, 5*time.Millisecond)()

	dialer := newFakeDialer()
	rc := NewRelayConnection("wss://replay.example", dialer)
	ok, err := rc.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	reqPayload := []byte(`["REQ","sub1",{}]`)
	rc.Send("sub1", reqPayload, false)

	firstConn := dialer.connFor("wss://replay.example")
	require.Eventually(t, func() bool { return firstConn.writtenCount() >= 1 }, time.Second, time.Millisecond)

	require.NoError(t, firstConn.Close())

	require.Eventually(t, func() bool { return rc.State() == Connected }, time.Second, time.Millisecond)
	secondConn := dialer.connFor("wss://replay.example")
	require.NotSame(t, firstConn, secondConn)
	require.Eventually(t, func() bool { return secondConn.writtenCount() >= 1 }, time.Second, time.Millisecond)

	rc.Disconnect()
}

// CLOSE removes a pending sub's registration so it is not replayed after
// a reconnect that happens after the caller has already torn it down.
func TestSendCloseRemovesPendingSubBeforeReconnect(t *testing.T) {
	defer setTestBackoff(t, time.Millisecond, 5*time.Millisecond)()

	dialer := newFakeDialer()
	rc := NewRelayConnection("wss://closed.example", dialer)
	ok, err := rc.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	rc.Send("sub1", []byte(`["REQ","sub1",{}]`), false)
	rc.Send("sub1", []byte(`["CLOSE","sub1"]`), true)

	rc.mu.Lock()
	pending := len(rc.pendingSubs)
	rc.mu.Unlock()
	require.Zero(t, pending)
	rc.Disconnect()
}
