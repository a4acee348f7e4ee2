package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/filter"
	"github.com/prolic/hanostr/pkg/nostr/kind"
	"github.com/prolic/hanostr/pkg/nostr/kinds"
)

func connectedFakeConn(t *testing.T, uri string) *RelayConnection {
	t.Helper()
	dialer := newFakeDialer()
	conn := NewRelayConnection(uri, dialer)
	ok, err := conn.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(conn.Disconnect)
	return conn
}

func TestSubscribeFailsWhenNotConnected(t *testing.T) {
	dialer := newFakeDialer()
	conn := NewRelayConnection("wss://notyet.example", dialer)
	mgr := NewSubscriptionManager(1)
	_, err := mgr.Subscribe(conn, &filter.T{})
	require.Error(t, err)
}

func TestSubscribeThenHandleFrameDeliversToQueue(t *testing.T) {
	conn := connectedFakeConn(t, "wss://basic.example")
	mgr := NewSubscriptionManager(4)

	subID, err := mgr.Subscribe(conn, &filter.T{})
	require.NoError(t, err)

	mgr.HandleFrame(conn.URI, &Frame{Kind: FrameEvent, SubID: subID, Event: &event.T{}})
	item := <-mgr.Queue()
	require.Equal(t, EventAppeared, item.Kind)
	require.Equal(t, subID, item.SubID)
}

func TestStopSendsCloseAndDropsFurtherFrames(t *testing.T) {
	conn := connectedFakeConn(t, "wss://stop.example")
	mgr := NewSubscriptionManager(4)

	subID, err := mgr.Subscribe(conn, &filter.T{})
	require.NoError(t, err)
	mgr.Stop(conn, subID)

	// FrameEvent is the only frame kind HandleFrame drops for an unknown
	// subscription; Eose/Closed are still forwarded so a late EOSE for a
	// subscription torn down moments earlier doesn't get silently lost.
	mgr.HandleFrame(conn.URI, &Frame{Kind: FrameEvent, SubID: subID, Event: &event.T{}})
	select {
	case <-mgr.Queue():
		t.Fatal("expected the queue to stay empty after Stop tore the subscription down")
	default:
	}
}

// StopMatching must scope its teardown to subscriptions whose filter
// satisfies the predicate, leaving everything else registered -- the
// property the controller's DM-only reconfigure path depends on.
func TestStopMatchingScopesToPredicate(t *testing.T) {
	conn := connectedFakeConn(t, "wss://scope.example")
	mgr := NewSubscriptionManager(8)

	dmSub, err := mgr.Subscribe(conn, &filter.T{Kinds: kinds.T{kind.GiftWrap}})
	require.NoError(t, err)
	otherSub, err := mgr.Subscribe(conn, &filter.T{Kinds: kinds.T{kind.TextNote}})
	require.NoError(t, err)

	mgr.StopMatching(conn, func(f *filter.T) bool { return f.Kinds.Contains(kind.GiftWrap) })

	mgr.HandleFrame(conn.URI, &Frame{Kind: FrameEvent, SubID: dmSub, Event: &event.T{}})
	select {
	case <-mgr.Queue():
		t.Fatal("expected the DM subscription to have been torn down by StopMatching")
	default:
	}

	mgr.HandleFrame(conn.URI, &Frame{Kind: FrameEvent, SubID: otherSub, Event: &event.T{}})
	select {
	case <-mgr.Queue():
	default:
		t.Fatal("expected the non-DM subscription to still be registered after StopMatching")
	}
}

func TestStopAllTearsDownEveryRegisteredSub(t *testing.T) {
	conn := connectedFakeConn(t, "wss://all.example")
	mgr := NewSubscriptionManager(8)

	sub1, err := mgr.Subscribe(conn, &filter.T{})
	require.NoError(t, err)
	sub2, err := mgr.Subscribe(conn, &filter.T{})
	require.NoError(t, err)

	mgr.StopAll(conn)

	for _, sub := range []string{sub1, sub2} {
		mgr.HandleFrame(conn.URI, &Frame{Kind: FrameEvent, SubID: sub, Event: &event.T{}})
	}
	select {
	case <-mgr.Queue():
		t.Fatal("expected no queue items after StopAll tore down every subscription")
	default:
	}
}

// The ingest queue is treated as unbounded: HandleFrame must block
// rather than drop an EventAppeared item when the queue is momentarily
// full, and unblock as soon as a consumer drains it.
func TestHandleFrameEventBlocksWhenQueueFull(t *testing.T) {
	conn := connectedFakeConn(t, "wss://full.example")
	mgr := NewSubscriptionManager(1)

	subID, err := mgr.Subscribe(conn, &filter.T{})
	require.NoError(t, err)

	frame := &Frame{Kind: FrameEvent, SubID: subID, Event: &event.T{}}
	mgr.HandleFrame(conn.URI, frame)

	done := make(chan struct{})
	go func() {
		mgr.HandleFrame(conn.URI, frame)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("HandleFrame must block while the ingest queue is full")
	case <-time.After(30 * time.Millisecond):
	}

	<-mgr.Queue()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleFrame should have unblocked once the queue was drained")
	}
	<-mgr.Queue()
}

func TestHandleFrameRejectsInvalidSubscriptionID(t *testing.T) {
	mgr := NewSubscriptionManager(1)
	mgr.HandleFrame("wss://any.example", &Frame{Kind: FrameEvent, SubID: "", Event: &event.T{}})
	select {
	case <-mgr.Queue():
		t.Fatal("an empty subscription id must be rejected before it reaches the queue")
	default:
	}
}

func TestHandleFrameOKAndNoticeSkipSubscriptionIDValidation(t *testing.T) {
	mgr := NewSubscriptionManager(1)
	mgr.HandleFrame("wss://any.example", &Frame{Kind: FrameOK, OKEventID: "abc", OKAccepted: true})
	mgr.HandleFrame("wss://any.example", &Frame{Kind: FrameNotice, NoticeText: "hi"})
}
