package inbox

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/puzpuzpuz/xsync/v2"

	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/filter"
	"github.com/prolic/hanostr/pkg/nostr/subscriptionid"
)

// SubState is the lifecycle of a single subscription.
type SubState int

const (
	SubOpen SubState = iota
	SubEoseSeen
	SubClosed
)

// SubscriptionInfo tracks what a subscription id on a given relay is
// for, and how much it has delivered.
type SubscriptionInfo struct {
	Relay      string
	Filter     *filter.T
	State      SubState
	EventCount int64
	ByteCount  int64
}

// SubscriptionEventKind tags the variants of what the shared ingest
// queue carries per subscription.
type SubscriptionEventKind int

const (
	EventAppeared SubscriptionEventKind = iota
	Eose
	Closed
)

// QueueItem is one entry of the shared multi-producer/single-consumer
// ingest queue C6 drains.
type QueueItem struct {
	Relay  string
	SubID  string
	Kind   SubscriptionEventKind
	Event  *event.T
	Reason string
}

func subKey(relay, subID string) string { return relay + "|" + subID }

// SubscriptionManager is C4: it allocates subscription ids, tracks their
// state per relay in a concurrent map, and funnels every relay's inbound
// frames into one shared ingest queue.
type SubscriptionManager struct {
	subs  *xsync.MapOf[string, *SubscriptionInfo]
	queue chan QueueItem
}

// NewSubscriptionManager creates a manager with the given ingest queue
// capacity.
func NewSubscriptionManager(queueSize int) *SubscriptionManager {
	return &SubscriptionManager{
		subs:  xsync.NewMapOf[*SubscriptionInfo](),
		queue: make(chan QueueItem, queueSize),
	}
}

// Queue exposes the shared ingest channel.
func (m *SubscriptionManager) Queue() <-chan QueueItem { return m.queue }

// randomSubID generates a fresh subscription id and validates its shape
// through subscriptionid.T before handing it to callers, so a malformed
// id (empty or over 64 chars) never reaches the wire.
func randomSubID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	id, err := subscriptionid.NewSubscriptionID(hex.EncodeToString(b))
	if err != nil {
		// unreachable for a 16-char hex string, but fail loudly rather
		// than send an invalid REQ if this ever changes.
		panic(err)
	}
	return string(id)
}

// Subscribe sends REQ on conn and registers the new subscription.
func (m *SubscriptionManager) Subscribe(conn *RelayConnection, f *filter.T) (subID string, err error) {
	if conn.State() != Connected {
		return "", fmt.Errorf("inbox: relay %s not connected", conn.URI)
	}
	subID = randomSubID()
	m.subs.Store(subKey(conn.URI, subID), &SubscriptionInfo{Relay: conn.URI, Filter: f, State: SubOpen})
	conn.Send(subID, EncodeReq(subID, f), false)
	return subID, nil
}

// Stop sends CLOSE and removes the subscription's registration.
func (m *SubscriptionManager) Stop(conn *RelayConnection, subID string) {
	key := subKey(conn.URI, subID)
	if _, ok := m.subs.Load(key); !ok {
		return
	}
	m.subs.Delete(key)
	conn.Send(subID, EncodeClose(subID), true)
}

// StopAll stops every subscription registered on conn.
func (m *SubscriptionManager) StopAll(conn *RelayConnection) {
	m.StopMatching(conn, func(*filter.T) bool { return true })
}

// StopMatching stops every subscription on conn whose filter satisfies
// predicate — used to scope DM-relay reconfiguration to just the
// GiftWrap subscription without disturbing others on the same socket.
func (m *SubscriptionManager) StopMatching(conn *RelayConnection, predicate func(*filter.T) bool) {
	var toStop []string
	m.subs.Range(func(key string, info *SubscriptionInfo) bool {
		if info.Relay == conn.URI && predicate(info.Filter) {
			toStop = append(toStop, key)
		}
		return true
	})
	for _, key := range toStop {
		if info, ok := m.subs.Load(key); ok {
			_ = info
			m.subs.Delete(key)
			// key is relay|subID
			subID := key[len(conn.URI)+1:]
			conn.Send(subID, EncodeClose(subID), true)
		}
	}
}

// HandleFrame turns one decoded inbound Frame from relayURI into a
// QueueItem, updating subscription bookkeeping along the way. It drops
// frames for subscriptions it doesn't know about (already torn down).
func (m *SubscriptionManager) HandleFrame(relayURI string, f *Frame) {
	if f.Kind != FrameOK && f.Kind != FrameNotice {
		if _, err := subscriptionid.NewSubscriptionID(f.SubID); err != nil {
			log.W.F("%s: dropping frame with invalid subscription id: %v", relayURI, err)
			return
		}
	}
	switch f.Kind {
	case FrameEvent:
		key := subKey(relayURI, f.SubID)
		info, ok := m.subs.Load(key)
		if !ok {
			return
		}
		info.EventCount++
		// The ingest queue is treated as conceptually unbounded: a full
		// queue backpressures this relay's own read goroutine rather
		// than silently dropping an event the store would otherwise
		// have persisted.
		m.queue <- QueueItem{Relay: relayURI, SubID: f.SubID, Kind: EventAppeared, Event: f.Event}
	case FrameEose:
		key := subKey(relayURI, f.SubID)
		if info, ok := m.subs.Load(key); ok {
			info.State = SubEoseSeen
		}
		m.queue <- QueueItem{Relay: relayURI, SubID: f.SubID, Kind: Eose}
	case FrameClosed:
		key := subKey(relayURI, f.SubID)
		if info, ok := m.subs.Load(key); ok {
			info.State = SubClosed
		}
		m.queue <- QueueItem{Relay: relayURI, SubID: f.SubID, Kind: Closed, Reason: f.ClosedReason}
	case FrameOK, FrameNotice:
		// no ingest-queue effect; surfaced only via logs for this client.
		log.D.F("%s: %+v", relayURI, f)
	}
}
