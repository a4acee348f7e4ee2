package inbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/filter"
	"github.com/prolic/hanostr/pkg/nostr/kind"
)

const maxOutboxRelaysPerFollow = 3
const coldStartDeadline = 10 * time.Second

// subCategory distinguishes the shape of a desired subscription so the
// reconciler can fingerprint and, for DM relays, scope its diff.
type subCategory int

const (
	catDM subCategory = iota
	catMentions
	catProfiles
	catPosts
)

type desiredSub struct {
	category subCategory
	filter   *filter.T
}

// topology maps relay URI to the set of subscriptions wanted on it.
type topology map[string][]desiredSub

// liveRelay is what the controller tracks about a relay it has actually
// realized: the connection plus a fingerprint of what is subscribed,
// used to decide whether reconcile needs to touch it.
type liveRelay struct {
	conn             *RelayConnection
	fingerprint      string
	nonDMFingerprint string
}

// Controller is C6, the InboxModel: it owns the relay pool and the
// subscription manager, derives the desired topology from the store,
// reconciles it against the live one, and runs the ingest loop. No
// package-level state is used anywhere in its construction — every
// collaborator is passed in explicitly.
type Controller struct {
	store  *Store
	keys   KeyStore
	dialer Dialer
	crypto Crypto
	subs   *SubscriptionManager

	defaultRelays   []string
	defaultDMRelays []string

	mu    sync.Mutex
	live  map[string]*liveRelay
	dirty chan struct{}

	relaysCache *ttlCache[[]RelayMeta]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController wires together the collaborators; nothing runs until
// Start is called.
func NewController(store *Store, keys KeyStore, dialer Dialer, defaultRelays, defaultDMRelays []string) *Controller {
	return &Controller{
		store:           store,
		keys:            keys,
		dialer:          dialer,
		subs:            NewSubscriptionManager(1024),
		defaultRelays:   defaultRelays,
		defaultDMRelays: defaultDMRelays,
		live:            map[string]*liveRelay{},
		dirty:           make(chan struct{}, 1),
		relaysCache:     newTTLCache[[]RelayMeta](),
	}
}

// Start bootstraps (cold-start if needed), realizes the initial
// topology, and launches the ingest loop.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(context.Background())
	viewer := c.keys.PubKey()

	relays, err := c.store.GetGeneralRelays(viewer)
	if err != nil {
		return fmt.Errorf("inbox: reading relay list: %w", err)
	}
	if len(relays) == 0 {
		if err = c.coldStart(viewer); err != nil {
			log.W.F("cold start: %v", err)
		}
		relays, _ = c.store.GetGeneralRelays(viewer)
		if len(relays) == 0 {
			if err = c.store.Apply([]StoreOp{OpPutRelayList{
				Author: viewer, CreatedAt: time.Now().Unix(), DM: false,
				Relays: defaultRelayMetas(c.defaultRelays, Both),
			}}); err != nil {
				return err
			}
		}
		dmRelays, _ := c.store.GetDMRelays(viewer)
		if len(dmRelays) == 0 {
			if err = c.store.Apply([]StoreOp{OpPutRelayList{
				Author: viewer, CreatedAt: time.Now().Unix(), DM: true,
				Relays: defaultRelayMetas(c.defaultDMRelays, DMRelay),
			}}); err != nil {
				return err
			}
		}
	}

	c.wg.Add(1)
	go c.ingestLoop()

	if err = c.reconcile(); err != nil {
		log.W.F("initial reconcile: %v", err)
	}
	return nil
}

func defaultRelayMetas(uris []string, role Role) (relays []RelayMeta) {
	for _, u := range uris {
		relays = append(relays, RelayMeta{URI: u, Role: role})
	}
	return
}

// coldStart connects to the configured default relays, requests the
// viewer's own metadata/follow-list/relay-list events, and drains until
// EOSE or a hard deadline, so topology derivation has something to work
// with.
func (c *Controller) coldStart(viewer string) error {
	ctx, cancel := context.WithTimeout(c.ctx, coldStartDeadline)
	defer cancel()

	type tmp struct {
		conn *RelayConnection
	}
	var conns []tmp
	for _, uri := range c.defaultRelays {
		conn := NewRelayConnection(uri, c.dialer)
		if ok, err := conn.Connect(ctx); err != nil || !ok {
			log.W.F("cold start: %s unreachable: %v", uri, err)
			continue
		}
		go c.pumpFrames(conn)
		subID, err := c.subs.Subscribe(conn, ProfilesFilter([]string{viewer}, nil))
		if err != nil {
			continue
		}
		_ = subID
		conns = append(conns, tmp{conn: conn})
	}
	defer func() {
		for _, t := range conns {
			t.conn.Disconnect()
		}
	}()

	remaining := len(conns)
	if remaining == 0 {
		return fmt.Errorf("no default relay reachable")
	}
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return nil
		case item := <-c.subs.Queue():
			switch item.Kind {
			case EventAppeared:
				c.applyEvent(viewer, item.Relay, item.Event)
			case Eose, Closed:
				remaining--
			}
		}
	}
	return nil
}

func (c *Controller) pumpFrames(conn *RelayConnection) {
	for frame := range conn.Frames() {
		c.subs.HandleFrame(conn.URI, frame)
	}
}

// AwaitAtLeastOneConnected blocks until any live relay reaches
// Connected, or ctx expires.
func (c *Controller) AwaitAtLeastOneConnected(ctx context.Context) bool {
	for {
		c.mu.Lock()
		for _, lr := range c.live {
			if lr.conn.State() == Connected {
				c.mu.Unlock()
				return true
			}
		}
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Stop cancels the ingest loop and disconnects every live relay.
func (c *Controller) Stop() {
	c.cancel()
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	for uri, lr := range c.live {
		lr.conn.Disconnect()
		delete(c.live, uri)
	}
}

// scheduleReconcile coalesces multiple ReconfigureRequests into one
// follow-up pass.
func (c *Controller) scheduleReconcile() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (c *Controller) ingestLoop() {
	defer c.wg.Done()
	viewer := c.keys.PubKey()
	for {
		select {
		case <-c.ctx.Done():
			return
		case item := <-c.subs.Queue():
			c.drainOne(viewer, item)
			c.drainRest(viewer)
		case <-c.dirty:
			if err := c.reconcile(); err != nil {
				log.W.F("reconcile: %v", err)
			}
		}
	}
}

func (c *Controller) drainRest(viewer string) {
	for {
		select {
		case item := <-c.subs.Queue():
			c.drainOne(viewer, item)
		default:
			return
		}
	}
}

func (c *Controller) drainOne(viewer string, item QueueItem) {
	switch item.Kind {
	case EventAppeared:
		c.applyEvent(viewer, item.Relay, item.Event)
	case Eose:
	case Closed:
		log.D.F("%s: subscription %s closed: %s", item.Relay, item.SubID, item.Reason)
	}
}

func (c *Controller) applyEvent(viewer, relay string, ev *event.T) {
	if !ValidateEvent(ev) {
		log.D.F("%s: dropping invalid event %s", relay, ev.ID)
		return
	}
	if ev.Kind == kind.GiftWrap {
		rumor, err := c.crypto.Unwrap(c.keys.SecKey(), ev)
		if err != nil {
			log.D.F("%s: gift wrap unwrap failed: %v", relay, err)
			if err = c.store.Apply([]StoreOp{OpPutEvent{Event: ev, Relay: relay}}); err != nil {
				log.E.F("store: %v", err)
			}
			return
		}
		ops := ClassifyRumor(viewer, relay, ev, rumor)
		if err = c.store.Apply(ops); err != nil {
			log.E.F("store: %v", err)
		}
		return
	}
	ops, reconfigure := Classify(viewer, relay, ev)
	if err := c.store.Apply(ops); err != nil {
		log.E.F("store: %v", err)
		return
	}
	if ev.Kind == kind.RelayListMetadata {
		c.invalidateOutboxRelays(ev.PubKey)
	}
	if reconfigure {
		c.scheduleReconcile()
	}
}

// computeTopology derives the desired relay/subscription map from the
// current store contents, per the fan-out-capped gossip model.
func (c *Controller) computeTopology(viewer string) topology {
	topo := topology{}

	dmRelays, _ := c.store.GetDMRelays(viewer)
	gwSince := c.sinceFor([]string{viewer}, []kind.T{kind.GiftWrap})
	for _, r := range dmRelays {
		topo[r.URI] = append(topo[r.URI], desiredSub{category: catDM, filter: GiftWrapFilter(viewer, gwSince)})
	}

	inboxRelays, _ := c.store.GetGeneralRelays(viewer)
	inboxSet := map[string]bool{}
	var inboxURIs []string
	for _, r := range inboxRelays {
		if r.Role.IsInbox() {
			inboxSet[r.URI] = true
			inboxURIs = append(inboxURIs, r.URI)
		}
	}
	mentionsSince := c.sinceFor([]string{viewer}, []kind.T{kind.TextNote, kind.Repost, kind.Comment, kind.EventDeletion})
	for _, uri := range inboxURIs {
		topo[uri] = append(topo[uri], desiredSub{category: catMentions, filter: MentionsFilter(viewer, mentionsSince)})
	}

	follows, _ := c.store.GetFollows(viewer)
	bipartite := map[string][]string{}
	for _, f := range follows {
		outbox := c.outboxRelays(f.Target)
		var prioritized, others []string
		for _, r := range outbox {
			if !r.Role.IsOutbox() {
				continue
			}
			if inboxSet[r.URI] {
				prioritized = append(prioritized, r.URI)
			} else {
				others = append(others, r.URI)
			}
		}
		chosen := append(prioritized, others...)
		if len(chosen) > maxOutboxRelaysPerFollow {
			chosen = chosen[:maxOutboxRelaysPerFollow]
		}
		for _, uri := range chosen {
			bipartite[uri] = append(bipartite[uri], f.Target)
		}
	}
	for uri, pks := range bipartite {
		sort.Strings(pks)
		profilesSince := c.sinceFor(pks, []kind.T{kind.RelayListMetadata, kind.PreferredDMRelays, kind.FollowList})
		postsSince := c.sinceFor(pks, []kind.T{kind.TextNote, kind.Repost, kind.EventDeletion})
		topo[uri] = append(topo[uri],
			desiredSub{category: catProfiles, filter: ProfilesFilter(pks, profilesSince)},
			desiredSub{category: catPosts, filter: UserPostsFilter(pks, postsSince)},
		)
	}
	return topo
}

func (c *Controller) sinceFor(pks []string, kinds []kind.T) *int64 {
	ts, err := c.store.GetLatestTimestamp(pks, kinds)
	if err != nil || ts == nil {
		return nil
	}
	return ts
}

func fingerprint(subs []desiredSub) string {
	var s string
	for _, d := range subs {
		s += fmt.Sprintf("%d:%s|", d.category, d.filter.String())
	}
	return s
}

// nonDMSubs returns the subset of subs that aren't the DM category, so
// callers can fingerprint the DM and non-DM portions of a relay's
// desired subscriptions independently.
func nonDMSubs(subs []desiredSub) []desiredSub {
	var out []desiredSub
	for _, d := range subs {
		if d.category != catDM {
			out = append(out, d)
		}
	}
	return out
}

// reconcile diffs the desired topology against the live one and realizes
// the difference: new relays are connected and subscribed, dropped
// relays are disconnected, and relays whose subscription set changed are
// re-subscribed — DM-only changes are scoped via StopMatching so a
// shared relay's other subscriptions are undisturbed.
func (c *Controller) reconcile() error {
	viewer := c.keys.PubKey()
	desired := c.computeTopology(viewer)

	c.mu.Lock()
	defer c.mu.Unlock()

	for uri := range c.live {
		if _, want := desired[uri]; !want {
			c.live[uri].conn.Disconnect()
			delete(c.live, uri)
		}
	}

	for uri, subs := range desired {
		fp := fingerprint(subs)
		nonDMFP := fingerprint(nonDMSubs(subs))
		lr, exists := c.live[uri]
		if exists && lr.fingerprint == fp {
			continue
		}
		var resubscribe []desiredSub
		if !exists {
			conn := NewRelayConnection(uri, c.dialer)
			connectCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
			ok, err := conn.Connect(connectCtx)
			cancel()
			if err != nil || !ok {
				log.W.F("reconcile: %s unreachable: %v", uri, err)
				continue
			}
			go c.pumpFrames(conn)
			lr = &liveRelay{conn: conn}
			c.live[uri] = lr
			resubscribe = subs
		} else if lr.nonDMFingerprint == nonDMFP {
			// Only the DM-category subscription changed: a relay
			// retains its non-DM subscriptions (mentions/profiles/
			// posts) across a preferred-DM-relay-list update, so scope
			// both the teardown and the resubscribe to the GiftWrap
			// subscription alone — the non-DM subs already live at
			// this relay are left untouched, not duplicated.
			c.subs.StopMatching(lr.conn, func(f *filter.T) bool {
				return f.Kinds.Contains(kind.GiftWrap)
			})
			for _, d := range subs {
				if d.category == catDM {
					resubscribe = append(resubscribe, d)
				}
			}
		} else {
			c.subs.StopAll(lr.conn)
			resubscribe = subs
		}
		for _, d := range resubscribe {
			if _, err := c.subs.Subscribe(lr.conn, d.filter); err != nil {
				log.W.F("reconcile: subscribe on %s: %v", uri, err)
			}
		}
		lr.fingerprint = fp
		lr.nonDMFingerprint = nonDMFP
	}
	return nil
}
