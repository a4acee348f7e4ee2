package inbox

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/prolic/hanostr/pkg/hex"
	log2 "github.com/prolic/hanostr/pkg/log"
	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/kind"
)

var log = log2.GetStd()

// Timeline picks which of the two derived timeline tables an operation
// addresses.
type Timeline int

const (
	PostTimeline Timeline = iota
	ChatTimeline
)

const maxInt64 = int64(^uint64(0) >> 1)

func invertedTimestamp(createdAt int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(maxInt64-createdAt))
	return b
}

func pubkeyBytes(pk string) []byte {
	b, err := hex.Dec(pk)
	if log.D.Chk(err) {
		return []byte(pk)
	}
	return b
}

func eventIDBytes(id string) []byte {
	b, err := hex.Dec(id)
	if log.D.Chk(err) {
		return []byte(id)
	}
	return b
}

func timelineKey(prefix byte, pk string, createdAt int64) []byte {
	k := make([]byte, 0, 1+32+8)
	k = append(k, prefix)
	k = append(k, pubkeyBytes(pk)...)
	k = append(k, invertedTimestamp(createdAt)...)
	return k
}

const (
	prefixEvent byte = 'e'
	prefixProfile byte = 'p'
	prefixFollows byte = 'f'
	prefixRelays byte = 'r'
	prefixDMRelays byte = 'd'
	prefixPostTimeline byte = 'P'
	prefixChatTimeline byte = 'C'
)

// EventWithRelays pairs a stored event with the set of relays it has been
// observed on.
type EventWithRelays struct {
	Event  *event.T        `json:"event"`
	Relays map[string]bool `json:"relays"`
}

type storedProfile struct {
	Profile   Profile `json:"profile"`
	CreatedAt int64   `json:"created_at"`
	ID        string  `json:"id"`
}

type storedFollows struct {
	Follows   []Follow `json:"follows"`
	CreatedAt int64    `json:"created_at"`
	ID        string   `json:"id"`
}

type storedRelays struct {
	Relays    []RelayMeta `json:"relays"`
	CreatedAt int64       `json:"created_at"`
	ID        string      `json:"id"`
}

// Store is the transactional, badger-backed persistence layer: events,
// profiles, follow lists, relay lists, and the two derived timeline
// indices. All cross-table writes happen inside a single badger
// transaction so partial updates are never observable.
type Store struct {
	db *badger.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) a badger database at dataDir.
func Open(dataDir string) (s *Store, err error) {
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil
	var db *badger.DB
	if db, err = badger.Open(opts); log.E.Chk(err) {
		return nil, log.E.Err("opening store at %s: %v", dataDir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// StoreOp is the tagged-variant contract between EventRouter (C5) and
// EventStore (C1): the router classifies an event into a batch of these,
// the store applies the batch atomically.
type StoreOp interface{ apply(txn *badger.Txn) error }

type OpPutEvent struct {
	Event *event.T
	Relay string
}

func (o OpPutEvent) apply(txn *badger.Txn) error {
	key := append([]byte{prefixEvent}, eventIDBytes(o.Event.ID.String())...)
	var ewr EventWithRelays
	if item, err := txn.Get(key); err == nil {
		if v, err2 := item.ValueCopy(nil); err2 == nil {
			_ = json.Unmarshal(v, &ewr)
		}
	}
	ewr.Event = o.Event
	if ewr.Relays == nil {
		ewr.Relays = map[string]bool{}
	}
	if o.Relay != "" {
		ewr.Relays[o.Relay] = true
	}
	b, err := json.Marshal(ewr)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

type OpInsertTimeline struct {
	Table     Timeline
	Author    string
	CreatedAt int64
	ID        string
}

func (o OpInsertTimeline) apply(txn *badger.Txn) error {
	prefix := prefixPostTimeline
	if o.Table == ChatTimeline {
		prefix = prefixChatTimeline
	}
	key := timelineKey(prefix, o.Author, o.CreatedAt)
	return txn.Set(key, eventIDBytes(o.ID))
}

type OpDeleteEvent struct {
	ID     string
	Author string
}

func (o OpDeleteEvent) apply(txn *badger.Txn) error {
	key := append([]byte{prefixEvent}, eventIDBytes(o.ID)...)
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	var ewr EventWithRelays
	if err = json.Unmarshal(v, &ewr); err != nil {
		return err
	}
	if ewr.Event == nil || ewr.Event.PubKey != o.Author {
		return nil
	}
	for _, prefix := range []byte{prefixPostTimeline, prefixChatTimeline} {
		tk := timelineKey(prefix, o.Author, ewr.Event.CreatedAt.I64())
		if tItem, err := txn.Get(tk); err == nil {
			if tv, err2 := tItem.ValueCopy(nil); err2 == nil {
				if string(tv) == string(eventIDBytes(o.ID)) {
					_ = txn.Delete(tk)
				}
			}
		}
	}
	return txn.Delete(key)
}

// wins reports whether an incoming (createdAt, id) supersedes an existing
// (existingCreatedAt, existingID) under last-writer-wins with a
// deterministic tie-break: a later created_at always wins; on an exact
// tie, the lexicographically lower event id wins so every replica
// converges on the same winner regardless of arrival order.
func wins(existingCreatedAt int64, existingID string, createdAt int64, id string) bool {
	if createdAt != existingCreatedAt {
		return createdAt > existingCreatedAt
	}
	return id < existingID
}

type OpPutProfile struct {
	Author    string
	Profile   Profile
	CreatedAt int64
	ID        string
}

func (o OpPutProfile) apply(txn *badger.Txn) error {
	key := append([]byte{prefixProfile}, pubkeyBytes(o.Author)...)
	if existing, ok := getStoredProfile(txn, o.Author); ok && !wins(existing.CreatedAt, existing.ID, o.CreatedAt, o.ID) {
		return nil
	}
	b, err := json.Marshal(storedProfile{Profile: o.Profile, CreatedAt: o.CreatedAt, ID: o.ID})
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

type OpPutFollows struct {
	Author    string
	Follows   []Follow
	CreatedAt int64
	ID        string
}

func (o OpPutFollows) apply(txn *badger.Txn) error {
	key := append([]byte{prefixFollows}, pubkeyBytes(o.Author)...)
	if existing, ok := getStoredFollows(txn, o.Author); ok && !wins(existing.CreatedAt, existing.ID, o.CreatedAt, o.ID) {
		return nil
	}
	b, err := json.Marshal(storedFollows{Follows: o.Follows, CreatedAt: o.CreatedAt, ID: o.ID})
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

type OpPutRelayList struct {
	Author    string
	Relays    []RelayMeta
	CreatedAt int64
	ID        string
	DM        bool
}

func (o OpPutRelayList) apply(txn *badger.Txn) error {
	prefix := prefixRelays
	if o.DM {
		prefix = prefixDMRelays
	}
	key := append([]byte{prefix}, pubkeyBytes(o.Author)...)
	if existing, ok := getStoredRelays(txn, o.Author, o.DM); ok && !wins(existing.CreatedAt, existing.ID, o.CreatedAt, o.ID) {
		return nil
	}
	b, err := json.Marshal(storedRelays{Relays: o.Relays, CreatedAt: o.CreatedAt, ID: o.ID})
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

// Apply executes a batch of StoreOp atomically. Per-op last-writer-wins
// checks read within the same transaction so a batch never partially
// regresses state.
func (s *Store) Apply(ops []StoreOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			if err := op.apply(txn); log.E.Chk(err) {
				return err
			}
		}
		return nil
	})
}

func getStoredProfile(txn *badger.Txn, author string) (p storedProfile, ok bool) {
	key := append([]byte{prefixProfile}, pubkeyBytes(author)...)
	item, err := txn.Get(key)
	if err != nil {
		return
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return
	}
	if err = json.Unmarshal(v, &p); err != nil {
		return
	}
	return p, true
}

func getStoredFollows(txn *badger.Txn, author string) (f storedFollows, ok bool) {
	key := append([]byte{prefixFollows}, pubkeyBytes(author)...)
	item, err := txn.Get(key)
	if err != nil {
		return
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return
	}
	if err = json.Unmarshal(v, &f); err != nil {
		return
	}
	return f, true
}

func getStoredRelays(txn *badger.Txn, author string, dm bool) (r storedRelays, ok bool) {
	prefix := prefixRelays
	if dm {
		prefix = prefixDMRelays
	}
	key := append([]byte{prefix}, pubkeyBytes(author)...)
	item, err := txn.Get(key)
	if err != nil {
		return
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return
	}
	if err = json.Unmarshal(v, &r); err != nil {
		return
	}
	return r, true
}

// GetEvent looks up a single event by its hex id.
func (s *Store) GetEvent(id string) (ewr *EventWithRelays, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		key := append([]byte{prefixEvent}, eventIDBytes(id)...)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var out EventWithRelays
		if err = json.Unmarshal(v, &out); err != nil {
			return err
		}
		ewr = &out
		return nil
	})
	return
}

// GetProfile returns the current profile for pk, or a zero Profile with
// ts==0 if none is stored.
func (s *Store) GetProfile(pk string) (p Profile, ts int64, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		sp, ok := getStoredProfile(txn, pk)
		if !ok {
			return nil
		}
		p, ts = sp.Profile, sp.CreatedAt
		return nil
	})
	return
}

func (s *Store) GetFollows(pk string) (follows []Follow, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		sf, ok := getStoredFollows(txn, pk)
		if !ok {
			return nil
		}
		follows = sf.Follows
		return nil
	})
	return
}

func (s *Store) GetGeneralRelays(pk string) (relays []RelayMeta, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		sr, ok := getStoredRelays(txn, pk, false)
		if !ok {
			return nil
		}
		relays = sr.Relays
		return nil
	})
	return
}

func (s *Store) GetDMRelays(pk string) (relays []RelayMeta, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		sr, ok := getStoredRelays(txn, pk, true)
		if !ok {
			return nil
		}
		relays = sr.Relays
		return nil
	})
	return
}

// GetTimelineIDs returns up to limit event ids for author, newest first.
func (s *Store) GetTimelineIDs(table Timeline, author string, limit int) (ids []string, err error) {
	prefix := prefixPostTimeline
	if table == ChatTimeline {
		prefix = prefixChatTimeline
	}
	err = s.db.View(func(txn *badger.Txn) error {
		p := append([]byte{prefix}, pubkeyBytes(author)...)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: p})
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if limit > 0 && len(ids) >= limit {
				break
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, hex.Enc(v))
		}
		return nil
	})
	return
}

// GetLatestTimestamp returns the minimum, over pks, of the maximum
// created_at observed for any of kinds — used to derive a resubscription
// `since` that never re-requests already-persisted history.
func (s *Store) GetLatestTimestamp(pks []string, kinds []kind.T) (latest *int64, err error) {
	if len(pks) == 0 {
		return nil, nil
	}
	err = s.db.View(func(txn *badger.Txn) error {
		var mins []int64
		for _, pk := range pks {
			var maxForPk int64 = -1
			for _, k := range kinds {
				if ts, ok := latestTimestampForKind(txn, pk, k); ok && ts > maxForPk {
					maxForPk = ts
				}
			}
			if maxForPk < 0 {
				maxForPk = 0
			}
			mins = append(mins, maxForPk)
		}
		sort.Slice(mins, func(i, j int) bool { return mins[i] < mins[j] })
		if len(mins) > 0 {
			latest = &mins[0]
		}
		return nil
	})
	return
}

func latestTimestampForKind(txn *badger.Txn, pk string, k kind.T) (int64, bool) {
	switch k {
	case kind.ProfileMetadata:
		if sp, ok := getStoredProfile(txn, pk); ok {
			return sp.CreatedAt, true
		}
	case kind.FollowList:
		if sf, ok := getStoredFollows(txn, pk); ok {
			return sf.CreatedAt, true
		}
	case kind.RelayListMetadata:
		if sr, ok := getStoredRelays(txn, pk, false); ok {
			return sr.CreatedAt, true
		}
	case kind.PreferredDMRelays:
		if sr, ok := getStoredRelays(txn, pk, true); ok {
			return sr.CreatedAt, true
		}
	case kind.GiftWrap:
		return latestInTimeline(txn, prefixChatTimeline, pk)
	default:
		return latestInTimeline(txn, prefixPostTimeline, pk)
	}
	return 0, false
}

func latestInTimeline(txn *badger.Txn, prefix byte, pk string) (int64, bool) {
	p := append([]byte{prefix}, pubkeyBytes(pk)...)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: p})
	defer it.Close()
	it.Seek(p)
	if !it.ValidForPrefix(p) {
		return 0, false
	}
	key := it.Item().KeyCopy(nil)
	invTs := key[len(key)-8:]
	inv := int64(binary.BigEndian.Uint64(invTs))
	return maxInt64 - inv, true
}
