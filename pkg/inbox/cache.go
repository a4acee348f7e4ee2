package inbox

import (
	"sync"
	"time"

	"github.com/prolic/hanostr/pkg/nostr/interfaces/cache32"
)

// ttlCache is a small mutex-protected implementation of cache32.I, used
// by the controller to avoid re-hitting the store for every followed
// identity's outbox relay list on every reconcile — the same shape as
// the teacher's sdk.System.RelaysCache.
type ttlCache[V any] struct {
	mu      sync.Mutex
	entries map[string]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value   V
	expires time.Time
}

func newTTLCache[V any]() *ttlCache[V] {
	return &ttlCache[V]{entries: map[string]ttlEntry[V]{}}
}

func (c *ttlCache[V]) Get(k string) (v V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[k]
	if !found || time.Now().After(e.expires) {
		return v, false
	}
	return e.value, true
}

func (c *ttlCache[V]) Delete(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

func (c *ttlCache[V]) Set(k string, v V) bool {
	return c.SetWithTTL(k, v, time.Hour)
}

func (c *ttlCache[V]) SetWithTTL(k string, v V, d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = ttlEntry[V]{value: v, expires: time.Now().Add(d)}
	return true
}

var _ cache32.I[[]RelayMeta] = (*ttlCache[[]RelayMeta])(nil)

const outboxCacheTTL = 6 * time.Hour

// outboxRelays returns a followed identity's outbox-capable relays,
// serving from the controller's cache when available so a reconcile
// pass over a large follow list doesn't re-hit the store per contact.
func (c *Controller) outboxRelays(pubkey string) []RelayMeta {
	if v, ok := c.relaysCache.Get(pubkey); ok {
		return v
	}
	relays, _ := c.store.GetGeneralRelays(pubkey)
	c.relaysCache.SetWithTTL(pubkey, relays, outboxCacheTTL)
	return relays
}

// invalidateOutboxRelays drops a cached lookup — called when a fresh
// RelayListMetadata for that identity has just been persisted, so the
// next reconcile recomputes against current data instead of serving a
// stale cache hit for up to outboxCacheTTL.
func (c *Controller) invalidateOutboxRelays(pubkey string) {
	c.relaysCache.Delete(pubkey)
}
