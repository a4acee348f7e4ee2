package inbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	c := newTTLCache[int]()
	c.SetWithTTL("k", 42, time.Millisecond)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 42, v)

	time.Sleep(5 * time.Millisecond)
	_, ok = c.Get("k")
	require.False(t, ok, "entry must expire after its TTL")
}

func TestTTLCacheDelete(t *testing.T) {
	c := newTTLCache[string]()
	c.Set("k", "v")
	c.Delete("k")
	_, ok := c.Get("k")
	require.False(t, ok)
}
