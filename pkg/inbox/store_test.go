package inbox_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prolic/hanostr/pkg/inbox"
)

func openTestStore(t *testing.T) *inbox.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "inbox-store-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	s, err := inbox.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProfileLastWriterWins(t *testing.T) {
	s := openTestStore(t)

	err := s.Apply([]inbox.StoreOp{inbox.OpPutProfile{
		Author: alicePub, Profile: inbox.Profile{Name: "alice-old"}, CreatedAt: 100,
	}})
	require.NoError(t, err)

	// An older write must not clobber a newer one.
	err = s.Apply([]inbox.StoreOp{inbox.OpPutProfile{
		Author: alicePub, Profile: inbox.Profile{Name: "alice-stale"}, CreatedAt: 50,
	}})
	require.NoError(t, err)

	p, ts, err := s.GetProfile(alicePub)
	require.NoError(t, err)
	require.Equal(t, "alice-old", p.Name)
	require.EqualValues(t, 100, ts)

	err = s.Apply([]inbox.StoreOp{inbox.OpPutProfile{
		Author: alicePub, Profile: inbox.Profile{Name: "alice-new"}, CreatedAt: 200,
	}})
	require.NoError(t, err)

	p, ts, err = s.GetProfile(alicePub)
	require.NoError(t, err)
	require.Equal(t, "alice-new", p.Name)
	require.EqualValues(t, 200, ts)
}

// On an exact created_at tie, the lexicographically lower event id must
// win regardless of write order, so every replica converges on the same
// winner no matter which copy of the tied pair it observes first.
func TestProfileEqualCreatedAtBreaksTieOnLowerID(t *testing.T) {
	s := openTestStore(t)

	err := s.Apply([]inbox.StoreOp{inbox.OpPutProfile{
		Author: alicePub, Profile: inbox.Profile{Name: "from-b"}, CreatedAt: 100, ID: "bbbb",
	}})
	require.NoError(t, err)

	// A later write with a higher id, at the same created_at, must not
	// clobber the lower-id winner already stored.
	err = s.Apply([]inbox.StoreOp{inbox.OpPutProfile{
		Author: alicePub, Profile: inbox.Profile{Name: "from-c"}, CreatedAt: 100, ID: "cccc",
	}})
	require.NoError(t, err)

	p, ts, err := s.GetProfile(alicePub)
	require.NoError(t, err)
	require.Equal(t, "from-b", p.Name)
	require.EqualValues(t, 100, ts)

	// A later write with a lower id, at the same created_at, must
	// supersede the current winner.
	err = s.Apply([]inbox.StoreOp{inbox.OpPutProfile{
		Author: alicePub, Profile: inbox.Profile{Name: "from-a"}, CreatedAt: 100, ID: "aaaa",
	}})
	require.NoError(t, err)

	p, ts, err = s.GetProfile(alicePub)
	require.NoError(t, err)
	require.Equal(t, "from-a", p.Name, "the lexicographically lower id must win an exact created_at tie")
	require.EqualValues(t, 100, ts)
}

func TestFollowListEqualCreatedAtBreaksTieOnLowerID(t *testing.T) {
	s := openTestStore(t)

	err := s.Apply([]inbox.StoreOp{inbox.OpPutFollows{
		Author: alicePub, Follows: []inbox.Follow{{Target: bobPub}}, CreatedAt: 100, ID: "bbbb",
	}})
	require.NoError(t, err)

	err = s.Apply([]inbox.StoreOp{inbox.OpPutFollows{
		Author: alicePub, Follows: []inbox.Follow{{Target: bobPub}, {Target: carolPub}}, CreatedAt: 100, ID: "cccc",
	}})
	require.NoError(t, err)

	follows, err := s.GetFollows(alicePub)
	require.NoError(t, err)
	require.Len(t, follows, 1, "a higher id at the same created_at must not overwrite the lower-id winner")

	err = s.Apply([]inbox.StoreOp{inbox.OpPutFollows{
		Author: alicePub, Follows: []inbox.Follow{{Target: bobPub}, {Target: carolPub}}, CreatedAt: 100, ID: "aaaa",
	}})
	require.NoError(t, err)

	follows, err = s.GetFollows(alicePub)
	require.NoError(t, err)
	require.Len(t, follows, 2, "a lower id at the same created_at must supersede the current winner")
}

func TestFollowListLastWriterWins(t *testing.T) {
	s := openTestStore(t)

	err := s.Apply([]inbox.StoreOp{inbox.OpPutFollows{
		Author: alicePub, Follows: []inbox.Follow{{Target: bobPub}}, CreatedAt: 10,
	}})
	require.NoError(t, err)

	follows, err := s.GetFollows(alicePub)
	require.NoError(t, err)
	require.Len(t, follows, 1)

	err = s.Apply([]inbox.StoreOp{inbox.OpPutFollows{
		Author: alicePub, Follows: nil, CreatedAt: 5,
	}})
	require.NoError(t, err)

	follows, err = s.GetFollows(alicePub)
	require.NoError(t, err)
	require.Len(t, follows, 1, "stale write must not erase the newer follow list")
}

func TestRelayListsAreKeptSeparateFromDMRelayLists(t *testing.T) {
	s := openTestStore(t)

	err := s.Apply([]inbox.StoreOp{
		inbox.OpPutRelayList{Author: alicePub, Relays: []inbox.RelayMeta{{URI: "wss://general.example", Role: inbox.Both}}, CreatedAt: 1, DM: false},
		inbox.OpPutRelayList{Author: alicePub, Relays: []inbox.RelayMeta{{URI: "wss://dm.example", Role: inbox.DMRelay}}, CreatedAt: 1, DM: true},
	})
	require.NoError(t, err)

	general, err := s.GetGeneralRelays(alicePub)
	require.NoError(t, err)
	require.Len(t, general, 1)
	require.Equal(t, "wss://general.example", general[0].URI)

	dm, err := s.GetDMRelays(alicePub)
	require.NoError(t, err)
	require.Len(t, dm, 1)
	require.Equal(t, "wss://dm.example", dm[0].URI)
}

func TestTimelineOrderingIsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	err := s.Apply([]inbox.StoreOp{
		inbox.OpInsertTimeline{Table: inbox.PostTimeline, Author: alicePub, CreatedAt: 100, ID: "01"},
		inbox.OpInsertTimeline{Table: inbox.PostTimeline, Author: alicePub, CreatedAt: 300, ID: "03"},
		inbox.OpInsertTimeline{Table: inbox.PostTimeline, Author: alicePub, CreatedAt: 200, ID: "02"},
	})
	require.NoError(t, err)

	ids, err := s.GetTimelineIDs(inbox.PostTimeline, alicePub, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"03", "02", "01"}, ids)
}

func TestChatTimelineInsertIsSeparateFromPostTimeline(t *testing.T) {
	s := openTestStore(t)

	// A chat-timeline entry for alice is returned from her chat timeline
	// only. Timeline ids are stored as hex-decoded bytes, so the id is hex.
	err := s.Apply([]inbox.StoreOp{
		inbox.OpInsertTimeline{Table: inbox.ChatTimeline, Author: alicePub, CreatedAt: 500, ID: "c1"},
	})
	require.NoError(t, err)

	chatIDs, err := s.GetTimelineIDs(inbox.ChatTimeline, alicePub, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, chatIDs)

	postIDs, err := s.GetTimelineIDs(inbox.PostTimeline, alicePub, 0)
	require.NoError(t, err)
	require.Empty(t, postIDs, "a chat-timeline insert must not appear in the post timeline")
}

func TestIdempotentIngestMergesRelaySetWithoutDuplicatingTheEvent(t *testing.T) {
	s := openTestStore(t)

	ev := sampleSignedTextNote(t, alicePub)

	require.NoError(t, s.Apply([]inbox.StoreOp{inbox.OpPutEvent{Event: ev, Relay: "wss://relay-a.example"}}))
	require.NoError(t, s.Apply([]inbox.StoreOp{inbox.OpPutEvent{Event: ev, Relay: "wss://relay-b.example"}}))
	require.NoError(t, s.Apply([]inbox.StoreOp{inbox.OpPutEvent{Event: ev, Relay: "wss://relay-a.example"}}))

	stored, err := s.GetEvent(ev.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Relays, 2)
	require.True(t, stored.Relays["wss://relay-a.example"])
	require.True(t, stored.Relays["wss://relay-b.example"])
}

func TestDeleteEventRequiresMatchingAuthor(t *testing.T) {
	s := openTestStore(t)
	ev := sampleSignedTextNote(t, alicePub)

	require.NoError(t, s.Apply([]inbox.StoreOp{
		inbox.OpPutEvent{Event: ev, Relay: "wss://relay.example"},
		inbox.OpInsertTimeline{Table: inbox.PostTimeline, Author: alicePub, CreatedAt: ev.CreatedAt.I64(), ID: ev.ID.String()},
	}))

	// A deletion claiming to be from someone else must not remove it.
	require.NoError(t, s.Apply([]inbox.StoreOp{inbox.OpDeleteEvent{ID: ev.ID.String(), Author: bobPub}}))
	stored, err := s.GetEvent(ev.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored, "event deleted by a non-author request")

	require.NoError(t, s.Apply([]inbox.StoreOp{inbox.OpDeleteEvent{ID: ev.ID.String(), Author: alicePub}}))
	stored, err = s.GetEvent(ev.ID.String())
	require.NoError(t, err)
	require.Nil(t, stored)

	ids, err := s.GetTimelineIDs(inbox.PostTimeline, alicePub, 0)
	require.NoError(t, err)
	require.Empty(t, ids)
}
