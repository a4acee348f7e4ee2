package inbox_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/keys"
	"github.com/prolic/hanostr/pkg/nostr/kind"
	"github.com/prolic/hanostr/pkg/nostr/tags"
	"github.com/prolic/hanostr/pkg/nostr/timestamp"
)

const (
	aliceSecHex = "1797f6f1d10593548b566ba32e81577aa4bc990eb0f16556bf884f1af4b17c25"
	bobSecHex   = "2747f6f1d10593548b566ba32e81577aa4bc990eb0f16556bf884f1af4b17c30"
	carolSecHex = "3797f6f1d10593548b566ba32e81577aa4bc990eb0f16556bf884f1af4b17c40"
	daveSecHex  = "4797f6f1d10593548b566ba32e81577aa4bc990eb0f16556bf884f1af4b17c50"
)

func mustPub(secHex string) string {
	pub, err := keys.GetPublicKey(secHex)
	if err != nil {
		panic(err)
	}
	return pub
}

var (
	alicePub = mustPub(aliceSecHex)
	bobPub   = mustPub(bobSecHex)
	carolPub = mustPub(carolSecHex)
	davePub  = mustPub(daveSecHex)
)

func secFor(pub string) string {
	switch pub {
	case bobPub:
		return bobSecHex
	case carolPub:
		return carolSecHex
	case davePub:
		return daveSecHex
	default:
		return aliceSecHex
	}
}

// sampleSignedTextNote builds and signs a kind.TextNote authored by
// whichever secret key's public key equals author. Tests drive this via
// the fixed test keypairs so author must be one of the pubs above.
func sampleSignedTextNote(t *testing.T, author string) *event.T {
	t.Helper()
	return signedEvent(t, author, kind.TextNote, tags.T{}, "hello", timestamp.Now().I64())
}

// signedEvent builds and signs an event of an arbitrary kind, tag set,
// content, and created_at, authored by one of the fixed test keypairs.
func signedEvent(t *testing.T, author string, k kind.T, tg tags.T, content string, createdAt int64) *event.T {
	t.Helper()
	ev := &event.T{
		CreatedAt: timestamp.T(createdAt),
		Kind:      k,
		Tags:      tg,
		Content:   content,
	}
	require.NoError(t, ev.Sign(secFor(author)))
	return ev
}
