package event_test

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/prolic/hanostr/pkg/hex"
	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/kind"
	"github.com/prolic/hanostr/pkg/nostr/tag"
	"github.com/prolic/hanostr/pkg/nostr/tags"
	"github.com/prolic/hanostr/pkg/nostr/timestamp"
)

const (
	TestSecHex = "1797f6f1d10593548b566ba32e81577aa4bc990eb0f16556bf884f1af4b17c25"
)

func GetTestKeyPair() (sec *btcec.PrivateKey, pub *btcec.PublicKey) {
	b, _ := hex.Dec(TestSecHex)
	sec, pub = btcec.PrivKeyFromBytes(b)
	return
}

func GenTextNote(sk *btcec.PrivateKey, replyID, relayURL string) (note string, err error) {
	tagMarker := tag.MarkerRoot
	if replyID != "" {
		tagMarker = tag.MarkerReply
	}
	t := tags.T{{"e", replyID, relayURL, tagMarker}}
	ev := &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.TextNote,
		Tags:      t,
		Content:   "hello nostr",
	}
	if err = ev.SignWithSecKey(sk); err != nil {
		return
	}
	note = ev.ToObject().String()
	return
}

func TestGenerateAndVerifyEvent(t *testing.T) {
	sec, _ := GetTestKeyPair()
	for i := 0; i < 10; i++ {
		note, err := GenTextNote(sec, "", "")
		if err != nil {
			t.Fatal(err)
		}
		var re event.T
		if err = json.Unmarshal([]byte(note), &re); err != nil {
			t.Fatal(err)
		}
		var valid bool
		if valid, err = re.CheckSignature(); err != nil {
			t.Fatal(err)
		}
		if !valid {
			t.Fatal("signature should be valid")
		}
	}
}

func TestEventSerializationRoundTrip(t *testing.T) {
	sec, _ := GetTestKeyPair()
	ev := &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.TextNote,
		Tags:      tags.T{{"e", "deadbeef", "", tag.MarkerRoot}},
		Content:   "round trip content",
	}
	if err := ev.SignWithSecKey(sec); err != nil {
		t.Fatal(err)
	}

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}

	var re event.T
	if err = json.Unmarshal(b, &re); err != nil {
		t.Log(string(b))
		t.Fatal("failed to re parse event just serialized", err)
	}

	if ev.ID != re.ID || ev.PubKey != re.PubKey || ev.Content != re.Content ||
		ev.CreatedAt != re.CreatedAt || ev.Sig != re.Sig ||
		len(ev.Tags) != len(re.Tags) {
		t.Error("reparsed event differs from original")
	}

	for i := range ev.Tags {
		if len(ev.Tags[i]) != len(re.Tags[i]) {
			t.Errorf("reparsed tags %d length differ from original", i)
			continue
		}
		for j := range ev.Tags[i] {
			if ev.Tags[i][j] != re.Tags[i][j] {
				t.Errorf("reparsed tag content %d %d differs from original", i, j)
			}
		}
	}
}
