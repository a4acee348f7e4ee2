package inbox

import (
	"encoding/json"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/prolic/hanostr/pkg/hex"
	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/nip44"
)

// Unwrap error taxonomy, per the nested gift-wrap/seal/rumor decrypt
// pipeline.
var (
	ErrDecryptFailed         = errors.New("inbox: decrypt failed")
	ErrInvalidInnerSignature = errors.New("inbox: invalid inner signature")
	ErrAuthorMismatch        = errors.New("inbox: seal author does not match rumor author")
)

// Crypto is the stateless gift-wrap unwrap capability. It never touches
// the store; it only turns a GiftWrap event plus the viewer's secret key
// into a validated Rumor, or an error from the taxonomy above.
type Crypto struct{}

// xOnlyToPubKey lifts a 32-byte x-only Schnorr public key (as carried in
// every event's pubkey field) into a decred secp256k1 public key, assuming
// the conventional even-y lift used throughout NIP-44-style encryption.
func xOnlyToPubKey(pubHex string) (*secp256k1.PublicKey, error) {
	xb, err := hex.Dec(pubHex)
	if err != nil {
		return nil, err
	}
	if len(xb) != 32 {
		return nil, errors.New("inbox: pubkey must be 32 bytes")
	}
	compressed := append([]byte{0x02}, xb...)
	return secp256k1.ParsePubKey(compressed)
}

func secKeyFromHex(secHex string) (*secp256k1.PrivateKey, error) {
	b, err := hex.Dec(secHex)
	if err != nil {
		return nil, err
	}
	return secp256k1.PrivKeyFromBytes(b), nil
}

func (Crypto) conversationKey(viewerSecHex, otherPubHex string) ([]byte, error) {
	sk, err := secKeyFromHex(viewerSecHex)
	if err != nil {
		return nil, err
	}
	pk, err := xOnlyToPubKey(otherPubHex)
	if err != nil {
		return nil, err
	}
	return nip44.GenerateConversationKey(sk, pk), nil
}

// Unwrap decrypts a GiftWrap event addressed to the holder of
// viewerSecHex, validates the inner Seal's signature, decrypts it to
// recover the Rumor, and checks that the Seal's author matches the
// Rumor's claimed author.
func (c Crypto) Unwrap(viewerSecHex string, wrap *event.T) (rumor *event.T, err error) {
	key1, err := c.conversationKey(viewerSecHex, wrap.PubKey)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	sealJSON, err := nip44.Decrypt(key1, wrap.Content)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	var seal event.T
	if err = json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return nil, ErrDecryptFailed
	}
	var valid bool
	if valid, err = seal.CheckSignature(); err != nil || !valid {
		return nil, ErrInvalidInnerSignature
	}

	key2, err := c.conversationKey(viewerSecHex, seal.PubKey)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	rumorJSON, err := nip44.Decrypt(key2, seal.Content)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	var r event.T
	if err = json.Unmarshal([]byte(rumorJSON), &r); err != nil {
		return nil, ErrDecryptFailed
	}
	if r.PubKey != seal.PubKey {
		return nil, ErrAuthorMismatch
	}
	return &r, nil
}
