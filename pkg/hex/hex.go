// Package hex re-exports the standard encoding/hex functions under the short
// names used throughout the nostr packages.
package hex

import "encoding/hex"

type InvalidByteError = hex.InvalidByteError

var (
	Enc    = hex.EncodeToString
	Dec    = hex.DecodeString
	DecLen = hex.DecodedLen
	Decode = hex.Decode
)
