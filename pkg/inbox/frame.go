package inbox

import (
	"encoding/json"
	"errors"

	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/filter"
	"github.com/prolic/hanostr/pkg/nostr/kind"
	"github.com/prolic/hanostr/pkg/nostr/kinds"
	"github.com/prolic/hanostr/pkg/nostr/timestamp"
	"github.com/prolic/hanostr/pkg/nostr/wire/array"
)

// FrameKind tags the variants of a relay->client protocol message.
type FrameKind int

const (
	FrameEvent FrameKind = iota
	FrameEose
	FrameOK
	FrameNotice
	FrameClosed
)

// Frame is the tagged variant C3 decodes every inbound relay message
// into before handing it to C4/C6.
type Frame struct {
	Kind         FrameKind
	SubID        string
	Event        *event.T
	OKEventID    string
	OKAccepted   bool
	OKMessage    string
	NoticeText   string
	ClosedReason string
}

// ParseFrame decodes a single relay->client JSON array message.
func ParseFrame(raw []byte) (*Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, errors.New("inbox: empty frame")
	}
	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return nil, err
	}
	switch tag {
	case "EVENT":
		if len(parts) != 3 {
			return nil, errors.New("inbox: malformed EVENT frame")
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return nil, err
		}
		var ev event.T
		if err := json.Unmarshal(parts[2], &ev); err != nil {
			return nil, err
		}
		return &Frame{Kind: FrameEvent, SubID: subID, Event: &ev}, nil
	case "EOSE":
		if len(parts) != 2 {
			return nil, errors.New("inbox: malformed EOSE frame")
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return nil, err
		}
		return &Frame{Kind: FrameEose, SubID: subID}, nil
	case "OK":
		if len(parts) != 4 {
			return nil, errors.New("inbox: malformed OK frame")
		}
		var id, msg string
		var ok bool
		if err := json.Unmarshal(parts[1], &id); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parts[2], &ok); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(parts[3], &msg)
		return &Frame{Kind: FrameOK, OKEventID: id, OKAccepted: ok, OKMessage: msg}, nil
	case "NOTICE":
		if len(parts) != 2 {
			return nil, errors.New("inbox: malformed NOTICE frame")
		}
		var msg string
		if err := json.Unmarshal(parts[1], &msg); err != nil {
			return nil, err
		}
		return &Frame{Kind: FrameNotice, NoticeText: msg}, nil
	case "CLOSED":
		if len(parts) != 3 {
			return nil, errors.New("inbox: malformed CLOSED frame")
		}
		var subID, reason string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(parts[2], &reason)
		return &Frame{Kind: FrameClosed, SubID: subID, ClosedReason: reason}, nil
	default:
		return nil, errors.New("inbox: unknown frame tag " + tag)
	}
}

// EncodeReq builds a client->relay REQ message.
func EncodeReq(subID string, filters ...*filter.T) []byte {
	a := array.T{"REQ", subID}
	for _, f := range filters {
		a = append(a, f.ToObject())
	}
	return a.Bytes()
}

// EncodeClose builds a client->relay CLOSE message.
func EncodeClose(subID string) []byte {
	return array.T{"CLOSE", subID}.Bytes()
}

// EncodeEvent builds a client->relay EVENT message.
func EncodeEvent(ev *event.T) []byte {
	return array.T{"EVENT", ev.ToObject()}.Bytes()
}

func sincePtr(ts *int64) *timestamp.Tp {
	if ts == nil {
		return nil
	}
	t := timestamp.T(*ts)
	return t.Ptr()
}

// ProfilesFilter requests the metadata-ish replaceable kinds for a set of
// identities: profile, follow list, relay lists.
func ProfilesFilter(pks []string, since *int64) *filter.T {
	return &filter.T{
		Authors: filter.IDList(pks),
		Kinds: kinds.T{
			kind.ProfileMetadata,
			kind.FollowList,
			kind.RelayListMetadata,
			kind.PreferredDMRelays,
		},
		Since: sincePtr(since),
	}
}

// GiftWrapFilter requests gift-wrapped direct messages addressed to the
// viewer, scoped to the viewer's DM relays.
func GiftWrapFilter(viewer string, since *int64) *filter.T {
	return &filter.T{
		Kinds: kinds.T{kind.GiftWrap},
		Tags:  filter.TagMap{"#p": {viewer}},
		Since: sincePtr(since),
	}
}

// MentionsFilter requests posts and deletions that mention the viewer,
// scoped to the viewer's own inbox relays.
func MentionsFilter(viewer string, since *int64) *filter.T {
	return &filter.T{
		Kinds: kinds.T{kind.TextNote, kind.Repost, kind.Comment, kind.EventDeletion},
		Tags:  filter.TagMap{"#p": {viewer}},
		Since: sincePtr(since),
	}
}

// UserPostsFilter requests the authored content kinds for a set of
// followed identities, scoped to their outbox relays.
func UserPostsFilter(pks []string, since *int64) *filter.T {
	return &filter.T{
		Authors: filter.IDList(pks),
		Kinds:   kinds.T{kind.TextNote, kind.Repost, kind.EventDeletion},
		Since:   sincePtr(since),
	}
}
