package inbox

import (
	"encoding/json"

	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/kind"
)

// ValidateEvent recomputes the canonical id and checks the Schnorr
// signature. It must be run on every externally sourced event before any
// side-effect is derived from it.
func ValidateEvent(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if ev.GetID() != ev.ID {
		return false
	}
	valid, err := ev.CheckSignature()
	return err == nil && valid
}

// Classify is the pure (relay, Event) -> ([]StoreOp, reconfigure) mapping
// at the heart of C5. It performs no I/O; every side effect is expressed
// as a StoreOp for the caller to apply. GiftWrap is handled by
// ClassifyRumor once the controller has decrypted it — Classify only
// persists the wrapper event itself for that kind.
func Classify(viewer, relay string, ev *event.T) (ops []StoreOp, reconfigure bool) {
	ops = append(ops, OpPutEvent{Event: ev, Relay: relay})

	switch ev.Kind {
	case kind.ProfileMetadata:
		var p Profile
		if err := json.Unmarshal([]byte(ev.Content), &p); err == nil {
			ops = append(ops, OpPutProfile{Author: ev.PubKey, Profile: p, CreatedAt: ev.CreatedAt.I64(), ID: ev.ID.String()})
		}

	case kind.FollowList:
		follows := followsFromTags(ev)
		ops = append(ops, OpPutFollows{Author: ev.PubKey, Follows: follows, CreatedAt: ev.CreatedAt.I64(), ID: ev.ID.String()})
		if ev.PubKey == viewer {
			reconfigure = true
		}

	case kind.RelayListMetadata:
		relays := relayListFromTags(ev)
		ops = append(ops, OpPutRelayList{Author: ev.PubKey, Relays: relays, CreatedAt: ev.CreatedAt.I64(), ID: ev.ID.String(), DM: false})
		reconfigure = true

	case kind.PreferredDMRelays:
		relays := dmRelayListFromTags(ev)
		ops = append(ops, OpPutRelayList{Author: ev.PubKey, Relays: relays, CreatedAt: ev.CreatedAt.I64(), ID: ev.ID.String(), DM: true})
		if ev.PubKey == viewer {
			reconfigure = true
		}

	case kind.EventDeletion:
		for _, t := range ev.Tags.GetAll("e") {
			ops = append(ops, OpDeleteEvent{ID: t.Value(), Author: ev.PubKey})
		}

	case kind.Repost:
		var inner event.T
		if err := json.Unmarshal([]byte(ev.Content), &inner); err == nil &&
			ValidateEvent(&inner) && len(ev.Tags.GetAll("e")) > 0 {
			ops = append(ops, OpInsertTimeline{
				Table: PostTimeline, Author: ev.PubKey,
				CreatedAt: ev.CreatedAt.I64(), ID: ev.ID.String(),
			})
		}

	case kind.TextNote, kind.Comment:
		ops = append(ops, OpInsertTimeline{
			Table: PostTimeline, Author: ev.PubKey,
			CreatedAt: ev.CreatedAt.I64(), ID: ev.ID.String(),
		})

	default:
		// persisted above, but not routed further.
	}
	return
}

// ClassifyRumor derives the chat_timeline fan-out for a GiftWrap event
// once its rumor has been decrypted by C2. Participants are the rumor's
// PTag targets when the rumor's author is the viewer (an outgoing
// message), or the rumor author plus PTag targets minus the viewer
// otherwise (an incoming message).
func ClassifyRumor(viewer, relay string, wrap, rumor *event.T) (ops []StoreOp) {
	ops = append(ops, OpPutEvent{Event: wrap, Relay: relay})

	participants := map[string]bool{}
	if rumor.PubKey == viewer {
		for _, t := range rumor.Tags.GetAll("p") {
			if pk := t.Value(); pk != "" {
				participants[pk] = true
			}
		}
	} else {
		participants[rumor.PubKey] = true
		for _, t := range rumor.Tags.GetAll("p") {
			if pk := t.Value(); pk != "" {
				participants[pk] = true
			}
		}
		delete(participants, viewer)
	}
	for pk := range participants {
		ops = append(ops, OpInsertTimeline{
			Table: ChatTimeline, Author: pk,
			CreatedAt: rumor.CreatedAt.I64(), ID: wrap.ID.String(),
		})
	}
	return
}

func followsFromTags(ev *event.T) (follows []Follow) {
	for _, t := range ev.Tags.GetAll("p") {
		f := Follow{Target: t.Value(), RelayHint: t.Relay()}
		if len(t) > 3 {
			f.Petname = t[3]
		}
		follows = append(follows, f)
	}
	return
}

func relayListFromTags(ev *event.T) (relays []RelayMeta) {
	for _, t := range ev.Tags.GetAll("r") {
		uri := t.Value()
		if !ValidRelayURI(uri) {
			continue
		}
		role := Both
		if len(t) > 2 {
			switch t[2] {
			case "read":
				role = InboxOnly
			case "write":
				role = OutboxOnly
			}
		}
		relays = append(relays, RelayMeta{URI: uri, Role: role})
	}
	return
}

func dmRelayListFromTags(ev *event.T) (relays []RelayMeta) {
	for _, t := range ev.Tags.GetAll("relay") {
		uri := t.Value()
		if !ValidRelayURI(uri) {
			continue
		}
		relays = append(relays, RelayMeta{URI: uri, Role: DMRelay})
	}
	return
}
