package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	log2 "github.com/prolic/hanostr/pkg/log"
	"github.com/prolic/hanostr/pkg/nostr/event"
	"github.com/prolic/hanostr/pkg/nostr/kinds"
	"github.com/prolic/hanostr/pkg/nostr/timestamp"
	"github.com/prolic/hanostr/pkg/nostr/wire/object"
)

var log = log2.GetStd()

// IDList is a set of event IDs or pubkeys given as plain hexadecimal
// strings. It is not the 3-or-more element tag.T shape, just a flat list,
// so it gets its own small type rather than misusing tag.T.
type IDList []string

func (l IDList) Contains(s string) bool {
	for i := range l {
		if l[i] == s {
			return true
		}
	}
	return false
}

func (l IDList) Clone() (c IDList) {
	if l == nil {
		return
	}
	c = make(IDList, len(l))
	copy(c, l)
	return
}

func (l IDList) Equals(o IDList) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if l[i] != o[i] {
			return false
		}
	}
	return true
}

// T is a query where one or all elements can be filled in.
//
// Most of it is normal stuff but the Tags are a special case because the Go
// encode/json will not do what the specification requires, which is to unwrap
// the tag as fields.
//
//	Tags: {K1: val1, K2: val2)
//
// must be changed to
//
//	K1: val1
//	K2: val2
//
// Because we have a native key/value type designed for ordered object JSON
// serialization we just give it special treatment in the ToObject function,
// and on the read side we scan the raw object for keys starting with "#"
// instead of generating one struct field per possible tag letter.
type T struct {
	IDs     IDList        `json:"ids,omitempty"`
	Kinds   kinds.T       `json:"kinds,omitempty"`
	Authors IDList        `json:"authors,omitempty"`
	Tags    TagMap        `json:"-,omitempty"`
	Since   *timestamp.Tp `json:"since,omitempty"`
	Until   *timestamp.Tp `json:"until,omitempty"`
	Limit   int           `json:"limit,omitempty"`
	Search  string        `json:"search,omitempty"`
}

func (f *T) ToObject() (o object.T) {
	o = object.T{
		{Key: "ids,omitempty", Value: f.IDs},
		{Key: "kinds,omitempty", Value: f.Kinds.ToArray()},
		{Key: "authors,omitempty", Value: f.Authors},
	}
	// these tags are not grouped under a top level key but unfolded into the
	// object, promoted to the same level as their enclosing map. Go doesn't
	// have a native "collection" type like this, but our object.T does the same
	// thing for encoding.
	//
	// due to the nondeterministic map iteration of Go, we make a temp slice
	// and sort it.
	var tmp object.T
	for i := range f.Tags {
		tmp = append(tmp, object.KV{Key: i, Value: f.Tags[i]})
	}
	sort.Sort(tmp)
	o = append(o, tmp...)
	o = append(o, object.T{
		{Key: "since,omitempty", Value: f.Since},
		{Key: "until,omitempty", Value: f.Until},
	}...)
	o = append(o, object.KV{Key: "limit,omitempty", Value: f.Limit})
	if f.Search != "" {
		o = append(o, object.NewKV("search,omitempty", f.Search))
	}
	return
}

func (f *T) MarshalJSON() (b []byte, e error) {
	return f.ToObject().Bytes(), nil
}

// UnmarshalJSON correctly unpacks a JSON encoded T rolling up the Tags as
// they should be.
func (f *T) UnmarshalJSON(b []byte) (e error) {
	if f == nil {
		return fmt.Errorf("cannot unmarshal into nil T")
	}
	log.D.F("unmarshaling filter `%s`", b)
	var raw map[string]json.RawMessage
	if e = json.Unmarshal(b, &raw); log.D.Chk(e) {
		return
	}
	if v, ok := raw["ids"]; ok {
		if e = json.Unmarshal(v, &f.IDs); log.D.Chk(e) {
			return
		}
	}
	if v, ok := raw["kinds"]; ok {
		var ints []int
		if e = json.Unmarshal(v, &ints); log.D.Chk(e) {
			return
		}
		f.Kinds = kinds.FromIntSlice(ints)
	}
	if v, ok := raw["authors"]; ok {
		if e = json.Unmarshal(v, &f.Authors); log.D.Chk(e) {
			return
		}
	}
	if v, ok := raw["since"]; ok {
		if e = json.Unmarshal(v, &f.Since); log.D.Chk(e) {
			return
		}
	}
	if v, ok := raw["until"]; ok {
		if e = json.Unmarshal(v, &f.Until); log.D.Chk(e) {
			return
		}
	}
	if v, ok := raw["limit"]; ok {
		if e = json.Unmarshal(v, &f.Limit); log.D.Chk(e) {
			return
		}
	}
	if v, ok := raw["search"]; ok {
		if e = json.Unmarshal(v, &f.Search); log.D.Chk(e) {
			return
		}
	}
	f.Tags = make(TagMap)
	for k, v := range raw {
		if !strings.HasPrefix(k, "#") || len(k) != 2 {
			continue
		}
		var vals []string
		if e = json.Unmarshal(v, &vals); log.D.Chk(e) {
			return
		}
		if len(vals) > 0 {
			f.Tags[k] = vals
		}
	}
	return
}

// TagMap holds the "#e", "#p", and other single-letter tag filters, each
// mapping to the list of values a matching event's tag value must be one of.
type TagMap map[string][]string

func (t TagMap) Clone() (t1 TagMap) {
	if t == nil {
		return
	}
	t1 = make(TagMap)
	for i := range t {
		t1[i] = append([]string{}, t[i]...)
	}
	return
}

func (f *T) String() string {
	j, _ := json.Marshal(f)
	return string(j)
}

func (f *T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}

	if f.IDs != nil && !f.IDs.Contains(ev.ID.String()) {
		return false
	}

	if f.Kinds != nil && !f.Kinds.Contains(ev.Kind) {
		return false
	}

	if f.Authors != nil && !f.Authors.Contains(ev.PubKey) {
		return false
	}

	for tagName, values := range f.Tags {
		if len(values) > 0 && !ev.Tags.ContainsAny(strings.TrimPrefix(tagName, "#"), values...) {
			return false
		}
	}

	if f.Since != nil && ev.CreatedAt < timestamp.T(*f.Since) {
		return false
	}

	if f.Until != nil && ev.CreatedAt > timestamp.T(*f.Until) {
		return false
	}

	return true
}

func arePointerValuesEqual[V comparable](a *V, b *V) bool {
	if a == nil && b == nil {
		return true
	}
	if a != nil && b != nil {
		return *a == *b
	}
	return false
}

func FilterEqual(a, b *T) bool {
	// switch is a convenient way to bundle a long list of tests like this:
	switch {
	case !a.Kinds.Equals(b.Kinds),
		!a.IDs.Equals(b.IDs),
		!a.Authors.Equals(b.Authors),
		len(a.Tags) != len(b.Tags),
		!arePointerValuesEqual(a.Since, b.Since),
		!arePointerValuesEqual(a.Until, b.Until),
		a.Search != b.Search:

		return false
	}
	for tagName, av := range a.Tags {
		bv, ok := b.Tags[tagName]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

func (f *T) Clone() (clone *T) {
	clone = &T{
		IDs:     f.IDs.Clone(),
		Authors: f.Authors.Clone(),
		Kinds:   f.Kinds.Clone(),
		Limit:   f.Limit,
		Search:  f.Search,
		Tags:    f.Tags.Clone(),
	}
	if f.Since != nil {
		since := *f.Since
		clone.Since = &since
	}
	if f.Until != nil {
		until := *f.Until
		clone.Until = &until
	}
	return
}
