package acebase

import (
	"strconv"

	"github.com/acebase-go/acebase/internal/engine"
	"github.com/acebase-go/acebase/internal/subscribe"
)

// DataSnapshot is the payload handed to a get() or a "value"/"child_*"
// event callback (spec §6 "Event payloads"). val()/previous() return the
// raw tree value (maps/slices/scalars), matching what Get returns.
type DataSnapshot struct {
	ref     *DataReference
	res     *engine.NodeResult // set when the snapshot came from Get
	event   *subscribe.Event   // set when the snapshot came from a subscription
}

// Ref returns the reference this snapshot describes.
func (s *DataSnapshot) Ref() *DataReference { return s.ref }

// Key returns the snapshot's own key.
func (s *DataSnapshot) Key() string { return s.ref.Key() }

// Val returns the snapshot's current value.
func (s *DataSnapshot) Val() any {
	if s.event != nil {
		return s.event.NewValue
	}
	if s.res != nil {
		return s.res.Value
	}
	return nil
}

// Previous returns the value before the write that produced this
// snapshot, or nil for a plain Get() snapshot (which has no notion of a
// prior value).
func (s *DataSnapshot) Previous() any {
	if s.event != nil {
		return s.event.OldValue
	}
	return nil
}

// Exists reports whether the snapshot's value is non-nil.
func (s *DataSnapshot) Exists() bool {
	if s.event != nil {
		return s.event.NewValue != nil
	}
	return s.res != nil && s.res.Exists
}

// Context returns the opaque context the write that produced this
// snapshot was tagged with (spec §6 "snapshot.context()").
func (s *DataSnapshot) Context() any {
	if s.event != nil {
		return s.event.Context
	}
	return nil
}

// Child returns a DataSnapshot of the named child property, loaded
// directly from this snapshot's already-materialized value (no further
// backend access).
func (s *DataSnapshot) Child(key string) *DataSnapshot {
	var val any
	switch v := s.Val().(type) {
	case map[string]any:
		val = v[key]
	case []any:
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(v) {
			val = v[i]
		}
	}
	return &DataSnapshot{
		ref: s.ref.Child(key),
		res: &engine.NodeResult{Value: val, Exists: val != nil},
	}
}

// HasChild reports whether the named child property is present.
func (s *DataSnapshot) HasChild(key string) bool {
	m, ok := s.Val().(map[string]any)
	if !ok {
		return false
	}
	_, present := m[key]
	return present
}

// HasChildren reports whether the snapshot's value is a non-empty
// object or array.
func (s *DataSnapshot) HasChildren() bool {
	return s.NumChildren() > 0
}

// NumChildren returns the snapshot's direct child count.
func (s *DataSnapshot) NumChildren() int {
	switch v := s.Val().(type) {
	case map[string]any:
		return len(v)
	case []any:
		return len(v)
	default:
		return 0
	}
}

// ForEach invokes cb for every direct child, stopping early if cb
// returns false.
func (s *DataSnapshot) ForEach(cb func(*DataSnapshot) bool) {
	switch v := s.Val().(type) {
	case map[string]any:
		for k := range v {
			if !cb(s.Child(k)) {
				return
			}
		}
	case []any:
		for i := range v {
			if !cb(s.Child(indexKey(i))) {
				return
			}
		}
	}
}

func indexKey(i int) string {
	// Array children are addressed by their decimal index, which Child
	// parses back into a position in the decoded []any value.
	const digits = "0123456789"
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{digits[i%10]}, b...)
		i /= 10
	}
	return string(b)
}

// MutationEntry is one leaf-level change within a batched "mutations"
// event (spec §6 "MutationsDataSnapshot.val() returns
// [{target:[keys], val, prev}, ...]").
type MutationEntry struct {
	Target []string
	Val    any
	Prev   any
}

// MutationsDataSnapshot is the payload for "mutated"/"mutations" event
// callbacks.
type MutationsDataSnapshot struct {
	ref     *DataReference
	entries []MutationEntry
}

// Val returns every mutation entry in leaf-scan order (spec §5 ordering
// rule (d)).
func (m *MutationsDataSnapshot) Val() []MutationEntry { return m.entries }

// ForEach invokes cb with an individual per-mutation DataSnapshot for
// each entry, stopping early if cb returns false.
func (m *MutationsDataSnapshot) ForEach(cb func(int, *DataSnapshot) bool) {
	for i, e := range m.entries {
		snap := &DataSnapshot{
			ref: m.ref,
			res: &engine.NodeResult{Value: e.Val, Exists: e.Val != nil},
			event: &subscribe.Event{NewValue: e.Val, OldValue: e.Prev},
		}
		if !cb(i, snap) {
			return
		}
	}
}

// Child addresses a mutation by ordinal (spec §6 ".child(index)").
func (m *MutationsDataSnapshot) Child(index int) *MutationEntry {
	if index < 0 || index >= len(m.entries) {
		return nil
	}
	return &m.entries[index]
}
