// Package subscribe implements the subscription registry (spec §4.6): a
// path-pattern keyed table of event listeners plus the two lookups the
// engine and mutation dispatcher need per write. Grounded on the teacher's
// internal/eventbus package shape — a registry guarded by a mutex whose
// Deliver and Trigger invoke callbacks directly on the calling goroutine,
// so the caller (the mutation dispatcher) decides where delivery runs
// (spec §4.6's "scheduled on the next tick") instead of forcing a
// particular executor here.
package subscribe

import (
	"sync"
	"sync/atomic"

	"github.com/acebase-go/acebase/internal/path"
)

// EventType enumerates the subscription kinds spec §4.6 names.
type EventType string

const (
	EventValue        EventType = "value"
	EventChildAdded   EventType = "child_added"
	EventChildChanged EventType = "child_changed"
	EventChildRemoved EventType = "child_removed"
	EventMutated      EventType = "mutated"
	EventMutations    EventType = "mutations"

	EventNotifyValue        EventType = "notify_value"
	EventNotifyChildAdded   EventType = "notify_child_added"
	EventNotifyChildChanged EventType = "notify_child_changed"
	EventNotifyChildRemoved EventType = "notify_child_removed"
	EventNotifyMutated      EventType = "notify_mutated"
	EventNotifyMutations    EventType = "notify_mutations"
)

// IsNotify reports whether t is one of the notify_* variants that carry a
// path reference only, never a value payload.
func (t EventType) IsNotify() bool {
	switch t {
	case EventNotifyValue, EventNotifyChildAdded, EventNotifyChildChanged, EventNotifyChildRemoved, EventNotifyMutated, EventNotifyMutations:
		return true
	}
	return false
}

// baseEvent strips a notify_ prefix, so callers can compare event families
// without caring whether the payload was requested.
func (t EventType) baseEvent() EventType {
	switch t {
	case EventNotifyValue:
		return EventValue
	case EventNotifyChildAdded:
		return EventChildAdded
	case EventNotifyChildChanged:
		return EventChildChanged
	case EventNotifyChildRemoved:
		return EventChildRemoved
	case EventNotifyMutated:
		return EventMutated
	case EventNotifyMutations:
		return EventMutations
	}
	return t
}

// BaseEvent strips a notify_ prefix, so callers can compare event families
// without caring whether the payload was requested.
func (t EventType) BaseEvent() EventType { return t.baseEvent() }

// MutationEntry is one leaf-level change, as carried by a batched
// "mutations" event (spec §4.7 step 5: "a single event with a batched
// list [{target:[keys], prev, val}, …]").
type MutationEntry struct {
	Target []string
	Prev   any
	Val    any
}

// Event is delivered to a Callback on trigger.
type Event struct {
	Type      EventType
	Path      path.Path // eventPath: subscriber's pattern filled with concrete keys
	DataPath  path.Path // deepest path whose data the subscriber needs
	OldValue  any
	NewValue  any
	Context   any
	Mutations []MutationEntry // populated only for "mutations" events
}

// Callback receives dispatched events. Returning false unsubscribes.
type Callback func(Event) bool

// Subscription is a registered listener.
type Subscription struct {
	ID      uint64
	Pattern path.Path
	Type    EventType
	Created int64 // epoch ms
	Fn      Callback
}

// Registry is the subscription table, one per database handle (spec §5:
// "process-wide singletons per database handle").
type Registry struct {
	mu      sync.RWMutex
	nextID  uint64
	entries map[uint64]*Subscription
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[uint64]*Subscription)}
}

// On registers cb for events of type t matching pattern. Returns the
// subscription so the caller can Off it later.
func (r *Registry) On(pattern path.Path, t EventType, cb Callback) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := atomic.AddUint64(&r.nextID, 1)
	sub := &Subscription{ID: id, Pattern: pattern, Type: t, Fn: cb}
	r.entries[id] = sub
	return sub
}

// Off removes a subscription by identity.
func (r *Registry) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sub.ID)
}

// OffAll removes every subscription matching pattern and, if t is non-empty,
// matching that event type too.
func (r *Registry) OffAll(pattern path.Path, t EventType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sub := range r.entries {
		if !path.Equals(sub.Pattern, pattern) {
			continue
		}
		if t != "" && sub.Type != t {
			continue
		}
		delete(r.entries, id)
	}
}

// snapshot returns a stable copy of the current subscriptions to iterate
// without holding the lock during callback dispatch.
func (r *Registry) snapshot() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscription, 0, len(r.entries))
	for _, s := range r.entries {
		out = append(out, s)
	}
	return out
}

// needsPreimage reports whether a subscriber's callback contract requires
// loading previous data for event type t registered at pattern, relative to
// mutPath (spec §4.6 getValueSubscribersForPath rules).
func needsPreimage(pattern path.Path, t EventType, mutPath path.Path) bool {
	if t.IsNotify() {
		return false
	}
	switch t.baseEvent() {
	case EventValue:
		return path.Equals(pattern, mutPath) || path.IsAncestorOf(pattern, mutPath) || path.IsDescendantOf(pattern, mutPath)
	case EventChildAdded, EventChildRemoved:
		parent := mutPath.Parent()
		return path.Equals(pattern, parent) || path.IsDescendantOf(pattern, mutPath)
	case EventChildChanged:
		parent := mutPath.Parent()
		return path.Equals(pattern, parent) || path.IsAncestorOf(pattern, parent) || path.IsDescendantOf(pattern, mutPath)
	case EventMutated, EventMutations:
		return path.IsAncestorOf(pattern, mutPath) || path.Equals(pattern, mutPath) || path.IsDescendantOf(pattern, mutPath)
	}
	return false
}

// GetValueSubscribersForPath returns subscribers whose callback needs a
// pre-image to correctly report old/new values for a write at mutPath
// (spec §4.6).
func (r *Registry) GetValueSubscribersForPath(mutPath path.Path) []*Subscription {
	var out []*Subscription
	for _, s := range r.snapshot() {
		if needsPreimage(s.Pattern, s.Type, mutPath) {
			out = append(out, s)
		}
	}
	return out
}

// Matching is a subscriber paired with its computed eventPath and dataPath
// for one particular mutation.
type Matching struct {
	Sub      *Subscription
	EventPath path.Path
	DataPath  path.Path
}

// GetAllSubscribersForPath returns every subscriber on any path on the same
// trail as mutPath, with eventPath (pattern filled with concrete keys) and
// dataPath (deepest path whose data the subscriber needs) computed (spec
// §4.6).
func (r *Registry) GetAllSubscribersForPath(mutPath path.Path) []Matching {
	var out []Matching
	for _, s := range r.snapshot() {
		if !path.IsOnTrailOf(s.Pattern, mutPath) {
			continue
		}
		concrete := mutPath
		for len(concrete.Keys()) > len(s.Pattern.Keys()) {
			concrete = concrete.Parent()
		}
		eventPath, err := path.FillVariables(s.Pattern, concrete)
		if err != nil {
			eventPath = s.Pattern
		}
		dataPath := dataPathFor(s.Pattern, s.Type, mutPath)
		out = append(out, Matching{Sub: s, EventPath: eventPath, DataPath: dataPath})
	}
	return out
}

// dataPathFor computes the deepest path whose data a subscriber of type t
// registered at pattern needs, given a mutation at mutPath.
func dataPathFor(pattern path.Path, t EventType, mutPath path.Path) path.Path {
	base := t.baseEvent()
	switch base {
	case EventChildAdded, EventChildRemoved, EventChildChanged:
		if path.IsDescendantOf(mutPath, pattern) {
			return mutPath
		}
		return pattern
	default:
		if path.Compare(pattern, mutPath) >= 0 && (path.Equals(pattern, mutPath) || path.IsDescendantOf(pattern, mutPath)) {
			return pattern
		}
		return mutPath
	}
}

// Deliver invokes a single already-resolved subscription's callback
// directly, used by the mutation dispatcher once it has computed the
// concrete eventPath/dataPath/old/new for that specific subscriber (spec
// §4.7). Unsubscribes sub if the callback returns false.
func (r *Registry) Deliver(sub *Subscription, ev Event) {
	if !sub.Fn(ev) {
		r.Off(sub)
	}
}

// Trigger invokes every callback matching type t registered at
// subscriptionPath, delivering the given values. Per spec §4.6, delivery
// should be scheduled off the calling goroutine by the caller (the engine)
// rather than synchronously; Trigger itself just performs direct dispatch,
// so callers wanting "next tick" semantics should invoke it via go or a
// work queue.
func (r *Registry) Trigger(t EventType, subscriptionPath, dataPath path.Path, oldVal, newVal, context any) {
	for _, s := range r.snapshot() {
		if s.Type != t {
			continue
		}
		if !path.Equals(s.Pattern, subscriptionPath) {
			continue
		}
		ev := Event{Type: t, Path: subscriptionPath, DataPath: dataPath, OldValue: oldVal, NewValue: newVal, Context: context}
		if !s.Fn(ev) {
			r.Off(s)
		}
	}
}
