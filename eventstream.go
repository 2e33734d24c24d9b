package acebase

import (
	"fmt"

	"github.com/acebase-go/acebase/internal/subscribe"
)

// EventStream is the handle returned by DataReference.On/Once: it
// supports subscribe/unsubscribe/stop (spec §6 "returning an EventStream
// that supports subscribe/unsubscribe/stop").
type EventStream struct {
	ref  *DataReference
	typ  subscribe.EventType
	subs []*subscribe.Subscription
}

func newEventStream(ref *DataReference, typ subscribe.EventType) *EventStream {
	return &EventStream{ref: ref, typ: typ}
}

// Subscribe registers cb, returning a token that Unsubscribe accepts to
// remove just this callback. A stream may have more than one subscribed
// callback; Stop tears all of them down at once. Subscribe is for
// value/child_* event types; "mutated"/"mutations" streams carry a
// MutationsDataSnapshot instead and must use SubscribeMutations.
func (es *EventStream) Subscribe(cb func(*DataSnapshot)) *subscribe.Subscription {
	if base := es.typ.BaseEvent(); base == subscribe.EventMutated || base == subscribe.EventMutations {
		panic(fmt.Sprintf("acebase: %q is a mutations event, use EventStream.SubscribeMutations", es.typ))
	}
	sub := es.ref.db.subs.On(es.ref.path, es.typ, func(ev subscribe.Event) bool {
		ev := ev
		cb(&DataSnapshot{ref: &DataReference{db: es.ref.db, path: ev.Path}, event: &ev})
		return true
	})
	es.subs = append(es.subs, sub)
	return sub
}

// SubscribeMutations is Subscribe for "mutated"/"mutations" event types,
// whose payload is a MutationsDataSnapshot rather than a DataSnapshot
// (spec §6 "MutationsDataSnapshot").
func (es *EventStream) SubscribeMutations(cb func(*MutationsDataSnapshot)) *subscribe.Subscription {
	sub := es.ref.db.subs.On(es.ref.path, es.typ, func(ev subscribe.Event) bool {
		entries := make([]MutationEntry, len(ev.Mutations))
		for i, m := range ev.Mutations {
			entries[i] = MutationEntry{Target: m.Target, Val: m.Val, Prev: m.Prev}
		}
		cb(&MutationsDataSnapshot{ref: &DataReference{db: es.ref.db, path: ev.Path}, entries: entries})
		return true
	})
	es.subs = append(es.subs, sub)
	return sub
}

// Unsubscribe removes one callback previously returned by Subscribe.
func (es *EventStream) Unsubscribe(sub *subscribe.Subscription) {
	es.ref.db.subs.Off(sub)
	for i, s := range es.subs {
		if s == sub {
			es.subs = append(es.subs[:i], es.subs[i+1:]...)
			return
		}
	}
}

// Stop unsubscribes every callback this stream registered.
func (es *EventStream) Stop() {
	for _, s := range es.subs {
		es.ref.db.subs.Off(s)
	}
	es.subs = nil
}
