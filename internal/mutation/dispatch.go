package mutation

import (
	"context"

	"github.com/acebase-go/acebase/internal/index"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/subscribe"
)

// Dispatcher computes and delivers the events a write causes (spec
// §4.7), and routes the same write's per-record diff to the index
// coordinator.
type Dispatcher struct {
	subs    *subscribe.Registry
	indexes *index.Coordinator
	// WaitForIndexUpdates mirrors the engine's configured
	// wait_for_index_updates policy (spec §4.7 step 3).
	WaitForIndexUpdates bool
}

// New creates a Dispatcher over the given subscription registry and index
// coordinator.
func New(subs *subscribe.Registry, indexes *index.Coordinator) *Dispatcher {
	return &Dispatcher{subs: subs, indexes: indexes}
}

// nav is one concrete (path, oldValue, newValue) triple discovered while
// expanding a subscriber's dataPath against the mutated subtree.
type nav struct {
	path path.Path
	old  any
	new  any
}

// expand walks relKeys through oldNode/newNode from base, expanding
// wildcard keys into every key present on either side (spec §4.7 step 4:
// "expanding wildcards into the actual keys present on either side").
func expand(base path.Path, oldNode, newNode any, relKeys []path.Key) []nav {
	if len(relKeys) == 0 {
		return []nav{{path: base, old: oldNode, new: newNode}}
	}
	k := relKeys[0]
	rest := relKeys[1:]

	if k.Wildcard {
		seen := map[string]bool{}
		var out []nav
		for name := range asMap(oldNode) {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, expand(base.Child(name), childByName(oldNode, name), childByName(newNode, name), rest)...)
		}
		for name := range asMap(newNode) {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, expand(base.Child(name), childByName(oldNode, name), childByName(newNode, name), rest)...)
		}
		return out
	}

	if k.IsIndex {
		childPath := base.ChildIndex(k.Index)
		return expand(childPath, childByIndex(oldNode, k.Index), childByIndex(newNode, k.Index), rest)
	}
	childPath := base.Child(k.Name)
	return expand(childPath, childByName(oldNode, k.Name), childByName(newNode, k.Name), rest)
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func childByName(v any, name string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m[name]
}

func childByIndex(v any, i int) any {
	a, ok := v.([]any)
	if !ok || i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// relKeys returns dataPath's keys beyond topEventPath's, or nil if
// dataPath doesn't descend from topEventPath (treated as "no further
// descent needed": the whole subtree at topEventPath is the data).
func relKeys(topEventPath, dataPath path.Path) []path.Key {
	top := topEventPath.Keys()
	data := dataPath.Keys()
	if len(data) < len(top) {
		return nil
	}
	for i, k := range top {
		if k.Name != data[i].Name || k.Index != data[i].Index || k.IsIndex != data[i].IsIndex {
			return nil
		}
	}
	return data[len(top):]
}

// Dispatch fires every subscriber and index affected by a write at
// mutPath whose pre-image/post-image rooted at topEventPath are oldTop
// and newTop (spec §4.7). reqContext is the caller-supplied opaque
// context propagated to every resulting event (spec §6 "Context").
func (d *Dispatcher) Dispatch(ctx context.Context, mutPath, topEventPath path.Path, oldTop, newTop any, reqContext any) error {
	if d.indexes != nil {
		rel := relKeys(topEventPath, mutPath)
		oldAtMut, newAtMut := oldTop, newTop
		if len(rel) > 0 {
			navs := expand(topEventPath, oldTop, newTop, rel)
			for _, n := range navs {
				if err := d.indexes.HandleWrite(ctx, n.path, n.old, n.new, d.WaitForIndexUpdates); err != nil {
					return err
				}
			}
		} else {
			if err := d.indexes.HandleWrite(ctx, mutPath, oldAtMut, newAtMut, d.WaitForIndexUpdates); err != nil {
				return err
			}
		}
	}

	if d.subs == nil {
		return nil
	}

	// Subscriber delivery runs on its own goroutine, scheduled on the next
	// tick after this write (spec §4.6 "callback invocations are scheduled
	// on the next tick"; §5(c) "event callbacks fire in a later tick than
	// the write that caused them"). Index routing above stays synchronous
	// on the caller's goroutine because WaitForIndexUpdates callers depend
	// on it completing before Dispatch returns; subscriber callbacks carry
	// no such contract and running them inline would hold the engine's
	// write lock for the duration of arbitrary user code, deadlocking any
	// callback that writes back into the database.
	subscribers := d.subs.GetAllSubscribersForPath(mutPath)
	go d.deliverEvents(subscribers, topEventPath, oldTop, newTop, reqContext)
	return nil
}

// deliverEvents runs the per-subscriber fan-out decided by Dispatch. It is
// always invoked via go from Dispatch so that delivery happens off the
// write's call stack, after the write transaction has already committed.
func (d *Dispatcher) deliverEvents(subscribers []subscribe.Matching, topEventPath path.Path, oldTop, newTop any, reqContext any) {
	for _, m := range subscribers {
		base := m.Sub.Type.BaseEvent()
		switch base {
		case subscribe.EventMutated, subscribe.EventMutations:
			d.dispatchMutations(m, topEventPath, oldTop, newTop, reqContext)
			continue
		}

		rel := relKeys(topEventPath, m.DataPath)
		for _, n := range expand(topEventPath, oldTop, newTop, rel) {
			fire, oldVal, newVal := decide(base, n.old, n.new)
			if !fire {
				continue
			}
			if m.Sub.Type.IsNotify() {
				oldVal, newVal = nil, nil
			}
			d.subs.Deliver(m.Sub, subscribe.Event{
				Type:     m.Sub.Type,
				Path:     n.path,
				DataPath: n.path,
				OldValue: oldVal,
				NewValue: newVal,
				Context:  reqContext,
			})
		}
	}
}

// decide implements spec §4.7 step 4's per-event-type trigger rules.
func decide(base subscribe.EventType, old, new any) (fire bool, oldVal, newVal any) {
	switch base {
	case subscribe.EventValue:
		return CompareValues(old, new).Kind != Identical, old, new
	case subscribe.EventChildAdded:
		return old == nil && new != nil, old, new
	case subscribe.EventChildRemoved:
		return old != nil && new == nil, old, new
	case subscribe.EventChildChanged:
		return old != nil && new != nil && CompareValues(old, new).Kind != Identical, old, new
	}
	return false, old, new
}

// dispatchMutations handles "mutated" (one event per leaf change) and
// "mutations" (one batched event) subscribers (spec §4.7 step 5).
func (d *Dispatcher) dispatchMutations(m subscribe.Matching, topEventPath path.Path, oldTop, newTop any, reqContext any) {
	rel := relKeys(topEventPath, m.EventPath)
	base := topEventPath
	oldAtEvent, newAtEvent := oldTop, newTop
	if rel != nil {
		navs := expand(topEventPath, oldTop, newTop, rel)
		if len(navs) != 1 {
			// Wildcarded mutated/mutations subscriber straddling more
			// than one concrete event path: dispatch each independently.
			for _, n := range navs {
				d.dispatchMutationsAt(m, n.path, n.old, n.new, reqContext)
			}
			return
		}
		base = navs[0].path
		oldAtEvent, newAtEvent = navs[0].old, navs[0].new
	}
	d.dispatchMutationsAt(m, base, oldAtEvent, newAtEvent, reqContext)
}

func (d *Dispatcher) dispatchMutationsAt(m subscribe.Matching, eventPath path.Path, old, new any, reqContext any) {
	leaves := LeafChanges(old, new, nil)
	if len(leaves) == 0 {
		return
	}

	notify := m.Sub.Type.IsNotify()

	if m.Sub.Type.BaseEvent() == subscribe.EventMutated {
		for _, lc := range leaves {
			target := eventPath
			for _, k := range lc.Target {
				target = target.Child(k)
			}
			oldVal, newVal := lc.Prev, lc.Val
			if notify {
				oldVal, newVal = nil, nil
			}
			d.subs.Deliver(m.Sub, subscribe.Event{
				Type:     m.Sub.Type,
				Path:     eventPath,
				DataPath: target,
				OldValue: oldVal,
				NewValue: newVal,
				Context:  reqContext,
			})
		}
		return
	}

	entries := make([]subscribe.MutationEntry, len(leaves))
	for i, lc := range leaves {
		entries[i] = subscribe.MutationEntry{Target: lc.Target, Prev: lc.Prev, Val: lc.Val}
	}
	if notify {
		for i := range entries {
			entries[i].Prev, entries[i].Val = nil, nil
		}
	}
	d.subs.Deliver(m.Sub, subscribe.Event{
		Type:      m.Sub.Type,
		Path:      eventPath,
		DataPath:  eventPath,
		Mutations: entries,
		Context:   reqContext,
	})
}
