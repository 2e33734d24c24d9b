package acebase

import (
	"context"
	"fmt"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/engine"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/pushid"
	"github.com/acebase-go/acebase/internal/subscribe"
)

// DataReference composes a path and an optional write context (spec
// §4.10 "A DataReference composes a path and a context").
type DataReference struct {
	db      *AceBase
	path    path.Path
	context any
}

func hasWildcard(p path.Path) bool {
	for _, k := range p.Keys() {
		if k.Wildcard {
			return true
		}
	}
	return false
}

// Path returns the reference's canonical path string.
func (r *DataReference) Path() string { return r.path.String() }

// Key returns the reference's own key (its path's last segment), or ""
// at the root.
func (r *DataReference) Key() string {
	if r.path.IsRoot() {
		return ""
	}
	return r.path.LastKey().String()
}

// IsWildcard reports whether the reference's path contains a wildcard
// segment (spec §4.10 "Wildcard refs disallow write/get/remove").
func (r *DataReference) IsWildcard() bool { return hasWildcard(r.path) }

// Context sets (or, with merge=true, merges into) the opaque context
// object attached to every event this reference's writes cause (spec §6
// "ref.context(obj, merge?)"). Returns r for chaining.
func (r *DataReference) Context(ctx any, merge bool) *DataReference {
	if !merge {
		r.context = ctx
		return r
	}
	base, _ := r.context.(map[string]any)
	merged := map[string]any{}
	for k, v := range base {
		merged[k] = v
	}
	if add, ok := ctx.(map[string]any); ok {
		for k, v := range add {
			merged[k] = v
		}
	}
	r.context = merged
	return r
}

// Child returns a reference to the named child.
func (r *DataReference) Child(key string) *DataReference {
	return &DataReference{db: r.db, path: r.path.Child(key), context: r.context}
}

// Parent returns a reference to the parent, or nil at the root.
func (r *DataReference) Parent() *DataReference {
	if r.path.IsRoot() {
		return nil
	}
	return &DataReference{db: r.db, path: r.path.Parent(), context: r.context}
}

func (r *DataReference) writeOpts() WriteOptions {
	return WriteOptions{Context: r.context}
}

// Set replaces the reference's value entirely (spec §6 "set(value,
// cb?)").
func (r *DataReference) Set(ctx context.Context, value any) error {
	if r.IsWildcard() {
		return fmt.Errorf("%w: cannot set a wildcard reference %q, use Query instead", acebaseerr.ErrInvalidArgument, r.path)
	}
	return r.db.eng.Set(ctx, r.path, value, r.writeOpts())
}

// Update merges value's properties into the object at the reference,
// leaving other properties untouched (spec §6 "update(object, cb?)").
func (r *DataReference) Update(ctx context.Context, value any) error {
	if r.IsWildcard() {
		return fmt.Errorf("%w: cannot update a wildcard reference %q, use Query instead", acebaseerr.ErrInvalidArgument, r.path)
	}
	return r.db.eng.Update(ctx, r.path, value, r.writeOpts())
}

// Remove deletes the reference's node — equivalent to set(null) (spec
// §4.10 "remove (which calls set(null))").
func (r *DataReference) Remove(ctx context.Context) error {
	if r.IsWildcard() {
		return fmt.Errorf("%w: cannot remove a wildcard reference %q, use Query instead", acebaseerr.ErrInvalidArgument, r.path)
	}
	return r.db.eng.Remove(ctx, r.path, r.writeOpts())
}

// Push generates a time-sortable child key, sets value at it, and
// returns a reference to the new child (spec §6 "push(value?, cb?)").
// A nil value still reserves the key without storing a child record.
func (r *DataReference) Push(ctx context.Context, value any) (*DataReference, error) {
	if r.IsWildcard() {
		return nil, fmt.Errorf("%w: cannot push to a wildcard reference %q", acebaseerr.ErrInvalidArgument, r.path)
	}
	child := r.Child(pushid.New())
	if value == nil {
		return child, nil
	}
	if err := child.Set(ctx, value); err != nil {
		return nil, err
	}
	return child, nil
}

// Get loads the reference's value, applying opts' include/exclude/
// child_objects filters (spec §6 "get(options?)").
func (r *DataReference) Get(ctx context.Context, opts GetOptions) (*DataSnapshot, error) {
	if r.IsWildcard() {
		return nil, fmt.Errorf("%w: cannot get a wildcard reference %q, use Query instead", acebaseerr.ErrInvalidArgument, r.path)
	}
	res, err := r.db.eng.Get(ctx, r.path, opts)
	if err != nil {
		return nil, err
	}
	return &DataSnapshot{ref: r, res: res}, nil
}

// Exists reports whether the reference currently addresses a node (spec
// §6 "exists()").
func (r *DataReference) Exists(ctx context.Context) (bool, error) {
	snap, err := r.Get(ctx, GetOptions{})
	if err != nil {
		return false, err
	}
	return snap.Exists(), nil
}

// Count returns the number of direct children the reference has (spec
// §6 "count()").
func (r *DataReference) Count(ctx context.Context) (int, error) {
	if r.IsWildcard() {
		return 0, fmt.Errorf("%w: cannot count a wildcard reference %q", acebaseerr.ErrInvalidArgument, r.path)
	}
	n := 0
	err := r.db.eng.GetChildren(ctx, r.path, func(engine.NodeInfo) bool {
		n++
		return true
	})
	return n, err
}

// TransactFunc receives the current value (nil if absent) and returns
// the value to write. Returning cancel=true (or returning (nil, false)
// is not itself cancellation — see Transaction) aborts the write,
// leaving the reference unchanged (spec §4.10 "transaction callback
// that throws or returns undefined -> transaction canceled").
type TransactFunc func(current any) (newValue any, cancel bool)

// Transaction runs fn under the node's write lock, atomically replacing
// the current value with whatever fn returns (spec §6
// "transaction(cb)"). fn returning cancel=true leaves the reference
// untouched.
func (r *DataReference) Transaction(ctx context.Context, fn TransactFunc) error {
	if r.IsWildcard() {
		return fmt.Errorf("%w: cannot transact a wildcard reference %q", acebaseerr.ErrInvalidArgument, r.path)
	}
	return r.db.eng.Transact(ctx, r.path, engine.TransactFunc(fn), r.writeOpts())
}

// On subscribes to event at the reference's pattern, returning an
// EventStream (spec §6 "on(event, cb?, cancelCb?)"). cb may be nil, in
// which case the stream must be driven via EventStream.Subscribe.
func (r *DataReference) On(eventType string, cb func(*DataSnapshot)) *EventStream {
	es := newEventStream(r, subscribe.EventType(eventType))
	if cb != nil {
		es.Subscribe(cb)
	}
	return es
}

// Once subscribes to event and resolves with the first snapshot
// delivered, then unsubscribes (spec §6 "once(event, options?)").
func (r *DataReference) Once(ctx context.Context, eventType string) (*DataSnapshot, error) {
	result := make(chan *DataSnapshot, 1)
	es := newEventStream(r, subscribe.EventType(eventType))
	es.Subscribe(func(snap *DataSnapshot) {
		select {
		case result <- snap:
		default:
		}
		es.Stop()
	})
	select {
	case snap := <-result:
		return snap, nil
	case <-ctx.Done():
		es.Stop()
		return nil, ctx.Err()
	}
}

// Off removes every subscription this reference registered for
// eventType (empty string for all event types) — spec §6 "off(event?,
// cb?)". Individual EventStream.Stop calls are the per-subscription
// equivalent; Off is for bulk cleanup of a reference's listeners.
func (r *DataReference) Off(eventType string) {
	r.db.subs.OffAll(r.path, subscribe.EventType(eventType))
}

// Query starts a query rooted at the reference (spec §6 ".query()").
func (r *DataReference) Query() *Query {
	return newQuery(r.db, r.path)
}

// Reflect inspects backend-level metadata: "info" returns whether the
// node exists plus the nearest dedicated record's revision and timestamps
// (whether the reference itself has a dedicated record, or inherits one
// from an inline-hosting ancestor); "children" lists direct
// child keys (spec §6 "reflect('info'|'children', args)").
func (r *DataReference) Reflect(ctx context.Context, kind string) (any, error) {
	switch kind {
	case "info":
		res, err := r.db.eng.Get(ctx, r.path, GetOptions{ChildObjects: false})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"exists":      res.Exists,
			"revision":    res.Revision,
			"revision_nr": res.RevisionNr,
			"created":     res.Created,
			"modified":    res.Modified,
		}, nil
	case "children":
		var keys []string
		err := r.db.eng.GetChildren(ctx, r.path, func(info engine.NodeInfo) bool {
			keys = append(keys, info.Key)
			return true
		})
		return keys, err
	default:
		return nil, fmt.Errorf("%w: unknown reflect kind %q", acebaseerr.ErrInvalidArgument, kind)
	}
}
