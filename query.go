package acebase

import (
	"context"
	"fmt"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/engine"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/query"
)

// Query is the builder returned by DataReference.Query() (spec §6
// ".query().filter(k,op,v).sort(k, asc?).skip(n).take(n).get(...)").
type Query struct {
	db   *AceBase
	base path.Path
	q    *query.Query

	liveCallbacks map[string][]func(QueryEvent)
	mon           *query.Monitor
}

func newQuery(db *AceBase, base path.Path) *Query {
	return &Query{db: db, base: base, q: query.New(base)}
}

// Filter appends a `{key, op, compare}` predicate.
func (q *Query) Filter(key, op string, compare any) *Query {
	q.q.Filter(key, op, compare)
	return q
}

// Sort appends a sort key; the first call is the primary order.
func (q *Query) Sort(key string, ascending bool) *Query {
	q.q.Sort(key, ascending)
	return q
}

// Skip sets the number of leading matches to discard.
func (q *Query) Skip(n int) *Query {
	q.q.Skip(n)
	return q
}

// Take bounds the number of matches returned.
func (q *Query) Take(n int) *Query {
	q.q.Take(n)
	return q
}

// Get executes the query and returns a DataSnapshot per match, loaded
// per opts' include/exclude/child_objects filters (spec §6
// ".get(options?|cb?)").
func (q *Query) Get(ctx context.Context, opts GetOptions) ([]*DataSnapshot, error) {
	items, _, err := q.db.qexec.Get(ctx, q.q, query.Options{Snapshots: true, Get: opts})
	if err != nil {
		return nil, err
	}
	out := make([]*DataSnapshot, len(items))
	for i, it := range items {
		ref := &DataReference{db: q.db, path: it.Path}
		out[i] = &DataSnapshot{ref: ref, res: &engine.NodeResult{Value: it.Value, Exists: true}}
	}
	return out, nil
}

// GetRefs executes the query and returns a DataReference per match,
// without loading values (spec §6 ".getRefs()").
func (q *Query) GetRefs(ctx context.Context) ([]*DataReference, error) {
	items, _, err := q.db.qexec.Get(ctx, q.q, query.Options{Snapshots: false})
	if err != nil {
		return nil, err
	}
	out := make([]*DataReference, len(items))
	for i, it := range items {
		out[i] = &DataReference{db: q.db, path: it.Path}
	}
	return out, nil
}

// Count is the number of current matches.
func (q *Query) Count(ctx context.Context) (int, error) {
	refs, err := q.GetRefs(ctx)
	return len(refs), err
}

// Remove deletes every currently matching node, returning the number
// removed (spec §6 ".query()...remove()").
func (q *Query) Remove(ctx context.Context) (int, error) {
	refs, err := q.GetRefs(ctx)
	if err != nil {
		return 0, err
	}
	for _, ref := range refs {
		if err := ref.Remove(ctx); err != nil {
			return 0, err
		}
	}
	return len(refs), nil
}

// QueryEvent is the payload delivered to a live query's "add"/"change"/
// "remove" callback (spec §4.9 "emit {name: 'add'|'change'|'remove',
// path, value?}").
type QueryEvent struct {
	Name  string
	Path  string
	Value any
}

// On subscribes cb to one of "add", "change", "remove", "stats" or
// "hints" on the query's live result set (spec §6 ".on('add'|'change'|
// 'remove'|'stats'|'hints', cb)"). "stats" and "hints" fire once
// immediately with the query's current match count and planned index
// usage respectively, since they describe the query's execution rather
// than the subscribed result set's membership. The first "add"/
// "change"/"remove" subscription on a Query starts its live monitor;
// later calls reuse it.
func (q *Query) On(event string, cb func(QueryEvent)) error {
	switch event {
	case "stats":
		refs, err := q.GetRefs(context.Background())
		if err != nil {
			return err
		}
		cb(QueryEvent{Name: "stats", Value: map[string]any{"matches": len(refs)}})
		return nil
	case "hints":
		planned := q.q.PlannedIndexes(q.db.indexes)
		hints := make(map[string]string, len(planned))
		for key, idx := range planned {
			hints[key] = idx.Type()
		}
		cb(QueryEvent{Name: "hints", Value: hints})
		return nil
	case "add", "change", "remove":
		return q.onLive(event, cb)
	default:
		return fmt.Errorf("%w: unknown query event %q", acebaseerr.ErrInvalidArgument, event)
	}
}

func (q *Query) onLive(event string, cb func(QueryEvent)) error {
	if q.liveCallbacks == nil {
		q.liveCallbacks = map[string][]func(QueryEvent){}
	}
	q.liveCallbacks[event] = append(q.liveCallbacks[event], cb)

	if q.mon != nil {
		return nil
	}

	opts := query.Options{
		Snapshots: true,
		Monitor:   query.MonitorOptions{Add: true, Change: true, Remove: true},
		EventHandler: func(ev query.Event) {
			for _, fn := range q.liveCallbacks[ev.Name] {
				fn(QueryEvent{Name: ev.Name, Path: ev.Path.String(), Value: ev.Value})
			}
		},
	}
	_, mon, err := q.db.qexec.Get(context.Background(), q.q, opts)
	if err != nil {
		return err
	}
	q.mon = mon
	return nil
}

// Stop tears down the query's live monitor, if one was started via On.
func (q *Query) Stop() {
	if q.mon != nil {
		q.mon.Stop()
		q.mon = nil
	}
}
