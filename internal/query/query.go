// Package query implements the query planner/executor: given a base path
// (possibly wildcarded), a set of filters and an order, it picks the best
// available index per filter, falls back to a table scan for the rest,
// merges/sorts/paginates the result, and optionally keeps a live monitor
// subscribed to the base path for add/change/remove notifications.
// Grounded on the teacher's internal/query package shape (a builder type
// plus a planner that turns an expression into a filter-only or
// filter+predicate result), adapted here to plan against
// internal/index.Coordinator instead of a SQL-backed IssueFilter.
package query

import (
	"github.com/acebase-go/acebase/internal/engine"
	"github.com/acebase-go/acebase/internal/index"
	"github.com/acebase-go/acebase/internal/path"
)

// Filter is one `{key, op, compare}` predicate.
type Filter struct {
	Key     string
	Op      string
	Compare any
}

// Order is one sort key, applied in slice order (first key is primary).
type Order struct {
	Key       string
	Ascending bool
}

// MonitorOptions enables live add/change/remove notifications on the
// query's result set (spec §4.9 "Live queries").
type MonitorOptions struct {
	Add    bool
	Change bool
	Remove bool
}

// Options controls execution and result shape.
type Options struct {
	// Snapshots, when true (default), loads each result's full value.
	// When false, only paths are returned.
	Snapshots bool
	Get       engine.GetOptions

	Monitor      MonitorOptions
	EventHandler func(Event)
}

// Event is one live-query notification (spec §4.9).
type Event struct {
	Name  string // "add" | "change" | "remove"
	Path  path.Path
	Value any
}

// DefaultOptions returns the snapshot-loading, no-monitor default.
func DefaultOptions() Options {
	return Options{Snapshots: true, Get: engine.DefaultGetOptions()}
}

// Item is one matching record.
type Item struct {
	Path  path.Path
	Value any // nil unless Options.Snapshots was true
}

// Query is a builder over a base path (spec §4.9 input: base path, filters,
// order, skip, take).
type Query struct {
	base    path.Path
	filters []Filter
	order   []Order
	skip    int
	take    int
}

// New starts a query rooted at base.
func New(base path.Path) *Query {
	return &Query{base: base}
}

// Filter appends a `{key, op, compare}` predicate.
func (q *Query) Filter(key, op string, compare any) *Query {
	q.filters = append(q.filters, Filter{Key: key, Op: op, Compare: compare})
	return q
}

// Sort appends a sort key; the first call is the primary sort order.
func (q *Query) Sort(key string, ascending bool) *Query {
	q.order = append(q.order, Order{Key: key, Ascending: ascending})
	return q
}

// Skip sets the number of leading matches to discard.
func (q *Query) Skip(n int) *Query {
	q.skip = n
	return q
}

// Take bounds the number of matches returned (0 or negative means
// unbounded).
func (q *Query) Take(n int) *Query {
	q.take = n
	return q
}

// Base returns the query's root path.
func (q *Query) Base() path.Path { return q.base }

// PlannedIndexes returns, per filter/order key, the coordinator index this
// query would consult if run now — useful for explain/reflect tooling
// without actually executing the query.
func (q *Query) PlannedIndexes(coord *index.Coordinator) map[string]index.Index {
	out := map[string]index.Index{}
	for _, f := range q.filters {
		if idx := bestIndexFor(coord, q.base, f); idx != nil {
			out[f.Key] = idx
		}
	}
	for _, o := range q.order {
		if _, ok := out[o.Key]; ok {
			continue
		}
		if idx, ok := coord.ForKeyOnPattern(q.base, o.Key); ok {
			out[o.Key] = idx
		}
	}
	return out
}
