// Package index implements the index coordinator's leaf contracts (spec
// §4.8): NormalIndex and ArrayIndex, each an in-memory value->record-set
// map. Index file formats/B+Tree layout are out of this module's scope
// (spec §1 names them an external collaborator); what's specified is the
// build/handleRecordUpdate/query/take/test/validOperators contract, which
// these implementations satisfy using github.com/RoaringBitmap/roaring
// bitmaps for the per-value record-id sets, grounded on the bitmap algebra
// used across the example pack's lattice/closure.go (Extent/Intent
// bitmaps joined with Add/Contains/Iterator/Clone).
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/acebase-go/acebase/internal/path"
)

// Entry is one record the index tracks: its path and the value(s) at the
// indexed key(s).
type Entry struct {
	Path  path.Path
	Value any
}

// ResultSet is the output of Query/Take: a set of matching record ids
// resolved back to paths, and carries enough of a bitmap identity to be
// intersected/unioned by the query planner when combining multiple
// indexed filters (spec §4.9 "intersect result sets on record path").
type ResultSet struct {
	ids      *roaring.Bitmap
	idToPath map[uint32]path.Path
}

func newResultSet() *ResultSet {
	return &ResultSet{ids: roaring.New(), idToPath: make(map[uint32]path.Path)}
}

// Len reports the number of matching paths.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return int(rs.ids.GetCardinality())
}

// Paths returns the matching paths in no particular order.
func (rs *ResultSet) Paths() []path.Path {
	if rs == nil {
		return nil
	}
	out := make([]path.Path, 0, rs.Len())
	it := rs.ids.Iterator()
	for it.HasNext() {
		out = append(out, rs.idToPath[it.Next()])
	}
	return out
}

// Intersect returns the paths present in both result sets (spec §4.9:
// "intersect result sets on record path, shortest set first, probe the
// rest"). Each index numbers its records independently, so membership is
// decided by path; the result keeps rs's ids.
func (rs *ResultSet) Intersect(other *ResultSet) *ResultSet {
	inOther := make(map[string]bool, len(other.idToPath))
	for _, p := range other.idToPath {
		inOther[p.String()] = true
	}
	out := newResultSet()
	for id, p := range rs.idToPath {
		if inOther[p.String()] {
			out.ids.Add(id)
			out.idToPath[id] = p
		}
	}
	return out
}

// Union returns the paths present in either result set, renumbered so
// that ids from different indexes cannot collide.
func (rs *ResultSet) Union(other *ResultSet) *ResultSet {
	out := newResultSet()
	seen := map[string]bool{}
	var next uint32
	for _, set := range []*ResultSet{rs, other} {
		for _, p := range set.idToPath {
			if !seen[p.String()] {
				seen[p.String()] = true
				out.ids.Add(next)
				out.idToPath[next] = p
				next++
			}
		}
	}
	return out
}

// Index is the contract external index modules expose (spec §4.8).
type Index interface {
	// PathPattern is the (possibly wildcarded) path this index covers.
	PathPattern() path.Path
	// Key is the primary indexed property name.
	Key() string
	// Type reports "normal" or "array".
	Type() string
	// Build (re)populates the index from a full snapshot of entries.
	Build(ctx context.Context, entries []Entry) error
	// HandleRecordUpdate incrementally updates the index for one record's
	// change (spec §4.7 step 3).
	HandleRecordUpdate(ctx context.Context, p path.Path, oldValue, newValue any) error
	// Query evaluates op against compare over every indexed value.
	Query(op string, compare any) (*ResultSet, error)
	// Take selects the page at positions skip..skip+count-1 of the
	// indexed-value order (ascending or descending), for sort-only use
	// (spec §4.8). The ResultSet keeps no order: Paths lists the page's
	// paths in no particular order.
	Take(skip, count int, ascending bool) (*ResultSet, error)
	// Test evaluates op/compare against a single candidate value, for
	// the query planner to re-check a live-query candidate without a
	// full Query call.
	Test(value any, op string, compare any) (bool, error)
	// ValidOperators is the set of operators this index type supports.
	ValidOperators() map[string]bool
}

// normalValidOperators is the operator set a NormalIndex supports: every
// standard operator except the collection-only has/contains (spec §4.8
// leaves validOperators index-type specific; normal indexes are
// scalar-keyed so membership/collection operators don't apply).
var normalValidOperators = func() map[string]bool {
	ops := map[string]bool{}
	for op := range StandardOperators {
		if op == "has" || op == "!has" || op == "contains" || op == "!contains" {
			continue
		}
		ops[op] = true
	}
	return ops
}()

// arrayValidOperators is the operator set an ArrayIndex supports:
// membership-oriented operators over each element plus equality/exists.
var arrayValidOperators = map[string]bool{
	"has": true, "!has": true, "contains": true, "!contains": true,
	"==": true, "!=": true, "exists": true, "!exists": true,
}

type recordEntry struct {
	id    uint32
	path  path.Path
	value any
}

// NormalIndex indexes a single scalar property per record (spec §3 "Index
// spec", type normal).
type NormalIndex struct {
	mu      sync.RWMutex
	pattern path.Path
	key     string

	nextID   uint32
	byPath   map[string]*recordEntry
	byID     map[uint32]*recordEntry
	byValue  map[any]*roaring.Bitmap // exact-match buckets, keyed by normalized value
	sorted   []uint32                // ids sorted by value ascending, rebuilt lazily
	sortedOK bool
}

// NewNormal creates an empty NormalIndex on pattern/key.
func NewNormal(pattern path.Path, key string) *NormalIndex {
	return &NormalIndex{
		pattern: pattern,
		key:     key,
		byPath:  make(map[string]*recordEntry),
		byID:    make(map[uint32]*recordEntry),
		byValue: make(map[any]*roaring.Bitmap),
	}
}

func (ix *NormalIndex) PathPattern() path.Path       { return ix.pattern }
func (ix *NormalIndex) Key() string                  { return ix.key }
func (ix *NormalIndex) Type() string                 { return "normal" }
func (ix *NormalIndex) ValidOperators() map[string]bool { return normalValidOperators }

// ExtractKeyValue reads key (possibly a nested "a/b" property path) off a
// record value, returning nil if absent. Exported for the query planner's
// table-scan fallback, which needs the same key-extraction rule an index
// uses without going through a registered Index.
func ExtractKeyValue(record any, key string) any {
	return extractKeyValue(record, key)
}

// extractKeyValue reads key (possibly a nested "a/b" property path) off a
// record value, returning nil if absent.
func extractKeyValue(record any, key string) any {
	cur := record
	for _, part := range strings.Split(key, "/") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func (ix *NormalIndex) Build(_ context.Context, entries []Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byPath = make(map[string]*recordEntry, len(entries))
	ix.byID = make(map[uint32]*recordEntry, len(entries))
	ix.byValue = make(map[any]*roaring.Bitmap)
	ix.nextID = 0
	ix.sortedOK = false
	for _, e := range entries {
		if kv := extractKeyValue(e.Value, ix.key); kv != nil {
			ix.insertLocked(e.Path, kv)
		}
	}
	return nil
}

func (ix *NormalIndex) insertLocked(p path.Path, value any) {
	id := ix.nextID
	ix.nextID++
	re := &recordEntry{id: id, path: p, value: value}
	ix.byPath[p.String()] = re
	ix.byID[id] = re
	bm, ok := ix.byValue[normalizeKey(value)]
	if !ok {
		bm = roaring.New()
		ix.byValue[normalizeKey(value)] = bm
	}
	bm.Add(id)
	ix.sortedOK = false
}

func (ix *NormalIndex) removeLocked(p path.Path) {
	re, ok := ix.byPath[p.String()]
	if !ok {
		return
	}
	delete(ix.byPath, p.String())
	delete(ix.byID, re.id)
	if bm, ok := ix.byValue[normalizeKey(re.value)]; ok {
		bm.Remove(re.id)
		if bm.IsEmpty() {
			delete(ix.byValue, normalizeKey(re.value))
		}
	}
	ix.sortedOK = false
}

// HandleRecordUpdate receives the full old/new record values at p (spec
// §4.7 "index.handleRecordUpdate(path, old, new)") and extracts this
// index's configured key from each side.
func (ix *NormalIndex) HandleRecordUpdate(_ context.Context, p path.Path, oldValue, newValue any) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	oldKV := extractKeyValue(oldValue, ix.key)
	newKV := extractKeyValue(newValue, ix.key)
	if oldKV != nil {
		ix.removeLocked(p)
	}
	if newKV != nil {
		ix.insertLocked(p, newKV)
	}
	return nil
}

func (ix *NormalIndex) Query(op string, compare any) (*ResultSet, error) {
	if !ix.ValidOperators()[op] {
		return nil, fmt.Errorf("normal index on %q: unsupported operator %q", ix.key, op)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rs := newResultSet()
	if op == "==" {
		if bm, ok := ix.byValue[normalizeKey(compare)]; ok {
			it := bm.Iterator()
			for it.HasNext() {
				id := it.Next()
				rs.ids.Add(id)
				rs.idToPath[id] = ix.byID[id].path
			}
		}
		return rs, nil
	}
	for _, re := range ix.byID {
		ok, err := Evaluate(re.value, op, compare)
		if err != nil {
			return nil, err
		}
		if ok {
			rs.ids.Add(re.id)
			rs.idToPath[re.id] = re.path
		}
	}
	return rs, nil
}

func (ix *NormalIndex) ensureSortedLocked() {
	if ix.sortedOK {
		return
	}
	ids := make([]uint32, 0, len(ix.byID))
	for id := range ix.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		c, _ := compareOrdered(ix.byID[ids[i]].value, ix.byID[ids[j]].value)
		if c != 0 {
			return c < 0
		}
		return path.Compare(ix.byID[ids[i]].path, ix.byID[ids[j]].path) < 0
	})
	ix.sorted = ids
	ix.sortedOK = true
}

func (ix *NormalIndex) Take(skip, count int, ascending bool) (*ResultSet, error) {
	ix.mu.Lock()
	ix.ensureSortedLocked()
	ids := ix.sorted
	ix.mu.Unlock()

	rs := newResultSet()
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := len(ids)
	pick := func(i int) uint32 {
		if ascending {
			return ids[i]
		}
		return ids[n-1-i]
	}
	for i := skip; i < n && (count <= 0 || i < skip+count); i++ {
		id := pick(i)
		rs.ids.Add(id)
		rs.idToPath[id] = ix.byID[id].path
	}
	return rs, nil
}

func (ix *NormalIndex) Test(value any, op string, compare any) (bool, error) {
	return Evaluate(value, op, compare)
}

// normalizeKey canonicalizes a value for use as a Go map key (numbers
// collapse to float64 so 1 and 1.0 hash identically).
func normalizeKey(v any) any {
	if f, ok := asFloat(v); ok {
		return f
	}
	return v
}

// ArrayIndex indexes array-valued properties by element membership (spec
// §3 "Index spec", type array): each element value maps to the bitmap of
// records whose array contains it.
type ArrayIndex struct {
	mu      sync.RWMutex
	pattern path.Path
	key     string

	nextID  uint32
	byPath  map[string]*recordEntry // value holds []any (the raw array)
	byID    map[uint32]*recordEntry
	byElem  map[any]*roaring.Bitmap
}

// NewArray creates an empty ArrayIndex on pattern/key.
func NewArray(pattern path.Path, key string) *ArrayIndex {
	return &ArrayIndex{
		pattern: pattern,
		key:     key,
		byPath:  make(map[string]*recordEntry),
		byID:    make(map[uint32]*recordEntry),
		byElem:  make(map[any]*roaring.Bitmap),
	}
}

func (ix *ArrayIndex) PathPattern() path.Path       { return ix.pattern }
func (ix *ArrayIndex) Key() string                  { return ix.key }
func (ix *ArrayIndex) Type() string                 { return "array" }
func (ix *ArrayIndex) ValidOperators() map[string]bool { return arrayValidOperators }

func (ix *ArrayIndex) Build(_ context.Context, entries []Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byPath = make(map[string]*recordEntry, len(entries))
	ix.byID = make(map[uint32]*recordEntry, len(entries))
	ix.byElem = make(map[any]*roaring.Bitmap)
	ix.nextID = 0
	for _, e := range entries {
		if kv := extractKeyValue(e.Value, ix.key); kv != nil {
			ix.insertLocked(e.Path, kv)
		}
	}
	return nil
}

func (ix *ArrayIndex) arrayOf(value any) []any {
	arr, _ := value.([]any)
	return arr
}

func (ix *ArrayIndex) insertLocked(p path.Path, value any) {
	id := ix.nextID
	ix.nextID++
	re := &recordEntry{id: id, path: p, value: value}
	ix.byPath[p.String()] = re
	ix.byID[id] = re
	for _, elem := range ix.arrayOf(value) {
		k := normalizeKey(elem)
		bm, ok := ix.byElem[k]
		if !ok {
			bm = roaring.New()
			ix.byElem[k] = bm
		}
		bm.Add(id)
	}
}

func (ix *ArrayIndex) removeLocked(p path.Path) {
	re, ok := ix.byPath[p.String()]
	if !ok {
		return
	}
	delete(ix.byPath, p.String())
	delete(ix.byID, re.id)
	for _, elem := range ix.arrayOf(re.value) {
		k := normalizeKey(elem)
		if bm, ok := ix.byElem[k]; ok {
			bm.Remove(re.id)
			if bm.IsEmpty() {
				delete(ix.byElem, k)
			}
		}
	}
}

func (ix *ArrayIndex) HandleRecordUpdate(_ context.Context, p path.Path, oldValue, newValue any) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	oldKV := extractKeyValue(oldValue, ix.key)
	newKV := extractKeyValue(newValue, ix.key)
	if oldKV != nil {
		ix.removeLocked(p)
	}
	if newKV != nil {
		ix.insertLocked(p, newKV)
	}
	return nil
}

func (ix *ArrayIndex) Query(op string, compare any) (*ResultSet, error) {
	if !ix.ValidOperators()[op] {
		return nil, fmt.Errorf("array index on %q: unsupported operator %q", ix.key, op)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rs := newResultSet()
	switch op {
	case "has", "contains":
		if bm, ok := ix.byElem[normalizeKey(compare)]; ok {
			it := bm.Iterator()
			for it.HasNext() {
				id := it.Next()
				rs.ids.Add(id)
				rs.idToPath[id] = ix.byID[id].path
			}
		}
		return rs, nil
	case "!has", "!contains":
		matching, ok := ix.byElem[normalizeKey(compare)]
		for id, re := range ix.byID {
			if ok && matching.Contains(id) {
				continue
			}
			rs.ids.Add(id)
			rs.idToPath[id] = re.path
		}
		return rs, nil
	}
	for _, re := range ix.byID {
		ok, err := Evaluate(re.value, op, compare)
		if err != nil {
			return nil, err
		}
		if ok {
			rs.ids.Add(re.id)
			rs.idToPath[re.id] = re.path
		}
	}
	return rs, nil
}

func (ix *ArrayIndex) Take(skip, count int, ascending bool) (*ResultSet, error) {
	return nil, fmt.Errorf("array index on %q: take (sort) is not supported", ix.key)
}

func (ix *ArrayIndex) Test(value any, op string, compare any) (bool, error) {
	switch op {
	case "has", "contains":
		for _, elem := range ix.arrayOf(value) {
			if equalValues(elem, compare) {
				return true, nil
			}
		}
		return false, nil
	case "!has", "!contains":
		ok, err := ix.Test(value, "has", compare)
		return !ok, err
	}
	return Evaluate(value, op, compare)
}
