// Package engine implements the storage engine core (spec §4.5): the
// write/read pipelines that sit between the public reference API and the
// lower-level path/valuecodec/locker/storage/subscribe/index/mutation
// packages, deciding inline-vs-dedicated placement, computing diffs, and
// driving the event/index dispatch for every mutation.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/config"
	"github.com/acebase-go/acebase/internal/index"
	"github.com/acebase-go/acebase/internal/locker"
	"github.com/acebase-go/acebase/internal/mutation"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/pushid"
	"github.com/acebase-go/acebase/internal/storage"
	"github.com/acebase-go/acebase/internal/subscribe"
	"github.com/acebase-go/acebase/internal/valuecodec"
)

// undefinedType is the sentinel carrying JS's "undefined" distinction from
// "null": a null property deletes, an undefined one is either dropped
// (remove_void_properties) or rejected (spec §3 invariant 7).
type undefinedType struct{}

// Undefined marks a property that should not be stored. Use it in a map
// passed to Update/Set where JSON would have omitted the key entirely.
var Undefined any = undefinedType{}

func isUndefined(v any) bool {
	_, ok := v.(undefinedType)
	return ok
}

// dispatcher is the subset of *mutation.Dispatcher's surface the write
// pipeline drives. Narrowed to an interface so a cluster-aware
// broadcaster (internal/eventbus.MutationBroadcaster) can stand in for
// the plain Dispatcher without the engine needing to import eventbus —
// see SetDispatcher.
type dispatcher interface {
	Dispatch(ctx context.Context, mutPath, topEventPath path.Path, oldTop, newTop any, reqContext any) error
}

// Engine ties the locker, storage backend, subscription registry, index
// coordinator and mutation dispatcher into the read/write pipelines of
// spec §4.5.
type Engine struct {
	backend  storage.Backend
	lk       *locker.Locker
	subs     *subscribe.Registry
	indexes  *index.Coordinator
	dispatch dispatcher

	maxInlineSize        int
	removeVoidProperties bool
	waitForIndexUpdates  bool
}

// SetDispatcher overrides the engine's event dispatcher, e.g. to install
// an eventbus.MutationBroadcaster that also republishes writes to a
// cluster bus (spec §5's cluster bridge). Not safe to call concurrently
// with writes; call it once, right after New, before serving traffic.
func (e *Engine) SetDispatcher(d dispatcher) {
	e.dispatch = d
}

// New wires an Engine from its component packages and configuration.
func New(backend storage.Backend, subs *subscribe.Registry, indexes *index.Coordinator, cfg *config.Config) *Engine {
	d := mutation.New(subs, indexes)
	d.WaitForIndexUpdates = cfg.WaitForIndexUpdates
	return &Engine{
		backend:              backend,
		lk:                   locker.New(cfg.LockTimeout),
		subs:                 subs,
		indexes:              indexes,
		dispatch:             d,
		maxInlineSize:        cfg.MaxInlineValueSize,
		removeVoidProperties: cfg.RemoveVoidProperties,
		waitForIndexUpdates:  cfg.WaitForIndexUpdates,
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

func newTid() string { return pushid.New() }

// WriteOptions parameterizes Set/Update/Remove.
type WriteOptions struct {
	Context        any
	SuppressEvents bool
}

// Set replaces the value at p entirely.
func (e *Engine) Set(ctx context.Context, p path.Path, value any, opts WriteOptions) error {
	return e.writeNode(ctx, p, value, false, opts)
}

// Update merges value's properties into the object at p, leaving other
// properties untouched. Writing a non-object value behaves like Set.
func (e *Engine) Update(ctx context.Context, p path.Path, value any, opts WriteOptions) error {
	return e.writeNode(ctx, p, value, true, opts)
}

// Remove deletes the node at p (equivalent to Set(p, nil)).
func (e *Engine) Remove(ctx context.Context, p path.Path, opts WriteOptions) error {
	return e.writeNode(ctx, p, nil, false, opts)
}

func hasWildcard(p path.Path) bool {
	for _, k := range p.Keys() {
		if k.Wildcard {
			return true
		}
	}
	return false
}

// writeNode implements the write pipeline of spec §4.5 step 1-8.
func (e *Engine) writeNode(ctx context.Context, p path.Path, input any, merge bool, opts WriteOptions) error {
	if hasWildcard(p) {
		return fmt.Errorf("%w: cannot write to a wildcard path %q, use a query instead", acebaseerr.ErrNotAllowed, p)
	}
	if p.IsRoot() && !merge && input != nil {
		if _, ok := input.(map[string]any); !ok {
			return fmt.Errorf("%w: root value must be an object", acebaseerr.ErrInvalidValue)
		}
	}

	tid := newTid()
	lock, err := e.lk.Lock(ctx, p, tid, true, "writeNode", locker.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = e.lk.Unlock(lock) }()

	tx, err := e.backend.GetTransaction(ctx, storage.TransactionOptions{Path: p, Write: true})
	if err != nil {
		return err
	}

	// Step 1: resolve the top event path before reading anything, so the
	// single pre-image read below covers every subscriber that needs it.
	top := e.resolveTopEventPath(p)

	oldTop, err := e.readFullNode(ctx, tx, top)
	if err != nil {
		_ = tx.Rollback(ctx, err)
		return err
	}
	rel := relativeKeys(top, p)
	oldAtP := descend(oldTop, rel)

	newAtP, err := e.resolveNewValue(oldAtP, input, merge)
	if err != nil {
		_ = tx.Rollback(ctx, err)
		return err
	}
	newTop := spliceIn(oldTop, rel, newAtP)

	revision := pushid.New()
	if err := e.placeAt(ctx, tx, p, newAtP, revision); err != nil {
		_ = tx.Rollback(ctx, err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", acebaseerr.ErrBackend, err)
	}

	if !opts.SuppressEvents {
		if err := e.dispatch.Dispatch(ctx, p, top, oldTop, newTop, opts.Context); err != nil {
			return err
		}
	}
	return nil
}

// resolveTopEventPath finds the shallowest ancestor-or-equal path any
// value-needing subscriber requires the pre-image of (spec §4.5 step 1).
func (e *Engine) resolveTopEventPath(p path.Path) path.Path {
	top := p
	for _, s := range e.subs.GetValueSubscribersForPath(p) {
		if !path.IsOnTrailOf(s.Pattern, p) {
			continue
		}
		if len(s.Pattern.Keys()) >= len(top.Keys()) {
			continue
		}
		filled, ok := fillPatternPrefix(s.Pattern, p)
		if !ok {
			continue
		}
		top = filled
	}
	return top
}

// fillPatternPrefix fills pattern's wildcards (pattern must be no longer
// than p) using p's corresponding prefix, returning the concrete ancestor
// path pattern resolves to.
func fillPatternPrefix(pattern, p path.Path) (path.Path, bool) {
	pk := pattern.Keys()
	wk := p.Keys()
	if len(pk) > len(wk) {
		return path.Path{}, false
	}
	prefix := path.Root
	for _, k := range wk[:len(pk)] {
		if k.IsIndex {
			prefix = prefix.ChildIndex(k.Index)
		} else {
			prefix = prefix.Child(k.Name)
		}
	}
	filled, err := path.FillVariables(pattern, prefix)
	if err != nil {
		return path.Path{}, false
	}
	return filled, true
}

// relativeKeys returns p's keys beyond top's (top must be an ancestor-or-
// equal of p).
func relativeKeys(top, p path.Path) []path.Key {
	return append([]path.Key(nil), p.Keys()[len(top.Keys()):]...)
}

func descend(root any, rel []path.Key) any {
	cur := root
	for _, k := range rel {
		if cur == nil {
			return nil
		}
		if k.IsIndex {
			arr, ok := cur.([]any)
			if !ok || k.Index < 0 || k.Index >= len(arr) {
				return nil
			}
			cur = arr[k.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k.Name]
	}
	return cur
}

// spliceIn clones root and sets the value at rel to newVal, creating any
// missing intermediate containers along the way.
func spliceIn(root any, rel []path.Key, newVal any) any {
	if len(rel) == 0 {
		return newVal
	}
	head, rest := rel[0], rel[1:]
	if head.IsIndex {
		var arr []any
		if a, ok := root.([]any); ok {
			arr = append([]any(nil), a...)
		}
		for len(arr) <= head.Index {
			arr = append(arr, nil)
		}
		arr[head.Index] = spliceIn(arr[head.Index], rest, newVal)
		return arr
	}
	m := map[string]any{}
	if mm, ok := root.(map[string]any); ok {
		for k, v := range mm {
			m[k] = v
		}
	}
	updated := spliceIn(m[head.Name], rest, newVal)
	if updated == nil {
		delete(m, head.Name)
	} else {
		m[head.Name] = updated
	}
	return m
}

// resolveNewValue applies a set/merge/delete write to old, validating and
// normalizing the supplied input (spec §3 invariants 6, 7; §4.5 step 4).
func (e *Engine) resolveNewValue(old, input any, merge bool) (any, error) {
	if input == nil {
		return nil, nil
	}
	if isUndefined(input) {
		if e.removeVoidProperties {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: undefined is not a storable value", acebaseerr.ErrInvalidValue)
	}
	if !merge {
		return e.normalizeValue(input)
	}
	inputMap, ok := input.(map[string]any)
	if !ok {
		return e.normalizeValue(input)
	}

	// old may be an array: merging into it must not discard its elements,
	// and the result must still validate as a dense array (spec §8
	// Scenario 2).
	oldArray, isArray := old.([]any)
	base := map[string]any{}
	if isArray {
		for i, v := range oldArray {
			base[strconv.Itoa(i)] = v
		}
	} else if om, ok := old.(map[string]any); ok {
		for k, v := range om {
			base[k] = v
		}
	}

	for k, v := range inputMap {
		if isUndefined(v) {
			if e.removeVoidProperties {
				delete(base, k)
				continue
			}
			return nil, fmt.Errorf("%w: undefined value for merged property %q", acebaseerr.ErrInvalidValue, k)
		}
		if v == nil {
			delete(base, k)
			continue
		}
		nv, err := e.normalizeValue(v)
		if err != nil {
			return nil, err
		}
		base[k] = nv
	}

	if isArray {
		return assembleMergedArray(base)
	}
	return base, nil
}

// assembleMergedArray reassembles a decimal-string-keyed map back into a
// dense slice after an array-targeted merge, rejecting a non-trailing
// removal (spec §3 invariant 5: arrays have no sparse/hole
// representation; §8 Scenario 2: update(arr, {"0": null}) must fail with
// array-constraint while update(arr, {"2": null}) on a 3-element array
// must succeed).
func assembleMergedArray(base map[string]any) (any, error) {
	indices := make(map[int]bool, len(base))
	maxIdx := -1
	for k := range base {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 {
			continue
		}
		indices[i] = true
		if i > maxIdx {
			maxIdx = i
		}
	}
	for i := 0; i < maxIdx; i++ {
		if !indices[i] {
			return nil, fmt.Errorf("%w: array index %d missing after merge, only trailing elements may be removed", acebaseerr.ErrArrayConstraint, i)
		}
	}
	out := make([]any, maxIdx+1)
	for k, v := range base {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i > maxIdx {
			continue
		}
		out[i] = v
	}
	return out, nil
}

// normalizeValue validates v recursively: classifiable kinds only, no
// null/undefined array elements (invariant 5 — gaps require a whole-array
// rewrite, which this rejects outright rather than guessing at intent),
// undefined object properties dropped or rejected per remove_void_properties.
func (e *Engine) normalizeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if isUndefined(v) {
		if e.removeVoidProperties {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: undefined is not a storable value", acebaseerr.ErrInvalidValue)
	}
	switch val := v.(type) {
	case map[string]any:
		out := map[string]any{}
		for k, cv := range val {
			if isUndefined(cv) {
				if e.removeVoidProperties {
					continue
				}
				return nil, fmt.Errorf("%w: undefined value for property %q", acebaseerr.ErrInvalidValue, k)
			}
			if cv == nil {
				continue
			}
			ncv, err := e.normalizeValue(cv)
			if err != nil {
				return nil, err
			}
			out[k] = ncv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, cv := range val {
			if cv == nil || isUndefined(cv) {
				return nil, fmt.Errorf("%w: array element %d is null/undefined, rewrite the whole array instead", acebaseerr.ErrInvalidValue, i)
			}
			ncv, err := e.normalizeValue(cv)
			if err != nil {
				return nil, err
			}
			out[i] = ncv
		}
		return out, nil
	default:
		if _, err := valuecodec.Classify(val); err != nil {
			return nil, err
		}
		return val, nil
	}
}

// needsDedicated reports whether v must live in its own StoredRecord
// rather than inline in its parent's (spec §3: non-empty composites are
// always dedicated; everything else is dedicated iff it doesn't fit).
func (e *Engine) needsDedicated(v any) (bool, error) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) > 0 {
			return true, nil
		}
	case []any:
		if len(val) > 0 {
			return true, nil
		}
	}
	fits, err := valuecodec.FitsInline(v, e.maxInlineSize)
	if err != nil {
		return false, err
	}
	return !fits, nil
}

// placeAt persists newValue at p, deciding inline-vs-dedicated placement
// and delegating to the parent when p itself should live inline (spec
// §4.5 step 5-6).
func (e *Engine) placeAt(ctx context.Context, tx storage.Transaction, p path.Path, newValue any, revision string) error {
	if newValue == nil {
		if p.IsRoot() {
			// Root always has a dedicated object record (spec §3 invariant
			// 2); "deleting" it clears its children instead of removing it.
			newValue = map[string]any{}
		} else {
			return e.removeAt(ctx, tx, p, revision)
		}
	}

	ded, err := e.needsDedicated(newValue)
	if err != nil {
		return err
	}
	if ded || p.IsRoot() {
		return e.writeDedicatedRecord(ctx, tx, p, newValue, revision)
	}

	// newValue belongs inline in p's parent. Clear any stale dedicated
	// record first (a dedicated-to-inline transition).
	existing, err := tx.Get(ctx, p)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := e.deleteAt(ctx, tx, p, revision); err != nil {
			return err
		}
	}

	parent := p.Parent()
	parentExisting, err := tx.Get(ctx, parent)
	if err != nil {
		return err
	}
	parentValue, err := e.materializeParentValue(parentExisting)
	if err != nil {
		return err
	}
	parentValue = setChild(parentValue, p.LastKey(), newValue)
	return e.placeAt(ctx, tx, parent, parentValue, revision)
}

// materializeParentValue decodes an existing dedicated record's inline
// value map into a native composite (object/array), or an empty object if
// there is none yet, so the caller can splice a child into it.
func (e *Engine) materializeParentValue(rec *storage.Record) (any, error) {
	if rec == nil {
		return map[string]any{}, nil
	}
	m, _ := rec.Value.(map[string]any)
	decoded := map[string]any{}
	for k, raw := range m {
		dv, err := valuecodec.DecodeInline(raw)
		if err != nil {
			return nil, err
		}
		decoded[k] = dv
	}
	if rec.Type == valuecodec.KindArray {
		return assembleArray(decoded), nil
	}
	return decoded, nil
}

// setChild returns composite with key set to value, appending to an array
// parent only at its current length (invariant 5 forbids gaps; a
// non-trailing array element change always arrives as a full-array
// rewrite from resolveNewValue/normalizeValue instead of through here).
func setChild(composite any, key path.Key, value any) any {
	if key.IsIndex {
		arr, _ := composite.([]any)
		if key.Index == len(arr) {
			return append(arr, value)
		}
		if key.Index < len(arr) {
			out := append([]any(nil), arr...)
			out[key.Index] = value
			return out
		}
		return arr
	}
	m, ok := composite.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	m[key.Name] = value
	return m
}

// ensureAncestorRecords makes sure every proper ancestor of p has its own
// StoredRecord, creating empty composite placeholders where needed, so a
// freshly dedicated descendant never becomes an orphan (spec §3 invariant
// 3: a descendant dedicated record requires its whole ancestor chain to
// lead to an existing composite record, even though dedicated children
// are never listed in their parent's inline Value map and are instead
// discovered purely by path prefix via ChildrenOf/DescendantsOf).
func (e *Engine) ensureAncestorRecords(ctx context.Context, tx storage.Transaction, p path.Path, revision string) error {
	keys := p.Keys()
	cur := path.Root
	for i := 0; i < len(keys); i++ {
		existing, err := tx.Get(ctx, cur)
		if err != nil {
			return err
		}
		if existing == nil {
			kind := valuecodec.KindObject
			if keys[i].IsIndex {
				kind = valuecodec.KindArray
			}
			now := nowMs()
			if err := tx.Set(ctx, cur, &storage.Record{
				Type: kind, Value: map[string]any{}, Revision: revision,
				RevisionNr: 1, Created: now, Modified: now,
			}); err != nil {
				return err
			}
		}
		if keys[i].IsIndex {
			cur = cur.ChildIndex(keys[i].Index)
		} else {
			cur = cur.Child(keys[i].Name)
		}
	}
	return nil
}

// writeDedicatedRecord materializes newValue as p's own StoredRecord,
// recursing into non-inline children and cascading stale ones away.
func (e *Engine) writeDedicatedRecord(ctx context.Context, tx storage.Transaction, p path.Path, newValue any, revision string) error {
	kind, err := valuecodec.Classify(newValue)
	if err != nil {
		return err
	}
	existing, err := tx.Get(ctx, p)
	if err != nil {
		return err
	}
	if existing == nil && !p.IsRoot() {
		if err := e.ensureAncestorRecords(ctx, tx, p, revision); err != nil {
			return err
		}
	}

	var recValue any
	if kind == valuecodec.KindObject || kind == valuecodec.KindArray {
		recValue, err = e.placeChildren(ctx, tx, p, newValue, kind, existing, revision)
		if err != nil {
			return err
		}
	} else {
		recValue = newValue
	}

	rec := &storage.Record{
		Type:     kind,
		Value:    recValue,
		Revision: revision,
		Modified: nowMs(),
	}
	if existing != nil {
		rec.RevisionNr = existing.RevisionNr + 1
		rec.Created = existing.Created
	} else {
		rec.RevisionNr = 1
		rec.Created = rec.Modified
	}
	return tx.Set(ctx, p, rec)
}

// placeChildren walks newValue's direct children, writing dedicated ones
// recursively and inline-encoding the rest, and deletes any previously
// known child absent from newValue (spec §4.5 step 5: insert/update/
// delete/move).
func (e *Engine) placeChildren(ctx context.Context, tx storage.Transaction, p path.Path, newValue any, kind valuecodec.Kind, existing *storage.Record, revision string) (map[string]any, error) {
	oldInline := map[string]bool{}
	if existing != nil {
		if m, ok := existing.Value.(map[string]any); ok {
			for k := range m {
				oldInline[k] = true
			}
		}
	}
	oldDedicated := map[string]bool{}
	err := tx.ChildrenOf(ctx, p, storage.IncludeOptions{}, func(path.Path) bool { return true }, func(cp path.Path, _ *storage.Record) bool {
		oldDedicated[cp.LastKey().String()] = true
		return true
	})
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	seen := map[string]bool{}

	for key, value := range childEntries(newValue, kind) {
		seen[key] = true
		childPath := childPathFor(p, key, kind)

		ded, err := e.needsDedicated(value)
		if err != nil {
			return nil, err
		}
		if ded {
			if err := e.writeDedicatedRecord(ctx, tx, childPath, value, revision); err != nil {
				return nil, err
			}
			continue
		}
		if oldDedicated[key] {
			if err := e.deleteAt(ctx, tx, childPath, revision); err != nil {
				return nil, err
			}
		}
		encoded, err := valuecodec.EncodeInline(value)
		if err != nil {
			return nil, err
		}
		out[key] = encoded
	}

	for key := range oldDedicated {
		if seen[key] {
			continue
		}
		if err := e.deleteAt(ctx, tx, childPathFor(p, key, kind), revision); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// childEntries returns newValue's direct children keyed by their string
// form (decimal index for arrays), in no particular order — placeChildren
// doesn't depend on enumeration order.
func childEntries(v any, kind valuecodec.Kind) map[string]any {
	switch kind {
	case valuecodec.KindObject:
		m, _ := v.(map[string]any)
		return m
	case valuecodec.KindArray:
		a, _ := v.([]any)
		out := make(map[string]any, len(a))
		for i, cv := range a {
			out[strconv.Itoa(i)] = cv
		}
		return out
	default:
		return nil
	}
}

func childPathFor(parent path.Path, key string, kind valuecodec.Kind) path.Path {
	if kind == valuecodec.KindArray {
		i, _ := strconv.Atoi(key)
		return parent.ChildIndex(i)
	}
	return parent.Child(key)
}

// removeAt destroys the node at p, whichever of the two places its value
// may live (spec §3 invariant 6 "null = deletion" / Lifecycle "destroyed
// by: a null write at its path"). A dedicated record at p is removed via
// deleteAt; otherwise p's value — if any — is inline inside p's parent's
// own record, so that record's Value map is rewritten with the key
// deleted instead. A plain deleteAt(p) alone would silently no-op for an
// inline property, since ChildrenOf/DescendantsOf only ever see dedicated
// records, leaving the stale value behind in the parent.
func (e *Engine) removeAt(ctx context.Context, tx storage.Transaction, p path.Path, revision string) error {
	existing, err := tx.Get(ctx, p)
	if err != nil {
		return err
	}
	if existing != nil {
		return e.deleteAt(ctx, tx, p, revision)
	}

	parent := p.Parent()
	parentRec, err := tx.Get(ctx, parent)
	if err != nil {
		return err
	}
	if parentRec == nil {
		return nil
	}
	m, ok := parentRec.Value.(map[string]any)
	if !ok {
		return nil
	}
	key := p.LastKey().String()
	if _, present := m[key]; !present {
		return nil
	}

	updated := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k != key {
			updated[k] = v
		}
	}
	parentRec.Value = updated
	parentRec.Revision = revision
	parentRec.RevisionNr++
	parentRec.Modified = nowMs()
	return tx.Set(ctx, parent, parentRec)
}

// deleteAt removes p's dedicated record along with every dedicated
// descendant (spec §3 invariant 3: no orphaned descendants).
func (e *Engine) deleteAt(ctx context.Context, tx storage.Transaction, p path.Path, _ string) error {
	var toRemove []path.Path
	err := tx.DescendantsOf(ctx, p, storage.IncludeOptions{}, func(path.Path) bool { return true }, func(cp path.Path, _ *storage.Record) bool {
		toRemove = append(toRemove, cp)
		return true
	})
	if err != nil {
		return err
	}
	for _, cp := range toRemove {
		if err := tx.Remove(ctx, cp); err != nil {
			return err
		}
	}
	return tx.Remove(ctx, p)
}

// assembleArray reorders a flat index->value map into a dense slice.
func assembleArray(m map[string]any) []any {
	n := 0
	for k := range m {
		if i, err := strconv.Atoi(k); err == nil && i+1 > n {
			n = i + 1
		}
	}
	out := make([]any, n)
	for k, v := range m {
		if i, err := strconv.Atoi(k); err == nil {
			out[i] = v
		}
	}
	return out
}
