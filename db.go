// Package acebase is the public reference API (spec §4.10): an
// embedded, path-addressed, hierarchical realtime database. A database
// handle is opened over a storage.Backend and exposes DataReferences
// (set/update/remove/get/transaction/push/on/query) the way the
// teacher's beads.go exposes a minimal Storage façade over bd's SQLite
// layer — except here the façade is the whole public surface, not a
// thin re-export, since this package IS the product rather than an
// extension point over one.
package acebase

import (
	"context"
	"fmt"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/backend/memory"
	"github.com/acebase-go/acebase/internal/config"
	"github.com/acebase-go/acebase/internal/engine"
	"github.com/acebase-go/acebase/internal/eventbus"
	"github.com/acebase-go/acebase/internal/index"
	"github.com/acebase-go/acebase/internal/mutation"
	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/query"
	"github.com/acebase-go/acebase/internal/storage"
	"github.com/acebase-go/acebase/internal/subscribe"
)

// Re-exported so callers never need to import internal packages
// directly.
type (
	// Backend is a pluggable storage engine (spec §4.4/C4).
	Backend = storage.Backend
	// WriteOptions parameterizes Set/Update/Remove/Push/Transaction.
	WriteOptions = engine.WriteOptions
	// GetOptions controls include/exclude/child_objects on reads (spec
	// §6 "Options type for reads").
	GetOptions = engine.GetOptions
)

// Undefined marks a property that should be dropped rather than stored,
// matching JS's undefined-vs-null distinction (spec §3 invariant 7).
var Undefined = engine.Undefined

// DefaultGetOptions returns the zero-filter, include-children default.
func DefaultGetOptions() GetOptions { return engine.DefaultGetOptions() }

// AceBase is a database handle: the engine, subscription registry, index
// coordinator and query executor wired together over one backend (spec
// §5 "process-wide singletons per database handle").
type AceBase struct {
	backend storage.Backend
	eng     *engine.Engine
	subs    *subscribe.Registry
	indexes *index.Coordinator
	qexec   *query.Executor
	bus     *eventbus.Bus
}

// New opens a database handle over backend using cfg (config.Default()
// if nil).
func New(backend storage.Backend, cfg *config.Config) *AceBase {
	if cfg == nil {
		cfg = config.Default()
	}
	subs := subscribe.New()
	indexes := index.New()
	eng := engine.New(backend, subs, indexes, cfg)

	db := &AceBase{
		backend: backend,
		eng:     eng,
		subs:    subs,
		indexes: indexes,
		qexec:   query.NewExecutor(eng, indexes, subs),
	}

	if cfg.NATSURL != "" {
		db.bus = eventbus.New()
		eng.SetDispatcher(eventbus.NewMutationBroadcaster(mutation.New(subs, indexes), db.bus))
	}
	return db
}

// OpenMemory opens an in-memory database, grounded on
// internal/backend/memory (spec §4.x domain stack) — the default for
// embedding and for every example in this package's tests.
func OpenMemory(cfg *config.Config) *AceBase {
	return New(memory.New(), cfg)
}

// Close releases the backend's resources. The handle must not be used
// afterward.
func (db *AceBase) Close() error {
	return db.backend.Close()
}

// Bus returns the cluster bridge's event bus (spec §5), or nil if
// cfg.NATSURL was empty at Open time — single-process embedding never
// needs it.
func (db *AceBase) Bus() *eventbus.Bus { return db.bus }

// Ref returns a DataReference addressing p (spec §6 "ref(path)").
func (db *AceBase) Ref(p string) (*DataReference, error) {
	parsed, err := path.Parse(p)
	if err != nil {
		return nil, err
	}
	return &DataReference{db: db, path: parsed}, nil
}

// MustRef is Ref, panicking on a malformed path; for compile-time-known
// literal paths.
func (db *AceBase) MustRef(p string) *DataReference {
	ref, err := db.Ref(p)
	if err != nil {
		panic(err)
	}
	return ref
}

// Root returns a DataReference to the database root.
func (db *AceBase) Root() *DataReference {
	return &DataReference{db: db, path: path.Root}
}

// Query starts a query rooted at p (spec §6 "Queries").
func (db *AceBase) Query(p string) (*Query, error) {
	ref, err := db.Ref(p)
	if err != nil {
		return nil, err
	}
	return ref.Query(), nil
}

// CreateIndex builds and registers a normal index on pattern/key over
// every record currently on the tree, then routes future writes to it
// (spec §4.8). Unlike index.Coordinator.Create alone, this backfills:
// Create has no reference to the backend/engine needed to snapshot
// existing data, so the façade — which holds both — is responsible for
// walking the tree via Engine.GetChildren/Get before registering.
func (db *AceBase) CreateIndex(ctx context.Context, pattern, key string) error {
	return db.createIndex(ctx, pattern, key, false)
}

// CreateArrayIndex is CreateIndex for an array-element index (spec §4.8
// "ArrayIndex" — keyed per element rather than per scalar value).
func (db *AceBase) CreateArrayIndex(ctx context.Context, pattern, key string) error {
	return db.createIndex(ctx, pattern, key, true)
}

func (db *AceBase) createIndex(ctx context.Context, pattern, key string, array bool) error {
	pp, err := path.Parse(pattern)
	if err != nil {
		return err
	}
	var idx index.Index
	if array {
		idx = index.NewArray(pp, key)
	} else {
		idx = index.NewNormal(pp, key)
	}

	entries, err := db.snapshotEntries(ctx, pp, key)
	if err != nil {
		return err
	}
	if err := idx.Build(ctx, entries); err != nil {
		return fmt.Errorf("%w: build index %s:%s: %v", acebaseerr.ErrBackend, pattern, key, err)
	}
	return db.indexes.Create(idx)
}

// snapshotEntries walks every concrete record matching pattern (which may
// contain wildcards) and returns its current value as an index.Entry, so
// CreateIndex can Build an index over data written before the index
// existed.
func (db *AceBase) snapshotEntries(ctx context.Context, pattern path.Path, key string) ([]index.Entry, error) {
	containers, err := db.expandWildcardContainers(ctx, pattern)
	if err != nil {
		return nil, err
	}

	var entries []index.Entry
	for _, container := range containers {
		var walkErr error
		err := db.eng.GetChildren(ctx, container, func(info engine.NodeInfo) bool {
			res, getErr := db.eng.Get(ctx, info.Path, engine.DefaultGetOptions())
			if getErr != nil {
				walkErr = getErr
				return false
			}
			if res.Exists {
				entries = append(entries, index.Entry{Path: info.Path, Value: res.Value})
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if walkErr != nil {
			return nil, walkErr
		}
	}
	return entries, nil
}

// expandWildcardContainers resolves pattern's concrete container paths:
// pattern itself if it has no wildcard, or every concrete path reachable
// by substituting each wildcard segment with the keys actually present
// on the tree at that depth.
func (db *AceBase) expandWildcardContainers(ctx context.Context, pattern path.Path) ([]path.Path, error) {
	keys := pattern.Keys()
	containers := []path.Path{path.Root}
	for _, k := range keys {
		var next []path.Path
		for _, base := range containers {
			if !k.Wildcard {
				if k.IsIndex {
					next = append(next, base.ChildIndex(k.Index))
				} else {
					next = append(next, base.Child(k.Name))
				}
				continue
			}
			err := db.eng.GetChildren(ctx, base, func(info engine.NodeInfo) bool {
				next = append(next, info.Path)
				return true
			})
			if err != nil {
				return nil, err
			}
		}
		containers = next
	}
	return containers, nil
}

// DropIndex removes the index registered on pattern/key, reporting
// whether one was found.
func (db *AceBase) DropIndex(pattern, key string) (bool, error) {
	pp, err := path.Parse(pattern)
	if err != nil {
		return false, err
	}
	return db.indexes.Drop(pp, key), nil
}

// Indexes lists every registered index.
func (db *AceBase) Indexes() []index.Index {
	return db.indexes.List()
}
