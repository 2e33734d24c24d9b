// Package sqlite implements a storage.Backend atop database/sql and
// modernc.org/sqlite, grounded on the teacher's internal/storage/sqlite
// package: one row per record, ExecContext/QueryContext calls wrapped with
// operation context via wrapDBError, and native transactional atomicity
// through database/sql's *sql.Tx (so IsEngineManaged reports false — this
// backend commits/rolls back for real).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/storage"
	"github.com/acebase-go/acebase/internal/valuecodec"
)

// ErrNotFound mirrors sql.ErrNoRows in backend-neutral form.
var ErrNotFound = errors.New("sqlite backend: not found")

func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	path        TEXT PRIMARY KEY,
	type        INTEGER NOT NULL,
	value       BLOB NOT NULL,
	revision    TEXT NOT NULL,
	revision_nr INTEGER NOT NULL,
	created     INTEGER NOT NULL,
	modified    INTEGER NOT NULL
);
`

// Backend is a SQL-backed storage.Backend.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed acebase store at
// dsn, e.g. "file:acebase.db?cache=shared".
func Open(dsn string) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapDBError("open sqlite backend", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, wrapDBError("create schema", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) IsEngineManaged() bool { return false }

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) GetTransaction(ctx context.Context, opts storage.TransactionOptions) (storage.Transaction, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("begin tx", err)
	}
	return &txn{tx: tx}, nil
}

type txn struct {
	tx *sql.Tx
}

type wireRecord struct {
	Type  int            `json:"type"`
	Value map[string]any `json:"value,omitempty"`
	Scalar any           `json:"scalar,omitempty"`
}

func encodeRecord(r *storage.Record) ([]byte, error) {
	wr := wireRecord{Type: int(r.Type)}
	if r.IsComposite() {
		wr.Value = r.ChildMap()
	} else {
		wr.Scalar = r.Value
	}
	return json.Marshal(wr)
}

func decodeRecord(raw []byte, revision string, revisionNr int, created, modified int64) (*storage.Record, error) {
	var wr wireRecord
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	rec := &storage.Record{
		Type:       valuecodec.Kind(wr.Type),
		Revision:   revision,
		RevisionNr: revisionNr,
		Created:    created,
		Modified:   modified,
	}
	if rec.Type == valuecodec.KindObject || rec.Type == valuecodec.KindArray {
		rec.Value = wr.Value
	} else {
		rec.Value = wr.Scalar
	}
	return rec, nil
}

func (t *txn) Get(ctx context.Context, p path.Path) (*storage.Record, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT type, value, revision, revision_nr, created, modified FROM records WHERE path = ?`, p.String())
	var typ int
	var raw []byte
	var revision string
	var revisionNr int
	var created, modified int64
	err := row.Scan(&typ, &raw, &revision, &revisionNr, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("get record", err)
	}
	return decodeRecord(raw, revision, revisionNr, created, modified)
}

func (t *txn) Set(ctx context.Context, p path.Path, r *storage.Record) error {
	raw, err := encodeRecord(r)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO records (path, type, value, revision, revision_nr, created, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			type = excluded.type, value = excluded.value, revision = excluded.revision,
			revision_nr = excluded.revision_nr, created = excluded.created, modified = excluded.modified
	`, p.String(), int(r.Type), raw, r.Revision, r.RevisionNr, r.Created, r.Modified)
	return wrapDBError("set record", err)
}

func (t *txn) Remove(ctx context.Context, p path.Path) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM records WHERE path = ?`, p.String())
	return wrapDBError("remove record", err)
}

func (t *txn) GetMultiple(ctx context.Context, paths []path.Path) (map[string]*storage.Record, error) {
	return storage.DefaultGetMultiple(ctx, t, paths)
}

func (t *txn) SetMultiple(ctx context.Context, entries map[string]*storage.Record) error {
	return storage.DefaultSetMultiple(ctx, t, entries)
}

func (t *txn) RemoveMultiple(ctx context.Context, paths []path.Path) error {
	return storage.DefaultRemoveMultiple(ctx, t, paths)
}

// childCandidates returns every stored path under p (both "p/key" and
// "p[n]" forms), matching the streaming check-then-add protocol of spec
// §4.4: rows are fetched cheaply (path only) before any value is decoded.
func (t *txn) childCandidates(ctx context.Context, p path.Path) ([]string, error) {
	prefix := escapeLike(p.String())
	keyPattern, indexPattern := prefix+"/%", prefix+"[%"
	if prefix == "" {
		keyPattern, indexPattern = "%", "%"
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT path FROM records WHERE path LIKE ? ESCAPE '\' OR path LIKE ? ESCAPE '\'`, keyPattern, indexPattern)
	if err != nil {
		return nil, wrapDBError("query children", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, wrapDBError("scan child path", err)
		}
		out = append(out, p)
	}
	return out, wrapDBError("iterate children", rows.Err())
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func (t *txn) walk(ctx context.Context, p path.Path, deep bool, include storage.IncludeOptions, check storage.CheckFunc, add storage.AddFunc) error {
	candidates, err := t.childCandidates(ctx, p)
	if err != nil {
		return err
	}
	for _, key := range candidates {
		cp, err := path.Parse(key)
		if err != nil {
			continue
		}
		if !deep && !path.IsChildOf(cp, p) {
			continue
		}
		if deep && !path.IsDescendantOf(cp, p) {
			continue
		}
		if !check(cp) {
			continue
		}
		var rec *storage.Record
		if include.Metadata || include.Value {
			rec, err = t.Get(ctx, cp)
			if err != nil {
				return err
			}
		}
		if !add(cp, rec) {
			return nil
		}
	}
	return nil
}

func (t *txn) ChildrenOf(ctx context.Context, p path.Path, include storage.IncludeOptions, check storage.CheckFunc, add storage.AddFunc) error {
	return t.walk(ctx, p, false, include, check, add)
}

func (t *txn) DescendantsOf(ctx context.Context, p path.Path, include storage.IncludeOptions, check storage.CheckFunc, add storage.AddFunc) error {
	return t.walk(ctx, p, true, include, check, add)
}

func (t *txn) Commit(_ context.Context) error {
	return wrapDBError("commit", t.tx.Commit())
}

func (t *txn) Rollback(_ context.Context, _ error) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return wrapDBError("rollback", err)
}

func (t *txn) MoveToParentPath(_ context.Context, targetParent path.Path) (path.Path, error) {
	return targetParent, nil
}
