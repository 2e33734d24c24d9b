package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/storage"
	"github.com/acebase-go/acebase/internal/valuecodec"
)

func TestSetGetRemoveCommit(t *testing.T) {
	ctx := context.Background()
	b, err := Open("file::memory:")
	require.NoError(t, err)
	defer b.Close()
	require.False(t, b.IsEngineManaged())

	tx, err := b.GetTransaction(ctx, storage.TransactionOptions{Write: true})
	require.NoError(t, err)

	p := path.MustParse("a/b")
	rec := &storage.Record{Type: valuecodec.KindString, Value: "hello", Revision: "r1", RevisionNr: 1, Created: 1, Modified: 1}
	require.NoError(t, tx.Set(ctx, p, rec))

	got, err := tx.Get(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Value)

	require.NoError(t, tx.Commit(ctx))

	tx2, err := b.GetTransaction(ctx, storage.TransactionOptions{})
	require.NoError(t, err)
	got2, err := tx2.Get(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "hello", got2.Value)
	require.NoError(t, tx2.Commit(ctx))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	b, err := Open("file::memory:")
	require.NoError(t, err)
	defer b.Close()

	tx, err := b.GetTransaction(ctx, storage.TransactionOptions{Write: true})
	require.NoError(t, err)
	p := path.MustParse("x")
	require.NoError(t, tx.Set(ctx, p, &storage.Record{Type: valuecodec.KindNumber, Value: 1.0}))
	require.NoError(t, tx.Rollback(ctx, nil))

	tx2, err := b.GetTransaction(ctx, storage.TransactionOptions{})
	require.NoError(t, err)
	got, err := tx2.Get(ctx, p)
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, tx2.Commit(ctx))
}

func TestChildrenOfAndDescendantsOf(t *testing.T) {
	ctx := context.Background()
	b, err := Open("file::memory:")
	require.NoError(t, err)
	defer b.Close()

	tx, err := b.GetTransaction(ctx, storage.TransactionOptions{Write: true})
	require.NoError(t, err)
	set := func(p string) {
		require.NoError(t, tx.Set(ctx, path.MustParse(p), &storage.Record{Type: valuecodec.KindString, Value: "v"}))
	}
	set("users/alice")
	set("users/alice/profile/name")
	set("users/bob")
	require.NoError(t, tx.Commit(ctx))

	tx2, err := b.GetTransaction(ctx, storage.TransactionOptions{})
	require.NoError(t, err)

	var direct []string
	err = tx2.ChildrenOf(ctx, path.MustParse("users"), storage.IncludeOptions{Metadata: true},
		func(path.Path) bool { return true },
		func(p path.Path, r *storage.Record) bool { direct = append(direct, p.String()); return true })
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"users/alice", "users/bob"}, direct)

	var deep []string
	err = tx2.DescendantsOf(ctx, path.MustParse("users"), storage.IncludeOptions{Metadata: true},
		func(path.Path) bool { return true },
		func(p path.Path, r *storage.Record) bool { deep = append(deep, p.String()); return true })
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"users/alice", "users/alice/profile/name", "users/bob"}, deep)
	require.NoError(t, tx2.Commit(ctx))
}
