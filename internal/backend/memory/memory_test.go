package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/storage"
	"github.com/acebase-go/acebase/internal/valuecodec"
)

func TestSetGetRemove(t *testing.T) {
	ctx := context.Background()
	b := New()
	defer b.Close()

	tx, err := b.GetTransaction(ctx, storage.TransactionOptions{Write: true})
	require.NoError(t, err)

	p := path.MustParse("a/b")
	rec := &storage.Record{Type: valuecodec.KindString, Value: "hello", Revision: "r1", RevisionNr: 1}
	require.NoError(t, tx.Set(ctx, p, rec))

	got, err := tx.Get(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Value)

	require.NoError(t, tx.Remove(ctx, p))
	got, err = tx.Get(ctx, p)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestChildrenOfStreamsDirectChildrenOnly(t *testing.T) {
	ctx := context.Background()
	b := New()
	tx, err := b.GetTransaction(ctx, storage.TransactionOptions{Write: true})
	require.NoError(t, err)

	set := func(p string) {
		require.NoError(t, tx.Set(ctx, path.MustParse(p), &storage.Record{Type: valuecodec.KindString, Value: "v"}))
	}
	set("users/alice")
	set("users/alice/profile/name")
	set("users/bob")

	var seen []string
	err = tx.ChildrenOf(ctx, path.MustParse("users"), storage.IncludeOptions{Metadata: true}, func(path.Path) bool { return true }, func(p path.Path, r *storage.Record) bool {
		seen = append(seen, p.String())
		return true
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"users/alice", "users/bob"}, seen)
}

func TestDescendantsOfStreamsDeep(t *testing.T) {
	ctx := context.Background()
	b := New()
	tx, _ := b.GetTransaction(ctx, storage.TransactionOptions{Write: true})

	tx.Set(ctx, path.MustParse("a/b"), &storage.Record{Type: valuecodec.KindString, Value: "x"})
	tx.Set(ctx, path.MustParse("a/b/c"), &storage.Record{Type: valuecodec.KindString, Value: "y"})

	var seen []string
	err := tx.DescendantsOf(ctx, path.MustParse("a"), storage.IncludeOptions{Metadata: true}, func(path.Path) bool { return true }, func(p path.Path, r *storage.Record) bool {
		seen = append(seen, p.String())
		return true
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a/b", "a/b/c"}, seen)
}

func TestAddCbCanHaltIteration(t *testing.T) {
	ctx := context.Background()
	b := New()
	tx, _ := b.GetTransaction(ctx, storage.TransactionOptions{Write: true})
	tx.Set(ctx, path.MustParse("a/1"), &storage.Record{Type: valuecodec.KindString, Value: "1"})
	tx.Set(ctx, path.MustParse("a/2"), &storage.Record{Type: valuecodec.KindString, Value: "2"})

	count := 0
	err := tx.ChildrenOf(ctx, path.MustParse("a"), storage.IncludeOptions{Metadata: true}, func(path.Path) bool { return true }, func(p path.Path, r *storage.Record) bool {
		count++
		return false
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
