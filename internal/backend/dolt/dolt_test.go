package dolt

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acebase-go/acebase/internal/path"
	"github.com/acebase-go/acebase/internal/storage"
	"github.com/acebase-go/acebase/internal/valuecodec"
)

// skipIfNoDolt skips the test if the dolt binary isn't on PATH; CI
// without a Dolt install exercises only the sqlite/memory backends.
func skipIfNoDolt(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("dolt"); err != nil {
		t.Skip("dolt not installed, skipping test")
	}
}

func TestSetGetRemoveCommit(t *testing.T) {
	skipIfNoDolt(t)
	ctx := context.Background()
	b, err := Open("dolt://root@localhost:3306/acebase_test")
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
}
