package locker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/path"
)

func TestConcurrentReadersAllowed(t *testing.T) {
	lk := New(LockTimeoutDefault)
	ctx := context.Background()
	p := path.MustParse("a/b")

	l1, err := lk.Lock(ctx, p, "t1", false, "read1", Options{})
	require.NoError(t, err)
	l2, err := lk.Lock(ctx, p, "t2", false, "read2", Options{})
	require.NoError(t, err)

	require.NotNil(t, l1)
	require.NotNil(t, l2)

	require.NoError(t, lk.Unlock(l1))
	require.NoError(t, lk.Unlock(l2))
}

func TestWriterExcludesReaders(t *testing.T) {
	lk := New(LockTimeoutDefault)
	ctx := context.Background()
	p := path.MustParse("a/b")

	writer, err := lk.Lock(ctx, p, "w", true, "write", Options{})
	require.NoError(t, err)

	granted := make(chan struct{})
	go func() {
		l, err := lk.Lock(ctx, p, "r", false, "read", Options{})
		require.NoError(t, err)
		close(granted)
		require.NoError(t, lk.Unlock(l))
	}()

	select {
	case <-granted:
		t.Fatal("reader should not be granted while writer holds the lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lk.Unlock(writer))

	select {
	case <-granted:
	case <-time.After(time.Second):
		t.Fatal("reader was never granted after writer released")
	}
}

func TestOnlyOneWriterAtATime(t *testing.T) {
	lk := New(LockTimeoutDefault)
	ctx := context.Background()
	p := path.MustParse("a")

	var active int32
	var maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l, err := lk.Lock(ctx, p, "w", true, "write", Options{})
			require.NoError(t, err)
			cur := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if cur <= old || atomic.CompareAndSwapInt32(&maxActive, old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			require.NoError(t, lk.Unlock(l))
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), maxActive)
}

func TestPriorityJumpsQueue(t *testing.T) {
	lk := New(LockTimeoutDefault)
	ctx := context.Background()
	p := path.MustParse("a")

	writer, err := lk.Lock(ctx, p, "w0", true, "hold", Options{})
	require.NoError(t, err)

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		l, err := lk.Lock(ctx, p, "normal", true, "normal", Options{})
		require.NoError(t, err)
		mu.Lock()
		order = append(order, "normal")
		mu.Unlock()
		require.NoError(t, lk.Unlock(l))
	}()
	time.Sleep(10 * time.Millisecond) // ensure normal enqueues first

	wg.Add(1)
	go func() {
		defer wg.Done()
		l, err := lk.Lock(ctx, p, "priority", true, "priority", Options{Priority: true})
		require.NoError(t, err)
		mu.Lock()
		order = append(order, "priority")
		mu.Unlock()
		require.NoError(t, lk.Unlock(l))
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, lk.Unlock(writer))
	wg.Wait()

	require.Equal(t, []string{"priority", "normal"}, order)
}

func TestMoveToParent(t *testing.T) {
	lk := New(LockTimeoutDefault)
	ctx := context.Background()
	child := path.MustParse("a/b/c")

	l, err := lk.Lock(ctx, child, "t", true, "write", Options{})
	require.NoError(t, err)
	newPath := l.MoveToParent()
	require.Equal(t, "a/b", newPath.String())
	require.NoError(t, lk.Unlock(l))
}

func TestExpiryForciblyReleasesLock(t *testing.T) {
	lk := New(30 * time.Millisecond)
	ctx := context.Background()
	p := path.MustParse("a")

	l, err := lk.Lock(ctx, p, "stuck", true, "forgot to release", Options{})
	require.NoError(t, err)

	other, err := lk.Lock(ctx, p, "waiter", true, "waiting", Options{})
	require.NoError(t, err)
	require.True(t, l.IsExpired())
	require.NoError(t, lk.Unlock(other))

	err = lk.Unlock(l)
	require.ErrorIs(t, err, acebaseerr.ErrLockExpired)
}
