// Package locker implements the path-aware read/write lock queue described
// in spec §4.3. The model is deliberately a single global queue rather
// than per-subtree locks: at most one writer may hold a lock across the
// whole tree at any time, and any number of readers may hold locks
// concurrently as long as no writer holds one. The per-request Path is
// informational only, used by MoveToParent to narrow a held lock's scope
// without releasing and re-queuing it.
//
// This simplification is deliberate (spec §9, "Global lock queue"): finer
// per-subtree locking introduced deadlocks in the reference implementation
// because event subscribers on ancestor paths triggered recursive
// parent-ward traversals while a descendant lock was still held.
package locker

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/acebase-go/acebase/internal/acebaseerr"
	"github.com/acebase-go/acebase/internal/path"
)

// LockTimeoutDefault is the default grant-to-forced-release window.
const LockTimeoutDefault = 90 * time.Second

// LockTimeoutDebug is used instead of LockTimeoutDefault when the locker
// is run in debug mode (spec §4.3).
const LockTimeoutDebug = 15 * time.Minute

type state int

const (
	statePending state = iota
	stateGranted
	stateExpired
	stateReleased
)

// Lock is a handle to a granted (or pending) lock request.
type Lock struct {
	id          uint64
	locker      *Locker
	Path        path.Path
	Tid         string
	ForWriting  bool
	Comment     string
	Priority    bool
	NoTimeout   bool
	RequestedAt time.Time
	GrantedAt   time.Time
	ExpiresAt   time.Time

	mu       sync.Mutex
	st       state
	warnings int
	timer    *time.Timer
	granted  chan struct{}
}

// IsExpired reports whether the lock was forcibly reclaimed by the
// warning timer. Any operation that notices this must fail with
// acebaseerr.ErrLockExpired.
func (l *Lock) IsExpired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st == stateExpired
}

// Options configures a single lock request.
type Options struct {
	Priority  bool // jump ahead of every non-priority pending request, regardless of age
	NoTimeout bool // disable the warning/expiry timer (e.g. long transactions)
}

// Locker is a single global priority lock queue.
type Locker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Lock
	nextID  uint64
	timeout time.Duration
}

// New creates a Locker with the given expiry timeout (use
// LockTimeoutDefault or LockTimeoutDebug).
func New(timeout time.Duration) *Locker {
	l := &Locker{timeout: timeout}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Lock requests a read or write lock on path for tid, blocking until
// granted or ctx is done. comment is carried for diagnostics only.
func (lk *Locker) Lock(ctx context.Context, p path.Path, tid string, forWriting bool, comment string, opts Options) (*Lock, error) {
	lk.mu.Lock()
	lk.nextID++
	now := time.Now()
	req := &Lock{
		id:          lk.nextID,
		locker:      lk,
		Path:        p,
		Tid:         tid,
		ForWriting:  forWriting,
		Comment:     comment,
		Priority:    opts.Priority,
		NoTimeout:   opts.NoTimeout,
		RequestedAt: now,
		st:          statePending,
		granted:     make(chan struct{}),
	}
	lk.queue = append(lk.queue, req)
	lk.grantCompatibleLocked()
	lk.mu.Unlock()

	select {
	case <-req.granted:
		return req, nil
	case <-ctx.Done():
		lk.cancelPending(req)
		return nil, ctx.Err()
	}
}

// cancelPending removes a still-pending (never granted) request from the
// queue, e.g. on caller context cancellation.
func (lk *Locker) cancelPending(req *Lock) {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	req.mu.Lock()
	already := req.st != statePending
	req.mu.Unlock()
	if already {
		return
	}
	lk.removeLocked(req)
	req.mu.Lock()
	req.st = stateReleased
	req.mu.Unlock()
}

// Unlock releases a granted lock and promotes whichever pending requests
// are now compatible.
func (lk *Locker) Unlock(l *Lock) error {
	l.mu.Lock()
	if l.st == stateReleased {
		l.mu.Unlock()
		return nil
	}
	wasExpired := l.st == stateExpired
	l.st = stateReleased
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()

	lk.mu.Lock()
	lk.removeLocked(l)
	lk.grantCompatibleLocked()
	lk.mu.Unlock()

	if wasExpired {
		return fmt.Errorf("%w: lock on %q (tid=%s) had already expired", acebaseerr.ErrLockExpired, l.Path, l.Tid)
	}
	return nil
}

func (lk *Locker) removeLocked(target *Lock) {
	out := lk.queue[:0]
	for _, req := range lk.queue {
		if req.id != target.id {
			out = append(out, req)
		}
	}
	lk.queue = out
}

// grantCompatibleLocked walks the pending queue in priority/FIFO order and
// grants any request compatible with the currently granted set. Must be
// called with lk.mu held.
func (lk *Locker) grantCompatibleLocked() {
	pending := make([]*Lock, 0)
	hasGrantedWriter := false
	hasGrantedAny := false
	for _, req := range lk.queue {
		req.mu.Lock()
		st := req.st
		fw := req.ForWriting
		req.mu.Unlock()
		switch st {
		case stateGranted:
			hasGrantedAny = true
			if fw {
				hasGrantedWriter = true
			}
		case statePending:
			pending = append(pending, req)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority
		}
		return pending[i].RequestedAt.Before(pending[j].RequestedAt)
	})

	for _, req := range pending {
		if hasGrantedWriter {
			break // nothing else can be granted until the writer releases
		}
		if req.ForWriting && hasGrantedAny {
			continue // a writer needs the tree completely free
		}
		lk.grantLocked(req)
		hasGrantedAny = true
		if req.ForWriting {
			hasGrantedWriter = true
		}
	}
}

func (lk *Locker) grantLocked(req *Lock) {
	req.mu.Lock()
	req.st = stateGranted
	req.GrantedAt = time.Now()
	if !req.NoTimeout {
		req.ExpiresAt = req.GrantedAt.Add(lk.timeout)
		req.timer = time.AfterFunc(lk.timeout/3, func() { lk.onWarnOrExpire(req, 1) })
	}
	req.mu.Unlock()
	close(req.granted)
}

// onWarnOrExpire fires every LOCK_TIMEOUT/3; after the third firing the
// lock is forcibly removed and flagged expired.
func (lk *Locker) onWarnOrExpire(req *Lock, warningNumber int) {
	req.mu.Lock()
	if req.st != stateGranted {
		req.mu.Unlock()
		return
	}
	req.warnings = warningNumber
	if warningNumber < 3 {
		req.mu.Unlock()
		log.Printf("acebase/locker: lock on %q (tid=%s) held past warning %d/3", req.Path, req.Tid, warningNumber)
		req.mu.Lock()
		req.timer = time.AfterFunc(lk.timeout/3, func() { lk.onWarnOrExpire(req, warningNumber+1) })
		req.mu.Unlock()
		return
	}
	req.st = stateExpired
	req.mu.Unlock()
	log.Printf("acebase/locker: lock on %q (tid=%s) expired after %s and was forcibly released", req.Path, req.Tid, lk.timeout)

	lk.mu.Lock()
	lk.removeLocked(req)
	lk.grantCompatibleLocked()
	lk.mu.Unlock()
}

// MoveToParent narrows a held lock's informational path to its parent.
// Because compatibility in this single-writer model never depends on the
// path, the lock is simply updated in place; the return value is the new
// effective path.
func (l *Lock) MoveToParent() path.Path {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Path = l.Path.Parent()
	return l.Path
}

// MoveTo narrows (or widens) a held lock's informational path to an
// arbitrary target, used when the engine determines a different top event
// path mid-operation.
func (l *Lock) MoveTo(p path.Path) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Path = p
}
