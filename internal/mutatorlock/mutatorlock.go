// Package mutatorlock contains the default implementation of the global
// reader/writer gate that decides whether managed code may run: a shared hold
// means "this thread is running", an exclusive hold means "the world is
// stopped".
package mutatorlock

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// maxReaders bounds the number of concurrent shared holders.
const maxReaders = 1 << 30

// Lock is a writer-preferring reader/writer lock with a timed exclusive
// acquisition. Waiters are served in FIFO order, so a queued exclusive
// acquisition holds back later shared acquisitions.
type Lock struct {
	sem       *semaphore.Weighted
	shared    atomic.Int64
	exclusive atomic.Bool
}

// New returns an unlocked Lock.
func New() *Lock {
	return &Lock{sem: semaphore.NewWeighted(maxReaders)}
}

// AcquireShared blocks until no exclusive holder exists.
func (l *Lock) AcquireShared() {
	// Acquire only fails when the context is done.
	_ = l.sem.Acquire(context.Background(), 1)
	l.shared.Add(1)
}

// ReleaseShared releases a shared hold.
func (l *Lock) ReleaseShared() {
	if l.shared.Add(-1) < 0 {
		panic("mutatorlock: shared release without a shared hold")
	}
	l.sem.Release(1)
}

// AcquireExclusive waits for every shared holder to leave and takes the lock
// exclusively. A non-positive timeout waits forever. It reports whether the
// lock was acquired.
func (l *Lock) AcquireExclusive(timeout time.Duration) bool {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := l.sem.Acquire(ctx, maxReaders); err != nil {
		return false
	}
	l.exclusive.Store(true)
	return true
}

// ReleaseExclusive releases an exclusive hold.
func (l *Lock) ReleaseExclusive() {
	if !l.exclusive.CompareAndSwap(true, false) {
		panic("mutatorlock: exclusive release without an exclusive hold")
	}
	l.sem.Release(maxReaders)
}

// IsExclusiveHeld reports whether somebody holds the lock exclusively.
func (l *Lock) IsExclusiveHeld() bool {
	return l.exclusive.Load()
}

// SharedHolders returns the number of shared holders.
func (l *Lock) SharedHolders() int {
	return int(l.shared.Load())
}
