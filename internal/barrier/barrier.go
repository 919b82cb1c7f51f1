// Package barrier contains a counting barrier used to rendezvous with a set of
// threads.
package barrier

import (
	"fmt"
	"sync"
	"time"
)

// Barrier is a counter that waiters block on until it reaches zero.
//
// The count may go negative: parties are allowed to Pass before the waiter
// has announced how many parties it expects via Increment.
type Barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// New returns a barrier with the given initial count.
func New(count int) *Barrier {
	b := &Barrier{count: count}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Init resets the count. It must not be called while there are waiters.
func (b *Barrier) Init(count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = count
	if count == 0 {
		b.cond.Broadcast()
	}
}

// Pass decrements the count and wakes the waiters if it reached zero.
func (b *Barrier) Pass() {
	b.add(-1)
}

// Count returns the current count.
func (b *Barrier) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Barrier) add(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count += delta
	if b.count == 0 {
		b.cond.Broadcast()
	}
}

// Increment adds delta to the count and waits until the count is zero.
//
// A non-positive timeout waits forever. Increment reports whether it gave up
// because the timeout expired; the delta stays applied either way so that
// late passes keep balancing it.
func (b *Barrier) Increment(delta int, timeout time.Duration) (timedOut bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count += delta
	if b.count == 0 {
		b.cond.Broadcast()
		return false
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		// sync.Cond has no timed wait; a timer broadcast wakes us up so that
		// the deadline is re-checked.
		t := time.AfterFunc(timeout, func() {
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		})
		defer t.Stop()
	}
	for b.count != 0 {
		if timeout > 0 && !time.Now().Before(deadline) {
			return true
		}
		b.cond.Wait()
	}
	return false
}

// Wait blocks until the count reaches zero.
func (b *Barrier) Wait() {
	b.Increment(0, 0)
}

func (b *Barrier) String() string {
	return fmt.Sprintf("barrier{count: %d}", b.Count())
}
