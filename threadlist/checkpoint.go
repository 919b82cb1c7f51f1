package threadlist

import (
	"strings"
	"sync"
	"time"

	"github.com/DataExMachina-dev/safepoint-go/internal/backoff"
	"github.com/DataExMachina-dev/safepoint-go/internal/barrier"
	"github.com/DataExMachina-dev/safepoint-go/internal/log"
)

// RunCheckpoint runs c once for every registered thread and returns the
// number of threads it was run for.
//
// Runnable threads run c themselves at their next safepoint; RunCheckpoint
// doesn't wait for them, so c must signal completion itself if the caller
// needs it. Threads outside Runnable are held suspended while the caller runs
// c on their behalf. If self is registered, c runs for it directly.
func (l *ThreadList) RunCheckpoint(self *Thread, c Closure) int {
	var suspended []*Thread
	l.mu.Lock()
	l.suspendCountMu.Lock()
	count := len(l.threads)
	selfListed := false
	for _, t := range l.threads {
		if t == self {
			selfListed = true
			continue
		}
		for {
			if t.requestCheckpointLocked(c) {
				break
			}
			if t.State() == Runnable {
				// Lost a race with a flag update; retry.
				continue
			}
			// Not Runnable: keep it that way while we act for it.
			t.modifySuspendCountLocked(+1, nil, Internal)
			suspended = append(suspended, t)
			break
		}
	}
	l.suspendCountMu.Unlock()
	l.mu.Unlock()

	if selfListed {
		c.Run(self)
	}

	for _, t := range suspended {
		if !t.IsSuspended() {
			// It may be about to re-enter Runnable; wait for it to give up.
			bo := backoff.New(l.cfg.clock, l.cfg.backoff)
			for !t.IsSuspended() {
				bo.Wait()
			}
			if d := bo.Elapsed(); d > l.cfg.slowCheckpointWait {
				log.Warningf(self, "long wait of %s for %v suspension", d, t)
			}
		}
		c.Run(t)
		l.suspendCountMu.Lock()
		t.modifySuspendCountLocked(-1, nil, Internal)
		l.suspendCountMu.Unlock()
	}

	l.suspendCountMu.Lock()
	l.resumeCond.Broadcast()
	l.suspendCountMu.Unlock()
	return count
}

// RunCheckpointOnRunnableThreads requests c from every other Runnable thread
// and returns how many accepted it. Threads outside Runnable are skipped.
func (l *ThreadList) RunCheckpointOnRunnableThreads(self *Thread, c Closure) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	count := 0
	for _, t := range l.threads {
		if t == self {
			continue
		}
		if t.requestCheckpointLocked(c) {
			count++
		}
	}
	return count
}

// AddEmptyCheckpointWaker registers w to be woken while RunEmptyCheckpoint
// waits.
func (l *ThreadList) AddEmptyCheckpointWaker(w EmptyCheckpointWaker) {
	l.wakersMu.Lock()
	defer l.wakersMu.Unlock()
	l.wakers = append(l.wakers, w)
}

// RemoveEmptyCheckpointWaker undoes AddEmptyCheckpointWaker.
func (l *ThreadList) RemoveEmptyCheckpointWaker(w EmptyCheckpointWaker) {
	l.wakersMu.Lock()
	defer l.wakersMu.Unlock()
	for i, o := range l.wakers {
		if o == w {
			l.wakers = append(l.wakers[:i], l.wakers[i+1:]...)
			return
		}
	}
}

func (l *ThreadList) wakeForEmptyCheckpoint() {
	l.collector.BroadcastForEmptyCheckpoint()
	l.wakersMu.Lock()
	wakers := append([]EmptyCheckpointWaker(nil), l.wakers...)
	l.wakersMu.Unlock()
	for _, w := range wakers {
		w.WakeForEmptyCheckpoint()
	}
}

// RunEmptyCheckpoint waits until every other thread that was Runnable has
// passed a safepoint. Threads outside Runnable are not waited for. Calls are
// serialized.
//
// Runnable threads blocked in a Cond, a registered waker or a collector
// condition are woken periodically so they can acknowledge. If some thread
// still hasn't after the configured limit, RunEmptyCheckpoint is fatal.
func (l *ThreadList) RunEmptyCheckpoint(self *Thread) {
	l.emptyCheckpointMu.Lock()
	defer l.emptyCheckpointMu.Unlock()

	b := barrier.New(0)
	var requested []*Thread
	l.mu.Lock()
	l.suspendCountMu.Lock()
	for _, t := range l.threads {
		if t == self {
			continue
		}
		for {
			if t.requestEmptyCheckpointLocked(b) {
				requested = append(requested, t)
				break
			}
			if t.State() != Runnable {
				break
			}
		}
	}
	l.suspendCountMu.Unlock()
	l.mu.Unlock()

	wait := func() {
		l.wakeForEmptyCheckpoint()
		var waited time.Duration
		delta := len(requested)
		for b.Increment(delta, l.cfg.emptyCheckpointWake) {
			delta = 0
			waited += l.cfg.emptyCheckpointWake
			if waited >= l.cfg.emptyCheckpointLimit {
				l.fatalf(self, "empty checkpoint timed out after %s; threads not responding:\n%s",
					waited, l.unacknowledged(requested, b))
			}
			l.wakeForEmptyCheckpoint()
		}
	}
	if self != nil && self.State() == Runnable {
		self.RunSuspended(WaitingForCheckpointsToRun, wait)
	} else {
		wait()
	}
}

func (l *ThreadList) unacknowledged(requested []*Thread, b *barrier.Barrier) string {
	var sb strings.Builder
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	for _, t := range requested {
		if t.emptyBarrier == b {
			t.dumpHeader(&sb, t.suspendCount, t.debugSuspendCount)
		}
	}
	return sb.String()
}

// Cond is a condition variable that Runnable threads may wait on without
// blocking empty checkpoints: every RunEmptyCheckpoint wakes its waiters,
// which acknowledge before and after sleeping.
type Cond struct {
	L sync.Locker
	c *sync.Cond
}

// NewCond returns a Cond on lk that RunEmptyCheckpoint knows to wake.
func (l *ThreadList) NewCond(lk sync.Locker) *Cond {
	c := &Cond{L: lk, c: sync.NewCond(lk)}
	l.AddEmptyCheckpointWaker(c)
	return c
}

// Wait is sync.Cond.Wait for thread self, which may be nil.
func (c *Cond) Wait(self *Thread) {
	if self != nil {
		self.respondToEmptyCheckpoint()
	}
	c.c.Wait()
	if self != nil {
		self.respondToEmptyCheckpoint()
	}
}

func (c *Cond) Signal()    { c.c.Signal() }
func (c *Cond) Broadcast() { c.c.Broadcast() }

// WakeForEmptyCheckpoint implements EmptyCheckpointWaker.
func (c *Cond) WakeForEmptyCheckpoint() {
	c.L.Lock()
	c.c.Broadcast()
	c.L.Unlock()
}
