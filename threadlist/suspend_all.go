package threadlist

import (
	"fmt"
	"strings"
	"time"

	"github.com/DataExMachina-dev/safepoint-go/internal/barrier"
	"github.com/DataExMachina-dev/safepoint-go/internal/log"
)

// SuspendAll stops every thread other than self at a safepoint and acquires
// the mutator lock exclusively. Threads outside Runnable are suspended
// immediately; Runnable ones are waited for.
//
// self may be nil for callers that aren't managed threads. A registered
// caller must not be Runnable. longSuspend declares that the world will stay
// stopped for a long time, so that others waiting for it don't give up.
func (l *ThreadList) SuspendAll(self *Thread, cause string, longSuspend bool) {
	l.assertCanSuspend(self, "SuspendAll")
	start := time.Now()
	if log.V(log.VSuspend) {
		log.Infof(self, "SuspendAll for %s starting", cause)
	}
	l.suspendAllInternal(self, Internal)
	l.acquireExclusive(self)
	l.longSuspend.Store(longSuspend)

	pause := time.Since(start)
	l.pauses.Add(pause)
	if pause > l.cfg.longSuspendThreshold && !longSuspend {
		log.Warningf(self, "suspending all threads took: %s (cause %s)", pause, cause)
	}
	if log.V(log.VSuspend) {
		log.Infof(self, "SuspendAll for %s complete in %s", cause, pause)
	}
}

// suspendAllInternal raises the suspend count of every other thread and
// waits for the Runnable ones to reach a safepoint.
func (l *ThreadList) suspendAllInternal(self *Thread, reason SuspendReason) {
	pending := barrier.New(0)
	l.mu.Lock()
	l.suspendCountMu.Lock()
	l.suspendAllCount++
	if reason == ForDebugger {
		l.debugSuspendAllCount++
	}
	n := 0
	for _, t := range l.threads {
		if t != self {
			n++
		}
	}
	pending.Init(n)
	for _, t := range l.threads {
		if t == self {
			continue
		}
		t.modifySuspendCountLocked(+1, pending, reason)
		// A thread outside Runnable won't pass the barrier, so credit it here.
		// The state word was read after the request was published.
		if t.IsSuspended() {
			t.clearSuspendBarrierLocked(pending)
			pending.Pass()
		}
	}
	l.suspendCountMu.Unlock()
	l.mu.Unlock()

	if pending.Increment(0, l.cfg.suspendTimeout) {
		l.fatalf(self, "timed out waiting for threads to suspend (%d left)\n%s",
			pending.Count(), l.dumpUnsafe(true))
	}
}

func (l *ThreadList) acquireExclusive(self *Thread) {
	for !l.mutator.AcquireExclusive(l.cfg.exclusiveTimeout) {
		if l.longSuspend.Load() {
			// The holder told us it'll take a while.
			continue
		}
		l.fatalf(self, "timed out acquiring the mutator lock exclusively\n%s", l.dumpUnsafe(false))
	}
	if self != nil {
		self.holdsExclusive = true
	}
}

func (l *ThreadList) releaseExclusive(self *Thread) {
	if self != nil {
		self.holdsExclusive = false
	}
	l.mutator.ReleaseExclusive()
}

// ResumeAll undoes a SuspendAll made by self.
func (l *ThreadList) ResumeAll(self *Thread) {
	if self != nil && !self.holdsExclusive {
		panic(fmt.Sprintf("%v: ResumeAll without a matching SuspendAll", self))
	}
	l.longSuspend.Store(false)
	l.releaseExclusive(self)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	if l.suspendAllCount <= l.debugSuspendAllCount {
		panic(fmt.Sprintf("%v: ResumeAll without a matching SuspendAll", self))
	}
	l.suspendAllCount--
	for _, t := range l.threads {
		if t == self {
			continue
		}
		t.modifySuspendCountLocked(-1, nil, Internal)
	}
	l.resumeCond.Broadcast()
	if log.V(log.VSuspend) {
		log.Info(self, "ResumeAll complete")
	}
}

// StopTheWorld runs f with every other thread suspended.
func (l *ThreadList) StopTheWorld(self *Thread, cause string, longSuspend bool, f func()) {
	l.SuspendAll(self, cause, longSuspend)
	defer l.ResumeAll(self)
	f()
}

// SuspendAllForDebugger suspends every other thread on behalf of a
// debugger. Unlike SuspendAll it doesn't keep the mutator lock: the threads
// stay stopped by their suspend counts until ResumeAllForDebugger, or until
// a debugger resumes them one by one.
func (l *ThreadList) SuspendAllForDebugger(self *Thread) {
	l.assertCanSuspend(self, "SuspendAllForDebugger")
	log.Info(self, "suspending all threads for debugger")
	l.suspendAllInternal(self, ForDebugger)
	// Wait for stragglers to drop their shared holds, then let go at once.
	l.acquireExclusive(self)
	l.releaseExclusive(self)
	if log.V(log.VSuspend) {
		log.Info(self, "SuspendAllForDebugger complete")
	}
}

// ResumeAllForDebugger undoes a SuspendAllForDebugger. Threads the debugger
// already resumed individually are skipped.
func (l *ThreadList) ResumeAllForDebugger(self *Thread) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	if l.debugSuspendAllCount == 0 {
		log.Warning(self, "ResumeAllForDebugger without a matching SuspendAllForDebugger")
		return
	}
	l.suspendAllCount--
	l.debugSuspendAllCount--
	for _, t := range l.threads {
		if t == self || t.debugSuspendCount == 0 {
			continue
		}
		t.modifySuspendCountLocked(-1, nil, ForDebugger)
	}
	l.resumeCond.Broadcast()
	log.Info(self, "resumed all threads for debugger")
}

// ModifySuspendCount adds delta to t's suspend count. A negative delta that
// would take either count below zero panics.
func (l *ThreadList) ModifySuspendCount(self, t *Thread, delta int, reason SuspendReason) {
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	t.modifySuspendCountLocked(delta, nil, reason)
	if delta < 0 {
		l.resumeCond.Broadcast()
	}
	if log.V(log.VSuspend) {
		log.Infof(self, "%v suspend count %+d (%v)", t, delta, reason)
	}
}

// dumpUnsafe describes every thread without asking any of them to run a
// checkpoint. It is used when the world is half stopped.
func (l *ThreadList) dumpUnsafe(onlyRunning bool) string {
	var sb strings.Builder
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	for _, t := range l.threads {
		if onlyRunning && t.IsSuspended() {
			continue
		}
		t.dumpHeader(&sb, t.suspendCount, t.debugSuspendCount)
	}
	return sb.String()
}
