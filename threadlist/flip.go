package threadlist

import (
	"time"

	"github.com/DataExMachina-dev/safepoint-go/internal/log"
)

// FlipThreadRoots stops the world, runs callback with the world stopped and
// then has visitor run exactly once for every registered thread, self
// included. It returns the number of threads visited.
//
// The pause only covers callback. Threads that were on their way back to
// Runnable are resumed right away and run visitor themselves when they get
// there; the others are visited by the caller and resumed afterwards. A
// thread that tries to run managed code before it has been visited visits
// itself first.
//
// Flips are serialized. Visitors an earlier flip left pending on threads it
// resumed early run while the world is stopped, before the new visitor is
// installed.
func (l *ThreadList) FlipThreadRoots(self *Thread, visitor, callback Closure) int {
	l.assertCanSuspend(self, "FlipThreadRoots")
	l.flipMu.Lock()
	defer l.flipMu.Unlock()
	l.collector.ThreadFlipBegin(self)

	start := time.Now()
	l.suspendAllInternal(self, Internal)
	l.acquireExclusive(self)
	l.pauses.Add(time.Since(start))
	for _, t := range l.Threads() {
		t.RunFlipFunction()
	}
	callback.Run(self)
	l.releaseExclusive(self)
	l.collector.RegisterPause(time.Since(start))

	var others []*Thread
	resumed := 0
	selfListed := false
	l.mu.Lock()
	l.suspendCountMu.Lock()
	l.suspendAllCount--
	for _, t := range l.threads {
		t.setFlipFunction(visitor)
		if t == self {
			selfListed = true
			continue
		}
		// Only a thread held by nobody but us can be let go early.
		if (t.State() == WaitingForGCThreadFlip || t.transitioningToRunnable.Load()) && t.suspendCount == 1 {
			t.modifySuspendCountLocked(-1, nil, Internal)
			resumed++
		} else {
			others = append(others, t)
		}
	}
	l.resumeCond.Broadcast()
	l.suspendCountMu.Unlock()
	l.mu.Unlock()

	l.collector.ThreadFlipEnd(self)

	l.mutator.AcquireShared()
	for _, t := range others {
		t.RunFlipFunction()
	}
	if selfListed {
		self.RunFlipFunction()
	}
	l.mutator.ReleaseShared()

	l.suspendCountMu.Lock()
	for _, t := range others {
		t.modifySuspendCountLocked(-1, nil, Internal)
	}
	l.resumeCond.Broadcast()
	l.suspendCountMu.Unlock()

	if log.V(log.VSuspend) {
		log.Infof(self, "flipped %d threads, %d resumed early", resumed+len(others), resumed)
	}
	n := resumed + len(others)
	if selfListed {
		n++
	}
	return n
}
