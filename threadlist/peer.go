package threadlist

import (
	"fmt"

	"github.com/DataExMachina-dev/safepoint-go/internal/backoff"
	"github.com/DataExMachina-dev/safepoint-go/internal/idalloc"
	"github.com/DataExMachina-dev/safepoint-go/internal/log"
)

// SuspendThreadByThreadID suspends the thread with the given id and returns
// it once it is suspended. It returns nil if no such thread exists, and nil
// with timedOut set if the thread didn't reach a safepoint in time; in both
// cases nothing stays modified.
//
// Callers must serialize peer suspensions among themselves; two threads
// suspending each other would otherwise deadlock.
func (l *ThreadList) SuspendThreadByThreadID(self *Thread, id uint32, reason SuspendReason) (t *Thread, timedOut bool) {
	if id == idalloc.Invalid {
		panic("threadlist: suspend of invalid thread id 0")
	}
	return l.suspendThread(self, fmt.Sprintf("thread id %d", id), reason, func() *Thread {
		return l.findByIDLocked(id)
	})
}

// SuspendThreadByPeer is SuspendThreadByThreadID for the thread created
// with WithPeer(peer).
func (l *ThreadList) SuspendThreadByPeer(self *Thread, peer any, reason SuspendReason) (t *Thread, timedOut bool) {
	if peer == nil {
		panic("threadlist: suspend of nil peer")
	}
	return l.suspendThread(self, fmt.Sprintf("peer %v", peer), reason, func() *Thread {
		return l.findByPeerLocked(peer)
	})
}

func (l *ThreadList) suspendThread(
	self *Thread, what string, reason SuspendReason, find func() *Thread,
) (*Thread, bool) {
	bo := backoff.New(l.cfg.clock, l.cfg.backoff)
	var requested *Thread
	for {
		l.mu.Lock()
		t := find()
		if t == nil {
			l.mu.Unlock()
			if requested != nil {
				panic(fmt.Sprintf("%v: suspended %v left the thread list", self, requested))
			}
			log.Warningf(self, "no %s to suspend", what)
			return nil, false
		}
		if t == self {
			l.mu.Unlock()
			panic(fmt.Sprintf("%v: attempt to suspend the current thread", self))
		}
		l.suspendCountMu.Lock()
		if requested == nil {
			if self != nil && self.suspendCount > 0 {
				// Someone wants us suspended; let them first, or we may deadlock
				// with them.
				l.suspendCountMu.Unlock()
				l.mu.Unlock()
				self.allowSuspension()
				continue
			}
			t.modifySuspendCountLocked(+1, nil, reason)
			requested = t
		} else if requested != t {
			panic(fmt.Sprintf("%v: %s changed from %v to %v during suspension", self, what, requested, t))
		}
		if t.IsSuspended() {
			l.suspendCountMu.Unlock()
			l.mu.Unlock()
			if log.V(log.VSuspend) {
				log.Infof(self, "suspended %v after %s", t, bo.Elapsed())
			}
			return t, false
		}
		if bo.Expired(l.cfg.suspendTimeout) {
			t.modifySuspendCountLocked(-1, nil, reason)
			l.resumeCond.Broadcast()
			l.suspendCountMu.Unlock()
			l.mu.Unlock()
			log.Warningf(self, "suspension of %v timed out after %s", t, bo.Elapsed())
			return nil, true
		}
		l.suspendCountMu.Unlock()
		l.mu.Unlock()
		if self != nil && self.State() == Runnable {
			self.RunSuspended(Suspended, bo.Wait)
		} else {
			bo.Wait()
		}
	}
}

// allowSuspension lets pending suspensions of t take effect and waits for
// them to be lifted.
func (t *Thread) allowSuspension() {
	if t.State() == Runnable {
		t.Poll()
		return
	}
	l := t.list
	l.suspendCountMu.Lock()
	for t.suspendCount > 0 {
		l.resumeCond.Wait()
	}
	l.suspendCountMu.Unlock()
}

// Resume undoes one suspension of t made with the given reason. It returns
// false if t isn't registered or isn't suspended.
func (l *ThreadList) Resume(self, t *Thread, reason SuspendReason) bool {
	if t == self {
		panic(fmt.Sprintf("%v: attempt to resume the current thread", self))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	if !l.containsLocked(t) {
		log.Errorf(self, "resume of %v which isn't registered", t)
		return false
	}
	if !t.IsSuspended() {
		log.Errorf(self, "resume of %v which isn't suspended", t)
		return false
	}
	if reason == ForDebugger && t.debugSuspendCount == 0 {
		log.Errorf(self, "debugger resume of %v which the debugger didn't suspend", t)
		return false
	}
	t.modifySuspendCountLocked(-1, nil, reason)
	l.resumeCond.Broadcast()
	if log.V(log.VSuspend) {
		log.Infof(self, "resumed %v (%v)", t, reason)
	}
	return true
}
