package threadlist

import (
	"fmt"
	"time"

	"github.com/DataExMachina-dev/safepoint-go/internal/log"
)

// Shutdown tears the list down: it unregisters self if registered, waits for
// every non-daemon thread to unregister, disables the collector and leaves
// the daemon threads suspended for good.
//
// Non-daemon threads may keep attaching helpers while Shutdown waits for
// them. A thread that attaches while the daemons are being suspended isn't
// waited for; one that attaches after Shutdown returns panics in Register.
func (l *ThreadList) Shutdown(self *Thread) {
	l.mu.Lock()
	registered := self != nil && l.containsLocked(self)
	l.mu.Unlock()
	if registered {
		l.Unregister(self)
	}
	l.waitForOtherNonDaemonThreadsToExit()
	l.collector.DisableForShutdown()
	l.suspendAllDaemonThreadsForShutdown()

	l.mu.Lock()
	l.shutDown = true
	l.mu.Unlock()
}

func (l *ThreadList) waitForOtherNonDaemonThreadsToExit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		done := l.unregisteringCount == 0
		for _, t := range l.threads {
			if !t.daemon {
				done = false
				break
			}
		}
		if done {
			return
		}
		l.exitCond.Wait()
	}
}

func (l *ThreadList) suspendAllDaemonThreadsForShutdown() {
	l.mu.Lock()
	l.suspendCountMu.Lock()
	daemons := len(l.threads)
	for _, t := range l.threads {
		if !t.daemon {
			panic(fmt.Sprintf("%v: non-daemon thread left at shutdown", t))
		}
		t.modifySuspendCountLocked(+1, nil, Internal)
	}
	l.suspendCountMu.Unlock()
	l.mu.Unlock()
	if daemons == 0 {
		return
	}
	log.Infof(nil, "suspending %d daemon threads for shutdown", daemons)
	l.cfg.clock.Sleep(l.cfg.daemonGrace)

	poll := l.cfg.daemonPoll
	if poll <= 0 {
		poll = defaultDaemonPoll
	}
	for waited := time.Duration(0); waited < l.cfg.daemonTimeout; waited += poll {
		running := l.runningDaemons()
		if running == 0 {
			return
		}
		if waited == 0 {
			log.Warningf(nil, "%d daemon threads still running, waiting", running)
		}
		l.cfg.clock.Sleep(poll)
	}
	log.Warningf(nil, "timed out suspending daemon threads: %d still running", l.runningDaemons())
}

func (l *ThreadList) runningDaemons() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.threads {
		if !t.IsSuspended() {
			n++
		}
	}
	return n
}
