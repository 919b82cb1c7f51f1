package threadlist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/DataExMachina-dev/safepoint-go/internal/barrier"
	"github.com/DataExMachina-dev/safepoint-go/internal/log"
	"github.com/DataExMachina-dev/safepoint-go/internal/osthreads"
	"github.com/DataExMachina-dev/safepoint-go/internal/stackhash"
)

// Dump writes the state and stack of every registered thread to w, followed
// by the OS threads of the process that aren't attached. Runnable threads
// describe themselves at their next safepoint; Dump gives up on them after
// the configured dump timeout; if they get there later, they write nothing.
func (l *ThreadList) Dump(self *Thread, w io.Writer) {
	fmt.Fprintf(w, "MANAGED THREADS (%d):\n", l.Size())
	dc := &dumpCheckpoint{
		list:    l,
		self:    self,
		w:       w,
		stacks:  stackhash.NewSet(),
		barrier: barrier.New(0),
	}
	count := l.RunCheckpoint(self, dc)
	wait := func() {
		if dc.barrier.Increment(count, l.cfg.dumpTimeout) {
			log.Errorf(self, "timed out after %s waiting for %d threads to dump",
				l.cfg.dumpTimeout, dc.barrier.Count())
		}
	}
	if self != nil && self.State() == Runnable {
		self.RunSuspended(WaitingForCheckpointsToRun, wait)
	} else {
		wait()
	}
	l.logMu.Lock()
	dc.done.Store(true)
	l.logMu.Unlock()
	l.dumpUnattachedThreads(w)
}

// DumpForSigQuit is Dump followed by the suspend-all pause histogram.
func (l *ThreadList) DumpForSigQuit(self *Thread, w io.Writer) {
	l.Dump(self, w)
	if err := l.pauses.Dump(w); err != nil {
		log.Warningf(self, "failed to dump pause histogram: %v", err)
	}
}

type dumpCheckpoint struct {
	list    *ThreadList
	self    *Thread
	w       io.Writer
	stacks  *stackhash.Set
	barrier *barrier.Barrier
	// done is set under logMu once Dump stops waiting.
	done atomic.Bool
}

var _ Closure = (*dumpCheckpoint)(nil)

func (d *dumpCheckpoint) Run(t *Thread) {
	l := d.list
	// Roots must be flipped before the thread is inspected.
	if t.hasFlipFunction() {
		if t.ownCheckpoint.Load() || (d.self != nil && d.self.holdsShared) {
			t.RunFlipFunction()
		} else {
			l.mutator.AcquireShared()
			t.RunFlipFunction()
			l.mutator.ReleaseShared()
		}
	}
	var buf bytes.Buffer
	t.dumpHeader(&buf, t.SuspendCount(), t.DebugSuspendCount())
	stack := t.backtrace(1)
	if first, dup := d.stacks.Claim(stack, t.id); dup {
		fmt.Fprintf(&buf, "  (same stack as tid=%d)\n", first)
	} else {
		buf.Write(stack)
	}
	buf.WriteByte('\n')

	l.logMu.Lock()
	if !d.done.Load() {
		_, _ = d.w.Write(buf.Bytes())
	}
	l.logMu.Unlock()
	d.barrier.Pass()
}

func (l *ThreadList) dumpUnattachedThreads(w io.Writer) {
	tasks, err := osthreads.List()
	if err != nil {
		if !errors.Is(err, osthreads.ErrNotSupported) {
			log.Warningf(nil, "failed to list OS threads: %v", err)
		}
		return
	}
	attached := make(map[int]bool)
	l.ForEach(func(t *Thread) {
		if t.osTid != 0 {
			attached[t.osTid] = true
		}
	})
	l.logMu.Lock()
	defer l.logMu.Unlock()
	for _, task := range tasks {
		if attached[task.Tid] {
			continue
		}
		fmt.Fprintf(w, "%q sysTid=%d (not attached)\n", task.Name, task.Tid)
		fmt.Fprintf(w, "  | state=%s utm=%s stm=%s", task.State, task.UserTime, task.SystemTime)
		if !task.StartTime.IsZero() {
			fmt.Fprintf(w, " start=%s", task.StartTime.Format(time.RFC3339))
		}
		fmt.Fprint(w, "\n\n")
	}
}
