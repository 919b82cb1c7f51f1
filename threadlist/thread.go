package threadlist

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/DataExMachina-dev/safepoint-go/internal/barrier"
	"github.com/DataExMachina-dev/safepoint-go/internal/fifo"
	"github.com/DataExMachina-dev/safepoint-go/internal/osthreads"
)

// Thread is a managed thread: a goroutine that runs managed code and polls
// for safepoint requests. Most methods must be called by the goroutine that
// owns the Thread; the exceptions say so.
type Thread struct {
	list   *ThreadList
	id     uint32
	name   string
	daemon bool
	peer   any
	osTid  int
	pinned bool

	sf atomic.Uint32

	// Guarded by list.suspendCountMu.
	suspendCount       int
	debugSuspendCount  int
	checkpoint         Closure
	checkpointOverflow fifo.Queue[Closure]
	suspendBarriers    []*barrier.Barrier
	emptyBarrier       *barrier.Barrier

	flipFunction            atomic.Pointer[closureRef]
	transitioningToRunnable atomic.Bool
	weakRefAccessEnabled    atomic.Bool
	ownCheckpoint           atomic.Bool
	parkPCs                 atomic.Pointer[[]uintptr]

	// Owned by the thread itself.
	holdsShared    bool
	holdsExclusive bool
	destroyHooks   []func(*Thread)
}

// ThreadOption configures a new Thread.
type ThreadOption interface {
	applyThread(*Thread)
}

type threadOptionFunc func(t *Thread)

func (f threadOptionFunc) applyThread(t *Thread) { f(t) }

// Daemon marks the thread as a daemon: Shutdown doesn't wait for it and
// suspends it instead.
func Daemon() ThreadOption {
	return threadOptionFunc(func(t *Thread) { t.daemon = true })
}

// WithPeer associates a comparable handle with the thread so that it can be
// found by SuspendThreadByPeer.
func WithPeer(peer any) ThreadOption {
	return threadOptionFunc(func(t *Thread) { t.peer = peer })
}

// PinOSThread locks the calling goroutine to its OS thread for the lifetime
// of the Thread, so that the OS tid shown in dumps stays meaningful.
func PinOSThread() ThreadOption {
	return threadOptionFunc(func(t *Thread) { t.pinned = true })
}

// ID returns the thread id. It may be called from any goroutine.
func (t *Thread) ID() uint32 { return t.id }

// Name returns the thread name. It may be called from any goroutine.
func (t *Thread) Name() string { return t.name }

// IsDaemon reports whether the thread is a daemon.
func (t *Thread) IsDaemon() bool { return t.daemon }

// Peer returns the handle given with WithPeer.
func (t *Thread) Peer() any { return t.peer }

// OSTid returns the OS thread id if the thread is pinned, otherwise 0.
func (t *Thread) OSTid() int { return t.osTid }

func (t *Thread) String() string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("Thread[%d,%q]", t.id, t.name)
}

func (t *Thread) load() stateAndFlags {
	return stateAndFlags(t.sf.Load())
}

func (t *Thread) cas(old, new stateAndFlags) bool {
	return t.sf.CompareAndSwap(uint32(old), uint32(new))
}

func (t *Thread) setFlag(f stateAndFlags) {
	for {
		old := t.load()
		if t.cas(old, old|f) {
			return
		}
	}
}

func (t *Thread) clearFlag(f stateAndFlags) {
	for {
		old := t.load()
		if t.cas(old, old&^f) {
			return
		}
	}
}

func (t *Thread) readFlag(f stateAndFlags) bool {
	return t.load()&f != 0
}

func (t *Thread) setState(s State) {
	for {
		old := t.load()
		if t.cas(old, old.withState(s)) {
			return
		}
	}
}

// State returns the current state. It may be called from any goroutine.
func (t *Thread) State() State {
	return t.load().state()
}

// IsSuspended reports whether the thread is outside Runnable with a suspend
// request pending. It may be called from any goroutine.
func (t *Thread) IsSuspended() bool {
	sf := t.load()
	return sf.state() != Runnable && sf&flagSuspendRequest != 0
}

// SuspendCount returns the number of outstanding suspend requests. It may be
// called from any goroutine.
func (t *Thread) SuspendCount() int {
	t.list.suspendCountMu.Lock()
	defer t.list.suspendCountMu.Unlock()
	return t.suspendCount
}

// DebugSuspendCount returns the part of SuspendCount requested by debuggers.
func (t *Thread) DebugSuspendCount() int {
	t.list.suspendCountMu.Lock()
	defer t.list.suspendCountMu.Unlock()
	return t.debugSuspendCount
}

// IsWeakRefAccessEnabled reports whether the thread may read weak references.
func (t *Thread) IsWeakRefAccessEnabled() bool {
	return t.weakRefAccessEnabled.Load()
}

// SetWeakRefAccessEnabled is called by the collector, typically from a
// checkpoint, when it toggles weak reference access.
func (t *Thread) SetWeakRefAccessEnabled(enabled bool) {
	t.weakRefAccessEnabled.Store(enabled)
}

// AddDestroyHook registers f to run when the thread unregisters, before it
// leaves the list. Hooks run in reverse order of registration.
func (t *Thread) AddDestroyHook(f func(*Thread)) {
	t.destroyHooks = append(t.destroyHooks, f)
}

func (t *Thread) modifySuspendCountLocked(delta int, b *barrier.Barrier, reason SuspendReason) {
	if t.suspendCount+delta < 0 {
		panic(fmt.Sprintf("%v: suspend count underflow: %d%+d", t, t.suspendCount, delta))
	}
	if reason == ForDebugger {
		if t.debugSuspendCount+delta < 0 {
			panic(fmt.Sprintf("%v: debug suspend count underflow: %d%+d", t, t.debugSuspendCount, delta))
		}
		t.debugSuspendCount += delta
	}
	t.suspendCount += delta
	if b != nil {
		t.suspendBarriers = append(t.suspendBarriers, b)
		t.setFlag(flagActiveSuspendBarrier)
	}
	if t.suspendCount == 0 {
		t.clearFlag(flagSuspendRequest)
	} else {
		t.setFlag(flagSuspendRequest)
	}
}

// clearSuspendBarrierLocked forgets b without passing it.
func (t *Thread) clearSuspendBarrierLocked(b *barrier.Barrier) bool {
	for i, sb := range t.suspendBarriers {
		if sb != b {
			continue
		}
		t.suspendBarriers = append(t.suspendBarriers[:i], t.suspendBarriers[i+1:]...)
		if len(t.suspendBarriers) == 0 {
			t.clearFlag(flagActiveSuspendBarrier)
		}
		return true
	}
	return false
}

func (t *Thread) passActiveSuspendBarriers() {
	l := t.list
	l.suspendCountMu.Lock()
	if !t.readFlag(flagActiveSuspendBarrier) {
		l.suspendCountMu.Unlock()
		return
	}
	pass := t.suspendBarriers
	t.suspendBarriers = nil
	t.clearFlag(flagActiveSuspendBarrier)
	l.suspendCountMu.Unlock()
	for _, b := range pass {
		b.Pass()
	}
}

// requestCheckpointLocked queues c if the thread is Runnable.
func (t *Thread) requestCheckpointLocked(c Closure) bool {
	old := t.load()
	if old.state() != Runnable {
		return false
	}
	if !t.cas(old, old|flagCheckpointRequest) {
		return false
	}
	if t.checkpoint == nil {
		t.checkpoint = c
	} else {
		t.checkpointOverflow.PushBack(c)
	}
	return true
}

func (t *Thread) requestEmptyCheckpointLocked(b *barrier.Barrier) bool {
	old := t.load()
	if old.state() != Runnable {
		return false
	}
	if !t.cas(old, old|flagEmptyCheckpointRequest) {
		return false
	}
	t.emptyBarrier = b
	return true
}

func (t *Thread) runCheckpointFunction() {
	l := t.list
	l.suspendCountMu.Lock()
	c := t.checkpoint
	if t.checkpointOverflow.Len() > 0 {
		t.checkpoint = t.checkpointOverflow.PopFront()
	} else {
		t.checkpoint = nil
		t.clearFlag(flagCheckpointRequest)
	}
	l.suspendCountMu.Unlock()
	if c == nil {
		return
	}
	t.ownCheckpoint.Store(true)
	defer t.ownCheckpoint.Store(false)
	c.Run(t)
}

func (t *Thread) runEmptyCheckpoint() {
	l := t.list
	l.suspendCountMu.Lock()
	b := t.emptyBarrier
	t.emptyBarrier = nil
	t.clearFlag(flagEmptyCheckpointRequest)
	l.suspendCountMu.Unlock()
	if b != nil {
		b.Pass()
	}
}

// respondToEmptyCheckpoint acknowledges a pending empty checkpoint, if any.
func (t *Thread) respondToEmptyCheckpoint() {
	if t.readFlag(flagEmptyCheckpointRequest) {
		t.runEmptyCheckpoint()
	}
}

// TransitionFromRunnableToSuspended leaves Runnable for newState. Pending
// checkpoints run first. The shared hold on the mutator lock is released and
// any suspend-all waiting on this thread is notified.
func (t *Thread) TransitionFromRunnableToSuspended(newState State) {
	if newState == Runnable {
		panic(fmt.Sprintf("%v: transition to Runnable from Runnable", t))
	}
	if t.list.cfg.parkBacktraces {
		pcs := make([]uintptr, 32)
		pcs = pcs[:runtime.Callers(2, pcs)]
		t.parkPCs.Store(&pcs)
	}
	for {
		old := t.load()
		if old.state() != Runnable {
			panic(fmt.Sprintf("%v: transition to %v from %v", t, newState, old.state()))
		}
		if old&flagCheckpointRequest != 0 {
			t.runCheckpointFunction()
			continue
		}
		if old&flagEmptyCheckpointRequest != 0 {
			t.runEmptyCheckpoint()
			continue
		}
		if t.cas(old, old.withState(newState)) {
			break
		}
	}
	t.holdsShared = false
	t.list.mutator.ReleaseShared()
	if t.readFlag(flagActiveSuspendBarrier) {
		t.passActiveSuspendBarriers()
	}
}

// TransitionFromSuspendedToRunnable enters Runnable, first waiting until no
// suspension is requested. It then acquires the mutator lock shared and runs
// a pending flip function.
func (t *Thread) TransitionFromSuspendedToRunnable() {
	l := t.list
	t.transitioningToRunnable.Store(true)
	for {
		old := t.load()
		if old.state() == Runnable {
			panic(fmt.Sprintf("%v: transition to Runnable from Runnable", t))
		}
		if old&flagSuspendRequest == 0 {
			if t.cas(old, old.withState(Runnable)) {
				break
			}
			continue
		}
		l.suspendCountMu.Lock()
		for t.suspendCount > 0 {
			l.resumeCond.Wait()
		}
		l.suspendCountMu.Unlock()
	}
	t.transitioningToRunnable.Store(false)
	l.mutator.AcquireShared()
	t.holdsShared = true
	t.RunFlipFunction()
}

// Poll is a safepoint. A Runnable thread must call it regularly: it runs
// pending checkpoints, acknowledges empty checkpoints and blocks while a
// suspension is requested.
func (t *Thread) Poll() {
	for {
		old := t.load()
		if old.state() != Runnable {
			panic(fmt.Sprintf("%v: poll while %v", t, old.state()))
		}
		switch {
		case old&flagCheckpointRequest != 0:
			t.runCheckpointFunction()
		case old&flagEmptyCheckpointRequest != 0:
			t.runEmptyCheckpoint()
		case old&flagSuspendRequest != 0:
			t.TransitionFromRunnableToSuspended(Suspended)
			t.TransitionFromSuspendedToRunnable()
		default:
			return
		}
	}
}

// RunSuspended runs fn in state s and returns to Runnable afterwards. Use it
// around anything that may block.
func (t *Thread) RunSuspended(s State, fn func()) {
	t.TransitionFromRunnableToSuspended(s)
	defer t.TransitionFromSuspendedToRunnable()
	fn()
}

// RunFlipFunction runs the thread's pending flip function, if any, and
// reports whether it did. Concurrent callers race on an atomic claim, so the
// function runs at most once. The caller must hold the mutator lock shared.
// It may be called from any goroutine.
func (t *Thread) RunFlipFunction() bool {
	ref := t.flipFunction.Swap(nil)
	if ref == nil {
		return false
	}
	ref.c.Run(t)
	return true
}

func (t *Thread) setFlipFunction(c Closure) {
	t.flipFunction.Store(&closureRef{c: c})
}

func (t *Thread) hasFlipFunction() bool {
	return t.flipFunction.Load() != nil
}

// Dump writes the thread's state and stack to w. It may be called from any
// goroutine, but only shows a stack if called by the thread itself or if the
// thread is parked with park backtraces enabled.
func (t *Thread) Dump(w io.Writer) {
	var buf bytes.Buffer
	t.dumpHeader(&buf, t.SuspendCount(), t.DebugSuspendCount())
	buf.Write(t.backtrace(1))
	_, _ = w.Write(buf.Bytes())
}

func (t *Thread) dumpHeader(w io.Writer, suspendCount, debugSuspendCount int) {
	sf := t.load()
	daemon := ""
	if t.daemon {
		daemon = " daemon"
	}
	fmt.Fprintf(w, "%q%s tid=%d %v\n", t.name, daemon, t.id, sf.state())
	fmt.Fprintf(w, "  | sCount=%d dsCount=%d flags=%#x sysTid=%d\n",
		suspendCount, debugSuspendCount, uint32(sf.flags()>>8), t.osTid)
}

// backtrace renders the current stack when called by the thread running its
// own checkpoint, the recorded park stack otherwise. Frames print without
// argument values so identical code paths hash the same.
func (t *Thread) backtrace(skip int) []byte {
	var pcs []uintptr
	if t.ownCheckpoint.Load() || t.isCurrent() {
		pcs = make([]uintptr, 64)
		pcs = pcs[:runtime.Callers(skip+2, pcs)]
	} else if p := t.parkPCs.Load(); p != nil && t.State() != Runnable {
		pcs = *p
	}
	if len(pcs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		fmt.Fprintf(&buf, "  at %s(%s:%d)\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return buf.Bytes()
}

// isCurrent reports whether a pinned thread is running on the calling OS
// thread.
func (t *Thread) isCurrent() bool {
	return t.pinned && t.osTid != 0 && t.osTid == osthreads.Gettid()
}
