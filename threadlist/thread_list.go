// Package threadlist coordinates the managed threads of a runtime: it keeps
// the registry of attached threads and implements stop-the-world
// suspension, checkpoints, root flips and per-thread suspension on top of a
// cooperative safepoint protocol.
//
// A managed thread is a goroutine holding a *Thread. While Runnable it holds
// the mutator lock shared and must call Poll regularly; before blocking it
// leaves Runnable with TransitionFromRunnableToSuspended (or RunSuspended).
// A thread outside Runnable counts as suspended as soon as a suspension is
// requested, so suspension never has to wait for blocked threads.
//
// Locks are ordered: the registry lock, then the suspend-count lock. The
// mutator lock is never acquired while holding either.
package threadlist

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/DataExMachina-dev/safepoint-go/internal/backoff"
	"github.com/DataExMachina-dev/safepoint-go/internal/idalloc"
	"github.com/DataExMachina-dev/safepoint-go/internal/log"
	"github.com/DataExMachina-dev/safepoint-go/internal/mutatorlock"
	"github.com/DataExMachina-dev/safepoint-go/internal/osthreads"
	"github.com/DataExMachina-dev/safepoint-go/internal/pausehist"
)

// ThreadList is the registry of managed threads.
type ThreadList struct {
	cfg       config
	mutator   MutatorLock
	collector Collector
	ids       *idalloc.Allocator
	pauses    *pausehist.Histogram

	// mu is the registry lock.
	mu sync.Mutex
	// exitCond is signaled when a thread leaves the list.
	exitCond *sync.Cond
	// Guarded by mu.
	threads            []*Thread
	unregisteringCount int
	shutDown           bool

	// suspendCountMu guards every thread's suspend counts, pending checkpoints
	// and suspend barriers.
	suspendCountMu sync.Mutex
	// resumeCond is signaled when suspend counts are decremented.
	resumeCond *sync.Cond
	// Guarded by suspendCountMu.
	suspendAllCount      int
	debugSuspendAllCount int

	emptyCheckpointMu sync.Mutex
	// flipMu serializes FlipThreadRoots.
	flipMu sync.Mutex
	wakersMu          sync.Mutex
	wakers            []EmptyCheckpointWaker

	// logMu serializes output of concurrent dump checkpoints.
	logMu sync.Mutex

	// longSuspend is set by the current exclusive holder if it expects to
	// keep the world stopped for a long time.
	longSuspend atomic.Bool
}

// New returns an empty ThreadList.
func New(opts ...Option) *ThreadList {
	cfg := makeDefaultConfig()
	for _, o := range opts {
		o.apply(&cfg)
	}
	if cfg.mutator == nil {
		cfg.mutator = mutatorlock.New()
	}
	if cfg.collector == nil {
		cfg.collector = NopCollector{}
	}
	if cfg.clock == nil {
		cfg.clock = backoff.RealClock{}
	}
	if cfg.exclusiveTimeout == 0 {
		cfg.exclusiveTimeout = cfg.suspendTimeout
	}
	l := &ThreadList{
		cfg:       cfg,
		mutator:   cfg.mutator,
		collector: cfg.collector,
		ids:       idalloc.New(cfg.maxThreads),
		pauses:    pausehist.New("suspend all histogram"),
	}
	l.exitCond = sync.NewCond(&l.mu)
	l.resumeCond = sync.NewCond(&l.suspendCountMu)
	return l
}

// fatalf reports an unrecoverable condition. It never returns.
func (l *ThreadList) fatalf(self *Thread, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if self != nil {
		msg = self.String() + ": " + msg
	}
	l.cfg.fatal(msg)
	panic(msg)
}

// AllocThreadID reserves a thread id. Running out of ids is fatal.
func (l *ThreadList) AllocThreadID(self *Thread) uint32 {
	id, ok := l.ids.Alloc()
	if !ok {
		l.fatalf(self, "out of thread ids (max %d)", l.ids.Max())
	}
	return id
}

// ReleaseThreadID returns id to the pool. Releasing an id that isn't
// allocated panics.
func (l *ThreadList) ReleaseThreadID(id uint32) {
	l.ids.Release(id)
}

// NewThread creates a thread in state Native. The thread isn't visible to
// the list until it is registered.
func (l *ThreadList) NewThread(name string, opts ...ThreadOption) *Thread {
	t := &Thread{list: l, name: name}
	for _, o := range opts {
		o.applyThread(t)
	}
	t.id = l.AllocThreadID(nil)
	t.sf.Store(uint32(stateAndFlags(0).withState(Native)))
	if t.pinned {
		runtime.LockOSThread()
		t.osTid = osthreads.Gettid()
	}
	return t
}

// Attach creates a thread for the calling goroutine and registers it. The
// thread starts in state Native; call TransitionFromSuspendedToRunnable to
// start running managed code.
func (l *ThreadList) Attach(name string, opts ...ThreadOption) *Thread {
	t := l.NewThread(name, opts...)
	l.Register(t)
	return t
}

// Register adds t to the list. If a suspend-all is in progress the thread
// starts out suspended, with one count per outstanding request.
func (l *ThreadList) Register(t *Thread) {
	if t.list != l {
		panic(fmt.Sprintf("%v: registering with a foreign thread list", t))
	}
	if t.State() == Runnable {
		panic(fmt.Sprintf("%v: registering while Runnable", t))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	if l.shutDown {
		panic(fmt.Sprintf("%v: registering after shutdown", t))
	}
	if l.containsLocked(t) {
		panic(fmt.Sprintf("%v: already registered", t))
	}
	for i := l.suspendAllCount - l.debugSuspendAllCount; i > 0; i-- {
		t.modifySuspendCountLocked(+1, nil, Internal)
	}
	for i := l.debugSuspendAllCount; i > 0; i-- {
		t.modifySuspendCountLocked(+1, nil, ForDebugger)
	}
	t.weakRefAccessEnabled.Store(l.collector.IsWeakRefAccessEnabled())
	l.threads = append(l.threads, t)
	if log.V(log.VThreads) {
		log.Infof(t, "registered (%d threads)", len(l.threads))
	}
}

// Unregister removes self from the list and releases its id. It must be
// called by the thread itself, outside Runnable. If the thread is suspended,
// Unregister waits until it is resumed.
func (l *ThreadList) Unregister(self *Thread) {
	if self.State() == Runnable {
		panic(fmt.Sprintf("%v: unregistering while Runnable", self))
	}
	if self.holdsShared || self.holdsExclusive {
		panic(fmt.Sprintf("%v: unregistering while holding the mutator lock", self))
	}
	l.mu.Lock()
	l.unregisteringCount++
	l.mu.Unlock()

	self.destroy()

	bo := backoff.New(l.cfg.clock, l.cfg.backoff)
	for {
		l.mu.Lock()
		if !l.containsLocked(self) {
			l.mu.Unlock()
			log.Errorf(self, "request to unregister unattached thread")
			break
		}
		l.suspendCountMu.Lock()
		if !self.IsSuspended() {
			l.removeLocked(self)
			l.suspendCountMu.Unlock()
			l.mu.Unlock()
			break
		}
		l.suspendCountMu.Unlock()
		l.mu.Unlock()
		bo.Wait()
	}
	if self.State() != Terminated {
		self.setState(Terminated)
		if self.pinned {
			runtime.UnlockOSThread()
		}
		l.ReleaseThreadID(self.id)
	}

	l.mu.Lock()
	l.unregisteringCount--
	l.exitCond.Broadcast()
	l.mu.Unlock()
	if log.V(log.VThreads) {
		log.Info(self, "unregistered")
	}
}

// destroy runs the destroy hooks and a flip function that nobody claimed.
func (t *Thread) destroy() {
	for i := len(t.destroyHooks) - 1; i >= 0; i-- {
		t.destroyHooks[i](t)
	}
	t.destroyHooks = nil
	if t.hasFlipFunction() {
		t.list.mutator.AcquireShared()
		t.RunFlipFunction()
		t.list.mutator.ReleaseShared()
	}
}

func (l *ThreadList) containsLocked(t *Thread) bool {
	for _, o := range l.threads {
		if o == t {
			return true
		}
	}
	return false
}

func (l *ThreadList) removeLocked(t *Thread) {
	for i, o := range l.threads {
		if o == t {
			last := len(l.threads) - 1
			l.threads[i] = l.threads[last]
			l.threads[last] = nil
			l.threads = l.threads[:last]
			return
		}
	}
}

// Contains reports whether t is registered.
func (l *ThreadList) Contains(t *Thread) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.containsLocked(t)
}

// Size returns the number of registered threads.
func (l *ThreadList) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.threads)
}

// Threads returns a snapshot of the registered threads.
func (l *ThreadList) Threads() []*Thread {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Thread(nil), l.threads...)
}

// ForEach calls f for every registered thread while holding the registry
// lock. f must not call back into the list.
func (l *ThreadList) ForEach(f func(t *Thread)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.threads {
		f(t)
	}
}

// FindThreadByID returns the registered thread with the given id, or nil.
func (l *ThreadList) FindThreadByID(id uint32) *Thread {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findByIDLocked(id)
}

func (l *ThreadList) findByIDLocked(id uint32) *Thread {
	for _, t := range l.threads {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (l *ThreadList) findByPeerLocked(peer any) *Thread {
	for _, t := range l.threads {
		if t.peer == peer {
			return t
		}
	}
	return nil
}

// SuspendAllCount returns the number of outstanding suspend-all requests.
func (l *ThreadList) SuspendAllCount() int {
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	return l.suspendAllCount
}

// DebugSuspendAllCount returns the number of outstanding debugger
// suspend-all requests.
func (l *ThreadList) DebugSuspendAllCount() int {
	l.suspendCountMu.Lock()
	defer l.suspendCountMu.Unlock()
	return l.debugSuspendAllCount
}

// UnregisteringCount returns the number of threads inside Unregister.
func (l *ThreadList) UnregisteringCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unregisteringCount
}

// IsShutDown reports whether Shutdown has completed.
func (l *ThreadList) IsShutDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutDown
}

// ThreadIDsInUse returns the number of allocated thread ids.
func (l *ThreadList) ThreadIDsInUse() int {
	return l.ids.InUse()
}

// PauseHistogram returns a snapshot of suspend-all pause durations.
func (l *ThreadList) PauseHistogram() pausehist.Snapshot {
	return l.pauses.Snapshot()
}

// assertCanSuspend panics if self may not wait for other threads to suspend.
func (l *ThreadList) assertCanSuspend(self *Thread, op string) {
	if self == nil {
		return
	}
	if self.State() == Runnable {
		panic(fmt.Sprintf("%v: %s called while Runnable", self, op))
	}
	if self.holdsShared || self.holdsExclusive {
		panic(fmt.Sprintf("%v: %s called while holding the mutator lock", self, op))
	}
}
