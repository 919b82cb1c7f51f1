package threadlist

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DataExMachina-dev/safepoint-go/internal/mutatorlock"
)

// fatals records messages passed to the fatal handler.
type fatals struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fatals) handle(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fatals) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1]
}

// newTestList returns a list whose fatal handler logs instead of exiting, so
// that fatal conditions surface as panics.
func newTestList(tb testing.TB, opts ...Option) (*ThreadList, *mutatorlock.Lock, *fatals) {
	f := &fatals{}
	m := mutatorlock.New()
	opts = append([]Option{
		WithMutatorLock(m),
		WithFatalHandler(func(msg string) {
			tb.Logf("fatal: %s", msg)
			f.handle(msg)
		}),
	}, opts...)
	return New(opts...), m, f
}

// mutator is a thread running managed code: it polls in a loop until stopped.
type mutator struct {
	t     *Thread
	polls atomic.Int64
	stop  chan struct{}
	done  chan struct{}
}

func startMutator(l *ThreadList, name string, opts ...ThreadOption) *mutator {
	m := &mutator{stop: make(chan struct{}), done: make(chan struct{})}
	ready := make(chan struct{})
	go func() {
		defer close(m.done)
		m.t = l.Attach(name, opts...)
		m.t.TransitionFromSuspendedToRunnable()
		close(ready)
		for {
			select {
			case <-m.stop:
				m.t.TransitionFromRunnableToSuspended(Native)
				l.Unregister(m.t)
				return
			default:
			}
			m.t.Poll()
			m.polls.Add(1)
			runtime.Gosched()
		}
	}()
	<-ready
	return m
}

func (m *mutator) Stop() {
	close(m.stop)
	<-m.done
}

// parked is a thread blocked outside managed code.
type parked struct {
	t       *Thread
	release chan struct{}
	done    chan struct{}
}

func startParked(l *ThreadList, name string, opts ...ThreadOption) *parked {
	p := &parked{release: make(chan struct{}), done: make(chan struct{})}
	ready := make(chan struct{})
	go func() {
		defer close(p.done)
		p.t = l.Attach(name, opts...)
		close(ready)
		<-p.release
		l.Unregister(p.t)
	}()
	<-ready
	return p
}

func (p *parked) Stop() {
	close(p.release)
	<-p.done
}

// stuck is a Runnable thread that never polls until released.
type stuck struct {
	t       *Thread
	release chan struct{}
}

func startStuck(l *ThreadList, name string) *stuck {
	s := &stuck{release: make(chan struct{})}
	ready := make(chan struct{})
	go func() {
		s.t = l.Attach(name)
		s.t.TransitionFromSuspendedToRunnable()
		close(ready)
		<-s.release
	}()
	<-ready
	return s
}

type threadSnapshot struct {
	Name              string
	SuspendCount      int
	DebugSuspendCount int
}

type listSnapshot struct {
	Threads              []threadSnapshot
	SuspendAllCount      int
	DebugSuspendAllCount int
}

func snapshot(l *ThreadList) listSnapshot {
	var s listSnapshot
	for _, t := range l.Threads() {
		s.Threads = append(s.Threads, threadSnapshot{
			Name:              t.Name(),
			SuspendCount:      t.SuspendCount(),
			DebugSuspendCount: t.DebugSuspendCount(),
		})
	}
	sort.Slice(s.Threads, func(i, j int) bool { return s.Threads[i].Name < s.Threads[j].Name })
	s.SuspendAllCount = l.SuspendAllCount()
	s.DebugSuspendAllCount = l.DebugSuspendAllCount()
	return s
}
