package threadlist

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// lockedBuffer is written to by concurrent dump checkpoints.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDump(t *testing.T) {
	l, _, _ := newTestList(t, WithParkBacktraces(true))
	self := l.Attach("main")
	runner := startMutator(l, "runner")
	p := startParked(l, "sleeper", Daemon())

	var out lockedBuffer
	l.Dump(self, &out)
	s := out.String()
	require.True(t, strings.HasPrefix(s, "MANAGED THREADS (3):\n"), s)
	require.Contains(t, s, `"main" tid=`)
	require.Contains(t, s, `"runner" tid=`)
	require.Contains(t, s, `"sleeper" daemon tid=`)
	require.Contains(t, s, "sCount=0")
	// The runner describes itself from its own stack.
	require.Contains(t, s, "threadlist.(*Thread).Poll")

	runner.Stop()
	p.Stop()
	l.Unregister(self)
}

func TestDumpFoldsIdenticalStacks(t *testing.T) {
	l, _, _ := newTestList(t, WithParkBacktraces(true))
	self := l.Attach("main")
	var twins []*parked
	for i := 0; i < 2; i++ {
		twins = append(twins, startParked(l, "twin"))
		// Park both at the same call site.
		twins[i].t.TransitionFromSuspendedToRunnable()
		twins[i].t.TransitionFromRunnableToSuspended(Native)
	}
	require.NotEmpty(t, twins[0].t.backtrace(0))
	require.Equal(t, twins[0].t.backtrace(0), twins[1].t.backtrace(0))

	var out lockedBuffer
	l.Dump(self, &out)
	require.Contains(t, out.String(), "(same stack as tid=")

	for _, tw := range twins {
		tw.Stop()
	}
	l.Unregister(self)
}

func TestDumpTimesOutOnStuckThread(t *testing.T) {
	l, _, _ := newTestList(t, WithCheckpointDumpTimeout(20*time.Millisecond))
	self := l.Attach("main")
	s := startStuck(l, "stuck")
	defer close(s.release)

	var out lockedBuffer
	start := time.Now()
	l.Dump(self, &out)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Contains(t, out.String(), `"main" tid=`)
	require.NotContains(t, out.String(), `"stuck" tid=`)
}

func TestDumpLateThreadWritesNothing(t *testing.T) {
	l, _, _ := newTestList(t, WithCheckpointDumpTimeout(10*time.Millisecond))
	self := l.Attach("main")
	release := make(chan struct{})
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		th := l.Attach("late")
		th.TransitionFromSuspendedToRunnable()
		close(ready)
		<-release
		th.Poll()
		th.TransitionFromRunnableToSuspended(Native)
		l.Unregister(th)
	}()
	<-ready

	var out lockedBuffer
	l.Dump(self, &out)
	before := out.String()
	require.NotContains(t, before, `"late" tid=`)

	close(release)
	<-done
	require.Equal(t, before, out.String())
	l.Unregister(self)
}

func TestDumpForSigQuit(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	l.StopTheWorld(self, "test", false, func() {})
	var out lockedBuffer
	l.DumpForSigQuit(self, &out)
	require.Contains(t, out.String(), "suspend all histogram:")
	require.Contains(t, out.String(), "Count: 1")
	l.Unregister(self)
}
