package threadlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	require.Equal(t, "Runnable", Runnable.String())
	require.Equal(t, "WaitingForGCThreadFlip", WaitingForGCThreadFlip.String())
	require.Equal(t, "State(200)", State(200).String())
	require.Equal(t, "debugger", ForDebugger.String())
}

func TestStateAndFlagsPacking(t *testing.T) {
	sf := stateAndFlags(0).withState(Native) | flagSuspendRequest | flagActiveSuspendBarrier
	require.Equal(t, Native, sf.state())
	sf = sf.withState(Runnable)
	require.Equal(t, Runnable, sf.state())
	require.Equal(t, flagSuspendRequest|flagActiveSuspendBarrier, sf.flags())
}

func TestTransitions(t *testing.T) {
	l, m, _ := newTestList(t)
	self := l.Attach("main")
	require.Equal(t, Native, self.State())
	require.Equal(t, 0, m.SharedHolders())

	self.TransitionFromSuspendedToRunnable()
	require.Equal(t, Runnable, self.State())
	require.Equal(t, 1, m.SharedHolders())
	require.Panics(t, func() { self.TransitionFromSuspendedToRunnable() })

	ran := false
	self.RunSuspended(Blocked, func() {
		ran = true
		require.Equal(t, Blocked, self.State())
		require.Equal(t, 0, m.SharedHolders())
	})
	require.True(t, ran)
	require.Equal(t, Runnable, self.State())

	self.TransitionFromRunnableToSuspended(Native)
	require.Panics(t, func() { self.Poll() })
	require.Panics(t, func() { self.TransitionFromRunnableToSuspended(Sleeping) })
	l.Unregister(self)
}

// A state transition can't race a suspend request: the thread either sees
// the request or the requester sees the new state.
func TestSuspendedThreadCannotBecomeRunnable(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	p := startParked(l, "worker")
	l.ModifySuspendCount(self, p.t, +1, Internal)

	entered := make(chan struct{})
	go func() {
		p.t.TransitionFromSuspendedToRunnable()
		close(entered)
	}()
	select {
	case <-entered:
		t.Fatal("suspended thread became Runnable")
	case <-time.After(10 * time.Millisecond):
	}
	require.True(t, p.t.IsSuspended())
	l.ModifySuspendCount(self, p.t, -1, Internal)
	<-entered
	require.Equal(t, Runnable, p.t.State())
	p.t.TransitionFromRunnableToSuspended(Native)

	p.Stop()
	l.Unregister(self)
}

func TestPollRunsCheckpointsInOrder(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	self.TransitionFromSuspendedToRunnable()

	var order []string
	l.suspendCountMu.Lock()
	require.True(t, self.requestCheckpointLocked(ClosureFunc(func(*Thread) { order = append(order, "a") })))
	require.True(t, self.requestCheckpointLocked(ClosureFunc(func(*Thread) { order = append(order, "b") })))
	l.suspendCountMu.Unlock()
	require.True(t, self.readFlag(flagCheckpointRequest))

	self.Poll()
	require.Equal(t, []string{"a", "b"}, order)
	require.False(t, self.readFlag(flagCheckpointRequest))

	self.TransitionFromRunnableToSuspended(Native)
	l.Unregister(self)
}

func TestThreadDump(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main", Daemon())
	var out lockedBuffer
	self.Dump(&out)
	require.Contains(t, out.String(), `"main" daemon tid=1 Native`)
	require.Contains(t, out.String(), "sCount=0 dsCount=0")
	l.Unregister(self)
}
