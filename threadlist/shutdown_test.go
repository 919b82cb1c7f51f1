package threadlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShutdown(t *testing.T) {
	c := &fakeCollector{weakRefAccess: true}
	l, _, _ := newTestList(t,
		WithCollector(c),
		WithDaemonShutdownTimeouts(5*time.Millisecond, 100*time.Millisecond, time.Millisecond))
	self := l.Attach("main")
	daemon := startMutator(l, "daemon", Daemon())
	worker := startParked(l, "worker")

	done := make(chan struct{})
	go func() {
		l.Shutdown(self)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("shutdown didn't wait for the non-daemon thread")
	case <-time.After(20 * time.Millisecond):
	}
	require.False(t, c.disabled.Load())

	worker.Stop()
	<-done
	require.True(t, l.IsShutDown())
	require.True(t, c.disabled.Load())
	require.False(t, l.Contains(self))
	require.Equal(t, 1, l.Size())
	require.Eventually(t, daemon.t.IsSuspended, time.Second, time.Millisecond)
	require.Equal(t, 1, daemon.t.SuspendCount())

	require.Panics(t, func() { l.Attach("too-late") })
}

func TestShutdownLetsWorkersAttachHelpers(t *testing.T) {
	l, _, _ := newTestList(t, WithDaemonShutdownTimeouts(0, 10*time.Millisecond, time.Millisecond))
	worker := startParked(l, "worker")

	done := make(chan struct{})
	go func() {
		l.Shutdown(nil)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	require.False(t, l.IsShutDown())

	var helper *Thread
	require.NotPanics(t, func() { helper = l.Attach("helper-started-by-worker") })
	require.True(t, l.Contains(helper))
	l.Unregister(helper)

	worker.Stop()
	<-done
	require.True(t, l.IsShutDown())
	require.Equal(t, 0, l.Size())
}

func TestShutdownFromUnmanagedCaller(t *testing.T) {
	l, _, _ := newTestList(t, WithDaemonShutdownTimeouts(0, 10*time.Millisecond, time.Millisecond))
	l.Shutdown(nil)
	require.True(t, l.IsShutDown())
	require.Equal(t, 0, l.Size())
}
