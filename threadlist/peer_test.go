package threadlist

import (
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"
)

func TestSuspendThreadByThreadID(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("debugger")
	runner := startMutator(l, "runner")

	th, timedOut := l.SuspendThreadByThreadID(self, runner.t.ID(), ForDebugger)
	require.False(t, timedOut)
	require.Same(t, runner.t, th)
	require.True(t, th.IsSuspended())
	require.Equal(t, 1, th.DebugSuspendCount())

	require.True(t, l.Resume(self, th, ForDebugger))
	require.Equal(t, 0, th.SuspendCount())
	require.False(t, l.Resume(self, th, ForDebugger), "second resume must fail")

	runner.Stop()
	l.Unregister(self)
}

func TestSuspendThreadByPeer(t *testing.T) {
	type handle struct{ name string }
	peer := &handle{"worker"}
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	p := startParked(l, "worker", WithPeer(peer))

	th, timedOut := l.SuspendThreadByPeer(self, peer, Internal)
	require.False(t, timedOut)
	require.Same(t, p.t, th)
	require.True(t, l.Resume(self, th, Internal))

	th, timedOut = l.SuspendThreadByPeer(self, &handle{"other"}, Internal)
	require.Nil(t, th)
	require.False(t, timedOut)
	require.Panics(t, func() { l.SuspendThreadByPeer(self, nil, Internal) })

	p.Stop()
	l.Unregister(self)
}

func TestSuspendUnknownThreadChangesNothing(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	p := startParked(l, "worker")
	before := snapshot(l)

	th, timedOut := l.SuspendThreadByThreadID(self, 4242, Internal)
	require.Nil(t, th)
	require.False(t, timedOut)
	if diff := pretty.Compare(before, snapshot(l)); diff != "" {
		t.Errorf("unknown id changed counts (-before +after):\n%s", diff)
	}
	require.Panics(t, func() { l.SuspendThreadByThreadID(self, 0, Internal) })
	require.Panics(t, func() { l.SuspendThreadByThreadID(self, self.ID(), Internal) })

	p.Stop()
	l.Unregister(self)
}

func TestSuspendThreadTimeoutRollsBack(t *testing.T) {
	l, _, _ := newTestList(t, WithSuspendTimeout(20*time.Millisecond))
	self := l.Attach("main")
	s := startStuck(l, "stuck")
	defer close(s.release)

	start := time.Now()
	th, timedOut := l.SuspendThreadByThreadID(self, s.t.ID(), Internal)
	require.Nil(t, th)
	require.True(t, timedOut)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Equal(t, 0, s.t.SuspendCount())
	require.False(t, s.t.readFlag(flagSuspendRequest))
}

func TestResumeNotSuspended(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	p := startParked(l, "worker")
	require.False(t, l.Resume(self, p.t, Internal))

	// Internal suspensions can't be undone by the debugger.
	th, _ := l.SuspendThreadByThreadID(self, p.t.ID(), Internal)
	require.False(t, l.Resume(self, th, ForDebugger))
	require.True(t, l.Resume(self, th, Internal))

	p.Stop()
	require.False(t, l.Resume(self, p.t, Internal), "unregistered thread")
	l.Unregister(self)
}

// A requester that is itself being suspended lets that happen first.
func TestSuspendThreadYieldsToOwnSuspension(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	requester := startParked(l, "requester")
	target := startParked(l, "target")

	l.ModifySuspendCount(self, requester.t, +1, Internal)
	got := make(chan *Thread)
	go func() {
		th, _ := l.SuspendThreadByThreadID(requester.t, target.t.ID(), Internal)
		got <- th
	}()
	select {
	case <-got:
		t.Fatal("suspended requester proceeded")
	case <-time.After(20 * time.Millisecond):
	}
	require.Equal(t, 0, target.t.SuspendCount())

	l.ModifySuspendCount(self, requester.t, -1, Internal)
	th := <-got
	require.Same(t, target.t, th)
	require.True(t, l.Resume(self, th, Internal))

	requester.Stop()
	target.Stop()
	l.Unregister(self)
}
