package threadlist

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingClosure records every thread it ran for.
type countingClosure struct {
	mu   sync.Mutex
	runs map[uint32]int
	wg   sync.WaitGroup
}

func newCountingClosure(n int) *countingClosure {
	c := &countingClosure{runs: make(map[uint32]int)}
	c.wg.Add(n)
	return c
}

func (c *countingClosure) Run(t *Thread) {
	c.mu.Lock()
	c.runs[t.ID()]++
	c.mu.Unlock()
	c.wg.Done()
}

func (c *countingClosure) count(t *Thread) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[t.ID()]
}

func TestRunCheckpointRunsOncePerThread(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	var runners []*mutator
	for i := 0; i < 3; i++ {
		runners = append(runners, startMutator(l, "runner"))
	}
	var sleepers []*parked
	for i := 0; i < 2; i++ {
		sleepers = append(sleepers, startParked(l, "sleeper"))
	}

	c := newCountingClosure(6)
	require.Equal(t, 6, l.RunCheckpoint(self, c))
	c.wg.Wait()
	require.Equal(t, 1, c.count(self))
	for _, r := range runners {
		require.Equal(t, 1, c.count(r.t))
	}
	for _, s := range sleepers {
		require.Equal(t, 1, c.count(s.t))
		// Held only while the closure ran for it.
		require.Equal(t, 0, s.t.SuspendCount())
	}

	for _, r := range runners {
		r.Stop()
	}
	for _, s := range sleepers {
		s.Stop()
	}
	l.Unregister(self)
}

func TestRunCheckpointRunsOnRunnableThreadItself(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	runner := startMutator(l, "runner")

	ranOn := make(chan bool, 1)
	l.RunCheckpoint(self, ClosureFunc(func(th *Thread) {
		if th == runner.t {
			ranOn <- th.ownCheckpoint.Load()
		}
	}))
	require.True(t, <-ranOn, "runnable thread should run its own checkpoint")

	runner.Stop()
	l.Unregister(self)
}

func TestCheckpointOverflowQueue(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")

	var th *Thread
	ready := make(chan struct{})
	poll := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		th = l.Attach("runner")
		th.TransitionFromSuspendedToRunnable()
		close(ready)
		<-poll
		th.Poll()
		th.TransitionFromRunnableToSuspended(Native)
		l.Unregister(th)
	}()
	<-ready

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		n := l.RunCheckpointOnRunnableThreads(self, ClosureFunc(func(*Thread) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
		require.Equal(t, 1, n)
	}
	// The runner hasn't polled yet, so everything is still queued.
	mu.Lock()
	require.Empty(t, order)
	mu.Unlock()

	close(poll)
	<-done
	require.Equal(t, []int{0, 1, 2}, order)
	l.Unregister(self)
}

func TestRunEmptyCheckpoint(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	runner := startMutator(l, "runner")
	p := startParked(l, "parked")

	// A Runnable thread sleeping in a Cond acknowledges when woken.
	var mu sync.Mutex
	cond := l.NewCond(&mu)
	waiting := make(chan struct{})
	stop := false
	waiterDone := make(chan struct{})
	go func() {
		defer close(waiterDone)
		w := l.Attach("waiter")
		w.TransitionFromSuspendedToRunnable()
		mu.Lock()
		close(waiting)
		for !stop {
			cond.Wait(w)
		}
		mu.Unlock()
		w.TransitionFromRunnableToSuspended(Native)
		l.Unregister(w)
	}()
	<-waiting

	done := make(chan struct{})
	go func() {
		l.RunEmptyCheckpoint(self)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("empty checkpoint didn't complete")
	}
	require.Equal(t, 0, p.t.SuspendCount())

	mu.Lock()
	stop = true
	cond.Broadcast()
	mu.Unlock()
	<-waiterDone
	runner.Stop()
	p.Stop()
	l.Unregister(self)
}

func TestRunEmptyCheckpointTimeoutIsFatal(t *testing.T) {
	l, _, f := newTestList(t, WithEmptyCheckpointTimeouts(5*time.Millisecond, 20*time.Millisecond))
	self := l.Attach("main")
	s := startStuck(l, "deaf")
	defer close(s.release)

	require.Panics(t, func() { l.RunEmptyCheckpoint(self) })
	require.Contains(t, f.last(), "empty checkpoint timed out")
	require.Contains(t, f.last(), `"deaf"`)
}

func TestRunEmptyCheckpointFromRunnableCaller(t *testing.T) {
	l, _, _ := newTestList(t)
	self := l.Attach("main")
	self.TransitionFromSuspendedToRunnable()
	runner := startMutator(l, "runner")
	l.RunEmptyCheckpoint(self)
	require.Equal(t, Runnable, self.State())
	self.TransitionFromRunnableToSuspended(Native)
	runner.Stop()
	l.Unregister(self)
}
