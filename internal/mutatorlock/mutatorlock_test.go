package mutatorlock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestExclusiveWaitsForShared(t *testing.T) {
	l := New()
	l.AcquireShared()
	l.AcquireShared()
	require.Equal(t, 2, l.SharedHolders())
	require.False(t, l.AcquireExclusive(10*time.Millisecond))

	acquired := make(chan struct{})
	go func() {
		assert.True(t, l.AcquireExclusive(0))
		close(acquired)
	}()
	l.ReleaseShared()
	select {
	case <-acquired:
		t.Fatal("exclusive acquired while a shared hold remains")
	case <-time.After(5 * time.Millisecond):
	}
	l.ReleaseShared()
	<-acquired
	require.True(t, l.IsExclusiveHeld())
	l.ReleaseExclusive()
	require.False(t, l.IsExclusiveHeld())
}

func TestSharedWaitsForExclusive(t *testing.T) {
	l := New()
	require.True(t, l.AcquireExclusive(time.Second))
	got := make(chan struct{})
	go func() {
		l.AcquireShared()
		close(got)
	}()
	select {
	case <-got:
		t.Fatal("shared acquired during exclusive hold")
	case <-time.After(5 * time.Millisecond):
	}
	l.ReleaseExclusive()
	<-got
	l.ReleaseShared()
}

func TestSingleExclusiveOwner(t *testing.T) {
	l := New()
	var inside, maxInside atomic.Int32
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				l.AcquireExclusive(0)
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				inside.Add(-1)
				l.ReleaseExclusive()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), maxInside.Load())
}

func TestUnbalancedReleasePanics(t *testing.T) {
	l := New()
	require.Panics(t, func() { l.ReleaseExclusive() })
	require.Panics(t, func() { l.ReleaseShared() })
}
