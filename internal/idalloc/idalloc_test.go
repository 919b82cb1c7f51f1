package idalloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocSequential(t *testing.T) {
	a := New(130)
	for want := uint32(1); want <= 130; want++ {
		id, ok := a.Alloc()
		require.True(t, ok)
		require.Equal(t, want, id)
	}
	_, ok := a.Alloc()
	require.False(t, ok, "allocator should be exhausted")
	require.Equal(t, 130, a.InUse())
}

func TestReleaseReusesLowest(t *testing.T) {
	a := New(10)
	for i := 0; i < 5; i++ {
		_, ok := a.Alloc()
		require.True(t, ok)
	}
	a.Release(2)
	a.Release(4)
	id, _ := a.Alloc()
	require.Equal(t, uint32(2), id)
	id, _ = a.Alloc()
	require.Equal(t, uint32(4), id)
	id, _ = a.Alloc()
	require.Equal(t, uint32(6), id)
}

func TestReleaseInvalid(t *testing.T) {
	a := New(4)
	require.Panics(t, func() { a.Release(Invalid) })
	require.Panics(t, func() { a.Release(5) })
	require.Panics(t, func() { a.Release(1) }, "id 1 was never allocated")
}

func TestConcurrentAllocUnique(t *testing.T) {
	const goroutines, perGoroutine = 8, 100
	a := New(DefaultMax)
	var mu sync.Mutex
	seen := make(map[uint32]bool)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				id, ok := a.Alloc()
				if !ok {
					t.Error("unexpected exhaustion")
					return
				}
				mu.Lock()
				if seen[id] {
					t.Errorf("id %d handed out twice", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, goroutines*perGoroutine)
}
