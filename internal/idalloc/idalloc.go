// Package idalloc allocates small integer thread ids from a fixed bitmap.
package idalloc

import (
	"fmt"
	"math/bits"
	"sync"
)

// Invalid is never handed out.
const Invalid uint32 = 0

// DefaultMax is the default number of ids an Allocator can hand out.
const DefaultMax = 1 << 16

// Allocator hands out ids in [1, max]. Lookup is a linear scan of the bitmap
// which is fine for the expected population of a few thousand threads.
type Allocator struct {
	mu struct {
		sync.Mutex
		words []uint64
		inUse int
	}
	max uint32
}

// New returns an allocator for ids in [1, max].
func New(max uint32) *Allocator {
	if max == 0 {
		panic("idalloc: max must be > 0")
	}
	a := &Allocator{max: max}
	a.mu.words = make([]uint64, (max+63)/64)
	return a
}

// Alloc returns the lowest free id and false if every id is in use.
func (a *Allocator) Alloc() (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, w := range a.mu.words {
		if w == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^w)
		idx := uint32(i*64 + bit)
		if idx >= a.max {
			break
		}
		a.mu.words[i] |= 1 << bit
		a.mu.inUse++
		return idx + 1, true
	}
	return Invalid, false
}

// Release returns id to the pool. Releasing an id that isn't allocated is an
// invariant violation.
func (a *Allocator) Release(id uint32) {
	if id == Invalid || id > a.max {
		panic(fmt.Sprintf("idalloc: release of out of range id %d", id))
	}
	idx := id - 1
	a.mu.Lock()
	defer a.mu.Unlock()
	word, bit := idx/64, idx%64
	if a.mu.words[word]&(1<<bit) == 0 {
		panic(fmt.Sprintf("idalloc: release of free id %d", id))
	}
	a.mu.words[word] &^= 1 << bit
	a.mu.inUse--
}

// InUse reports the number of allocated ids.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mu.inUse
}

// Max returns the largest id the allocator can hand out.
func (a *Allocator) Max() uint32 { return a.max }
