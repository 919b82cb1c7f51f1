// Package stackhash fingerprints textual backtraces so that thread dumps can
// fold identical stacks together.
package stackhash

import (
	"sync"

	"github.com/minio/highwayhash"
)

var hashKey = [32]byte{
	's', 'a', 'f', 'e', 'p', 'o', 'i', 'n', 't', '-', 's', 't', 'a', 'c', 'k', 's',
}

// Sum returns the 64-bit fingerprint of a backtrace.
func Sum(stack []byte) uint64 {
	return highwayhash.Sum64(stack, hashKey[:])
}

// Set remembers the first owner of every fingerprint it has seen. It is safe
// for concurrent use.
type Set struct {
	mu struct {
		sync.Mutex
		first map[uint64]uint32
	}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	s := &Set{}
	s.mu.first = make(map[uint64]uint32)
	return s
}

// Claim records owner for stack unless the stack was seen before, in which
// case it returns the earlier owner and true.
func (s *Set) Claim(stack []byte, owner uint32) (firstOwner uint32, dup bool) {
	if len(stack) == 0 {
		return 0, false
	}
	h := Sum(stack)
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.mu.first[h]; ok {
		return prev, true
	}
	s.mu.first[h] = owner
	return owner, false
}

// Len returns the number of distinct stacks seen.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mu.first)
}
