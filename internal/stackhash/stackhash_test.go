package stackhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSumStable(t *testing.T) {
	a := []byte("main.loop()\n\t/src/main.go:10\n")
	b := []byte("main.loop()\n\t/src/main.go:11\n")
	require.Equal(t, Sum(a), Sum(append([]byte(nil), a...)))
	require.NotEqual(t, Sum(a), Sum(b))
}

func TestSetClaim(t *testing.T) {
	s := NewSet()
	stack := []byte("worker.run()\n")
	owner, dup := s.Claim(stack, 3)
	require.False(t, dup)
	require.Equal(t, uint32(3), owner)

	owner, dup = s.Claim(stack, 7)
	require.True(t, dup)
	require.Equal(t, uint32(3), owner)

	_, dup = s.Claim(nil, 9)
	require.False(t, dup, "empty stacks are never folded")
	require.Equal(t, 1, s.Len())
}
