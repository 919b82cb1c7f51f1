package threadlist

import "time"

// MutatorLock is the reader/writer lock that Runnable threads hold shared and
// a suspend-all holds exclusive.
type MutatorLock interface {
	AcquireShared()
	ReleaseShared()
	// AcquireExclusive returns false if timeout elapsed first. A non-positive
	// timeout waits forever.
	AcquireExclusive(timeout time.Duration) bool
	ReleaseExclusive()
}

// Collector is the garbage collector as seen by the thread list.
//
// Except for the flip hooks, its methods may be called with internal locks
// held and must not call back into the ThreadList.
type Collector interface {
	ThreadFlipBegin(self *Thread)
	ThreadFlipEnd(self *Thread)
	RegisterPause(d time.Duration)
	IsWeakRefAccessEnabled() bool
	// BroadcastForEmptyCheckpoint wakes threads blocked on collector internal
	// conditions so that they acknowledge an empty checkpoint.
	BroadcastForEmptyCheckpoint()
	DisableForShutdown()
}

// EmptyCheckpointWaker is woken each time RunEmptyCheckpoint waits for
// threads that may be blocked in it.
type EmptyCheckpointWaker interface {
	WakeForEmptyCheckpoint()
}

// NopCollector is a Collector that does nothing.
type NopCollector struct{}

var _ Collector = NopCollector{}

func (NopCollector) ThreadFlipBegin(*Thread)      {}
func (NopCollector) ThreadFlipEnd(*Thread)        {}
func (NopCollector) RegisterPause(time.Duration)  {}
func (NopCollector) IsWeakRefAccessEnabled() bool { return true }
func (NopCollector) BroadcastForEmptyCheckpoint() {}
func (NopCollector) DisableForShutdown()          {}
