// Package backoff implements the polling policy used while waiting for a
// thread to reach a safepoint: spin with yields for a short while, then sleep
// with exponentially growing, capped intervals.
package backoff

import (
	"runtime"
	"time"
)

// Clock abstracts time so tests can drive the policy without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	// Yield gives other goroutines a chance to run.
	Yield()
}

// RealClock is the Clock backed by the time package and the scheduler.
type RealClock struct{}

var _ Clock = RealClock{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }
func (RealClock) Yield()                { runtime.Gosched() }

// Policy configures a Backoff.
type Policy struct {
	// MaxYield is how long to keep yielding before switching to sleeps.
	MaxYield time.Duration
	// MaxSleep caps a single sleep.
	MaxSleep time.Duration
}

// DefaultPolicy yields for up to 3ms, then sleeps from 1.5ms doubling up to
// 5ms.
var DefaultPolicy = Policy{
	MaxYield: 3 * time.Millisecond,
	MaxSleep: 5 * time.Millisecond,
}

// Backoff tracks the state of one wait.
type Backoff struct {
	policy Policy
	clock  Clock
	start  time.Time
	sleep  time.Duration
}

// New starts a wait now.
func New(clock Clock, policy Policy) *Backoff {
	if clock == nil {
		clock = RealClock{}
	}
	return &Backoff{policy: policy, clock: clock, start: clock.Now()}
}

// Elapsed returns the time since the wait started.
func (b *Backoff) Elapsed() time.Duration {
	return b.clock.Now().Sub(b.start)
}

// Expired reports whether timeout has elapsed since the wait started.
func (b *Backoff) Expired(timeout time.Duration) bool {
	return b.Elapsed() >= timeout
}

// Wait yields or sleeps once and advances the policy.
func (b *Backoff) Wait() {
	if b.sleep == 0 {
		if b.Elapsed() <= b.policy.MaxYield {
			b.clock.Yield()
			return
		}
		b.sleep = b.policy.MaxYield / 2
		if b.sleep <= 0 {
			b.sleep = time.Microsecond
		}
	}
	b.clock.Sleep(b.sleep)
	b.sleep *= 2
	if b.sleep > b.policy.MaxSleep {
		b.sleep = b.policy.MaxSleep
	}
}

// NextSleep returns the duration of the next sleep, or zero if the next Wait
// yields.
func (b *Backoff) NextSleep() time.Duration {
	return b.sleep
}
