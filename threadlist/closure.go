package threadlist

// Closure is an action run against a thread: checkpoints, flip functions and
// dump actions all implement it. Run may be invoked on the target's own
// goroutine or, when the target is suspended, on the requester's.
type Closure interface {
	Run(t *Thread)
}

// ClosureFunc adapts a function to Closure.
type ClosureFunc func(t *Thread)

var _ Closure = ClosureFunc(nil)

// Run implements Closure.
func (f ClosureFunc) Run(t *Thread) { f(t) }

type closureRef struct {
	c Closure
}
