// Package fifo provides a small generic FIFO queue.
package fifo

// Queue is a FIFO queue backed by a power-of-two ring buffer. It is not safe
// for concurrent access.
//
// The zero value is an empty queue ready to use.
type Queue[T any] struct {
	buf  []T
	head int
	len  int
}

// minCapacity is the size of the first ring allocated by PushBack.
const minCapacity = 4

// Len returns the current length of the queue.
func (q *Queue[T]) Len() int {
	return q.len
}

// PushBack adds t to the end of the queue.
func (q *Queue[T]) PushBack(t T) {
	if q.len == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.len)&(len(q.buf)-1)] = t
	q.len++
}

// PeekFront returns the current head of the queue, or nil if the queue is
// empty. The pointer is valid until the next PopFront or PushBack.
func (q *Queue[T]) PeekFront() *T {
	if q.len == 0 {
		return nil
	}
	return &q.buf[q.head]
}

// PopFront removes and returns the current head of the queue.
//
// It is illegal to call PopFront on an empty queue.
func (q *Queue[T]) PopFront() T {
	if q.len == 0 {
		panic("fifo: PopFront on empty queue")
	}
	t := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) & (len(q.buf) - 1)
	q.len--
	return t
}

// Drain removes every element, calling f on each in order.
func (q *Queue[T]) Drain(f func(T)) {
	for q.len > 0 {
		f(q.PopFront())
	}
}

func (q *Queue[T]) grow() {
	n := len(q.buf) * 2
	if n < minCapacity {
		n = minCapacity
	}
	buf := make([]T, n)
	for i := 0; i < q.len; i++ {
		buf[i] = q.buf[(q.head+i)&(len(q.buf)-1)]
	}
	q.buf = buf
	q.head = 0
}
