// Package osthreads enumerates the OS threads of the current process. It is
// used for best-effort diagnostics of threads that are not attached to a
// thread list.
package osthreads

import (
	"errors"
	"time"
)

// ErrNotSupported is returned on platforms without a task directory.
var ErrNotSupported = errors.New("os thread enumeration not supported")

// Task describes one OS thread.
type Task struct {
	Tid   int
	Name  string
	State string
	// StartTime is zero if it could not be determined.
	StartTime time.Time
	// UserTime and SystemTime are the CPU times consumed so far.
	UserTime   time.Duration
	SystemTime time.Duration
}

// List returns the threads of the current process.
func List() ([]Task, error) {
	return list()
}

// Gettid returns the OS id of the calling thread, or 0 if unknown. The
// result is only stable if the goroutine is locked to its OS thread.
func Gettid() int {
	return gettid()
}
