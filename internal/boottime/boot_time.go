// Package boottime converts readings of the monotonic clock, such as task
// start times reported by the kernel, into wall clock times.
package boottime

import (
	"errors"
	"time"
)

// ErrNotImplemented is returned when the boot time is not implemented for the
// current platform.
var ErrNotImplemented = errors.New("not implemented")

// BootTime returns the approximate boot time of the system. The idea
// is that this timestamp can be used with readings of CLOCK_MONOTONIC
// to get a wall clock time.
func BootTime() (time.Time, error) {
	return bootTime()
}

// SinceBoot returns the wall clock time at which the monotonic clock read d.
func SinceBoot(d time.Duration) (time.Time, error) {
	bt, err := bootTime()
	if err != nil {
		return time.Time{}, err
	}
	return bt.Add(d), nil
}
