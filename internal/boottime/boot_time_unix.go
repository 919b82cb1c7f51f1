//go:build linux || darwin

package boottime

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

func bootTime() (time.Time, error) {
	var mono unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &mono); err != nil {
		return time.Time{}, fmt.Errorf("failed to read CLOCK_MONOTONIC: %w", err)
	}
	now := time.Now()
	return now.Add(-time.Duration(mono.Nano())), nil
}
