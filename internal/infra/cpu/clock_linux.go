//go:build linux

package cpu

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicClock reads CLOCK_MONOTONIC.
type MonotonicClock struct{}

// Nanotime returns monotonic time in nanoseconds.
func (MonotonicClock) Nanotime() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return uint64(time.Since(processStart))
	}
	return uint64(ts.Nano())
}

var processStart = time.Now()
