//go:build !linux

package cpu

import "time"

// MonotonicClock measures time since process start on the runtime's
// monotonic clock.
type MonotonicClock struct{}

// Nanotime returns monotonic time in nanoseconds.
func (MonotonicClock) Nanotime() uint64 {
	return uint64(time.Since(processStart))
}

var processStart = time.Now()
