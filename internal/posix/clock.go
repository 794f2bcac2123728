package posix

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicNanos returns the current value of CLOCK_MONOTONIC in
// nanoseconds. It is used for deadlines, timed waits and service
// creation timestamps — never for wall-clock display.
func MonotonicNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is always available on Linux; a failure here
		// indicates a broken host, not a recoverable condition.
		panic("posix: clock_gettime(CLOCK_MONOTONIC) failed: " + err.Error())
	}
	return ts.Nano()
}

// Deadline converts a relative duration into an absolute monotonic
// deadline suitable for TimedWait-style calls.
func Deadline(d time.Duration) int64 {
	return MonotonicNanos() + d.Nanoseconds()
}

// Expired reports whether the given absolute monotonic deadline (as
// returned by Deadline or MonotonicNanos) has passed.
func Expired(deadlineNanos int64) bool {
	return MonotonicNanos() >= deadlineNanos
}
