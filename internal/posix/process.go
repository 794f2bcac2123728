package posix

import (
	"os"

	"golang.org/x/sys/unix"
)

// StartTime reads the process start time (in clock ticks since boot)
// for pid from /proc/<pid>/stat field 22. It is combined with the pid
// into a liveness token so a token never matches a different process
// that happens to reuse the same pid later.
func StartTime(pid int) (uint64, error) {
	data, err := os.ReadFile(procStatPath(pid))
	if err != nil {
		return 0, err
	}
	return parseStartTime(data)
}

// IsAlive reports whether pid refers to a running process whose start
// time matches wantStartTime. A pid that exists but belongs to a
// different process (start time mismatch, i.e. pid reuse) is reported
// as not alive.
func IsAlive(pid int, wantStartTime uint64) bool {
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); err != nil {
		return false
	}
	got, err := StartTime(pid)
	if err != nil {
		// /proc/<pid> vanished between kill(pid,0) and the stat read:
		// treat as a race, not as alive.
		return false
	}
	return got == wantStartTime
}

// SelfStartTime returns the calling process's own start time token.
func SelfStartTime() (uint64, error) {
	return StartTime(os.Getpid())
}
