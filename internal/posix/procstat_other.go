//go:build !linux

package posix

import "errors"

// ErrUnsupportedPlatform is returned by process-liveness primitives on
// platforms without a /proc-style start-time token. The runtime's data
// and registry planes are Linux-only (spec.md's shared-memory and
// futex primitives assume Linux); this stub exists so the package still
// builds elsewhere for tooling purposes.
var ErrUnsupportedPlatform = errors.New("posix: unsupported platform")

func procStatPath(pid int) string { return "" }

func parseStartTime(data []byte) (uint64, error) {
	return 0, ErrUnsupportedPlatform
}
