//go:build linux

package posix

import (
	"fmt"
	"strconv"
	"strings"
)

func procStatPath(pid int) string {
	return fmt.Sprintf("/proc/%d/stat", pid)
}

// parseStartTime extracts field 22 (starttime) from the contents of
// /proc/<pid>/stat. The comm field (2nd, parenthesized) may itself
// contain spaces and closing parens, so fields are counted from the
// last ')' rather than by naive whitespace splitting.
func parseStartTime(data []byte) (uint64, error) {
	s := string(data)
	close := strings.LastIndexByte(s, ')')
	if close < 0 || close+2 > len(s) {
		return 0, fmt.Errorf("posix: malformed stat line")
	}
	rest := strings.Fields(s[close+2:])
	// rest[0] is field 3 (state); starttime is field 22, i.e. rest[22-3]=rest[19].
	const startTimeRestIndex = 22 - 3
	if len(rest) <= startTimeRestIndex {
		return 0, fmt.Errorf("posix: stat line has only %d fields after comm", len(rest))
	}
	v, err := strconv.ParseUint(rest[startTimeRestIndex], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("posix: parsing starttime: %w", err)
	}
	return v, nil
}
