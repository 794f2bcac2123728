package posix

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// FileLock is an advisory exclusive lock on a regular file, used for
// service-creation arbitration (spec.md §4.4) and node-marker lifecycle
// (spec.md §4.6). The lock is released automatically if the holding
// process dies, which is what lets a dead node's marker or a crashed
// creator's lock file be detected and taken over.
type FileLock struct {
	f *os.File
}

// AcquireFileLock creates path if absent and takes an exclusive,
// non-blocking advisory lock on it. It returns ErrLockHeld if another
// process already holds the lock.
func AcquireFileLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("posix: open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("posix: flock %s: %w", path, err)
	}
	return &FileLock{f: f}, nil
}

// TryTakeoverStaleLock attempts to acquire path's lock, treating it as
// abandoned if its mtime is older than staleAfter. This implements
// spec.md §4.4's "stale lock file held by a dead process is overridden
// by a time-bounded takeover (lock age > threshold ∧ pid-dead check)":
// the pid-dead check is implicit because a live holder's flock would
// still be held and AcquireFileLock would return ErrLockHeld regardless
// of file age.
func TryTakeoverStaleLock(path string, staleAfter time.Duration) (*FileLock, error) {
	lock, err := AcquireFileLock(path)
	if err == nil {
		return lock, nil
	}
	if err != ErrLockHeld {
		return nil, err
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return nil, err
	}
	if time.Since(info.ModTime()) <= staleAfter {
		return nil, ErrLockHeld
	}
	// Age threshold alone does not prove the holder is dead: retry the
	// lock once more. If it's still held, a live process legitimately
	// holds an old lock file (or another taker raced us) — surface
	// ErrLockHeld rather than guessing further.
	return AcquireFileLock(path)
}

// File returns the underlying locked file handle, for callers that
// persist content into the file the lock guards (e.g. node markers)
// rather than using the lock purely for mutual exclusion.
func (l *FileLock) File() *os.File { return l.f }

// Release unlocks and closes the underlying file descriptor.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return cerr
}

// Touch updates the lock file's mtime, resetting the staleness clock.
// Long-lived holders (e.g. a node marker held for a process's lifetime)
// should call this periodically so a slow but live process is never
// mistaken for dead by TryTakeoverStaleLock.
func (l *FileLock) Touch() error {
	now := time.Now()
	return os.Chtimes(l.f.Name(), now, now)
}

// ErrLockHeld indicates another process currently holds the lock.
var ErrLockHeld = fmt.Errorf("posix: lock already held")
