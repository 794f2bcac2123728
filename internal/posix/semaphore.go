package posix

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Semaphore is an unnamed, futex-backed counting semaphore placed at a
// caller-supplied address inside a shared-memory mapping (spec.md §4.3).
// Semaphore itself holds no OS resources — it is a thin view over four
// bytes of shared memory and is safe to construct independently in every
// process that maps the segment, exactly like the event plane's
// per-listener semaphore.
type Semaphore struct {
	word *int32
}

// NewSemaphoreAt constructs a Semaphore backed by the int32 at addr.
// The caller is responsible for ensuring addr lives in shared memory
// and is 4-byte aligned; the zero value at addr means "no pending
// posts", matching a freshly mmap'd, zero-filled segment.
func NewSemaphoreAt(addr unsafe.Pointer) *Semaphore {
	return &Semaphore{word: (*int32)(addr)}
}

// Post increments the semaphore's count and wakes one waiter.
func (s *Semaphore) Post() {
	atomic.AddInt32(s.word, 1)
	futexWake(s.word, 1)
}

// TryWait attempts to decrement the count without blocking. Returns
// true if the decrement succeeded (a pending post was consumed).
func (s *Semaphore) TryWait() bool {
	for {
		v := atomic.LoadInt32(s.word)
		if v <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(s.word, v, v-1) {
			return true
		}
	}
}

// Wait blocks until a post is available.
func (s *Semaphore) Wait() {
	for {
		if s.TryWait() {
			return
		}
		v := atomic.LoadInt32(s.word)
		if v > 0 {
			continue
		}
		futexWait(s.word, v, nil)
	}
}

// TimedWait blocks until a post is available or d elapses, reporting
// which. It uses CLOCK_MONOTONIC-relative waits per spec.md §4.3.
func (s *Semaphore) TimedWait(d time.Duration) (ok bool) {
	deadline := Deadline(d)
	for {
		if s.TryWait() {
			return true
		}
		remaining := deadline - MonotonicNanos()
		if remaining <= 0 {
			return false
		}
		v := atomic.LoadInt32(s.word)
		if v > 0 {
			continue
		}
		ts := unix.NsecToTimespec(remaining)
		futexWait(s.word, v, &ts)
		if Expired(deadline) {
			return s.TryWait()
		}
	}
}

// futexWait and futexWake wrap the raw Linux futex(2) syscall; neither
// golang.org/x/sys/unix nor any pack dependency exposes a higher-level
// binding, so this follows the same raw-syscall pattern the runtime and
// sandboxing examples in the retrieval pack use for futex access.
func futexWait(addr *int32, val int32, timeout *unix.Timespec) {
	var tsPtr unsafe.Pointer
	if timeout != nil {
		tsPtr = unsafe.Pointer(timeout)
	}
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAIT), uintptr(val), uintptr(tsPtr), 0, 0)
}

func futexWake(addr *int32, n int32) {
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAKE), uintptr(n), 0, 0, 0)
}
