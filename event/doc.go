// Package event implements the event plane from spec.md §4.9 (C9): a
// per-listener semaphore plus a bitset-based event-id multiset in
// shared memory, a notifier that sets bits and posts semaphores across
// every currently-connected listener, deadline tracking, and the
// lifecycle events (notifier created/dropped/dead) a service may
// declare.
//
// The semaphore is internal/posix's futex-backed Semaphore; the bitset
// is a small array of code.hybscloud.com/atomix-wrapped words with
// atomic CAS-based set/take-one, following the same CAS-retry-loop
// idiom internal/dynconfig uses for its slot state machine.
package event
