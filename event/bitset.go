package event

import (
	"math/bits"
	"time"
	"unsafe"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/ipc/internal/posix"
)

// bitsHeader holds the semaphore word; the bitset words immediately
// follow, padded off onto their own cache line so Post/TryWait traffic
// on the semaphore word never false-shares with Set/TryTakeOne CAS
// traffic on the bitset.
type bitsHeader struct {
	semWord int32
	_       [60]byte
}

const bitsHeaderSize = unsafe.Sizeof(bitsHeader{})

func wordCount(maxEventID uint32) int {
	return int(maxEventID/64) + 1
}

// ByteSize returns the number of bytes a listener's semaphore+bitset
// segment occupies for the service's declared event_id_max_value.
func ByteSize(maxEventID uint32) uint64 {
	return uint64(bitsHeaderSize) + uint64(wordCount(maxEventID))*8
}

// Bits is a listener's pending-event-id multiset: a semaphore that
// counts wake-ups (not events, per spec.md §4.9) plus a bitset of
// which event ids are currently pending.
type Bits struct {
	sem   *posix.Semaphore
	words []atomix.Uint64
}

// NewBitsOwner initializes a new Bits view over base, which must point
// to at least ByteSize(maxEventID) zero-initialized bytes.
func NewBitsOwner(base unsafe.Pointer, maxEventID uint32) *Bits {
	hdr := (*bitsHeader)(base)
	hdr.semWord = 0
	return newBitsView(base, maxEventID)
}

// OpenBits attaches to an already-initialized Bits view over base.
func OpenBits(base unsafe.Pointer, maxEventID uint32) *Bits {
	return newBitsView(base, maxEventID)
}

func newBitsView(base unsafe.Pointer, maxEventID uint32) *Bits {
	hdr := (*bitsHeader)(base)
	wordsBase := unsafe.Add(base, bitsHeaderSize)
	words := unsafe.Slice((*atomix.Uint64)(wordsBase), wordCount(maxEventID))
	return &Bits{sem: posix.NewSemaphoreAt(unsafe.Pointer(&hdr.semWord)), words: words}
}

// Set atomically ORs bit id into the set. Idempotent: setting an
// already-pending id is a no-op on the bitset (the semaphore still
// counts the wake-up, per spec.md §4.9 "the semaphore counts
// wake-ups, not events").
func (b *Bits) Set(id uint32) {
	w, bit := id/64, id%64
	mask := uint64(1) << bit
	for {
		old := b.words[w].LoadAcquire()
		if old&mask != 0 {
			return
		}
		if b.words[w].CompareAndSwapAcqRel(old, old|mask) {
			return
		}
	}
}

// TryTakeOne scans for the lowest-numbered pending id, clears it, and
// returns it. Returns false if no bit is set.
func (b *Bits) TryTakeOne() (uint32, bool) {
	for wi := range b.words {
		for {
			old := b.words[wi].LoadAcquire()
			if old == 0 {
				break
			}
			bit := uint32(bits.TrailingZeros64(old))
			mask := uint64(1) << bit
			if b.words[wi].CompareAndSwapAcqRel(old, old&^mask) {
				return uint32(wi)*64 + bit, true
			}
		}
	}
	return 0, false
}

// DrainAll takes every currently-pending id, lowest first, invoking fn
// once per id, until the bitset is empty (spec.md §4.9 *_wait_all).
func (b *Bits) DrainAll(fn func(uint32)) {
	for {
		id, ok := b.TryTakeOne()
		if !ok {
			return
		}
		fn(id)
	}
}

func (b *Bits) Post()                          { b.sem.Post() }
func (b *Bits) TryWaitSem() bool               { return b.sem.TryWait() }
func (b *Bits) TimedWaitSem(d time.Duration) bool { return b.sem.TimedWait(d) }
func (b *Bits) WaitSem()                       { b.sem.Wait() }
