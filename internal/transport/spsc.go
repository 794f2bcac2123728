package transport

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// OverflowPolicy selects what Enqueue does when a delivery queue is
// full (spec.md §4.2).
type OverflowPolicy int32

const (
	// Reject returns ErrWouldBlock on a full queue.
	Reject OverflowPolicy = iota
	// SafeOverflow drops the oldest element to make room, giving the
	// caller a chance to release whatever reference it held first.
	SafeOverflow
)

// ErrWouldBlock is returned by Enqueue under Reject and by Dequeue on
// an empty queue. It aliases iox.ErrWouldBlock directly (the same
// sentinel the teacher's queue library uses) so callers can use
// iox.IsWouldBlock across this package and any other in the module.
var ErrWouldBlock = iox.ErrWouldBlock

type spscHeader struct {
	_        [64]byte
	head     atomix.Uint64 // consumer index
	_        [56]byte
	tail     atomix.Uint64 // producer index
	_        [56]byte
	mask     uint64
	capacity uint64
	policy   int32
	_        [4]byte
}

const spscHeaderSize = unsafe.Sizeof(spscHeader{})
const sampleRefSize = unsafe.Sizeof(SampleRef{})

// SPSC is a single-producer single-consumer delivery queue placed over
// shared memory, the direct counterpart of code.hybscloud.com/lfq's SPSC
// but addressed by byte offset instead of backed by a private Go slice —
// see package doc.go for why the two cannot share an implementation.
type SPSC struct {
	hdr   *spscHeader
	slots []SampleRef
}

// SPSCByteSize returns the number of bytes a SPSC queue of the given
// slot capacity (rounded up to a power of two) occupies.
func SPSCByteSize(capacity int) uint64 {
	n := roundToPow2(capacity)
	return uint64(spscHeaderSize) + uint64(n)*uint64(sampleRefSize)
}

// NewSPSCOwner initializes a new SPSC queue over base, which must point
// to at least SPSCByteSize(capacity) zero-initialized bytes. Called
// once, by the queue's single producer, at port-acquire time.
func NewSPSCOwner(base unsafe.Pointer, capacity int, policy OverflowPolicy) *SPSC {
	n := roundToPow2(capacity)
	hdr := (*spscHeader)(base)
	hdr.mask = uint64(n - 1)
	hdr.capacity = uint64(n)
	hdr.policy = int32(policy)
	hdr.head.StoreRelaxed(0)
	hdr.tail.StoreRelaxed(0)

	slotsBase := unsafe.Add(base, spscHeaderSize)
	return &SPSC{hdr: hdr, slots: unsafe.Slice((*SampleRef)(slotsBase), n)}
}

// OpenSPSC attaches to an already-initialized SPSC queue over base.
func OpenSPSC(base unsafe.Pointer) *SPSC {
	hdr := (*spscHeader)(base)
	slotsBase := unsafe.Add(base, spscHeaderSize)
	return &SPSC{hdr: hdr, slots: unsafe.Slice((*SampleRef)(slotsBase), hdr.capacity)}
}

// Cap returns the queue's slot capacity.
func (q *SPSC) Cap() int { return int(q.hdr.capacity) }

// Enqueue adds a reference (single producer only). Under Reject it
// returns ErrWouldBlock when full. Under SafeOverflow it drops the
// oldest reference first, invoking onDrop (if non-nil) with the
// dropped reference so the caller can release its refcount, per
// spec.md §4.2's "dropping must release any borrow the dropped slot
// held".
func (q *SPSC) Enqueue(ref SampleRef, onDrop func(SampleRef)) error {
	tail := q.hdr.tail.LoadRelaxed()
	head := q.hdr.head.LoadAcquire()

	if tail-head > q.hdr.mask {
		if OverflowPolicy(q.hdr.policy) == Reject {
			return ErrWouldBlock
		}
		dropped := q.slots[head&q.hdr.mask]
		q.hdr.head.StoreRelease(head + 1)
		if onDrop != nil {
			onDrop(dropped)
		}
	}

	q.slots[tail&q.hdr.mask] = ref
	q.hdr.tail.StoreRelease(tail + 1)
	return nil
}

// Dequeue removes and returns a reference (single consumer only).
func (q *SPSC) Dequeue() (SampleRef, error) {
	head := q.hdr.head.LoadRelaxed()
	tail := q.hdr.tail.LoadAcquire()
	if head >= tail {
		return SampleRef{}, ErrWouldBlock
	}
	ref := q.slots[head&q.hdr.mask]
	q.hdr.head.StoreRelease(head + 1)
	return ref, nil
}

// roundToPow2 mirrors the equivalent unexported helper in
// code.hybscloud.com/lfq.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
