package transport

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

type mpscSlot[T any] struct {
	seq atomix.Uint64
	ref T
}

type mpscHeader struct {
	_        [64]byte
	head     atomix.Uint64 // single consumer reads here
	_        [56]byte
	tail     atomix.Uint64 // producers CAS-claim here
	_        [56]byte
	mask     uint64
	capacity uint64
}

const mpscHeaderSize = unsafe.Sizeof(mpscHeader{})

// MPSC is a multi-producer single-consumer queue of T, generic the
// same way code.hybscloud.com/lfq's MPMCSeq[T] is: T is any fixed-layout value
// (no pointers/slices — it must be byte-for-byte meaningful to another
// process mapping the same memory). pubsub instantiates it with
// SampleRef for a subscriber's delivery queue (spec.md §4.7 describes
// one SPSC queue per (publisher, subscriber) pair; this runtime
// instead gives each subscriber a single MPSC shared by every
// connected publisher — see DESIGN.md for why); reqres instantiates it
// with its own request/response wire element types (C8). It mirrors
// code.hybscloud.com/lfq's MPSCSeq CAS-claimed-slot algorithm, placed
// over shared memory the same way SPSC and SPMC are.
//
// Per-producer order is preserved (a single producer's sends are
// observed by the consumer in the order it issued them); order across
// distinct producers is unspecified, matching spec.md §4.2's ordering
// guarantee exactly.
type MPSC[T any] struct {
	hdr   *mpscHeader
	slots []mpscSlot[T]
}

// MPSCByteSize returns the number of bytes an MPSC[T] queue of the
// given slot capacity (rounded up to a power of two) occupies.
func MPSCByteSize[T any](capacity int) uint64 {
	n := roundToPow2(capacity)
	var zero mpscSlot[T]
	return uint64(mpscHeaderSize) + uint64(n)*uint64(unsafe.Sizeof(zero))
}

// NewMPSCOwner initializes a new MPSC[T] queue over base, which must
// point to at least MPSCByteSize[T](capacity) zero-initialized bytes.
func NewMPSCOwner[T any](base unsafe.Pointer, capacity int) *MPSC[T] {
	n := roundToPow2(capacity)
	hdr := (*mpscHeader)(base)
	hdr.mask = uint64(n - 1)
	hdr.capacity = uint64(n)
	hdr.head.StoreRelaxed(0)
	hdr.tail.StoreRelaxed(0)

	slotsBase := unsafe.Add(base, mpscHeaderSize)
	slots := unsafe.Slice((*mpscSlot[T])(slotsBase), n)
	for i := range slots {
		slots[i].seq.StoreRelaxed(uint64(i))
	}
	return &MPSC[T]{hdr: hdr, slots: slots}
}

// OpenMPSC attaches to an already-initialized MPSC[T] queue over base.
func OpenMPSC[T any](base unsafe.Pointer) *MPSC[T] {
	hdr := (*mpscHeader)(base)
	slotsBase := unsafe.Add(base, mpscHeaderSize)
	return &MPSC[T]{hdr: hdr, slots: unsafe.Slice((*mpscSlot[T])(slotsBase), hdr.capacity)}
}

// Cap returns the queue's slot capacity.
func (q *MPSC[T]) Cap() int { return int(q.hdr.capacity) }

// Enqueue adds ref; safe for any number of concurrent producers across
// processes. Returns ErrWouldBlock when the queue is full — MPSC uses
// Reject semantics only (SafeOverflow's "drop oldest" is not safe to
// perform from an arbitrary producer without coordinating with every
// other producer, so overflow here is always the caller's problem,
// handled the same way spec.md §4.7/§4.8 handle a full queue: Block or
// DiscardSample at the calling layer before ever calling Enqueue).
func (q *MPSC[T]) Enqueue(ref T) error {
	sw := spin.Wait{}
	for {
		tail := q.hdr.tail.LoadAcquire()
		head := q.hdr.head.LoadAcquire()
		if tail >= head+q.hdr.capacity {
			return ErrWouldBlock
		}
		slot := &q.slots[tail&q.hdr.mask]
		seq := slot.seq.LoadAcquire()
		if seq == tail {
			if q.hdr.tail.CompareAndSwapAcqRel(tail, tail+1) {
				slot.ref = ref
				slot.seq.StoreRelease(tail + 1)
				return nil
			}
		} else if seq < tail {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// Dequeue removes and returns a reference (single consumer only).
func (q *MPSC[T]) Dequeue() (T, error) {
	head := q.hdr.head.LoadRelaxed()
	slot := &q.slots[head&q.hdr.mask]
	seq := slot.seq.LoadAcquire()
	if seq != head+1 {
		var zero T
		return zero, ErrWouldBlock
	}
	ref := slot.ref
	slot.seq.StoreRelease(head + q.hdr.capacity)
	q.hdr.head.StoreRelease(head + 1)
	return ref, nil
}

// DequeueOldest pops and returns the single oldest queued reference
// without requiring the caller to loop, for SafeOverflow-style eviction
// (internal/transport's MPSC itself never evicts — see Enqueue's doc
// comment).
func (q *MPSC[T]) DequeueOldest() (T, bool) {
	ref, err := q.Dequeue()
	if err != nil {
		var zero T
		return zero, false
	}
	return ref, true
}
