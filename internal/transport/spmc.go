package transport

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

type spmcSlot struct {
	seq atomix.Uint64
	ref SampleRef
}

const spmcSlotSize = unsafe.Sizeof(spmcSlot{})

type spmcHeader struct {
	_        [64]byte
	head     atomix.Uint64 // consumers CAS here
	_        [56]byte
	tail     atomix.Uint64 // single producer writes here
	_        [56]byte
	mask     uint64
	capacity uint64
}

const spmcHeaderSize = unsafe.Sizeof(spmcHeader{})

// SPMC is a single-producer multi-consumer delivery queue (spec.md
// §4.2). No package in this module constructs one: a publisher's
// history ring is an in-process slice and a client's response queue is
// an MPSC. It mirrors code.hybscloud.com/lfq's SPMCSeq Vyukov sequence-number
// algorithm, placed over shared memory the same way SPSC is.
type SPMC struct {
	hdr   *spmcHeader
	slots []spmcSlot
}

// SPMCByteSize returns the number of bytes an SPMC queue of the given
// slot capacity (rounded up to a power of two) occupies.
func SPMCByteSize(capacity int) uint64 {
	n := roundToPow2(capacity)
	return uint64(spmcHeaderSize) + uint64(n)*uint64(spmcSlotSize)
}

// NewSPMCOwner initializes a new SPMC queue over base, which must point
// to at least SPMCByteSize(capacity) zero-initialized bytes.
func NewSPMCOwner(base unsafe.Pointer, capacity int) *SPMC {
	n := roundToPow2(capacity)
	hdr := (*spmcHeader)(base)
	hdr.mask = uint64(n - 1)
	hdr.capacity = uint64(n)
	hdr.head.StoreRelaxed(0)
	hdr.tail.StoreRelaxed(0)

	slotsBase := unsafe.Add(base, spmcHeaderSize)
	slots := unsafe.Slice((*spmcSlot)(slotsBase), n)
	for i := range slots {
		slots[i].seq.StoreRelaxed(uint64(i))
	}
	return &SPMC{hdr: hdr, slots: slots}
}

// OpenSPMC attaches to an already-initialized SPMC queue over base.
func OpenSPMC(base unsafe.Pointer) *SPMC {
	hdr := (*spmcHeader)(base)
	slotsBase := unsafe.Add(base, spmcHeaderSize)
	return &SPMC{hdr: hdr, slots: unsafe.Slice((*spmcSlot)(slotsBase), hdr.capacity)}
}

// Cap returns the queue's slot capacity.
func (q *SPMC) Cap() int { return int(q.hdr.capacity) }

// Enqueue adds a reference (single producer only). Returns
// ErrWouldBlock if the queue is full — history/response queues use
// Reject semantics only; SafeOverflow dropping a reference a consumer
// might still be reading from is not safe without per-slot refcounting,
// which the borrow-tracking layer above this one provides instead.
func (q *SPMC) Enqueue(ref SampleRef) error {
	tail := q.hdr.tail.LoadRelaxed()
	slot := &q.slots[tail&q.hdr.mask]
	if slot.seq.LoadAcquire() != tail {
		return ErrWouldBlock
	}
	slot.ref = ref
	slot.seq.StoreRelease(tail + 1)
	q.hdr.tail.StoreRelease(tail + 1)
	return nil
}

// Dequeue removes and returns a reference. Safe for multiple concurrent
// consumers (each slot is claimed by exactly one via CAS on its
// sequence number).
func (q *SPMC) Dequeue() (SampleRef, error) {
	sw := spin.Wait{}
	for {
		head := q.hdr.head.LoadAcquire()
		tail := q.hdr.tail.LoadAcquire()
		if head >= tail {
			return SampleRef{}, ErrWouldBlock
		}
		slot := &q.slots[head&q.hdr.mask]
		seq := slot.seq.LoadAcquire()
		if seq != head+1 {
			sw.Once()
			continue
		}
		if !q.hdr.head.CompareAndSwapAcqRel(head, head+1) {
			sw.Once()
			continue
		}
		ref := slot.ref
		slot.seq.StoreRelease(head + q.hdr.capacity)
		return ref, nil
	}
}
