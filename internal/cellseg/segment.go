package cellseg

import (
	"unsafe"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/internal/transport"
	"code.hybscloud.com/ipc/status"
)

// cellHeader precedes each cell's payload bytes in a Segment. refcount
// 0 marks the cell free; Loan claims a free cell by CASing it to 1 and
// bumping generation, so a stale SampleRef pointing at a cell some
// later Loan reused is caught by the generation mismatch rather than
// read as someone else's payload (spec.md §3 "generation counter").
type cellHeader struct {
	refcount   atomix.Int64
	generation atomix.Uint64
}

const cellHeaderSize = unsafe.Sizeof(cellHeader{})

func roundUp(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// Layout computes the offset of a cell's payload relative to the
// cell's start, and the stride between consecutive cells, for a
// payload of the given size and required alignment.
func Layout(payloadSize, payloadAlign uint64) (dataOffset, stride uint64) {
	if payloadAlign == 0 {
		payloadAlign = 8
	}
	dataOffset = roundUp(uint64(cellHeaderSize), payloadAlign)
	stride = roundUp(dataOffset+payloadSize, payloadAlign)
	return
}

// Segment is a fixed-capacity array of reference-counted, fixed-size
// cells (spec.md §4.1). Exactly one process — the port that owns it —
// ever allocates (Loan) or writes a cell's payload, matching
// shm.Segment.Allocate's single-writer rule; any number of other ports
// may hold and release references concurrently.
type Segment struct {
	seg         *shm.Segment
	capacity    int
	payloadSize uint64
	dataOffset  uint64
	stride      uint64
	next        atomix.Uint64 // round-robin scan hint, not authoritative
}

// New creates (role shm.Owner) or maps (shm.Mapper) the named data
// segment sized to hold capacity cells of payloadSize bytes aligned to
// payloadAlign.
func New(root, name string, capacity int, payloadSize, payloadAlign uint64, role shm.Role) (*Segment, error) {
	dataOffset, stride := Layout(payloadSize, payloadAlign)
	total := stride * uint64(capacity)
	seg, err := shm.OpenOrCreate(root, name, shm.Layout{Size: total, Align: payloadAlign}, role, 0)
	if err != nil {
		return nil, err
	}
	return &Segment{seg: seg, capacity: capacity, payloadSize: payloadSize, dataOffset: dataOffset, stride: stride}, nil
}

func (d *Segment) cellHeader(i int) *cellHeader {
	return (*cellHeader)(unsafe.Add(d.seg.PayloadBase(), uintptr(i)*uintptr(d.stride)))
}

func (d *Segment) cellData(i int) unsafe.Pointer {
	return unsafe.Add(d.seg.PayloadBase(), uintptr(i)*uintptr(d.stride)+uintptr(d.dataOffset))
}

// Name returns the backing segment's name.
func (d *Segment) Name() string { return d.seg.Name() }

// Close releases this process's mapping of the segment.
func (d *Segment) Close() (unlinked bool, err error) { return d.seg.ReferenceRelease() }

// Loan finds a free cell (refcount 0), claims it with refcount 1 (the
// loan's own hold, released by the caller once the sample has been
// fanned out), and bumps its generation. The scan starts from a
// rotating hint so repeated loans do not all contend on cell 0.
func (d *Segment) Loan() (index int, data []byte, generation uint64, err error) {
	start := int(d.next.AddAcqRel(1)-1) % d.capacity
	if start < 0 {
		start += d.capacity
	}
	for off := 0; off < d.capacity; off++ {
		i := (start + off) % d.capacity
		h := d.cellHeader(i)
		if h.refcount.LoadAcquire() != 0 {
			continue
		}
		if h.refcount.CompareAndSwapAcqRel(0, 1) {
			gen := h.generation.AddAcqRel(1)
			return i, unsafe.Slice((*byte)(d.cellData(i)), int(d.payloadSize)), uint64(gen), nil
		}
	}
	return 0, nil, 0, status.New("cellseg.Segment.Loan", status.KindOutOfMemory)
}

// AddRef increments cell index's refcount by delta, returning the
// result. A producer calls this once per successful delivery-queue
// enqueue and once more if the sample enters a history ring.
func (d *Segment) AddRef(index int, delta int64) int64 {
	return d.cellHeader(index).refcount.AddAcqRel(delta)
}

// Release decrements cell index's refcount by one, returning the
// result (0 means the cell is free again).
func (d *Segment) Release(index int) int64 {
	return d.cellHeader(index).refcount.AddAcqRel(-1)
}

// IndexOf resolves ref to a cell index within this segment, returning
// -1 if ref's offset does not correspond to a valid cell boundary or
// its generation no longer matches (the cell has since been reused).
func (d *Segment) IndexOf(ref transport.SampleRef) int {
	if ref.Offset < d.dataOffset {
		return -1
	}
	rem := ref.Offset - d.dataOffset
	if rem%d.stride != 0 {
		return -1
	}
	idx := int(rem / d.stride)
	if idx < 0 || idx >= d.capacity {
		return -1
	}
	if d.cellHeader(idx).generation.LoadAcquire() != ref.Generation {
		return -1
	}
	return idx
}

// PayloadAt returns the payload bytes for ref, or ConnectionCorrupted
// if ref no longer identifies a live cell in this segment.
func (d *Segment) PayloadAt(ref transport.SampleRef) ([]byte, error) {
	idx := d.IndexOf(ref)
	if idx < 0 {
		return nil, status.New("cellseg.Segment.PayloadAt", status.KindConnectionCorrupted)
	}
	return unsafe.Slice((*byte)(d.cellData(idx)), int(d.payloadSize)), nil
}

// ReleaseRef decrements the refcount of the cell ref identifies, if it
// still resolves to one. A ref whose generation has already moved on
// is silently ignored: the sample it referred to is already gone.
func (d *Segment) ReleaseRef(ref transport.SampleRef) {
	if idx := d.IndexOf(ref); idx >= 0 {
		d.Release(idx)
	}
}

// OffsetOf returns the byte offset (relative to PayloadBase) of the
// cell at index, for SampleRef construction by the caller.
func (d *Segment) OffsetOf(index int) uint64 {
	return uint64(index)*d.stride + d.dataOffset
}
