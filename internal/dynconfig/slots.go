package dynconfig

import (
	"fmt"
	"unsafe"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/ipc/status"
)

// State is a slot's lifecycle tag (spec.md §4.5).
type State int32

const (
	Empty State = iota
	Reserved
	Active
	Releasing
)

// PayloadSize is the fixed size, in bytes, of a slot's kind-specific
// metadata region — large enough for a data-segment name plus a queue
// name (port kinds never need to carry more than two shared-memory
// object names and a handful of scalar limits).
const PayloadSize = 128

// slot is one entry, its state word padded out to a full 64-byte line
// (the slot as a whole is 208 bytes). The padding keeps concurrent
// CAS traffic on adjacent slots' state words from false-sharing, the
// same discipline code.hybscloud.com/lfq's pad types follow for its ring slots.
type slot struct {
	state   atomix.Int32
	_       [60]byte // pad state to its own cache line
	portID  atomix.Uint64
	nodeID  atomix.Uint64
	payload [PayloadSize]byte
}

const slotSize = unsafe.Sizeof(slot{})

// Table is a fixed-capacity array of slots for one port kind, mapped
// over a byte region owned by a shm.Segment (or any other
// sufficiently-sized, zero-initialized shared memory).
type Table struct {
	slots []slot
}

// ByteSize returns the number of bytes a Table of the given capacity
// occupies, for sizing the owning segment's allocation.
func ByteSize(capacity int) uint64 {
	return uint64(slotSize) * uint64(capacity)
}

// NewTable constructs a Table view over base, which must point to at
// least ByteSize(capacity) zero-initialized bytes.
func NewTable(base unsafe.Pointer, capacity int) *Table {
	return &Table{slots: unsafe.Slice((*slot)(base), capacity)}
}

// ErrExceedsCapacity is returned by Acquire when every slot in the
// table is occupied.
var ErrExceedsCapacity = fmt.Errorf("dynconfig: no free slot")

// Acquire scans for the first Empty slot, claims it with a CAS to
// Reserved, writes portID/nodeID/payload, then publishes it with a CAS
// to Active. It returns the claimed slot's index. Concurrent Acquire
// calls from different ports race on the same Empty slot but only one
// wins the Empty->Reserved CAS; the loser continues scanning.
func (t *Table) Acquire(portID, nodeID uint64, payload []byte) (index int, err error) {
	if len(payload) > PayloadSize {
		return 0, status.New("dynconfig.Acquire", status.KindInternalFailure,
			fmt.Errorf("payload %d exceeds slot capacity %d", len(payload), PayloadSize))
	}
	for i := range t.slots {
		s := &t.slots[i]
		if State(s.state.LoadAcquire()) != Empty {
			continue
		}
		if !s.state.CompareAndSwapAcqRel(int32(Empty), int32(Reserved)) {
			continue
		}
		s.portID.StoreRelaxed(portID)
		s.nodeID.StoreRelaxed(nodeID)
		copy(s.payload[:], payload)
		s.state.StoreRelease(int32(Active))
		return i, nil
	}
	return 0, ErrExceedsCapacity
}

// Release runs drain (which must free or hand back any per-port
// resources the slot's payload referenced — e.g. draining a delivery
// queue) between the Active->Releasing and Releasing->Empty
// transitions, per spec.md §4.5's release-slot protocol. A slot already
// in Releasing (a crash left it mid-transition) is drained and emptied
// the same way, so the reaper can call Release again to finish it; a
// slot that is neither Active nor Releasing is left untouched.
func (t *Table) Release(index int, drain func()) {
	s := &t.slots[index]
	if !s.state.CompareAndSwapAcqRel(int32(Active), int32(Releasing)) {
		if State(s.state.LoadAcquire()) != Releasing {
			return
		}
	}
	if drain != nil {
		drain()
	}
	s.portID.StoreRelaxed(0)
	s.nodeID.StoreRelaxed(0)
	s.state.StoreRelease(int32(Empty))
}

// Entry is a read-only snapshot of one Active slot, returned by
// ForEachActive.
type Entry struct {
	Index   int
	PortID  uint64
	NodeID  uint64
	Payload []byte
}

// ForEachActive iterates every slot with acquire ordering and invokes fn
// for each one observed Active; the slot's port id is not checked
// separately. A slot that transitions to
// Releasing between the state check and the payload read is simply
// skipped on this pass — callers needing a connection's metadata re-
// scan on every send/receive rather than caching across calls.
func (t *Table) ForEachActive(fn func(Entry)) {
	for i := range t.slots {
		s := &t.slots[i]
		if State(s.state.LoadAcquire()) != Active {
			continue
		}
		fn(Entry{
			Index:   i,
			PortID:  s.portID.LoadAcquire(),
			NodeID:  s.nodeID.LoadAcquire(),
			Payload: s.payload[:],
		})
	}
}

// StateOf returns the current state of the slot at index, for the
// reaper to distinguish a crashed port (Active or Releasing with a now-
// dead node id) from a genuinely free one.
func (t *Table) StateOf(index int) State {
	return State(t.slots[index].state.LoadAcquire())
}

// NodeOf returns the owning node id recorded in the slot at index,
// valid only when StateOf(index) is Active or Releasing.
func (t *Table) NodeOf(index int) uint64 {
	return t.slots[index].nodeID.LoadAcquire()
}

// ForceRelease is used by the reaper to complete the release protocol
// for a slot left in Active or Releasing by a crashed port, bypassing
// the normal Active->Releasing CAS (the crashed owner will never
// perform it). drain runs exactly as in Release.
func (t *Table) ForceRelease(index int, drain func()) {
	s := &t.slots[index]
	s.state.StoreRelease(int32(Releasing))
	if drain != nil {
		drain()
	}
	s.portID.StoreRelaxed(0)
	s.nodeID.StoreRelaxed(0)
	s.state.StoreRelease(int32(Empty))
}

// Capacity returns the number of slots in the table.
func (t *Table) Capacity() int { return len(t.slots) }
