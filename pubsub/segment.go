package pubsub

import (
	"code.hybscloud.com/ipc/internal/cellseg"
	"code.hybscloud.com/ipc/internal/shm"
)

// DataSegment is a publisher's cell-based data segment (spec.md §4.1,
// §4.7): exactly one process, the owning Publisher, ever loans a cell
// or writes its payload; any number of subscribers release references
// concurrently. The cell/refcount/generation mechanics live in
// internal/cellseg, shared with reqres's client/server data segments.
type DataSegment = cellseg.Segment

// NewDataSegment creates (role shm.Owner) or maps (shm.Mapper) the
// named data segment sized to hold capacity cells of payloadSize bytes
// aligned to payloadAlign.
func NewDataSegment(root, name string, capacity int, payloadSize, payloadAlign uint64, role shm.Role) (*DataSegment, error) {
	return cellseg.New(root, name, capacity, payloadSize, payloadAlign, role)
}
