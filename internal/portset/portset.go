package portset

import (
	"time"
	"unsafe"

	"code.hybscloud.com/ipc/internal/dynconfig"
	"code.hybscloud.com/ipc/internal/shm"
)

// Kind identifies a port kind's slot array within a service's dynamic
// configuration segment.
type Kind int

const (
	Publisher Kind = iota
	Subscriber
	Notifier
	Listener
	Client
	Server
	numKinds
)

// NumKinds is the number of declared port kinds, exported so callers
// outside this package (the reaper) can range over every Kind without
// guessing the last declared constant.
const NumKinds = int(numKinds)

// Capacities gives the declared maximum number of ports of each kind a
// service supports (spec.md §3's per-port-kind limits).
type Capacities [numKinds]int

func (c Capacities) byteSize() uint64 {
	var total uint64
	for _, n := range c {
		if n > 0 {
			total += dynconfig.ByteSize(n)
		}
	}
	return total
}

// PortSet is the mapped collection of per-kind dynconfig.Tables backing
// one service's dynamic configuration segment.
type PortSet struct {
	seg    *shm.Segment
	tables [numKinds]*dynconfig.Table
}

// OpenOrCreate maps (or, for role==shm.Owner, creates and initializes)
// the named dynamic-configuration segment sized to cap.
func OpenOrCreate(root, segName string, cap Capacities, role shm.Role, deadline time.Duration) (*PortSet, error) {
	seg, err := shm.OpenOrCreate(root, segName, shm.Layout{Size: cap.byteSize(), Align: 8}, role, deadline)
	if err != nil {
		return nil, err
	}

	ps := &PortSet{seg: seg}
	base := seg.PayloadBase()
	var offset uint64
	for k := Kind(0); k < numKinds; k++ {
		n := cap[k]
		if n == 0 {
			continue
		}
		ps.tables[k] = dynconfig.NewTable(unsafe.Add(base, offset), n)
		offset += dynconfig.ByteSize(n)
	}
	return ps, nil
}

// Table returns the slot table for kind, or nil if the service's
// capacities did not allocate that kind.
func (ps *PortSet) Table(k Kind) *dynconfig.Table {
	return ps.tables[k]
}

// Close releases this process's mapping.
func (ps *PortSet) Close() (unlinked bool, err error) {
	return ps.seg.ReferenceRelease()
}

// SegmentName returns the name of the backing shared-memory segment.
func (ps *PortSet) SegmentName() string {
	return ps.seg.Name()
}
