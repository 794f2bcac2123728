package event

import (
	"fmt"
	"sync"
	"time"

	"code.hybscloud.com/ipc/internal/dynconfig"
	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/registry"
	"code.hybscloud.com/ipc/status"
)

// LifecycleEventIDs names the three optional automatic events a
// service may declare (spec.md §4.9): notifier created, notifier
// dropped, notifier dead. A nil entry disables that lifecycle event.
type LifecycleEventIDs struct {
	Created *uint32
	Dropped *uint32
	Dead    *uint32
}

// Limits is the event-service-specific subset of registry.Limits
// needed to size and operate the plane.
type Limits struct {
	EventIDMax uint32
	Deadline   *time.Duration
	Lifecycle  LifecycleEventIDs
}

// Service is an opened or created event-pattern service: the registry
// handle plus the limits governing every notifier/listener attached to
// it, and a small cache of this process's mappings of other ports'
// bitset segments (each listener maps its own segment once and is
// cached for the lifetime of the process, not re-mapped per notify).
type Service struct {
	handle *registry.Handle
	root   string
	limits Limits

	mu    sync.Mutex
	cache map[string]*Bits
}

// Open wraps an already created-or-opened registry.Handle for the
// Event pattern. Callers that configure Lifecycle must also persist
// the same values as h.Config.Limits.LifecycleEventIDs (via
// EncodeLifecycleIDs) at registry.Create time: the reaper (C10) never
// calls Open itself, so it reconstructs Lifecycle purely from the
// on-disk StaticConfig via DecodeLifecycleIDs. A mismatch between what
// was passed here and what was persisted means the reaper fires the
// wrong (or no) lifecycle event for a dead node's notifier.
func Open(h *registry.Handle, root string, limits Limits) *Service {
	return &Service{handle: h, root: root, limits: limits, cache: map[string]*Bits{}}
}

func (s *Service) listenerSegName(portID uint64) string {
	return fmt.Sprintf("%s_%s_lst_%016x_bits", s.handle.Prefix, s.handle.ID, portID)
}

func (s *Service) bitsFor(segName string) (*Bits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.cache[segName]; ok {
		return b, nil
	}
	seg, err := shm.OpenOrCreate(s.root, segName, shm.Layout{Size: ByteSize(s.limits.EventIDMax), Align: 8}, shm.Mapper, 2*time.Second)
	if err != nil {
		return nil, err
	}
	b := OpenBits(seg.PayloadBase(), s.limits.EventIDMax)
	s.cache[segName] = b
	return b, nil
}

// forEachListener invokes fn with the Bits of every currently Active
// listener, per spec.md §4.7-style lazy connection scanning ("connections
// are lazy and re-scanned on each send/receive call").
func (s *Service) forEachListener(fn func(*Bits)) {
	table := s.handle.Dyn.Table(portset.Listener)
	if table == nil {
		return
	}
	table.ForEachActive(func(e dynconfig.Entry) {
		name := dynconfig.DecodeName(e.Payload)
		b, err := s.bitsFor(name)
		if err != nil {
			return
		}
		fn(b)
	})
}

// NotifyLifecycleDead fans out the service's "notifier dead" lifecycle
// event to every listener. Used by the reaper (C10) when it finds a
// dead node that owned a Notifier port on this service: no live
// Notifier object exists for the reaper to call Notify on, so it
// drives the fan-out directly through the service.
func (s *Service) NotifyLifecycleDead() {
	if id := s.limits.Lifecycle.Dead; id != nil {
		s.forEachListener(func(b *Bits) {
			b.Set(*id)
			b.Post()
		})
	}
}

// NewNotifier creates a Notifier port owned by n, emitting the
// lifecycle "created" event (if configured) to every currently
// connected listener.
func (s *Service) NewNotifier(n *node.Node) (*Notifier, error) {
	table := s.handle.Dyn.Table(portset.Notifier)
	if table == nil {
		return nil, status.New("event.NewNotifier", status.KindExceedsMaxSupportedNotifiers)
	}
	pid := n.NextPortID(node.PortKindNotifier)
	idx, err := table.Acquire(pid.Pack(), n.ID().Hash(), dynconfig.EncodeName(n.Name()))
	if err != nil {
		return nil, status.New("event.NewNotifier", status.KindExceedsMaxSupportedNotifiers, err)
	}

	nt := &Notifier{id: pid, svc: s, index: idx, table: table}
	if s.limits.Deadline != nil {
		nt.deadline = *s.limits.Deadline
	}
	if id := s.limits.Lifecycle.Created; id != nil {
		nt.fanOut(*id)
	}
	return nt, nil
}

// NewListener creates a Listener port owned by n: its own semaphore +
// bitset segment, and a slot in the service's dynamic configuration
// advertising that segment's name to every notifier.
func (s *Service) NewListener(n *node.Node) (*Listener, error) {
	table := s.handle.Dyn.Table(portset.Listener)
	if table == nil {
		return nil, status.New("event.NewListener", status.KindExceedsMaxSupportedListeners)
	}
	pid := n.NextPortID(node.PortKindListener)
	segName := s.listenerSegName(pid.Pack())

	seg, err := shm.OpenOrCreate(s.root, segName, shm.Layout{Size: ByteSize(s.limits.EventIDMax), Align: 8}, shm.Owner, 0)
	if err != nil {
		return nil, status.New("event.NewListener", status.KindUnableToCreateDataSegment, err)
	}
	bits := NewBitsOwner(seg.PayloadBase(), s.limits.EventIDMax)

	idx, err := table.Acquire(pid.Pack(), n.ID().Hash(), dynconfig.EncodeName(segName))
	if err != nil {
		seg.ReferenceRelease()
		return nil, status.New("event.NewListener", status.KindExceedsMaxSupportedListeners, err)
	}

	return &Listener{id: pid, bits: bits, seg: seg, index: idx, table: table}, nil
}
