package pubsub

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/internal/transport"
	"code.hybscloud.com/ipc/registry"
)

// Service is an opened or created publish-subscribe service: the
// registry handle, the pubsub-specific limits, and this process's
// cache of every data segment and subscriber queue it has mapped so
// far — shared by every Publisher and Subscriber built from it, so a
// publisher's DiscardSample eviction can release a sample produced by
// a different, already-connected publisher (see doc.go).
type Service struct {
	handle *registry.Handle
	root   string
	limits Limits

	mu       sync.Mutex
	segments map[uint64]*DataSegment
	queues   map[uint64]*transport.MPSC[transport.SampleRef]
}

// Open wraps an already created-or-opened registry.Handle for the
// PublishSubscribe pattern.
func Open(h *registry.Handle, root string, limits Limits) *Service {
	return &Service{
		handle:   h,
		root:     root,
		limits:   limits,
		segments: map[uint64]*DataSegment{},
		queues:   map[uint64]*transport.MPSC[transport.SampleRef]{},
	}
}

func (s *Service) payloadShape() (size, align uint64) {
	if t := s.handle.Config.PayloadType; t != nil {
		return t.Size, t.Align
	}
	return 0, 8
}

func (s *Service) publisherSegName(portID uint64) string {
	return fmt.Sprintf("%s_%s_pub_%016x_data", s.handle.Prefix, s.handle.ID, portID)
}

func (s *Service) subscriberQueueName(portID uint64) string {
	return fmt.Sprintf("%s_%s_sub_%016x_queue", s.handle.Prefix, s.handle.ID, portID)
}

func (s *Service) cacheSegment(ds *DataSegment) uint64 {
	hash := xxhash.Sum64String(ds.Name())
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.segments[hash]; ok {
		return xxhash.Sum64String(existing.Name())
	}
	s.segments[hash] = ds
	return hash
}

func (s *Service) segmentByName(name string) (*DataSegment, bool) {
	hash := xxhash.Sum64String(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.segments[hash]
	return ds, ok
}

func (s *Service) segmentByHash(hash uint64) (*DataSegment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.segments[hash]
	return ds, ok
}

// mapForeignSegment maps (as shm.Mapper) a publisher's data segment
// learned by name from the dynamic configuration table, caching it for
// reuse by any other port in this process.
func (s *Service) mapForeignSegment(name string) (*DataSegment, error) {
	if ds, ok := s.segmentByName(name); ok {
		return ds, nil
	}
	size, align := s.payloadShape()
	ds, err := NewDataSegment(s.root, name, s.dataSegmentCapacity(), size, align, shm.Mapper)
	if err != nil {
		return nil, err
	}
	s.cacheSegment(ds)
	return ds, nil
}

func (s *Service) dataSegmentCapacity() int {
	l := s.handle.Config.Limits
	return int(s.limits.PublisherMaxLoans) +
		int(l.SubscriberBufferSize)*int(l.MaxSubscribers) +
		int(l.HistorySize) +
		int(l.BorrowedSampleCap)*int(l.MaxSubscribers)
}

// mapSubscriberQueue maps (as shm.Mapper) a subscriber's delivery
// queue learned by name from the dynamic configuration table. Callers
// are responsible for registering the result with registerQueue so
// later lookups by port id avoid remapping.
func (s *Service) mapSubscriberQueue(name string) (*transport.MPSC[transport.SampleRef], error) {
	size := s.handle.Config.Limits.SubscriberBufferSize
	seg, err := shm.OpenOrCreate(s.root, name, shm.Layout{Size: transport.MPSCByteSize[transport.SampleRef](int(size)), Align: 8}, shm.Mapper, 0)
	if err != nil {
		return nil, err
	}
	return transport.OpenMPSC[transport.SampleRef](seg.PayloadBase()), nil
}

func (s *Service) registerQueue(portID uint64, q *transport.MPSC[transport.SampleRef]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[portID] = q
}

func (s *Service) queueFor(portID uint64) (*transport.MPSC[transport.SampleRef], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[portID]
	return q, ok
}

// releaseRef routes ref to whichever data segment this process has
// cached for ref.SegmentID and decrements its refcount. A ref for a
// segment this process has never mapped (possible only for a
// DiscardSample eviction of a sample from a publisher this process has
// not yet connected to) is not released: that cell's refcount is never
// decremented, so the cell stays claimed for the rest of the segment's
// life. See DESIGN.md.
func (s *Service) releaseRef(ref transport.SampleRef) {
	if ds, ok := s.segmentByHash(ref.SegmentID); ok {
		ds.ReleaseRef(ref)
	}
}
