package pubsub

import (
	"sync/atomic"

	"code.hybscloud.com/ipc/internal/dynconfig"
	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/internal/transport"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/status"
)

// Subscriber is a publish-subscribe consumer port (spec.md §4.7): it
// owns one delivery queue, shared by every publisher connected to this
// service, and tracks how many samples it currently holds borrowed.
type Subscriber struct {
	id    node.PortID
	svc   *Service
	index int
	table *dynconfig.Table

	queue     *transport.MPSC[transport.SampleRef]
	queueSeg  *shm.Segment
	portID    uint64
	borrowed  atomic.Int64
	borrowCap int64
}

// ID returns the subscriber's port identity.
func (s *Subscriber) ID() node.PortID { return s.id }

// NewSubscriber creates a Subscriber port owned by n: its own delivery
// queue segment and a slot in the service's dynamic configuration
// advertising that segment's name to every publisher.
func (svc *Service) NewSubscriber(n *node.Node) (*Subscriber, error) {
	table := svc.handle.Dyn.Table(portset.Subscriber)
	if table == nil {
		return nil, status.New("pubsub.NewSubscriber", status.KindExceedsMaxSupportedSubscribers)
	}
	pid := n.NextPortID(node.PortKindSubscriber)
	segName := svc.subscriberQueueName(pid.Pack())
	bufSize := svc.handle.Config.Limits.SubscriberBufferSize

	seg, err := shm.OpenOrCreate(svc.root, segName, shm.Layout{Size: transport.MPSCByteSize[transport.SampleRef](int(bufSize)), Align: 8}, shm.Owner, 0)
	if err != nil {
		return nil, status.New("pubsub.NewSubscriber", status.KindUnableToCreateDataSegment, err)
	}
	q := transport.NewMPSCOwner[transport.SampleRef](seg.PayloadBase(), int(bufSize))

	idx, err := table.Acquire(pid.Pack(), n.ID().Hash(), dynconfig.EncodeName(segName))
	if err != nil {
		seg.ReferenceRelease()
		return nil, status.New("pubsub.NewSubscriber", status.KindExceedsMaxSupportedSubscribers, err)
	}

	sub := &Subscriber{
		id: pid, svc: svc, index: idx, table: table,
		queue: q, queueSeg: seg, portID: pid.Pack(),
		borrowCap: int64(svc.handle.Config.Limits.BorrowedSampleCap),
	}
	svc.registerQueue(sub.portID, q)
	sub.UpdateConnections()
	return sub, nil
}

// UpdateConnections maps (and caches) the data segment of every
// currently active publisher, so Receive can resolve payloads from
// samples that were already queued before this subscriber learned
// about their publisher.
func (s *Subscriber) UpdateConnections() {
	pubTable := s.svc.handle.Dyn.Table(portset.Publisher)
	if pubTable == nil {
		return
	}
	pubTable.ForEachActive(func(e dynconfig.Entry) {
		name := dynconfig.DecodeName(e.Payload)
		s.svc.mapForeignSegment(name)
	})
}

// Sample is a borrowed, received reference to a publisher's payload.
// It must be released with Close once the caller is done reading it.
type Sample struct {
	sub      *Subscriber
	ref      transport.SampleRef
	released bool
}

// Receive re-scans the publisher connections (UpdateConnections) and
// dequeues the next pending sample. It returns ErrWouldBlock if none is
// pending, and an ExceedsMaxBorrows error if the subscriber already
// holds its borrowed-sample cap (spec.md §4.7 "max_borrowed_samples").
func (s *Subscriber) Receive() (*Sample, error) {
	if s.borrowed.Load() >= s.borrowCap {
		return nil, status.New("pubsub.Subscriber.Receive", status.KindExceedsMaxBorrows)
	}
	s.UpdateConnections()
	ref, err := s.queue.Dequeue()
	if err != nil {
		return nil, transport.ErrWouldBlock
	}
	s.borrowed.Add(1)
	return &Sample{sub: s, ref: ref}, nil
}

// Payload returns the sample's payload bytes, resolved from the
// subscriber's cached data-segment mappings. ConnectionCorrupted means
// the owning cell has since been reused (the sample arrived too late);
// ConnectionBrokenSincePublisherNoLongerExists means this process has
// no mapping of the owning segment.
func (smp *Sample) Payload() ([]byte, error) {
	ds, ok := smp.sub.svc.segmentByHash(smp.ref.SegmentID)
	if !ok {
		return nil, status.New("pubsub.Sample.Payload", status.KindConnectionBrokenSincePublisherNoLongerExists)
	}
	return ds.PayloadAt(smp.ref)
}

// Close releases the sample's borrow, decrementing the owning cell's
// refcount. Idempotent.
func (smp *Sample) Close() error {
	if smp.released {
		return nil
	}
	smp.released = true
	smp.sub.borrowed.Add(-1)
	smp.sub.svc.releaseRef(smp.ref)
	return nil
}

// Close releases the subscriber's dynconfig slot and its delivery
// queue segment.
func (s *Subscriber) Close() error {
	s.table.Release(s.index, nil)
	if _, err := s.queueSeg.ReferenceRelease(); err != nil {
		return status.New("pubsub.Subscriber.Close", status.KindInternalFailure, err)
	}
	return nil
}
