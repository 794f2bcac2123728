package pubsub

import (
	"sync"
	"time"

	"code.hybscloud.com/spin"

	"code.hybscloud.com/ipc/internal/dynconfig"
	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/internal/transport"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/status"
)

type historyEntry struct {
	index      int
	ref        transport.SampleRef
	hasHistory bool
}

// Publisher is a publish-subscribe producer port (spec.md §4.7): it
// owns a DataSegment of loanable cells and a local (in-process-only)
// history ring, and lazily (re)connects to every active Subscriber
// slot on each Send.
type Publisher struct {
	id    node.PortID
	svc   *Service
	index int
	table *dynconfig.Table

	data      *DataSegment
	segIDHash uint64

	strategy     UnableToDeliverStrategy
	blockTimeout time.Duration

	mu         sync.Mutex
	known      map[uint64]struct{} // subscriber port ids already replayed-to
	history    []historyEntry
	historyCap int
	historyPos int
	historyLen int
}

// ID returns the publisher's port identity.
func (p *Publisher) ID() node.PortID { return p.id }

// NewPublisher creates a Publisher port owned by n, allocating and
// initializing its data segment and registering its name in the
// service's dynamic configuration table.
func (s *Service) NewPublisher(n *node.Node) (*Publisher, error) {
	table := s.handle.Dyn.Table(portset.Publisher)
	if table == nil {
		return nil, status.New("pubsub.NewPublisher", status.KindExceedsMaxSupportedPublishers)
	}
	pid := n.NextPortID(node.PortKindPublisher)
	segName := s.publisherSegName(pid.Pack())
	size, align := s.payloadShape()

	ds, err := NewDataSegment(s.root, segName, s.dataSegmentCapacity(), size, align, shm.Owner)
	if err != nil {
		return nil, status.New("pubsub.NewPublisher", status.KindUnableToCreateDataSegment, err)
	}
	hash := s.cacheSegment(ds)

	idx, err := table.Acquire(pid.Pack(), n.ID().Hash(), dynconfig.EncodeName(segName))
	if err != nil {
		ds.Close()
		return nil, status.New("pubsub.NewPublisher", status.KindExceedsMaxSupportedPublishers, err)
	}

	return &Publisher{
		id: pid, svc: s, index: idx, table: table,
		data: ds, segIDHash: hash,
		strategy: s.limits.UnableToDeliverStrategy, blockTimeout: s.limits.BlockTimeout,
		known:      map[uint64]struct{}{},
		historyCap: int(s.handle.Config.Limits.HistorySize),
	}, nil
}

// SampleMut is an uninitialized loaned sample, writable until Send or
// Close.
type SampleMut struct {
	pub        *Publisher
	index      int
	payload    []byte
	generation uint64
	done       bool
}

// LoanUninit claims a free cell in the publisher's data segment. The
// returned sample's payload is uninitialized; the caller must fill it
// before Send.
func (p *Publisher) LoanUninit() (*SampleMut, error) {
	idx, data, gen, err := p.data.Loan()
	if err != nil {
		return nil, err
	}
	return &SampleMut{pub: p, index: idx, payload: data, generation: gen}, nil
}

// PayloadMut returns the sample's writable payload bytes.
func (s *SampleMut) PayloadMut() []byte { return s.payload }

// Send publishes the sample: it is fanned out to every currently
// connected subscriber's delivery queue and, if the service keeps
// history, retained in the publisher's history ring.
func (s *SampleMut) Send() error {
	if s.done {
		return status.New("pubsub.SampleMut.Send", status.KindInternalFailure)
	}
	s.done = true
	return s.pub.send(s.index, s.generation)
}

// Close abandons the loaned sample without sending it, releasing its
// cell back to the free pool.
func (s *SampleMut) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	s.pub.data.Release(s.index)
	return nil
}

func (p *Publisher) ref(index int, generation uint64) transport.SampleRef {
	return transport.SampleRef{SegmentID: p.segIDHash, Offset: p.data.OffsetOf(index), Generation: generation}
}

func (p *Publisher) send(index int, generation uint64) error {
	ref := p.ref(index, generation)
	p.replayToNewSubscribers()

	p.mu.Lock()
	subs := make([]uint64, 0, len(p.known))
	for portID := range p.known {
		subs = append(subs, portID)
	}
	p.mu.Unlock()

	for _, portID := range subs {
		q, ok := p.svc.queueFor(portID)
		if !ok {
			continue
		}
		p.data.AddRef(index, 1)
		if err := p.deliver(q, ref); err != nil {
			p.data.Release(index)
		}
	}

	p.recordHistory(index, ref)
	p.data.Release(index) // drop the loan's own hold
	return nil
}

func (p *Publisher) deliver(q *transport.MPSC[transport.SampleRef], ref transport.SampleRef) error {
	if err := q.Enqueue(ref); err == nil {
		return nil
	}
	switch p.strategy {
	case DiscardSample:
		return p.discardAndEnqueue(q, ref)
	default: // Block
		sw := spin.Wait{}
		deadline := time.Now().Add(p.blockTimeout)
		for time.Now().Before(deadline) {
			if err := q.Enqueue(ref); err == nil {
				return nil
			}
			sw.Once()
		}
		return p.discardAndEnqueue(q, ref)
	}
}

func (p *Publisher) discardAndEnqueue(q *transport.MPSC[transport.SampleRef], ref transport.SampleRef) error {
	if old, ok := q.DequeueOldest(); ok {
		p.svc.releaseRef(old)
	}
	return q.Enqueue(ref)
}

// recordHistory appends (index, ref) to the in-process history ring,
// evicting and releasing the oldest entry if full. History lives only
// in the publisher's own process: only the publisher ever replays from
// it (to a newly-joined subscriber's queue), so there is no need to
// place it in shared memory.
func (p *Publisher) recordHistory(index int, ref transport.SampleRef) {
	if p.historyCap == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.history == nil {
		p.history = make([]historyEntry, p.historyCap)
	}
	if p.historyLen == p.historyCap {
		evicted := p.history[p.historyPos]
		if evicted.hasHistory {
			p.data.Release(evicted.index)
		}
	} else {
		p.historyLen++
	}
	p.data.AddRef(index, 1)
	p.history[p.historyPos] = historyEntry{index: index, ref: ref, hasHistory: true}
	p.historyPos = (p.historyPos + 1) % p.historyCap
}

// replayToNewSubscribers scans the Subscriber table for entries not
// yet in p.known; each is mapped, cached, and replayed the publisher's
// current history before being added to the known set (spec.md §4.7
// "a newly joined subscriber receives up to history_size prior
// samples").
func (p *Publisher) replayToNewSubscribers() {
	subTable := p.svc.handle.Dyn.Table(portset.Subscriber)
	if subTable == nil {
		return
	}
	var fresh []uint64
	subTable.ForEachActive(func(e dynconfig.Entry) {
		p.mu.Lock()
		_, seen := p.known[e.PortID]
		p.mu.Unlock()
		if seen {
			return
		}
		name := dynconfig.DecodeName(e.Payload)
		if _, ok := p.svc.queueFor(e.PortID); !ok {
			q, err := p.svc.mapSubscriberQueue(name)
			if err != nil {
				return
			}
			p.svc.registerQueue(e.PortID, q)
		}
		fresh = append(fresh, e.PortID)
	})
	for _, portID := range fresh {
		p.replayHistoryTo(portID)
		p.mu.Lock()
		p.known[portID] = struct{}{}
		p.mu.Unlock()
	}
}

func (p *Publisher) replayHistoryTo(portID uint64) {
	q, ok := p.svc.queueFor(portID)
	if !ok {
		return
	}
	p.mu.Lock()
	entries := make([]historyEntry, 0, p.historyLen)
	for i := 0; i < p.historyLen; i++ {
		idx := (p.historyPos - p.historyLen + i + p.historyCap) % p.historyCap
		entries = append(entries, p.history[idx])
	}
	p.mu.Unlock()
	for _, e := range entries {
		if !e.hasHistory {
			continue
		}
		p.data.AddRef(e.index, 1)
		if err := q.Enqueue(e.ref); err != nil {
			p.data.Release(e.index)
		}
	}
}

// UpdateConnections forces an immediate rescan for newly joined
// subscribers and replays history to them, without waiting for the
// next Send. Exposed for callers that want connection establishment
// decoupled from message cadence (spec.md §4.7).
func (p *Publisher) UpdateConnections() { p.replayToNewSubscribers() }

// Close releases the publisher's dynconfig slot and its data segment.
// Any cell still referenced by a subscriber's queue or history keeps
// its refcount alive; the segment itself is unmapped (and, if this was
// the last reference, unlinked) regardless.
func (p *Publisher) Close() error {
	p.table.Release(p.index, nil)
	if _, err := p.data.Close(); err != nil {
		return status.New("pubsub.Publisher.Close", status.KindInternalFailure, err)
	}
	return nil
}
