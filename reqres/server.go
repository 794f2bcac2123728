package reqres

import (
	"time"

	"code.hybscloud.com/spin"

	"code.hybscloud.com/ipc/internal/cellseg"
	"code.hybscloud.com/ipc/internal/dynconfig"
	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/internal/transport"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/status"
)

// Server is a request-response responder port (spec.md §4.8): it owns
// a data segment of loanable response cells and a request delivery
// queue shared by every client connected to this service.
type Server struct {
	id    node.PortID
	svc   *Service
	index int
	table *dynconfig.Table

	data      *cellseg.Segment
	segIDHash uint64

	reqQueue *transport.MPSC[requestRef]
	reqSeg   *shm.Segment
	portID   uint64

	strategy     UnableToDeliverStrategy
	blockTimeout time.Duration
}

// ID returns the server's port identity.
func (s *Server) ID() node.PortID { return s.id }

// NewServer creates a Server port owned by n: its own response data
// segment and request delivery queue, registered under one dynconfig
// slot that advertises both resource names (spec.md §4.8).
func (svc *Service) NewServer(n *node.Node) (*Server, error) {
	table := svc.handle.Dyn.Table(portset.Server)
	if table == nil {
		return nil, status.New("reqres.NewServer", status.KindExceedsMaxSupportedServers)
	}
	pid := n.NextPortID(node.PortKindServer)
	segName := svc.serverSegName(pid.Pack())
	queueName := svc.serverQueueName(pid.Pack())
	size, align := svc.responseShape()

	data, err := cellseg.New(svc.root, segName, svc.serverSegCapacity(), size, align, shm.Owner)
	if err != nil {
		return nil, status.New("reqres.NewServer", status.KindUnableToCreateDataSegment, err)
	}
	hash := svc.cacheSegment(data)

	reqBuf := svc.limits.RequestQueueCapacity
	reqSeg, err := shm.OpenOrCreate(svc.root, queueName, shm.Layout{Size: transport.MPSCByteSize[requestRef](int(reqBuf)), Align: 8}, shm.Owner, 0)
	if err != nil {
		data.Close()
		return nil, status.New("reqres.NewServer", status.KindUnableToCreateDataSegment, err)
	}
	reqQueue := transport.NewMPSCOwner[requestRef](reqSeg.PayloadBase(), int(reqBuf))

	idx, err := table.Acquire(pid.Pack(), n.ID().Hash(), dynconfig.EncodeNames(segName, queueName))
	if err != nil {
		reqSeg.ReferenceRelease()
		data.Close()
		return nil, status.New("reqres.NewServer", status.KindExceedsMaxSupportedServers, err)
	}

	srv := &Server{
		id: pid, svc: svc, index: idx, table: table,
		data: data, segIDHash: hash,
		reqQueue: reqQueue, reqSeg: reqSeg, portID: pid.Pack(),
		strategy: svc.limits.UnableToDeliverStrategy, blockTimeout: svc.limits.BlockTimeout,
	}
	svc.registerRequestQueue(srv.portID, reqQueue)
	return srv, nil
}

// ActiveRequest is a received, not-yet-concluded request (spec.md
// §4.8): the server replies to it with any number of SendResponse
// calls before concluding it with Close, which emits the end-of-stream
// marker the client's PendingResponse waits for. Closing an
// ActiveRequest that was fire-and-forget is a no-op: no marker is ever
// sent because the client never allocated a PendingResponse to receive
// one.
type ActiveRequest struct {
	srv           *Server
	ref           transport.SampleRef
	clientPortID  uint64
	seq           uint64
	fireAndForget bool
	concluded     bool
}

// ReceiveRequest dequeues the next pending request, or ErrWouldBlock if
// none is pending.
func (s *Server) ReceiveRequest() (*ActiveRequest, error) {
	req, err := s.reqQueue.Dequeue()
	if err != nil {
		return nil, transport.ErrWouldBlock
	}
	return &ActiveRequest{
		srv: s, ref: req.Ref, clientPortID: req.ClientPortID,
		seq: req.Seq, fireAndForget: req.FireAndForget,
	}, nil
}

// Payload returns the request's payload bytes, resolved from the
// server's cached client-segment mappings.
func (a *ActiveRequest) Payload() ([]byte, error) {
	seg, ok := a.srv.svc.segmentByHash(a.ref.SegmentID)
	if !ok {
		return nil, status.New("reqres.ActiveRequest.Payload", status.KindConnectionBrokenSincePublisherNoLongerExists)
	}
	return seg.PayloadAt(a.ref)
}

// FireAndForget reports whether the originating client sent this
// request with no reply expectation.
func (a *ActiveRequest) FireAndForget() bool { return a.fireAndForget }

// ResponseMut is an uninitialized loaned response, writable until Send
// or Close.
type ResponseMut struct {
	srv        *Server
	index      int
	payload    []byte
	generation uint64
	done       bool
}

// LoanUninit claims a free cell in the server's response segment.
func (s *Server) LoanUninit() (*ResponseMut, error) {
	idx, data, gen, err := s.data.Loan()
	if err != nil {
		return nil, err
	}
	return &ResponseMut{srv: s, index: idx, payload: data, generation: gen}, nil
}

// PayloadMut returns the response's writable payload bytes.
func (r *ResponseMut) PayloadMut() []byte { return r.payload }

// Close abandons the loaned response without sending it.
func (r *ResponseMut) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	r.srv.data.Release(r.index)
	return nil
}

// SendResponse delivers resp to the originating client's pending
// response, addressed by this ActiveRequest's sequence number. A
// fire-and-forget request silently drops the loaned cell instead: the
// client allocated no PendingResponse to receive it.
func (a *ActiveRequest) SendResponse(resp *ResponseMut) error {
	if resp.done {
		return status.New("reqres.ActiveRequest.SendResponse", status.KindInternalFailure)
	}
	resp.done = true
	if a.fireAndForget {
		a.srv.data.Release(resp.index)
		return nil
	}
	ref := transport.SampleRef{SegmentID: a.srv.segIDHash, Offset: a.srv.data.OffsetOf(resp.index), Generation: resp.generation}
	q, err := a.srv.responseQueueTo(a.clientPortID)
	if err != nil {
		a.srv.data.Release(resp.index)
		return err
	}
	a.srv.data.AddRef(resp.index, 1)
	rr := responseRef{Ref: ref, Seq: a.seq}
	err = a.srv.deliver(q, rr)
	if err != nil {
		a.srv.data.Release(resp.index)
	}
	a.srv.data.Release(resp.index) // drop the loan's own hold
	return err
}

func (s *Server) responseQueueTo(clientPortID uint64) (*transport.MPSC[responseRef], error) {
	if q, ok := s.svc.responseQueueFor(clientPortID); ok {
		return q, nil
	}
	q, err := s.svc.mapResponseQueue(s.svc.clientQueueName(clientPortID))
	if err != nil {
		return nil, err
	}
	s.svc.registerResponseQueue(clientPortID, q)
	return q, nil
}

func (s *Server) deliver(q *transport.MPSC[responseRef], rr responseRef) error {
	if err := q.Enqueue(rr); err == nil {
		return nil
	}
	switch s.strategy {
	case DiscardSample:
		return s.discardAndEnqueue(q, rr)
	default: // Block
		sw := spin.Wait{}
		deadline := time.Now().Add(s.blockTimeout)
		for time.Now().Before(deadline) {
			if err := q.Enqueue(rr); err == nil {
				return nil
			}
			sw.Once()
		}
		return s.discardAndEnqueue(q, rr)
	}
}

func (s *Server) discardAndEnqueue(q *transport.MPSC[responseRef], rr responseRef) error {
	if old, ok := q.DequeueOldest(); ok {
		s.svc.releaseResponseRef(old.Ref)
	}
	return q.Enqueue(rr)
}

// Close concludes the active request: if it was not fire-and-forget,
// an end-of-stream marker is enqueued to the client's pending response
// so its Receive loop knows no further replies are coming (spec.md
// §4.8). Idempotent.
func (a *ActiveRequest) Close() error {
	if a.concluded {
		return nil
	}
	a.concluded = true
	if a.fireAndForget {
		return nil
	}
	q, err := a.srv.responseQueueTo(a.clientPortID)
	if err != nil {
		return err
	}
	marker := responseRef{Seq: a.seq, EndOfStream: true}
	return a.srv.deliver(q, marker)
}

// Close releases the server's dynconfig slot, its request queue, and
// its response data segment.
func (s *Server) Close() error {
	s.table.Release(s.index, nil)
	if _, err := s.reqSeg.ReferenceRelease(); err != nil {
		return status.New("reqres.Server.Close", status.KindInternalFailure, err)
	}
	if _, err := s.data.Close(); err != nil {
		return status.New("reqres.Server.Close", status.KindInternalFailure, err)
	}
	return nil
}
