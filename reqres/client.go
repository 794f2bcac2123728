package reqres

import (
	"sync"
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

// Client is a request-response requester port (spec.md §4.8): it owns
// a data segment of loanable request cells and a response delivery
// queue shared by every server connected to this service, and
// dispatches each dequeued reply to the PendingResponse it answers by
// sequence number.
type Client struct {
	id    node.PortID
	svc   *Service
	index int
	table *dynconfig.Table

	data      *cellseg.Segment
	segIDHash uint64

	respQueue *transport.MPSC[responseRef]
	respSeg   *shm.Segment
	portID    uint64

	strategy     UnableToDeliverStrategy
	blockTimeout time.Duration

	mu        sync.Mutex
	nextSeq   uint64
	pending   map[uint64]*PendingResponse
	active    int64
	activeCap int64
}

// ID returns the client's port identity.
func (c *Client) ID() node.PortID { return c.id }

// NewClient creates a Client port owned by n: its own request data
// segment and response delivery queue, registered under one dynconfig
// slot that advertises both resource names (spec.md §4.8; see
// dynconfig.EncodeNames).
func (svc *Service) NewClient(n *node.Node) (*Client, error) {
	table := svc.handle.Dyn.Table(portset.Client)
	if table == nil {
		return nil, status.New("reqres.NewClient", status.KindExceedsMaxSupportedClients)
	}
	pid := n.NextPortID(node.PortKindClient)
	segName := svc.clientSegName(pid.Pack())
	queueName := svc.clientQueueName(pid.Pack())
	size, align := svc.requestShape()

	data, err := cellseg.New(svc.root, segName, svc.clientSegCapacity(), size, align, shm.Owner)
	if err != nil {
		return nil, status.New("reqres.NewClient", status.KindUnableToCreateDataSegment, err)
	}
	hash := svc.cacheSegment(data)

	respBuf := svc.limits.ResponseQueueCapacity
	respSeg, err := shm.OpenOrCreate(svc.root, queueName, shm.Layout{Size: transport.MPSCByteSize[responseRef](int(respBuf)), Align: 8}, shm.Owner, 0)
	if err != nil {
		data.Close()
		return nil, status.New("reqres.NewClient", status.KindUnableToCreateDataSegment, err)
	}
	respQueue := transport.NewMPSCOwner[responseRef](respSeg.PayloadBase(), int(respBuf))

	idx, err := table.Acquire(pid.Pack(), n.ID().Hash(), dynconfig.EncodeNames(segName, queueName))
	if err != nil {
		respSeg.ReferenceRelease()
		data.Close()
		return nil, status.New("reqres.NewClient", status.KindExceedsMaxSupportedClients, err)
	}

	c := &Client{
		id: pid, svc: svc, index: idx, table: table,
		data: data, segIDHash: hash,
		respQueue: respQueue, respSeg: respSeg, portID: pid.Pack(),
		strategy: svc.limits.UnableToDeliverStrategy, blockTimeout: svc.limits.BlockTimeout,
		pending:   map[uint64]*PendingResponse{},
		activeCap: int64(svc.limits.MaxActiveRequestsPerClient),
	}
	svc.registerResponseQueue(c.portID, respQueue)
	return c, nil
}

// RequestMut is an uninitialized loaned request, writable until Send or
// Close.
type RequestMut struct {
	cli        *Client
	index      int
	payload    []byte
	generation uint64
	done       bool
}

// LoanUninit claims a free cell in the client's request segment. The
// returned request's payload is uninitialized; the caller must fill it
// before Send.
func (c *Client) LoanUninit() (*RequestMut, error) {
	idx, data, gen, err := c.data.Loan()
	if err != nil {
		return nil, err
	}
	return &RequestMut{cli: c, index: idx, payload: data, generation: gen}, nil
}

// PayloadMut returns the request's writable payload bytes.
func (r *RequestMut) PayloadMut() []byte { return r.payload }

// Close abandons the loaned request without sending it.
func (r *RequestMut) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	r.cli.data.Release(r.index)
	return nil
}

// Send delivers the request to every server currently connected to
// this service and returns a PendingResponse tracking its replies. If
// fireAndForget is true, the request carries no reply expectation and
// Send returns a nil PendingResponse: the server answering it skips
// response bookkeeping entirely (spec.md §4.8 "fire-and-forget").
func (r *RequestMut) Send(fireAndForget bool) (*PendingResponse, error) {
	if r.done {
		return nil, status.New("reqres.RequestMut.Send", status.KindInternalFailure)
	}
	r.done = true
	return r.cli.send(r.index, r.generation, fireAndForget)
}

func (c *Client) ref(index int, generation uint64) transport.SampleRef {
	return transport.SampleRef{SegmentID: c.segIDHash, Offset: c.data.OffsetOf(index), Generation: generation}
}

func (c *Client) send(index int, generation uint64, fireAndForget bool) (*PendingResponse, error) {
	ref := c.ref(index, generation)

	c.mu.Lock()
	if !fireAndForget && c.active >= c.activeCap {
		c.mu.Unlock()
		c.data.Release(index)
		return nil, status.New("reqres.Client.send", status.KindExceedsMaxBorrows)
	}
	seq := c.nextSeq
	c.nextSeq++
	var pr *PendingResponse
	if !fireAndForget {
		c.active++
		pr = &PendingResponse{cli: c, seq: seq}
		c.pending[seq] = pr
	}
	c.mu.Unlock()

	for _, portID := range c.connectedServers() {
		q, ok := c.svc.requestQueueFor(portID)
		if !ok {
			continue
		}
		c.data.AddRef(index, 1)
		req := requestRef{Ref: ref, ClientPortID: c.portID, Seq: seq, FireAndForget: fireAndForget}
		if err := c.deliver(q, req); err != nil {
			c.data.Release(index)
		}
	}
	c.data.Release(index) // drop the loan's own hold
	return pr, nil
}

// connectedServers scans the Server table for slots not yet mapped by
// this process, maps their advertised data segment and request queue,
// and returns every currently active server's port id.
func (c *Client) connectedServers() []uint64 {
	table := c.svc.handle.Dyn.Table(portset.Server)
	if table == nil {
		return nil
	}
	var ids []uint64
	table.ForEachActive(func(e dynconfig.Entry) {
		if _, ok := c.svc.requestQueueFor(e.PortID); !ok {
			names := dynconfig.DecodeNames(e.Payload, 2)
			if len(names) < 2 {
				return
			}
			if _, err := c.svc.mapForeignServerSegment(names[0]); err != nil {
				return
			}
			q, err := c.svc.mapRequestQueue(names[1])
			if err != nil {
				return
			}
			c.svc.registerRequestQueue(e.PortID, q)
		}
		ids = append(ids, e.PortID)
	})
	return ids
}

func (c *Client) deliver(q *transport.MPSC[requestRef], req requestRef) error {
	if err := q.Enqueue(req); err == nil {
		return nil
	}
	switch c.strategy {
	case DiscardSample:
		return c.discardAndEnqueue(q, req)
	default: // Block
		sw := spin.Wait{}
		deadline := time.Now().Add(c.blockTimeout)
		for time.Now().Before(deadline) {
			if err := q.Enqueue(req); err == nil {
				return nil
			}
			sw.Once()
		}
		return c.discardAndEnqueue(q, req)
	}
}

func (c *Client) discardAndEnqueue(q *transport.MPSC[requestRef], req requestRef) error {
	if old, ok := q.DequeueOldest(); ok {
		c.svc.releaseRequestRef(old.Ref)
	}
	return q.Enqueue(req)
}

// poll drains every reply currently sitting in the client's shared
// response queue and dispatches each to the PendingResponse it answers
// by sequence number. A reply whose sequence no longer has a
// PendingResponse (closed, or a stale duplicate) has its borrow
// released immediately rather than leaked.
func (c *Client) poll() {
	for {
		resp, err := c.respQueue.Dequeue()
		if err != nil {
			return
		}
		c.mu.Lock()
		pr, ok := c.pending[resp.Seq]
		c.mu.Unlock()
		if !ok {
			if !resp.EndOfStream {
				c.svc.releaseResponseRef(resp.Ref)
			}
			continue
		}
		pr.push(resp)
	}
}

// PendingResponse is an active request's reply stream handle (spec.md
// §4.8): a client polls Receive until it observes end-of-stream, then
// should Close it to free its active-request slot.
type PendingResponse struct {
	cli *Client
	seq uint64

	mu    sync.Mutex
	buf   []responseRef
	ended bool
}

func (p *PendingResponse) push(r responseRef) {
	p.mu.Lock()
	p.buf = append(p.buf, r)
	p.mu.Unlock()
}

// Response is a borrowed, received reference to a server's reply
// payload. It must be released with Close once read.
type Response struct {
	cli      *Client
	ref      transport.SampleRef
	released bool
}

// Receive dequeues the next reply addressed to this pending response,
// or ErrWouldBlock if none is pending yet. Once EndOfStream returns
// true, callers should stop calling Receive and Close the
// PendingResponse to free its active-request slot.
func (p *PendingResponse) Receive() (*Response, error) {
	p.cli.poll()
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) > 0 {
		item := p.buf[0]
		p.buf = p.buf[1:]
		if item.EndOfStream {
			p.ended = true
			continue
		}
		return &Response{cli: p.cli, ref: item.Ref}, nil
	}
	return nil, transport.ErrWouldBlock
}

// EndOfStream reports whether the server has ended this request's
// reply stream.
func (p *PendingResponse) EndOfStream() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

// Close releases the pending response's active-request slot. Idempotent.
func (p *PendingResponse) Close() error {
	p.cli.mu.Lock()
	defer p.cli.mu.Unlock()
	if _, ok := p.cli.pending[p.seq]; !ok {
		return nil
	}
	delete(p.cli.pending, p.seq)
	p.cli.active--
	return nil
}

// Payload returns the response's payload bytes, resolved from the
// client's cached server-segment mappings.
func (r *Response) Payload() ([]byte, error) {
	seg, ok := r.cli.svc.segmentByHash(r.ref.SegmentID)
	if !ok {
		return nil, status.New("reqres.Response.Payload", status.KindConnectionBrokenSincePublisherNoLongerExists)
	}
	return seg.PayloadAt(r.ref)
}

// Close releases the response's borrow. Idempotent.
func (r *Response) Close() error {
	if r.released {
		return nil
	}
	r.released = true
	r.cli.svc.releaseResponseRef(r.ref)
	return nil
}

// Close releases the client's dynconfig slot, its response queue, and
// its request data segment.
func (c *Client) Close() error {
	c.table.Release(c.index, nil)
	if _, err := c.respSeg.ReferenceRelease(); err != nil {
		return status.New("reqres.Client.Close", status.KindInternalFailure, err)
	}
	if _, err := c.data.Close(); err != nil {
		return status.New("reqres.Client.Close", status.KindInternalFailure, err)
	}
	return nil
}
