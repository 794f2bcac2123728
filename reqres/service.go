package reqres

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"code.hybscloud.com/ipc/internal/cellseg"
	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/internal/transport"
	"code.hybscloud.com/ipc/registry"
)

// Service is an opened or created request-response service: the
// registry handle, the reqres-specific limits, and this process's
// cache of every data segment and queue it has mapped so far — shared
// by every Client and Server built from it, mirroring pubsub.Service
// (see pubsub/service.go and doc.go).
type Service struct {
	handle *registry.Handle
	root   string
	limits Limits

	mu         sync.Mutex
	segments   map[uint64]*cellseg.Segment
	requestQs  map[uint64]*transport.MPSC[requestRef]  // by server port id
	responseQs map[uint64]*transport.MPSC[responseRef] // by client port id
}

// Open wraps an already created-or-opened registry.Handle for the
// RequestResponse pattern.
func Open(h *registry.Handle, root string, limits Limits) *Service {
	return &Service{
		handle:     h,
		root:       root,
		limits:     limits,
		segments:   map[uint64]*cellseg.Segment{},
		requestQs:  map[uint64]*transport.MPSC[requestRef]{},
		responseQs: map[uint64]*transport.MPSC[responseRef]{},
	}
}

func (s *Service) requestShape() (size, align uint64) {
	if t := s.handle.Config.RequestType; t != nil {
		return t.Size, t.Align
	}
	return 0, 8
}

func (s *Service) responseShape() (size, align uint64) {
	if t := s.handle.Config.ResponseType; t != nil {
		return t.Size, t.Align
	}
	return 0, 8
}

func (s *Service) clientSegName(portID uint64) string {
	return fmt.Sprintf("%s_%s_cli_%016x_data", s.handle.Prefix, s.handle.ID, portID)
}

func (s *Service) clientQueueName(portID uint64) string {
	return fmt.Sprintf("%s_%s_cli_%016x_resp", s.handle.Prefix, s.handle.ID, portID)
}

func (s *Service) serverSegName(portID uint64) string {
	return fmt.Sprintf("%s_%s_srv_%016x_data", s.handle.Prefix, s.handle.ID, portID)
}

func (s *Service) serverQueueName(portID uint64) string {
	return fmt.Sprintf("%s_%s_srv_%016x_req", s.handle.Prefix, s.handle.ID, portID)
}

// clientSegCapacity sizes a client's loanable-request cell count: its
// own outstanding loans plus the responses it may hold borrowed across
// every server it could be connected to.
func (s *Service) clientSegCapacity() int {
	l := s.handle.Config.Limits
	return int(s.limits.ClientMaxLoans) +
		int(s.limits.MaxBorrowedResponsesPerPendingResponse)*int(l.MaxServers)
}

// serverSegCapacity sizes a server's loanable-response cell count: its
// own outstanding loans plus the active requests it may be servicing
// across every client that could be connected to it.
func (s *Service) serverSegCapacity() int {
	l := s.handle.Config.Limits
	return int(s.limits.ServerMaxLoans) +
		int(s.limits.MaxActiveRequestsPerClient)*int(l.MaxClients)
}

func (s *Service) cacheSegment(seg *cellseg.Segment) uint64 {
	hash := xxhash.Sum64String(seg.Name())
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.segments[hash]; ok {
		return xxhash.Sum64String(existing.Name())
	}
	s.segments[hash] = seg
	return hash
}

func (s *Service) segmentByName(name string) (*cellseg.Segment, bool) {
	hash := xxhash.Sum64String(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[hash]
	return seg, ok
}

func (s *Service) segmentByHash(hash uint64) (*cellseg.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[hash]
	return seg, ok
}

// mapForeignClientSegment maps (as shm.Mapper) a client's request data
// segment learned by name from the dynamic configuration table.
func (s *Service) mapForeignClientSegment(name string) (*cellseg.Segment, error) {
	if seg, ok := s.segmentByName(name); ok {
		return seg, nil
	}
	size, align := s.requestShape()
	seg, err := cellseg.New(s.root, name, s.clientSegCapacity(), size, align, shm.Mapper)
	if err != nil {
		return nil, err
	}
	s.cacheSegment(seg)
	return seg, nil
}

// mapForeignServerSegment maps (as shm.Mapper) a server's response data
// segment learned by name from the dynamic configuration table.
func (s *Service) mapForeignServerSegment(name string) (*cellseg.Segment, error) {
	if seg, ok := s.segmentByName(name); ok {
		return seg, nil
	}
	size, align := s.responseShape()
	seg, err := cellseg.New(s.root, name, s.serverSegCapacity(), size, align, shm.Mapper)
	if err != nil {
		return nil, err
	}
	s.cacheSegment(seg)
	return seg, nil
}

func (s *Service) registerRequestQueue(serverPortID uint64, q *transport.MPSC[requestRef]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestQs[serverPortID] = q
}

func (s *Service) requestQueueFor(serverPortID uint64) (*transport.MPSC[requestRef], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.requestQs[serverPortID]
	return q, ok
}

// mapRequestQueue maps (as shm.Mapper) a server's incoming-request
// queue learned by name. Callers register the result with
// registerRequestQueue so later lookups by port id avoid remapping.
func (s *Service) mapRequestQueue(name string) (*transport.MPSC[requestRef], error) {
	size := s.limits.RequestQueueCapacity
	seg, err := shm.OpenOrCreate(s.root, name, shm.Layout{Size: transport.MPSCByteSize[requestRef](int(size)), Align: 8}, shm.Mapper, 0)
	if err != nil {
		return nil, err
	}
	return transport.OpenMPSC[requestRef](seg.PayloadBase()), nil
}

func (s *Service) registerResponseQueue(clientPortID uint64, q *transport.MPSC[responseRef]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseQs[clientPortID] = q
}

func (s *Service) responseQueueFor(clientPortID uint64) (*transport.MPSC[responseRef], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.responseQs[clientPortID]
	return q, ok
}

// mapResponseQueue maps (as shm.Mapper) a client's incoming-response
// queue learned by name. Callers register the result with
// registerResponseQueue so later lookups by port id avoid remapping.
func (s *Service) mapResponseQueue(name string) (*transport.MPSC[responseRef], error) {
	size := s.limits.ResponseQueueCapacity
	seg, err := shm.OpenOrCreate(s.root, name, shm.Layout{Size: transport.MPSCByteSize[responseRef](int(size)), Align: 8}, shm.Mapper, 0)
	if err != nil {
		return nil, err
	}
	return transport.OpenMPSC[responseRef](seg.PayloadBase()), nil
}

// releaseRequestRef routes ref to whichever client data segment this
// process has cached and decrements its refcount. See
// pubsub.Service.releaseRef for the identical, equally bounded
// cross-producer DiscardSample eviction limitation.
func (s *Service) releaseRequestRef(ref transport.SampleRef) {
	if seg, ok := s.segmentByHash(ref.SegmentID); ok {
		seg.ReleaseRef(ref)
	}
}

// releaseResponseRef is releaseRequestRef's response-plane counterpart.
func (s *Service) releaseResponseRef(ref transport.SampleRef) {
	if seg, ok := s.segmentByHash(ref.SegmentID); ok {
		seg.ReleaseRef(ref)
	}
}
