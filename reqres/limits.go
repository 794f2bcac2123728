package reqres

import "time"

// UnableToDeliverStrategy mirrors pubsub.UnableToDeliverStrategy for
// the request/response planes' own full-queue handling (kept as a
// distinct type rather than importing pubsub: the two data planes
// share no other state and spec.md treats them as independent ports).
type UnableToDeliverStrategy int

const (
	Block UnableToDeliverStrategy = iota
	DiscardSample
)

// Limits is the request-response-specific configuration not already
// carried by registry.Limits (MaxClients, MaxServers) or by the
// service's registered request/response TypeDetails.
type Limits struct {
	ClientMaxLoans uint64 // max concurrently loaned, unsent requests per client
	ServerMaxLoans uint64 // max concurrently loaned, unsent responses per server

	RequestQueueCapacity  uint64 // server's shared incoming-request queue
	ResponseQueueCapacity uint64 // client's shared incoming-response queue

	MaxActiveRequestsPerClient             uint64
	MaxBorrowedResponsesPerPendingResponse uint64

	UnableToDeliverStrategy UnableToDeliverStrategy
	BlockTimeout            time.Duration
}
