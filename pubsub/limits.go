package pubsub

import "time"

// UnableToDeliverStrategy selects what Send does when a connected
// subscriber's delivery queue is full (spec.md §4.7).
type UnableToDeliverStrategy int

const (
	// Block spins (bounded by BlockTimeout) waiting for room, then
	// falls back to DiscardSample behavior if the timeout elapses —
	// this runtime does not add a third "give up and error" knob on
	// top of spec.md's two named strategies.
	Block UnableToDeliverStrategy = iota
	// DiscardSample drops the subscriber's oldest queued sample to
	// make room for the new one.
	DiscardSample
)

// Limits is the pubsub-specific subset of configuration not already
// carried by registry.Limits (MaxPublishers, MaxSubscribers,
// HistorySize, SubscriberBufferSize, BorrowedSampleCap) or by the
// service's registered payload TypeDetail (size, alignment).
type Limits struct {
	PublisherMaxLoans      uint64
	UnableToDeliverStrategy UnableToDeliverStrategy
	BlockTimeout            time.Duration
}
