// Package pubsub implements the publish-subscribe data plane from
// spec.md §4.7 (C7): a publisher's fixed-capacity data segment of
// reference-counted cells, a subscriber's delivery queue, borrow
// tracking, history replay for late joiners, and lazy connection
// (re)establishment via the dynamic configuration table (C5).
//
// Every subscriber owns exactly one delivery queue shared by every
// connected publisher (internal/transport.MPSC, a multi-producer
// single-consumer ring) rather than spec.md §4.7's literal "one SPSC
// queue per publisher". See DESIGN.md for why: it is the same
// per-producer ordering guarantee (spec.md §5) with one queue instead
// of max_publishers, at the cost of a documented limitation in how
// DiscardSample releases an evicted sample produced by a publisher
// this process has not yet connected to.
package pubsub
