// Package cellseg implements the reference-counted, fixed-stride cell
// data segment shared by the pubsub (C7) and reqres (C8) data planes:
// a single-writer allocator (Loan/round-robin free-cell scan) plus
// atomic refcount bookkeeping any number of readers can release from,
// laid out directly over a shm.Segment the way internal/transport lays
// its queues out — a fixed struct at agreed byte offsets, not a
// process-private Go slice.
package cellseg
