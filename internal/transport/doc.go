// Package transport implements the data-plane delivery queues from
// spec.md §4.2 (C2) over shared memory. The algorithms — cache-line
// padded head/tail indices, Lamport's single-producer single-consumer
// ring and the Vyukov sequence-numbered single-producer multi-consumer
// ring — are the ones code.hybscloud.com/lfq implements (spsc.go,
// spmc_seq.go, mpsc_seq.go), but that library's buffers are Go-heap
// slices private to one process (`make([]T, n)`), which cannot be the
// wire format two independent processes agree on. transport's rings
// are laid out as a fixed C-like struct directly over a shm.Segment's
// payload, so every mapper of the same segment sees the same indices
// and slots at the same byte offsets regardless of which process
// created them.
//
// SPSC and SPMC carry SampleRef: an offset into a named data segment,
// never the payload itself (spec.md §3 "Sample reference"). MPSC is
// generic over its fixed-layout element type; pubsub instantiates it
// with SampleRef and reqres with its own request/response wire types.
package transport
