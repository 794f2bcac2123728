package transport

// SampleRef is a zero-copy reference to a payload living in a producer-
// owned data segment: the segment that owns it, the byte offset of the
// payload within that segment, and a generation counter that lets a
// reader detect a slot reused by a later allocation before the reader
// got to it (spec.md §3, §4.7).
type SampleRef struct {
	SegmentID  uint64
	Offset     uint64
	Generation uint64
}

// EventID is an event id as a queue element. The event plane keeps its
// pending ids in a bitset (spec.md §4.9), lifecycle events included,
// and nothing in this module enqueues EventID values.
type EventID uint32
