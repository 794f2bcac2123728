package reqres

import "code.hybscloud.com/ipc/internal/transport"

// requestRef is the element carried by a server's shared incoming-
// request queue: a reference into the sending client's data segment,
// tagged with that client's port id and a per-client sequence number
// so the server can address its response back to the right pending-
// response queue (spec.md §4.8).
type requestRef struct {
	Ref           transport.SampleRef
	ClientPortID  uint64
	Seq           uint64
	FireAndForget bool
}

// responseRef is the element carried by a client's shared incoming-
// response queue: a reference into the sending server's data segment,
// tagged with the request Seq it answers and whether the server has
// ended that request's response stream (dropped the active-request
// handle).
type responseRef struct {
	Ref         transport.SampleRef
	Seq         uint64
	EndOfStream bool
}
