// Package reqres implements the request-response data plane from
// spec.md §4.8 (C8): a client's data segment of loanable request cells
// and a server's data segment of loanable response cells, a server-
// side request queue shared by every connected client, a per-client
// response queue shared by every request the client currently has in
// flight, active-request and pending-response handles, and optional
// fire-and-forget requests.
//
// The client-to-server and server-to-client directions are each the
// same shape as pubsub's publisher-to-subscriber fan-out (C7) —
// many producers into one shared internal/transport.MPSC consumed by
// a single reader — so reqres reuses internal/cellseg for its data
// segments and the same connection-scanning idiom dynconfig.Table
// provides. See DESIGN.md for the same documented DiscardSample
// cross-producer eviction limitation as pubsub.
package reqres
