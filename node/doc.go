// Package node implements the node liveness registry from spec.md §4.6
// (C6): a per-node marker file whose advisory lock is held for the
// node's entire lifetime and released automatically by the kernel on
// drop or crash, plus the classification protocol
// (Alive/Dead/Inaccessible/Undefined) other participants use to decide
// whether a node's resources are safe to reap.
//
// A Node also hands out PortIDs (spec.md §3: node id hash, port-kind
// tag, monotonic sequence within the node) to the pubsub/reqres/event
// packages when they acquire a dynconfig slot.
package node
