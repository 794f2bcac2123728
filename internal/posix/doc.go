// Package posix wraps the small set of OS primitives the IPC runtime
// needs to coordinate uncoordinated processes: advisory file locks for
// rare rendezvous (service creation, node-marker lifecycle), an unnamed
// semaphore placed in shared memory for listener blocking, a monotonic
// clock for deadlines and liveness tokens, and a pid+start-time liveness
// probe that tolerates pid reuse.
//
// Nothing here is exported outside the module: every other package
// reaches these primitives through the component that owns the
// semantics (registry for lock files, node for liveness, event for the
// semaphore).
package posix
