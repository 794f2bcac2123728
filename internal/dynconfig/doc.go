// Package dynconfig implements the per-service dynamic configuration
// table from spec.md §4.5 (C5): fixed-capacity slot arrays, one per
// port kind, living in the service's shared-memory segment alongside
// the data it addresses. A slot's state transitions
// Empty -> Reserved -> Active -> Releasing -> Empty are single-writer
// and driven entirely by CAS on an atomix.Int32 tag — no lock is held
// across the protocol, so a reader iterating the table never blocks a
// writer acquiring or releasing a slot.
package dynconfig
