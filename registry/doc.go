// Package registry implements the service lifecycle and discovery
// protocol from spec.md §4.4 (C4): a directory holding one static-
// config file and one lock file per service, atomic create/open/open-
// or-create, and directory-scan list/exists/details.
//
// A service id is a fixed-size hash over (name, messaging pattern,
// type details, configuration prefix) — spec.md §3 — computed with
// cespare/xxhash/v2, the fast non-cryptographic hash the rest of the
// retrieval pack reaches for over its payload-identity and cache-key
// use cases.
package registry
