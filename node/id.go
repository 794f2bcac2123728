package node

import (
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/cespare/xxhash/v2"
)

// ID is a node's 128-bit instance identity: a random nonce, distinct
// from (and guarding against reuse of) the pid+start-time liveness
// token (spec.md §3 "Node identity"). github.com/google/uuid is the
// pack's established source of 128-bit random identifiers (used by
// grafana-tempo directly and by linkerd-linkerd2 transitively).
type ID uuid.UUID

func newID() ID {
	return ID(uuid.New())
}

func (id ID) String() string { return uuid.UUID(id).String() }

// Hash folds the 128-bit ID down to the 64-bit value stored in a
// dynconfig slot's nodeID field and used as the NodeHash component of
// PortID.
func (id ID) Hash() uint64 {
	return xxhash.Sum64(id[:])
}

// ParseID parses a node id previously produced by ID.String.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, err
	}
	return ID(u), nil
}

// markerFileName returns the nodes/<id>.marker path component for id.
func markerFileName(id ID) string {
	return hex.EncodeToString(id[:]) + ".marker"
}

// PortKind tags which port a PortID identifies, matching
// internal/portset.Kind's ordering.
type PortKind uint8

const (
	PortKindPublisher PortKind = iota
	PortKindSubscriber
	PortKindNotifier
	PortKindListener
	PortKindClient
	PortKindServer
)

// PortID is the 128-bit-scoped value from spec.md §3: a node id hash,
// a port-kind tag, and a sequence number monotonically increasing
// within the issuing node. Two ports never collide because the
// sequence is unique per (node, and the node id itself is a random
// 128-bit nonce per process lifetime (spec.md I5: "a port id is never
// reused").
type PortID struct {
	NodeHash uint64
	Kind     PortKind
	Seq      uint64
}

// Pack folds PortID down to the uint64 a dynconfig slot's portID field
// stores. Collisions are astronomically unlikely (xxhash of 17 bytes)
// but are not the sole uniqueness guarantee — callers needing the full
// 128-bit-scoped identity keep the PortID value itself, e.g. in the
// port handle returned to the caller.
func (p PortID) Pack() uint64 {
	var buf [17]byte
	buf[0] = byte(p.Kind)
	for i := 0; i < 8; i++ {
		buf[1+i] = byte(p.NodeHash >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		buf[9+i] = byte(p.Seq >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}
