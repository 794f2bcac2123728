package registry

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// MessagingPattern tags which data-plane a service uses. The registry
// folds it into the service id hash so identically-named services on
// different patterns never collide (spec.md §3).
type MessagingPattern uint8

const (
	PublishSubscribe MessagingPattern = iota
	Event
	RequestResponse
	// Blackboard is a recognised tag for the source system's full
	// pattern set (spec.md §9 "naturally a tagged variant") but this
	// runtime does not implement blackboard ports — see SPEC_FULL.md §3.
	Blackboard
)

func (p MessagingPattern) String() string {
	switch p {
	case PublishSubscribe:
		return "publish-subscribe"
	case Event:
		return "event"
	case RequestResponse:
		return "request-response"
	case Blackboard:
		return "blackboard"
	default:
		return "unknown"
	}
}

// TypeDetail is one payload or header's declared shape (spec.md §3).
type TypeDetail struct {
	Name      string
	Size      uint64
	Align     uint64
	IsDynamic bool
}

// ServiceID is the 128-bit (32-hex-character) fixed-size identity computed over
// (name, pattern, type details, configuration prefix).
type ServiceID [16]byte

func (id ServiceID) String() string { return hex.EncodeToString(id[:]) }

// ComputeServiceID hashes name, pattern, the ordered type details, and
// configPrefix into a ServiceID. xxhash/v2's Sum64 is run twice (via
// two Digest instances, the second over the input prefixed with one
// domain-separation byte) to produce a 128-bit identity from a 64-bit
// hash function.
func ComputeServiceID(name string, pattern MessagingPattern, types []TypeDetail, configPrefix string) ServiceID {
	buf := encodeIdentity(name, pattern, types, configPrefix)

	var id ServiceID
	d1 := xxhash.New()
	d1.Write(buf)
	binary.BigEndian.PutUint64(id[0:8], d1.Sum64())

	d2 := xxhash.New()
	d2.Write([]byte{0x5a}) // domain-separate the second half
	d2.Write(buf)
	binary.BigEndian.PutUint64(id[8:16], d2.Sum64())

	return id
}

func encodeIdentity(name string, pattern MessagingPattern, types []TypeDetail, configPrefix string) []byte {
	buf := make([]byte, 0, 64+len(types)*32)
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, byte(pattern))
	buf = append(buf, configPrefix...)
	buf = append(buf, 0)
	for _, t := range types {
		buf = append(buf, t.Name...)
		buf = append(buf, 0)
		buf = binary.BigEndian.AppendUint64(buf, t.Size)
		buf = binary.BigEndian.AppendUint64(buf, t.Align)
		if t.IsDynamic {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}
