package registry

import "time"

// Limits mirrors spec.md §3's static-config quantified limits. A zero
// value for any Max field means "unbounded" is not supported here —
// every limit in this runtime is a hard, pre-declared cap, matching the
// fixed-capacity dynamic-config slot arrays it sizes (C5).
type Limits struct {
	MaxPublishers uint32
	MaxSubscribers uint32
	MaxNotifiers   uint32
	MaxListeners   uint32
	MaxClients     uint32
	MaxServers     uint32
	MaxNodes       uint32

	HistorySize           uint64
	SubscriberBufferSize  uint64
	BorrowedSampleCap     uint64
	EventIDMax            uint32
	Deadline              *time.Duration
	LifecycleEventIDs     []uint32
}

// Attribute is one (key, value) pair in a service's attribute set.
// spec.md §3 caps the default set at 8 entries per service.
type Attribute struct {
	Key   string
	Value string
}

const MaxAttributes = 8

// StaticConfig is the persisted, on-disk configuration for one
// service — the payload of the atomically-published static-config
// file (spec.md §4.4).
type StaticConfig struct {
	SchemaVersion uint32 `toml:"schema-version"`

	Name    string           `toml:"name"`
	Pattern MessagingPattern `toml:"pattern"`

	RequestType  *TypeDetail `toml:"request-type,omitempty"`
	ResponseType *TypeDetail `toml:"response-type,omitempty"`
	PayloadType  *TypeDetail `toml:"payload-type,omitempty"`
	HeaderType   *TypeDetail `toml:"header-type,omitempty"`

	ConfigPrefix string `toml:"config-prefix"`

	Limits     Limits      `toml:"limits"`
	Attributes []Attribute `toml:"attributes"`

	// CreatedAtUnixNano holds the CLOCK_MONOTONIC reading
	// (posix.MonotonicNanos) taken at Create, not a Unix epoch time.
	CreatedAtUnixNano int64 `toml:"created-at-unix-nano"`
}

// SchemaVersion is bumped whenever StaticConfig's on-disk shape changes
// incompatibly. Open rejects a file with a different version as
// VersionMismatch rather than attempting a best-effort read.
const SchemaVersion uint32 = 1
