// Package config defines the Configuration schema from spec.md §6 and
// loads overrides from a TOML file named by the IPC_CONFIG_FILE
// environment variable. Parsing itself is a thin concern — spec.md §1
// scopes out configuration-file parsing beyond the schema — so this
// package stays a plain struct plus a single Load function rather than
// a layered provider/watcher stack.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// SignalHandlingMode matches posix.SignalHandlingMode's values in the
// on-disk schema; duplicated here (rather than importing internal/posix)
// so this package has no dependency on the engine internals it
// configures.
type SignalHandlingMode string

const (
	SignalHandlingDisabled                  SignalHandlingMode = "disabled"
	SignalHandlingHandleTerminationRequests SignalHandlingMode = "handle-termination-requests"
)

// Global holds the namespace and persistent-state location every other
// group is relative to.
type Global struct {
	Prefix   string `toml:"prefix"`
	RootPath string `toml:"root-path"`
}

// EventDefaults holds the defaults.event group.
type EventDefaults struct {
	Deadline *time.Duration `toml:"deadline,omitempty"`
}

// PubSubDefaults holds the defaults.pub-sub group.
type PubSubDefaults struct {
	SubscriberBuffer uint64 `toml:"subscriber-buffer"`
	History          uint64 `toml:"history"`
	Borrowed         uint64 `toml:"borrowed"`
}

// RequestResponseDefaults holds the defaults.request-response group.
type RequestResponseDefaults struct {
	ActiveRequests     uint64 `toml:"active-requests"`
	ResponseBuffer     uint64 `toml:"response-buffer"`
	BorrowedResponses  uint64 `toml:"borrowed-responses"`
	LoanedRequests     uint64 `toml:"loaned-requests"`
	FireAndForget      bool   `toml:"fire-and-forget"`
}

// Node holds the node group.
type Node struct {
	Name               string             `toml:"name"`
	SignalHandlingMode SignalHandlingMode `toml:"signal-handling-mode"`
}

// Config is the full Configuration object from spec.md §6.
type Config struct {
	Global           Global                  `toml:"global"`
	DefaultsEvent    EventDefaults           `toml:"defaults.event"`
	DefaultsPubSub   PubSubDefaults          `toml:"defaults.pub-sub"`
	DefaultsReqRes   RequestResponseDefaults `toml:"defaults.request-response"`
	Node             Node                    `toml:"node"`
}

// Default returns the built-in configuration: an OS-appropriate
// per-user runtime directory, the "ipc" prefix, and conservative pub-sub /
// request-response limits.
func Default() Config {
	return Config{
		Global: Global{
			Prefix:   "ipc",
			RootPath: defaultRootPath(),
		},
		DefaultsPubSub: PubSubDefaults{
			SubscriberBuffer: 16,
			History:          0,
			Borrowed:         4,
		},
		DefaultsReqRes: RequestResponseDefaults{
			ActiveRequests:    2,
			ResponseBuffer:    8,
			BorrowedResponses: 4,
			LoanedRequests:    2,
			FireAndForget:     false,
		},
		Node: Node{
			SignalHandlingMode: SignalHandlingDisabled,
		},
	}
}

func defaultRootPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/ipc"
	}
	return os.TempDir() + "/ipc"
}

// Load returns the default configuration, overridden by the TOML file
// at the IPC_CONFIG_FILE environment variable's path, if set.
func Load() (Config, error) {
	cfg := Default()
	path := os.Getenv("IPC_CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
