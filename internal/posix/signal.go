package posix

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalHandlingMode controls whether a node installs handlers that turn
// SIGINT/SIGTERM into cooperative cancellation (spec.md §6 node.signal-
// handling-mode).
type SignalHandlingMode int

const (
	// SignalHandlingDisabled leaves the process's default signal
	// disposition untouched.
	SignalHandlingDisabled SignalHandlingMode = iota
	// SignalHandlingHandleTerminationRequests installs handlers for
	// SIGINT and SIGTERM that cancel the returned context; no blocking
	// runtime operation takes that context or returns TerminationRequest.
	SignalHandlingHandleTerminationRequests
)

// WatchTermination returns a context that is canceled when the process
// receives SIGINT or SIGTERM, if mode requests handling. stop must be
// called to release the underlying signal.Notify registration.
func WatchTermination(mode SignalHandlingMode) (ctx context.Context, stop func()) {
	if mode != SignalHandlingHandleTerminationRequests {
		ctx, cancel := context.WithCancel(context.Background())
		return ctx, cancel
	}
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
