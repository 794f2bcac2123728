// Package status defines the error taxonomy from spec.md §7: a closed
// set of sentinel values grouped by the protocol stage that produces
// them, plus a wrapper that attaches the failing operation's name.
//
// Recoverable conditions (buffer full, no data) are represented by the
// semantic errors in code.hybscloud.com/iox (ErrWouldBlock and friends),
// not by this package — status.Error values are always failures the
// caller did not ask for and cannot treat as "try again later" without
// first inspecting which one it is.
package status

import (
	"errors"
	"fmt"
)

// Kind is one of the named error values from spec.md §7. Its String
// form is the stable, version-independent display name.
type Kind struct {
	name string
}

func (k Kind) String() string { return k.name }

func newKind(name string) Kind { return Kind{name: name} }

// Creation errors.
var (
	KindAlreadyExists                  = newKind("AlreadyExists")
	KindIsBeingCreatedByAnotherInstance = newKind("IsBeingCreatedByAnotherInstance")
	KindHangsInCreation                 = newKind("HangsInCreation")
	KindInsufficientPermissions         = newKind("InsufficientPermissions")
	KindInternalFailure                 = newKind("InternalFailure")
	KindServiceInCorruptedState         = newKind("ServiceInCorruptedState")
	KindOldConnectionsStillActive       = newKind("OldConnectionsStillActive")
)

// Open errors.
var (
	KindDoesNotExist               = newKind("DoesNotExist")
	KindIncompatibleMessagingPattern = newKind("IncompatibleMessagingPattern")
	KindIncompatibleTypes           = newKind("IncompatibleTypes")
	KindIncompatibleRequestType     = newKind("IncompatibleRequestType")
	KindIncompatibleResponseType    = newKind("IncompatibleResponseType")
	KindIncompatibleAttributes      = newKind("IncompatibleAttributes")
	KindIncompatibleOverflowBehavior = newKind("IncompatibleOverflowBehavior")
	KindExceedsMaxNumberOfNodes     = newKind("ExceedsMaxNumberOfNodes")
	KindIsMarkedForDestruction      = newKind("IsMarkedForDestruction")

	// DoesNotSupportRequested* — one instance per quantified limit in
	// the static configuration (spec.md §7).
	KindDoesNotSupportRequestedAmountOfPublishers  = newKind("DoesNotSupportRequestedAmountOfPublishers")
	KindDoesNotSupportRequestedAmountOfSubscribers = newKind("DoesNotSupportRequestedAmountOfSubscribers")
	KindDoesNotSupportRequestedAmountOfNotifiers   = newKind("DoesNotSupportRequestedAmountOfNotifiers")
	KindDoesNotSupportRequestedAmountOfListeners   = newKind("DoesNotSupportRequestedAmountOfListeners")
	KindDoesNotSupportRequestedAmountOfClients     = newKind("DoesNotSupportRequestedAmountOfClients")
	KindDoesNotSupportRequestedAmountOfServers     = newKind("DoesNotSupportRequestedAmountOfServers")
	KindDoesNotSupportRequestedAmountOfNodes       = newKind("DoesNotSupportRequestedAmountOfNodes")
	KindDoesNotSupportRequestedHistorySize         = newKind("DoesNotSupportRequestedHistorySize")
	KindDoesNotSupportRequestedSubscriberBufferSize = newKind("DoesNotSupportRequestedSubscriberBufferSize")
)

// Port-creation errors.
var (
	KindExceedsMaxSupportedPublishers  = newKind("ExceedsMaxSupportedPublishers")
	KindExceedsMaxSupportedSubscribers = newKind("ExceedsMaxSupportedSubscribers")
	KindExceedsMaxSupportedNotifiers   = newKind("ExceedsMaxSupportedNotifiers")
	KindExceedsMaxSupportedListeners   = newKind("ExceedsMaxSupportedListeners")
	KindExceedsMaxSupportedClients     = newKind("ExceedsMaxSupportedClients")
	KindExceedsMaxSupportedServers     = newKind("ExceedsMaxSupportedServers")
	KindUnableToCreateDataSegment      = newKind("UnableToCreateDataSegment")
	KindResourceCreationFailed         = newKind("ResourceCreationFailed")
)

// Data-plane errors.
var (
	KindOutOfMemory                              = newKind("OutOfMemory")
	KindExceedsMaxLoanedSamples                  = newKind("ExceedsMaxLoanedSamples")
	KindExceedsMaxLoanSize                        = newKind("ExceedsMaxLoanSize")
	KindExceedsMaxBorrows                        = newKind("ExceedsMaxBorrows")
	KindFailedToEstablishConnection               = newKind("FailedToEstablishConnection")
	KindUnableToMapSendersDataSegment             = newKind("UnableToMapSendersDataSegment")
	KindConnectionBrokenSincePublisherNoLongerExists = newKind("ConnectionBrokenSincePublisherNoLongerExists")
	KindConnectionCorrupted                       = newKind("ConnectionCorrupted")
)

// Notify errors.
var (
	KindEventIdOutOfBounds = newKind("EventIdOutOfBounds")
	KindMissedDeadline     = newKind("MissedDeadline")
)

// Listener-wait errors.
var (
	KindContractViolation = newKind("ContractViolation")
	KindInterruptSignal   = newKind("InterruptSignal")
)

// Node errors.
var (
	KindInterrupt          = newKind("Interrupt")
	KindTerminationRequest = newKind("TerminationRequest")
	KindVersionMismatch    = newKind("VersionMismatch")
)

// Error is the concrete error type returned for every Kind above. Op
// names the failing call (e.g. "registry.Create", "Publisher.Send") for
// log/CLI display; Err, when present, wraps an underlying cause (an I/O
// error, a corrupt-data detail) without exposing it as the primary
// classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so callers
// can write errors.Is(err, status.New("", status.KindDoesNotExist)) or,
// more idiomatically, use Is(err, kind) below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an *Error for the given op and kind, optionally
// wrapping cause.
func New(op string, kind Kind, cause ...error) *Error {
	e := &Error{Kind: kind, Op: op}
	if len(cause) > 0 {
		e.Err = cause[0]
	}
	return e
}

// Is reports whether err is a status.Error of the given kind, anywhere
// in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
