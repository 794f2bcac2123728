package registry

import (
	"code.hybscloud.com/ipc/status"
)

// validateOpen checks an opener's Request against the on-disk
// StaticConfig, returning the distinct error spec.md §7 names for each
// constraint (messaging pattern, type details, attributes, quantified
// limits).
func validateOpen(req Request, cfg StaticConfig) error {
	if req.Pattern != cfg.Pattern {
		return status.New("registry.Open", status.KindIncompatibleMessagingPattern)
	}

	if err := validateTypes(req, cfg); err != nil {
		return err
	}

	if err := validateAttributes(req.RequiredAttributes, cfg.Attributes); err != nil {
		return err
	}

	return validateLimits(req.Limits, cfg.Limits)
}

func validateTypes(req Request, cfg StaticConfig) error {
	switch req.Pattern {
	case RequestResponse:
		if len(req.Types) > 0 && cfg.RequestType != nil && !typesCompatible(req.Types[0], *cfg.RequestType) {
			return status.New("registry.Open", status.KindIncompatibleRequestType)
		}
		if len(req.Types) > 1 && cfg.ResponseType != nil && !typesCompatible(req.Types[1], *cfg.ResponseType) {
			return status.New("registry.Open", status.KindIncompatibleResponseType)
		}
	default:
		if len(req.Types) > 0 && cfg.PayloadType != nil && !typesCompatible(req.Types[0], *cfg.PayloadType) {
			return status.New("registry.Open", status.KindIncompatibleTypes)
		}
	}
	return nil
}

// typesCompatible implements spec.md §3: "the opener's type details
// must match bit-exactly except that the type-name comparison is by
// string equality only (size and alignment must also agree)".
func typesCompatible(want, have TypeDetail) bool {
	return want.Name == have.Name && want.Size == have.Size && want.Align == have.Align && want.IsDynamic == have.IsDynamic
}

// validateAttributes implements the supplemented attribute-
// compatibility check (SPEC_FULL.md §3): the opener's required
// attribute keys must be a subset of the service's published
// attributes, with matching values (iceoryx2's Open-time attribute
// verifier behaves the same way — a superset of required keys is
// always acceptable, extras on the service side are not a mismatch).
func validateAttributes(required []Attribute, published []Attribute) error {
	for _, req := range required {
		found := false
		for _, have := range published {
			if have.Key == req.Key {
				if have.Value != req.Value {
					return status.New("registry.Open", status.KindIncompatibleAttributes)
				}
				found = true
				break
			}
		}
		if !found {
			return status.New("registry.Open", status.KindIncompatibleAttributes)
		}
	}
	return nil
}

func validateLimits(req, have Limits) error {
	switch {
	case req.MaxPublishers > have.MaxPublishers:
		return status.New("registry.Open", status.KindDoesNotSupportRequestedAmountOfPublishers)
	case req.MaxSubscribers > have.MaxSubscribers:
		return status.New("registry.Open", status.KindDoesNotSupportRequestedAmountOfSubscribers)
	case req.MaxNotifiers > have.MaxNotifiers:
		return status.New("registry.Open", status.KindDoesNotSupportRequestedAmountOfNotifiers)
	case req.MaxListeners > have.MaxListeners:
		return status.New("registry.Open", status.KindDoesNotSupportRequestedAmountOfListeners)
	case req.MaxClients > have.MaxClients:
		return status.New("registry.Open", status.KindDoesNotSupportRequestedAmountOfClients)
	case req.MaxServers > have.MaxServers:
		return status.New("registry.Open", status.KindDoesNotSupportRequestedAmountOfServers)
	case req.MaxNodes > have.MaxNodes:
		return status.New("registry.Open", status.KindDoesNotSupportRequestedAmountOfNodes)
	case req.HistorySize > have.HistorySize:
		return status.New("registry.Open", status.KindDoesNotSupportRequestedHistorySize)
	case req.SubscriberBufferSize > have.SubscriberBufferSize:
		return status.New("registry.Open", status.KindDoesNotSupportRequestedSubscriberBufferSize)
	}
	return nil
}
