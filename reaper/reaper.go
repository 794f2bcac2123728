package reaper

import (
	"code.hybscloud.com/ipc/event"
	"code.hybscloud.com/ipc/internal/dynconfig"
	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/logging"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/registry"
	"code.hybscloud.com/ipc/status"
)

// Report summarizes one Run's effect, for ipcctl's "reap" subcommand to
// print a human-readable result.
type Report struct {
	ServicesScanned int
	SlotsReleased   int
	ServicesUnlinked []string
	MarkerRemoved   bool
}

// Run reaps id: for every service in the registry rooted at (root,
// prefix), every dynamic-configuration slot owned by id is force-
// released, draining whatever shared-memory resource its payload
// named; a service left with zero slots across every port kind has its
// dynamic-configuration segment and static-config file unlinked (its
// lock file stays); finally id's own node marker is removed
// (spec.md §4.10). Run refuses to act on a node still classified Alive
// — the caller is expected to have called node.Classify first, but Run
// re-checks rather than trusting it, since classification is racy by
// nature and nothing prevents seconds elapsing between the check and
// the call.
func Run(root, prefix string, id node.ID) (Report, error) {
	if node.Classify(root, id) == node.Alive {
		return Report{}, status.New("reaper.Run", status.KindContractViolation)
	}

	reg, err := registry.Open(root, prefix)
	if err != nil {
		return Report{}, status.New("reaper.Run", status.KindInternalFailure, err)
	}

	cfgs, err := reg.List(registry.ListFilter{IncludeInternal: true})
	if err != nil {
		return Report{}, status.New("reaper.Run", status.KindInternalFailure, err)
	}

	var rep Report
	deadHash := id.Hash()
	for _, cfg := range cfgs {
		rep.ServicesScanned++
		released, unlinked, err := reapService(reg, root, prefix, cfg, deadHash)
		if err != nil {
			logging.Global().WithFields(map[string]any{"service": cfg.Name, "error": err.Error()}).
				Warn("reaper: skipping service after error")
			continue
		}
		rep.SlotsReleased += released
		if unlinked {
			rep.ServicesUnlinked = append(rep.ServicesUnlinked, cfg.Name)
		}
	}

	if err := node.RemoveMarker(root, id); err != nil {
		return rep, status.New("reaper.Run", status.KindInternalFailure, err)
	}
	rep.MarkerRemoved = true
	return rep, nil
}

// reapService reopens cfg's service (mapping its dynamic-configuration
// segment), force-releases every slot owned by deadHash across every
// port kind, and reports how many it released and whether the service
// was left entirely empty (and so had its dynamic-configuration segment
// and static-config file unlinked).
func reapService(reg *registry.Registry, root, prefix string, cfg registry.StaticConfig, deadHash uint64) (released int, unlinked bool, err error) {
	req := registry.Request{
		Name:       cfg.Name,
		Pattern:    cfg.Pattern,
		Types:      registry.TypesOf(cfg),
		Limits:     cfg.Limits,
		Capacities: registry.CapacitiesOf(cfg),
	}
	h, err := reg.Open(req)
	if err != nil {
		return 0, false, err
	}
	defer h.Dyn.Close()

	var notifyDead bool
	for k := portset.Kind(0); int(k) < portset.NumKinds; k++ {
		table := h.Dyn.Table(k)
		if table == nil {
			continue
		}
		var owned []dynconfig.Entry
		table.ForEachActive(func(e dynconfig.Entry) {
			if e.NodeID == deadHash {
				owned = append(owned, e)
			}
		})
		for _, e := range owned {
			drain := drainFuncFor(root, k, e.Payload)
			table.ForceRelease(e.Index, drain)
			released++
			if k == portset.Notifier {
				notifyDead = true
			}
		}
	}

	if notifyDead && cfg.Pattern == registry.Event {
		evtSvc := event.Open(h, root, event.Limits{
			EventIDMax: cfg.Limits.EventIDMax,
			Deadline:   cfg.Limits.Deadline,
			Lifecycle:  event.DecodeLifecycleIDs(cfg.Limits.LifecycleEventIDs),
		})
		evtSvc.NotifyLifecycleDead()
	}

	if allSlotsEmpty(h) {
		id := registry.RecomputeServiceID(cfg)
		shm.Unlink(root, registry.DynSegmentName(prefix, id))
		registry.RemoveConfig(root, prefix, id)
		return released, true, nil
	}
	return released, false, nil
}

// allSlotsEmpty reports whether every slot, across every port kind h's
// service declares, is currently Empty.
func allSlotsEmpty(h *registry.Handle) bool {
	for k := portset.Kind(0); int(k) < portset.NumKinds; k++ {
		table := h.Dyn.Table(k)
		if table == nil {
			continue
		}
		for i := 0; i < table.Capacity(); i++ {
			if table.StateOf(i) != dynconfig.Empty {
				return false
			}
		}
	}
	return true
}

// drainFuncFor resolves the shared-memory resource(s) a crashed port's
// slot payload named and returns a func that unlinks them directly
// (the owning process is gone; nothing will ever call ReferenceRelease
// for it). Notifier slots carry a node name rather than a resource —
// drain is a no-op for them (the lifecycle fan-out, if configured,
// already ran in reapService).
func drainFuncFor(root string, k portset.Kind, payload []byte) func() {
	switch k {
	case portset.Publisher, portset.Subscriber, portset.Listener:
		name := dynconfig.DecodeName(payload)
		return func() { shm.Unlink(root, name) }
	case portset.Client, portset.Server:
		names := dynconfig.DecodeNames(payload, 2)
		return func() {
			for _, n := range names {
				shm.Unlink(root, n)
			}
		}
	default: // Notifier
		return nil
	}
}
