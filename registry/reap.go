package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"code.hybscloud.com/ipc/internal/portset"
)

// TypesOf reconstructs the ordered TypeDetail slice ComputeServiceID
// was originally called with for cfg, inverting assignTypeDetail. The
// reaper uses this to rebuild a Request capable of reopening a service
// it only has a StaticConfig for.
func TypesOf(cfg StaticConfig) []TypeDetail {
	var types []TypeDetail
	switch cfg.Pattern {
	case RequestResponse:
		if cfg.RequestType != nil {
			types = append(types, *cfg.RequestType)
		}
		if cfg.ResponseType != nil {
			types = append(types, *cfg.ResponseType)
		}
	default:
		if cfg.PayloadType != nil {
			types = append(types, *cfg.PayloadType)
		}
		if cfg.HeaderType != nil {
			types = append(types, *cfg.HeaderType)
		}
	}
	return types
}

// RecomputeServiceID derives cfg's ServiceID the same way Create
// originally computed it, for callers (the reaper, ipcctl) that only
// have a StaticConfig read back off disk and never went through
// Open/Create themselves.
func RecomputeServiceID(cfg StaticConfig) ServiceID {
	return ComputeServiceID(cfg.Name, cfg.Pattern, TypesOf(cfg), cfg.ConfigPrefix)
}

// DynSegmentName returns the name of the dynamic-configuration segment
// backing the service identified by (prefix, id), in the same format
// Registry.dynSegmentName uses internally.
func DynSegmentName(prefix string, id ServiceID) string {
	return fmt.Sprintf("%s_%s_dyn", prefix, id)
}

// ConfigFilePath and LockFilePath mirror Registry's own private path
// helpers, exported for the reaper and ipcctl which address a service
// by (root, prefix, id) without holding an open *Registry.
func ConfigFilePath(root, prefix string, id ServiceID) string {
	return filepath.Join(root, fmt.Sprintf("%s_%s.toml", prefix, id))
}

func LockFilePath(root, prefix string, id ServiceID) string {
	return filepath.Join(root, fmt.Sprintf("%s_%s.lock", prefix, id))
}

// RemoveConfig unlinks a service's static-config file, used by the
// reaper once every dynamic-config slot of the service is Empty
// (spec.md §4.10). Neither this function nor the reaper checks whether
// a node still holds the service open.
func RemoveConfig(root, prefix string, id ServiceID) error {
	err := os.Remove(ConfigFilePath(root, prefix, id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CapacitiesOf derives the per-kind slot counts from cfg.Limits, in the
// order portset.Kind declares them, so the reaper can re-map a
// service's dynamic-configuration segment without needing the original
// creation-time Request.
func CapacitiesOf(cfg StaticConfig) portset.Capacities {
	return portset.Capacities{
		portset.Publisher:  int(cfg.Limits.MaxPublishers),
		portset.Subscriber: int(cfg.Limits.MaxSubscribers),
		portset.Notifier:   int(cfg.Limits.MaxNotifiers),
		portset.Listener:   int(cfg.Limits.MaxListeners),
		portset.Client:     int(cfg.Limits.MaxClients),
		portset.Server:     int(cfg.Limits.MaxServers),
	}
}
