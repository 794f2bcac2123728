package registry

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"code.hybscloud.com/ipc/status"
)

// ListFilter narrows List/Details to a subset of services
// (SPEC_FULL.md §3 supplement: pattern filter + internal-services
// toggle, following iceoryx2's own service_details listing options).
type ListFilter struct {
	Pattern        *MessagingPattern
	IncludeInternal bool
}

func (f ListFilter) matches(cfg StaticConfig) bool {
	if f.Pattern != nil && cfg.Pattern != *f.Pattern {
		return false
	}
	if !f.IncludeInternal && strings.HasPrefix(cfg.Name, "internal/") {
		return false
	}
	return true
}

// List returns the static configuration of every service in the
// registry matching filter.
func (r *Registry) List(filter ListFilter) ([]StaticConfig, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, status.New("registry.List", status.KindInternalFailure, err)
	}

	var out []StaticConfig
	prefix := r.prefix + "_"
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.root, e.Name()))
		if err != nil {
			continue
		}
		var cfg StaticConfig
		if err := toml.Unmarshal(data, &cfg); err != nil {
			continue
		}
		if filter.matches(cfg) {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// Exists reports whether a service with the given name and pattern has
// a published static config, without opening its dynamic segment.
func (r *Registry) Exists(name string, pattern MessagingPattern) (bool, error) {
	all, err := r.List(ListFilter{IncludeInternal: true})
	if err != nil {
		return false, err
	}
	for _, cfg := range all {
		if cfg.Name == name && cfg.Pattern == pattern {
			return true, nil
		}
	}
	return false, nil
}

// Details returns the static configuration for exactly one service, or
// DoesNotExist.
func (r *Registry) Details(name string, pattern MessagingPattern) (StaticConfig, error) {
	all, err := r.List(ListFilter{IncludeInternal: true})
	if err != nil {
		return StaticConfig{}, err
	}
	for _, cfg := range all {
		if cfg.Name == name && cfg.Pattern == pattern {
			return cfg, nil
		}
	}
	return StaticConfig{}, status.New("registry.Details", status.KindDoesNotExist)
}
