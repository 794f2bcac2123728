package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/posix"
	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/logging"
	"code.hybscloud.com/ipc/status"
)

// staleLockAfter is the age beyond which a held lock file is considered
// a candidate for takeover (spec.md §4.4 "lock age > threshold ∧
// pid-dead check" — posix.TryTakeoverStaleLock performs the pid-dead
// half of that conjunction implicitly by retrying the acquire).
const staleLockAfter = 10 * time.Second

// Registry is the directory containing every service's static-config
// and lock files for one configuration prefix.
type Registry struct {
	root   string
	prefix string
}

// Open returns a Registry rooted at dir, creating dir if necessary.
func Open(dir, prefix string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: mkdir %s: %w", dir, err)
	}
	return &Registry{root: dir, prefix: prefix}, nil
}

func (r *Registry) lockPath(id ServiceID) string {
	return filepath.Join(r.root, fmt.Sprintf("%s_%s.lock", r.prefix, id))
}

func (r *Registry) configPath(id ServiceID) string {
	return filepath.Join(r.root, fmt.Sprintf("%s_%s.toml", r.prefix, id))
}

func (r *Registry) dynSegmentName(id ServiceID) string {
	return fmt.Sprintf("%s_%s_dyn", r.prefix, id)
}

// Handle is a successfully created or opened service.
type Handle struct {
	ID      ServiceID
	Config  StaticConfig
	Dyn     *portset.PortSet
	Root    string
	Prefix  string
}

// Request describes what a participant wants to create or open.
type Request struct {
	Name    string
	Pattern MessagingPattern
	Types   []TypeDetail
	Limits  Limits

	Attributes []Attribute
	RequiredAttributes []Attribute // subset that must be present on Open (spec.md §9 supplement)

	Capacities portset.Capacities
}

// Create runs the exclusive create protocol (spec.md §4.4). It returns
// AlreadyExists if a static config for this id already exists.
func (r *Registry) Create(req Request) (*Handle, error) {
	id := ComputeServiceID(req.Name, req.Pattern, req.Types, r.prefix)

	lock, err := posix.TryTakeoverStaleLock(r.lockPath(id), staleLockAfter)
	if err != nil {
		if err == posix.ErrLockHeld {
			return nil, status.New("registry.Create", status.KindIsBeingCreatedByAnotherInstance, err)
		}
		return nil, status.New("registry.Create", status.KindInternalFailure, err)
	}
	defer lock.Release()

	cfgPath := r.configPath(id)
	if _, err := os.Stat(cfgPath); err == nil {
		return nil, status.New("registry.Create", status.KindAlreadyExists)
	}

	dyn, err := portset.OpenOrCreate(r.root, r.dynSegmentName(id), req.Capacities, shm.Owner, 0)
	if err != nil {
		return nil, status.New("registry.Create", status.KindUnableToCreateDataSegment, err)
	}

	cfg := StaticConfig{
		SchemaVersion:     SchemaVersion,
		Name:              req.Name,
		Pattern:           req.Pattern,
		ConfigPrefix:      r.prefix,
		Limits:            req.Limits,
		Attributes:        req.Attributes,
		CreatedAtUnixNano: posix.MonotonicNanos(),
	}
	for i := range req.Types {
		assignTypeDetail(&cfg, req.Pattern, &req.Types[i], i)
	}

	if err := writeStaticConfigAtomically(cfgPath, cfg); err != nil {
		dyn.Close()
		return nil, status.New("registry.Create", status.KindResourceCreationFailed, err)
	}

	logging.Global().WithFields(map[string]any{"service": req.Name, "id": id.String()}).Info("service created")

	return &Handle{ID: id, Config: cfg, Dyn: dyn, Root: r.root, Prefix: r.prefix}, nil
}

func assignTypeDetail(cfg *StaticConfig, pattern MessagingPattern, t *TypeDetail, index int) {
	switch pattern {
	case RequestResponse:
		if index == 0 {
			cfg.RequestType = t
		} else {
			cfg.ResponseType = t
		}
	default:
		if index == 0 {
			cfg.PayloadType = t
		} else {
			cfg.HeaderType = t
		}
	}
}

// Open runs the open protocol, validating req against the on-disk
// configuration (spec.md §4.4 step 3).
func (r *Registry) Open(req Request) (*Handle, error) {
	id := ComputeServiceID(req.Name, req.Pattern, req.Types, r.prefix)
	cfgPath := r.configPath(id)

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.New("registry.Open", status.KindDoesNotExist, err)
		}
		return nil, status.New("registry.Open", status.KindInternalFailure, err)
	}

	var cfg StaticConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, status.New("registry.Open", status.KindServiceInCorruptedState, err)
	}
	if cfg.SchemaVersion != SchemaVersion {
		return nil, status.New("registry.Open", status.KindVersionMismatch)
	}

	if err := validateOpen(req, cfg); err != nil {
		return nil, err
	}

	dynName := r.dynSegmentName(id)
	if _, err := os.Stat(filepath.Join(r.root, dynName)); err != nil {
		return nil, status.New("registry.Open", status.KindIsMarkedForDestruction, err)
	}

	dyn, err := portset.OpenOrCreate(r.root, dynName, req.Capacities, shm.Mapper, 2*time.Second)
	if err != nil {
		return nil, status.New("registry.Open", status.KindFailedToEstablishConnection, err)
	}

	return &Handle{ID: id, Config: cfg, Dyn: dyn, Root: r.root, Prefix: r.prefix}, nil
}

// OpenOrCreate attempts Open; on DoesNotExist it attempts Create; if
// Create loses the race (AlreadyExists) it retries Open once, per
// spec.md §4.4.
func (r *Registry) OpenOrCreate(req Request) (*Handle, error) {
	h, err := r.Open(req)
	if err == nil {
		return h, nil
	}
	if !status.Is(err, status.KindDoesNotExist) {
		return nil, err
	}

	h, err = r.Create(req)
	if err == nil {
		return h, nil
	}
	if status.Is(err, status.KindAlreadyExists) {
		return r.Open(req)
	}
	return nil, err
}

func writeStaticConfigAtomically(path string, cfg StaticConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
