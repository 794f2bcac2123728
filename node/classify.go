package node

import (
	"os"
	"path/filepath"

	"code.hybscloud.com/ipc/internal/posix"
)

// State classifies a node marker observed by another participant
// (spec.md §4.6). Classification is inherently racy: it is a snapshot,
// not a guarantee that holds an instant later.
type State int

const (
	Alive State = iota
	Dead
	Inaccessible
	Undefined
)

func (s State) String() string {
	switch s {
	case Alive:
		return "alive"
	case Dead:
		return "dead"
	case Inaccessible:
		return "inaccessible"
	default:
		return "undefined"
	}
}

// Info is one entry in a List result.
type Info struct {
	ID    ID
	Name  string
	PID   int
	State State
}

// List enumerates every node marker under root, classifying each.
func List(root string) ([]Info, error) {
	dir := nodesDir(root)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, classify(filepath.Join(dir, e.Name())))
	}
	return out, nil
}

// classify implements spec.md §4.6's decision procedure for a single
// marker file.
func classify(path string) Info {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return Info{State: Inaccessible}
		}
		return Info{State: Undefined}
	}
	m, err := decodeMarker(data)
	if err != nil {
		return Info{State: Undefined}
	}
	info := Info{ID: m.ID, Name: m.name(), PID: int(m.PID)}

	// Attempting the lock ourselves is the liveness test: if we can
	// take it, nobody holds it, so the node is gone. If we can't, a
	// live process holds the flock (released only on process exit), so
	// we double-check the pid+start-time token purely as a defense
	// against an implausible kernel/lock-state race, not as the
	// primary signal.
	lock, err := posix.AcquireFileLock(path)
	if err == nil {
		lock.Release()
		info.State = Dead
		return info
	}
	if err != posix.ErrLockHeld {
		info.State = Inaccessible
		return info
	}
	if posix.IsAlive(int(m.PID), m.StartTime) {
		info.State = Alive
	} else {
		info.State = Dead
	}
	return info
}

// Classify reports the state of a single node by id.
func Classify(root string, id ID) State {
	path := filepath.Join(nodesDir(root), markerFileName(id))
	return classify(path).State
}

// RemoveMarker unlinks a node's marker file, used by the reaper after
// every other cleanup step for a dead node completes (spec.md §4.10
// step 4, "Reap the node marker last").
func RemoveMarker(root string, id ID) error {
	path := filepath.Join(nodesDir(root), markerFileName(id))
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
