package node

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"code.hybscloud.com/ipc/internal/posix"
	"code.hybscloud.com/ipc/status"
)

// Node is a live participant in the runtime (spec.md §3 "Nodes live
// from builder-create to drop or crash"). Exactly one Node exists per
// marker file; the file's advisory lock is held for the Node's entire
// lifetime, which is what lets other participants tell a live node
// apart from a crashed one purely by trying (and failing) to acquire
// the same lock.
type Node struct {
	id         ID
	pid        int
	startTime  uint64
	name       string
	root       string
	markerPath string
	lock       *posix.FileLock
	signalMode posix.SignalHandlingMode
	portSeq    atomic.Uint64
}

func nodesDir(root string) string { return filepath.Join(root, "nodes") }

// New creates and registers a node marker under root, acquiring its
// lock for the lifetime of the returned Node. mode selects whether
// WatchTermination (spec.md §6 node.signal-handling-mode) is later
// expected to translate SIGINT/SIGTERM into cooperative cancellation.
func New(root, name string, mode posix.SignalHandlingMode) (*Node, error) {
	dir := nodesDir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, status.New("node.New", status.KindInsufficientPermissions, err)
	}

	pid := os.Getpid()
	startTime, err := posix.SelfStartTime()
	if err != nil {
		return nil, status.New("node.New", status.KindInternalFailure, err)
	}

	id := newID()
	path := filepath.Join(dir, markerFileName(id))
	lock, err := posix.AcquireFileLock(path)
	if err != nil {
		// A freshly generated 128-bit id colliding with an existing
		// marker is not realistically possible; any failure here is an
		// environment problem (permissions, out of descriptors).
		return nil, status.New("node.New", status.KindResourceCreationFailed, err)
	}

	m := marker{ID: id, PID: uint32(pid), StartTime: startTime}
	copy(m.Name[:], name)
	if err := writeMarkerContent(lock, m); err != nil {
		lock.Release()
		os.Remove(path)
		return nil, status.New("node.New", status.KindResourceCreationFailed, err)
	}

	return &Node{
		id: id, pid: pid, startTime: startTime, name: name,
		root: root, markerPath: path, lock: lock, signalMode: mode,
	}, nil
}

func writeMarkerContent(lock *posix.FileLock, m marker) error {
	f := lock.File()
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if _, err := f.Write(encodeMarker(m)); err != nil {
		return err
	}
	return f.Sync()
}

// ID returns the node's instance identity.
func (n *Node) ID() ID { return n.id }

// Name returns the node's configured display name (spec.md §6 node.name).
func (n *Node) Name() string { return n.name }

// SignalMode returns the node's configured signal-handling mode.
func (n *Node) SignalMode() posix.SignalHandlingMode { return n.signalMode }

// WatchTermination installs this node's signal-handling mode, returning
// a context canceled on SIGINT/SIGTERM when the mode requests it
// (posix.WatchTermination). No blocking call in pubsub/reqres/event
// takes this context; the cancellation is visible only through ctx.
func (n *Node) WatchTermination() (ctx context.Context, stop func()) {
	return posix.WatchTermination(n.signalMode)
}

// NextPortID issues the next monotonically-increasing PortID of the
// given kind for this node (spec.md §3 "Port identity").
func (n *Node) NextPortID(kind PortKind) PortID {
	seq := n.portSeq.Add(1)
	return PortID{NodeHash: n.id.Hash(), Kind: kind, Seq: seq}
}

// Touch refreshes the marker file's mtime so a slow-but-alive node
// whose marker predates posix.TryTakeoverStaleLock's staleness window
// is never mistaken for a crashed one by lock-file age alone (the
// actual liveness signal is always the held flock; this only matters
// for callers that also inspect file age).
func (n *Node) Touch() error { return n.lock.Touch() }

// SimulateCrash releases n's marker lock without removing the marker
// file, leaving on disk exactly what a crashed process would: a marker
// nobody holds the lock for any more. It exists for tests (reaper's in
// particular) that need a node classify.go will report Dead without an
// actual second process exiting.
func (n *Node) SimulateCrash() error {
	return n.lock.Release()
}

// Close releases the node's marker lock and removes its marker file,
// the orderly counterpart to a crash-then-reap cycle (spec.md §4.6/§4.10).
func (n *Node) Close() error {
	if n == nil {
		return nil
	}
	err := n.lock.Release()
	if rerr := os.Remove(n.markerPath); rerr != nil && !os.IsNotExist(rerr) {
		if err == nil {
			err = rerr
		}
	}
	if err != nil {
		return status.New("node.Close", status.KindInternalFailure, err)
	}
	return nil
}
