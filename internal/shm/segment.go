// Package shm implements the named, memory-mapped segment allocator
// from spec.md §4.1 (C1): a fixed-layout file with a versioned header,
// an atomic mapper refcount, and a bump allocator over the payload
// region. Every other shared-memory structure in this runtime (dynamic
// config tables, data segments, event bitsets) is a
// Segment with a component-specific view over its payload.
package shm

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/ipc/internal/posix"
)

// magic identifies a valid segment header, guarding against mapping an
// unrelated file that happens to live at the expected path.
const magic uint64 = 0x49504358534d4d31 // "IPCXSMM1"

// headerVersion is bumped whenever the on-disk header layout changes
// incompatibly; VersionMismatch is returned when a mapper's compiled-in
// version disagrees with the file's.
const headerVersion uint32 = 1

// header is the fixed-size prologue of every segment file. Its layout
// must never change without bumping headerVersion: every mapper in
// every process interprets these bytes identically regardless of
// which version of the runtime wrote them.
type header struct {
	magic        atomix.Uint64
	version      atomix.Uint64 // holds headerVersion once initialized
	initialized  atomix.Bool
	refcount     atomix.Int64 // live mappers, Owner counts as one
	bumpOffset   atomix.Uint64 // next free byte, relative to payload start
	payloadSize  uint64
	payloadAlign uint64
}

const headerSize = unsafe.Sizeof(header{})

// Role distinguishes the process that creates and truncates a segment
// (Owner) from processes that only map an existing one (Mapper).
type Role int

const (
	Owner Role = iota
	Mapper
)

// Segment is a memory-mapped, named file with a header and a bump-
// allocated payload region. Exactly one process should hold the Owner
// role for a given name at a time (enforced by registry's create-time
// file lock, not by Segment itself).
type Segment struct {
	name string
	path string
	data []byte // full mapping, header + payload
	hdr  *header
}

// Layout describes the payload a segment must accommodate.
type Layout struct {
	Size  uint64
	Align uint64
}

const (
	// retryInterval and default deadline for a Mapper spinning on a
	// concurrently-initializing segment (spec.md §4.1 HangsInCreation).
	retryInterval   = 200 * time.Microsecond
	defaultHangWait = 2 * time.Second
)

// ErrHangsInCreation is returned by OpenOrCreate when a Mapper's bounded
// wait for the Owner to finish initializing the header expires.
var ErrHangsInCreation = fmt.Errorf("shm: segment initialization did not complete in time")

// ErrVersionMismatch is returned when an existing segment's header
// version disagrees with this build's headerVersion.
var ErrVersionMismatch = fmt.Errorf("shm: segment header version mismatch")

// pathFor returns the backing file path for a named segment under root.
// Shared-memory objects live in a tmpfs-backed directory (conventionally
// /dev/shm on Linux) addressed by the registry's configured root path,
// matching spec.md §6's "Shared-memory objects named <prefix>_...".
func pathFor(root, name string) string {
	return root + "/" + name
}

// OpenOrCreate maps the named segment under root. An Owner (role ==
// Owner) creates the file if absent, truncates it to the layout's size
// and (re)initializes its header, whether or not the file already
// existed. Mappers (role ==
// Mapper) never create; if the file is missing or its header is not yet
// initialized they retry up to deadline before returning
// ErrHangsInCreation.
func OpenOrCreate(root, name string, layout Layout, role Role, deadline time.Duration) (*Segment, error) {
	if deadline <= 0 {
		deadline = defaultHangWait
	}
	path := pathFor(root, name)

	switch role {
	case Owner:
		return createOwner(path, name, layout)
	default:
		return openMapper(path, name, deadline)
	}
}

func createOwner(path, name string, layout Layout) (*Segment, error) {
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return nil, fmt.Errorf("shm: mkdir: %w", err)
	}
	total := int64(headerSize) + int64(align(layout.Size, layout.Align))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(total); err != nil {
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	hdr := (*header)(unsafe.Pointer(&data[0]))
	hdr.payloadSize = layout.Size
	hdr.payloadAlign = layout.Align
	hdr.bumpOffset.StoreRelaxed(0)
	hdr.refcount.StoreRelaxed(1)
	hdr.version.StoreRelaxed(uint64(headerVersion))
	hdr.magic.StoreRelease(magic)
	hdr.initialized.StoreRelease(true)

	return &Segment{name: name, path: path, data: data, hdr: hdr}, nil
}

func openMapper(path, name string, deadline time.Duration) (*Segment, error) {
	dl := posix.Deadline(deadline)
	var f *os.File
	var err error
	for {
		f, err = os.OpenFile(path, os.O_RDWR, 0o644)
		if err == nil {
			break
		}
		if posix.Expired(dl) {
			return nil, ErrHangsInCreation
		}
		time.Sleep(retryInterval)
	}
	defer f.Close()

	info, err := f.Stat()
	for err == nil && info.Size() < int64(headerSize) {
		if posix.Expired(dl) {
			return nil, ErrHangsInCreation
		}
		time.Sleep(retryInterval)
		info, err = f.Stat()
	}
	if err != nil {
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	hdr := (*header)(unsafe.Pointer(&data[0]))

	for {
		if hdr.initialized.LoadAcquire() {
			break
		}
		if posix.Expired(dl) {
			unix.Munmap(data)
			return nil, ErrHangsInCreation
		}
		time.Sleep(retryInterval)
	}
	if hdr.magic.LoadAcquire() != magic {
		unix.Munmap(data)
		return nil, fmt.Errorf("shm: %s: %w", path, ErrVersionMismatch)
	}
	if uint32(hdr.version.LoadAcquire()) != headerVersion {
		unix.Munmap(data)
		return nil, ErrVersionMismatch
	}

	hdr.refcount.AddAcqRel(1)
	return &Segment{name: name, path: path, data: data, hdr: hdr}, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func align(size, a uint64) uint64 {
	if a <= 1 {
		return size
	}
	return (size + a - 1) &^ (a - 1)
}

// Name returns the segment's name.
func (s *Segment) Name() string { return s.name }

// PayloadBase returns a pointer to the first byte of the payload region
// (i.e. just past the header).
func (s *Segment) PayloadBase() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(&s.data[0]), headerSize)
}

// PayloadSize returns the total payload capacity in bytes.
func (s *Segment) PayloadSize() uint64 { return s.hdr.payloadSize }

// ReferenceAcquire increments the mapper refcount. Used when a new
// in-process handle to an already-mapped Segment is cloned (not the
// common case — most callers acquire a reference solely via
// OpenOrCreate's implicit first reference).
func (s *Segment) ReferenceAcquire() {
	s.hdr.refcount.AddAcqRel(1)
}

// ReferenceRelease decrements the mapper refcount, unmaps the segment,
// and — for the last releaser — unlinks the backing file. It returns
// true if this call performed the unlink.
func (s *Segment) ReferenceRelease() (unlinked bool, err error) {
	remaining := s.hdr.refcount.AddAcqRel(-1)
	path := s.path
	if uerr := unix.Munmap(s.data); uerr != nil {
		return false, fmt.Errorf("shm: munmap %s: %w", path, uerr)
	}
	if remaining > 0 {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("shm: unlink %s: %w", path, err)
	}
	return true, nil
}

// Allocate reserves n bytes aligned to align (which must be a power of
// two no greater than the segment's declared payload alignment) from
// the bump allocator and returns the offset from PayloadBase. Allocate
// is lock-free and safe only for the segment's single designated writer
// (spec.md §4.1: "multi-producer allocators are not required because
// each data segment has exactly one writer").
func (s *Segment) Allocate(n, reqAlign uint64) (offset uint64, err error) {
	for {
		cur := s.hdr.bumpOffset.LoadAcquire()
		start := align(cur, reqAlign)
		next := start + n
		if next > s.hdr.payloadSize {
			return 0, ErrOutOfMemory
		}
		if s.hdr.bumpOffset.CompareAndSwapAcqRel(cur, next) {
			return start, nil
		}
	}
}

// ErrOutOfMemory is returned by Allocate when the payload region has no
// remaining capacity for the requested size/alignment (spec.md §7).
var ErrOutOfMemory = fmt.Errorf("shm: out of memory")

// Reset rewinds the bump allocator to zero. Only the Owner may call
// this, and only when it can prove (via the dynamic config table) that
// no live reference to previously allocated memory remains. Nothing in
// this module calls it: the reaper removes a dead owner's segments with
// Unlink instead.
func (s *Segment) Reset() {
	s.hdr.bumpOffset.StoreRelease(0)
}

// Unlink removes the backing file for the named segment directly,
// without mapping it. The reaper uses this once it has established
// (via the owning dynconfig slot's state and node liveness) that no
// process can still hold a mapping: a crashed owner's segment has no
// reference to decrement, so ReferenceRelease's refcounted path does
// not apply. A missing file is not an error (idempotent, as every
// reaper step must be).
func Unlink(root, name string) error {
	err := os.Remove(pathFor(root, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
