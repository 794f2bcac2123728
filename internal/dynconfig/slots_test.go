package dynconfig_test

import (
	"testing"
	"unsafe"

	"code.hybscloud.com/ipc/internal/dynconfig"
)

func newTable(t *testing.T, capacity int) *dynconfig.Table {
	t.Helper()
	buf := make([]byte, dynconfig.ByteSize(capacity))
	return dynconfig.NewTable(unsafe.Pointer(&buf[0]), capacity)
}

func TestAcquireRelease(t *testing.T) {
	tbl := newTable(t, 4)

	idx, err := tbl.Acquire(1, 100, []byte("publisher-data-seg"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tbl.StateOf(idx) != dynconfig.Active {
		t.Fatalf("expected Active, got %v", tbl.StateOf(idx))
	}

	var seen []dynconfig.Entry
	tbl.ForEachActive(func(e dynconfig.Entry) { seen = append(seen, e) })
	if len(seen) != 1 || seen[0].PortID != 1 || seen[0].NodeID != 100 {
		t.Fatalf("unexpected active set: %+v", seen)
	}

	drained := false
	tbl.Release(idx, func() { drained = true })
	if !drained {
		t.Fatalf("drain callback not invoked")
	}
	if tbl.StateOf(idx) != dynconfig.Empty {
		t.Fatalf("expected Empty after release, got %v", tbl.StateOf(idx))
	}
}

func TestAcquireExhaustsCapacity(t *testing.T) {
	tbl := newTable(t, 2)
	if _, err := tbl.Acquire(1, 1, nil); err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	if _, err := tbl.Acquire(2, 1, nil); err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if _, err := tbl.Acquire(3, 1, nil); err != dynconfig.ErrExceedsCapacity {
		t.Fatalf("expected ErrExceedsCapacity, got %v", err)
	}
}

func TestForceReleaseCompletesCrashedPort(t *testing.T) {
	tbl := newTable(t, 1)
	idx, err := tbl.Acquire(7, 42, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	tbl.ForceRelease(idx, nil)
	if tbl.StateOf(idx) != dynconfig.Empty {
		t.Fatalf("expected Empty after forced release, got %v", tbl.StateOf(idx))
	}

	idx2, err := tbl.Acquire(8, 43, nil)
	if err != nil {
		t.Fatalf("Acquire after forced release: %v", err)
	}
	if idx2 != idx {
		t.Fatalf("expected slot reuse")
	}
}
