package event

import (
	"time"

	"code.hybscloud.com/ipc/internal/dynconfig"
	"code.hybscloud.com/ipc/internal/shm"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/status"
)

// Listener receives event ids notified by any connected Notifier on
// the same service (spec.md §4.9).
type Listener struct {
	id    node.PortID
	bits  *Bits
	seg   *shm.Segment
	index int
	table *dynconfig.Table
}

// ID returns the listener's port identity.
func (l *Listener) ID() node.PortID { return l.id }

// TryWaitOne is the non-blocking form: it returns immediately with
// (0, false) if no event is pending.
func (l *Listener) TryWaitOne() (uint32, bool) {
	return l.bits.TryTakeOne()
}

// TimedWaitOne blocks for at most d waiting for the semaphore to be
// posted, then takes one pending id. A posted semaphore with no bit
// left to take (another call already drained it) is reported as
// ContractViolation, not silently retried, per spec.md §4.9's note
// that the listener-wait error taxonomy includes ContractViolation.
func (l *Listener) TimedWaitOne(d time.Duration) (uint32, error) {
	if !l.bits.TimedWaitSem(d) {
		return 0, nil
	}
	id, ok := l.bits.TryTakeOne()
	if !ok {
		return 0, status.New("event.Listener.TimedWaitOne", status.KindContractViolation)
	}
	return id, nil
}

// BlockingWaitOne blocks until an event is posted, then takes one
// pending id.
func (l *Listener) BlockingWaitOne() (uint32, error) {
	l.bits.WaitSem()
	id, ok := l.bits.TryTakeOne()
	if !ok {
		return 0, status.New("event.Listener.BlockingWaitOne", status.KindContractViolation)
	}
	return id, nil
}

// TryWaitAll drains every currently pending id without blocking,
// invoking fn once per id in ascending order.
func (l *Listener) TryWaitAll(fn func(uint32)) {
	l.bits.DrainAll(fn)
}

// TimedWaitAll blocks for at most d for at least one post, then drains
// every pending id.
func (l *Listener) TimedWaitAll(d time.Duration, fn func(uint32)) {
	if l.bits.TimedWaitSem(d) {
		l.bits.DrainAll(fn)
	}
}

// BlockingWaitAll blocks until at least one post, then drains every
// pending id.
func (l *Listener) BlockingWaitAll(fn func(uint32)) {
	l.bits.WaitSem()
	l.bits.DrainAll(fn)
}

// Close releases the listener's dynconfig slot and unmaps (and, if
// last, unlinks) its bitset segment.
func (l *Listener) Close() error {
	l.table.Release(l.index, nil)
	if _, err := l.seg.ReferenceRelease(); err != nil {
		return status.New("event.Listener.Close", status.KindInternalFailure, err)
	}
	return nil
}
