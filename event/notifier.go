package event

import (
	"time"

	"code.hybscloud.com/ipc/internal/dynconfig"
	"code.hybscloud.com/ipc/internal/posix"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/status"
)

// Notifier notifies event ids to every connected Listener on the same
// service (spec.md §4.9).
type Notifier struct {
	id    node.PortID
	svc   *Service
	index int
	table *dynconfig.Table

	deadline   time.Duration // 0 = no deadline declared
	lastNotify int64         // monotonic nanos of the last Notify, 0 = never
}

// ID returns the notifier's port identity.
func (n *Notifier) ID() node.PortID { return n.id }

// Notify sets id in every currently connected listener's pending set
// and wakes it. If the service declares a deadline and this call
// arrives later than that deadline after the previous Notify, it
// returns MissedDeadline — the late notifier itself observes this; a
// listener still receives the event regardless (spec.md §9 Open
// Questions, resolved in DESIGN.md).
func (n *Notifier) Notify(id uint32) error {
	if id > n.svc.limits.EventIDMax {
		return status.New("event.Notifier.Notify", status.KindEventIdOutOfBounds)
	}
	missed := n.checkDeadline()
	n.fanOut(id)
	if missed {
		return status.New("event.Notifier.Notify", status.KindMissedDeadline)
	}
	return nil
}

func (n *Notifier) checkDeadline() bool {
	if n.deadline <= 0 {
		return false
	}
	now := posix.MonotonicNanos()
	missed := n.lastNotify != 0 && now-n.lastNotify > n.deadline.Nanoseconds()
	n.lastNotify = now
	return missed
}

func (n *Notifier) fanOut(id uint32) {
	n.svc.forEachListener(func(b *Bits) {
		b.Set(id)
		b.Post()
	})
}

// Close releases the notifier's dynconfig slot, emitting the
// lifecycle "dropped" event (if configured) first.
func (n *Notifier) Close() error {
	if id := n.svc.limits.Lifecycle.Dropped; id != nil {
		n.fanOut(*id)
	}
	n.table.Release(n.index, nil)
	return nil
}
