package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/posix"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/registry"
)

func openTestService(t *testing.T, limits Limits) *Service {
	t.Helper()
	root := t.TempDir()
	reg, err := registry.Open(root, "test")
	require.NoError(t, err)

	h, err := reg.Create(registry.Request{
		Name:    "events/smoke",
		Pattern: registry.Event,
		Capacities: portset.Capacities{
			portset.Notifier: 4,
			portset.Listener: 4,
		},
		Limits: registry.Limits{MaxNotifiers: 4, MaxListeners: 4, EventIDMax: limits.EventIDMax},
	})
	require.NoError(t, err)
	return Open(h, root, limits)
}

func TestNotifyListenerRoundTrip(t *testing.T) {
	svc := openTestService(t, Limits{EventIDMax: 63})

	n1, err := node.New(svc.root, "notifier-node", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	defer n1.Close()
	n2, err := node.New(svc.root, "listener-node", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	defer n2.Close()

	notifier, err := svc.NewNotifier(n1)
	require.NoError(t, err)
	defer notifier.Close()

	listener, err := svc.NewListener(n2)
	require.NoError(t, err)
	defer listener.Close()

	require.NoError(t, notifier.Notify(7))

	id, ok := listener.TryWaitOne()
	require.True(t, ok)
	require.Equal(t, uint32(7), id)

	_, ok = listener.TryWaitOne()
	require.False(t, ok)
}

func TestNotifyOutOfBounds(t *testing.T) {
	svc := openTestService(t, Limits{EventIDMax: 3})
	n1, err := node.New(svc.root, "n", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	defer n1.Close()

	notifier, err := svc.NewNotifier(n1)
	require.NoError(t, err)
	defer notifier.Close()

	err = notifier.Notify(4)
	require.Error(t, err)
}

func TestDeadlineMissed(t *testing.T) {
	d := 1 * time.Millisecond
	svc := openTestService(t, Limits{EventIDMax: 63, Deadline: &d})
	n1, err := node.New(svc.root, "n", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	defer n1.Close()

	notifier, err := svc.NewNotifier(n1)
	require.NoError(t, err)
	defer notifier.Close()

	require.NoError(t, notifier.Notify(1)) // first call establishes lastNotify
	time.Sleep(5 * time.Millisecond)
	err = notifier.Notify(2)
	require.Error(t, err)
}

func TestWaitAllDrainsInOrder(t *testing.T) {
	svc := openTestService(t, Limits{EventIDMax: 63})
	n1, err := node.New(svc.root, "notifier-node", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	defer n1.Close()
	n2, err := node.New(svc.root, "listener-node", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	defer n2.Close()

	notifier, err := svc.NewNotifier(n1)
	require.NoError(t, err)
	defer notifier.Close()
	listener, err := svc.NewListener(n2)
	require.NoError(t, err)
	defer listener.Close()

	require.NoError(t, notifier.Notify(5))
	require.NoError(t, notifier.Notify(2))

	var seen []uint32
	listener.TryWaitAll(func(id uint32) { seen = append(seen, id) })
	require.Equal(t, []uint32{2, 5}, seen)
}
