package reaper

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/ipc/event"
	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/posix"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/pubsub"
	"code.hybscloud.com/ipc/registry"
	"code.hybscloud.com/ipc/status"
)

func newTestNode(t *testing.T, root, name string) *node.Node {
	t.Helper()
	n, err := node.New(root, name, posix.SignalHandlingDisabled)
	require.NoError(t, err)
	return n
}

func TestRunRefusesAliveNode(t *testing.T) {
	root := t.TempDir()
	n := newTestNode(t, root, "alive")
	defer n.Close()

	_, err := Run(root, "test", n.ID())
	require.Error(t, err)
	require.True(t, status.Is(err, status.KindContractViolation))
}

func TestRunForceReleasesCrashedPublisherAndUnlinksSegment(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, "test")
	require.NoError(t, err)

	h, err := reg.Create(registry.Request{
		Name:    "pubsub/reaper",
		Pattern: registry.PublishSubscribe,
		Types: []registry.TypeDetail{
			{Name: "payload", Size: 16, Align: 8},
		},
		Capacities: portset.Capacities{
			portset.Publisher:  4,
			portset.Subscriber: 4,
		},
		Limits: registry.Limits{
			MaxPublishers:        4,
			MaxSubscribers:       4,
			SubscriberBufferSize: 8,
			BorrowedSampleCap:    4,
		},
	})
	require.NoError(t, err)
	svc := pubsub.Open(h, root, pubsub.Limits{PublisherMaxLoans: 4})

	crashedNode := newTestNode(t, root, "crashed-publisher")
	pub, err := svc.NewPublisher(crashedNode)
	require.NoError(t, err)

	survivorNode := newTestNode(t, root, "survivor-subscriber")
	defer survivorNode.Close()
	sub, err := svc.NewSubscriber(survivorNode)
	require.NoError(t, err)
	defer sub.Close()

	segName := fmt.Sprintf("%s_%s_pub_%016x_data", h.Prefix, h.ID, pub.ID().Pack())
	segPath := filepath.Join(root, segName)
	_, statErr := os.Stat(segPath)
	require.NoError(t, statErr)

	require.NoError(t, crashedNode.SimulateCrash())
	require.Equal(t, node.Dead, node.Classify(root, crashedNode.ID()))

	rep, err := Run(root, "test", crashedNode.ID())
	require.NoError(t, err)
	require.Equal(t, 1, rep.ServicesScanned)
	require.Equal(t, 1, rep.SlotsReleased)
	require.Empty(t, rep.ServicesUnlinked) // the subscriber slot is still Active
	require.True(t, rep.MarkerRemoved)

	_, statErr = os.Stat(segPath)
	require.True(t, os.IsNotExist(statErr))

	infos, err := node.List(root)
	require.NoError(t, err)
	require.Len(t, infos, 1) // only the still-alive survivor remains
	require.Equal(t, survivorNode.ID(), infos[0].ID)
}

func TestRunUnlinksServiceOnceEmpty(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, "test")
	require.NoError(t, err)

	h, err := reg.Create(registry.Request{
		Name:    "pubsub/reaper-empty",
		Pattern: registry.PublishSubscribe,
		Types: []registry.TypeDetail{
			{Name: "payload", Size: 16, Align: 8},
		},
		Capacities: portset.Capacities{
			portset.Publisher:  4,
			portset.Subscriber: 4,
		},
		Limits: registry.Limits{
			MaxPublishers:        4,
			MaxSubscribers:       4,
			SubscriberBufferSize: 8,
			BorrowedSampleCap:    4,
		},
	})
	require.NoError(t, err)
	svc := pubsub.Open(h, root, pubsub.Limits{PublisherMaxLoans: 4})

	crashedNode := newTestNode(t, root, "only-publisher")
	_, err = svc.NewPublisher(crashedNode)
	require.NoError(t, err)

	cfgPath := registry.ConfigFilePath(root, "test", h.ID)
	_, statErr := os.Stat(cfgPath)
	require.NoError(t, statErr)

	require.NoError(t, crashedNode.SimulateCrash())

	rep, err := Run(root, "test", crashedNode.ID())
	require.NoError(t, err)
	require.Equal(t, []string{"pubsub/reaper-empty"}, rep.ServicesUnlinked)

	_, statErr = os.Stat(cfgPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunNotifiesListenersOfDeadNotifier(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Open(root, "test")
	require.NoError(t, err)

	deadID := uint32(99)
	h, err := reg.Create(registry.Request{
		Name:    "events/reaper",
		Pattern: registry.Event,
		Capacities: portset.Capacities{
			portset.Notifier: 4,
			portset.Listener: 4,
		},
		Limits: registry.Limits{
			MaxNotifiers: 4, MaxListeners: 4, EventIDMax: 127,
			LifecycleEventIDs: event.EncodeLifecycleIDs(event.LifecycleEventIDs{Dead: &deadID}),
		},
	})
	require.NoError(t, err)

	lifecycle := event.LifecycleEventIDs{Dead: &deadID}
	evtSvc := event.Open(h, root, event.Limits{EventIDMax: 127, Lifecycle: lifecycle})

	crashedNode := newTestNode(t, root, "crashed-notifier")
	_, err = evtSvc.NewNotifier(crashedNode)
	require.NoError(t, err)

	listenerNode := newTestNode(t, root, "survivor-listener")
	defer listenerNode.Close()
	listener, err := evtSvc.NewListener(listenerNode)
	require.NoError(t, err)
	defer listener.Close()

	require.NoError(t, crashedNode.SimulateCrash())

	_, err = Run(root, "test", crashedNode.ID())
	require.NoError(t, err)

	id, ok := listener.TryWaitOne()
	require.True(t, ok)
	require.Equal(t, deadID, id)
}
