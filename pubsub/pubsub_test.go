package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/posix"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/registry"
)

func openTestService(t *testing.T, historySize uint64) *Service {
	t.Helper()
	root := t.TempDir()
	reg, err := registry.Open(root, "test")
	require.NoError(t, err)

	h, err := reg.Create(registry.Request{
		Name:    "pubsub/smoke",
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
			HistorySize:          historySize,
			SubscriberBufferSize: 8,
			BorrowedSampleCap:    4,
		},
	})
	require.NoError(t, err)
	return Open(h, root, Limits{PublisherMaxLoans: 4})
}

func newNode(t *testing.T, root, name string) *node.Node {
	t.Helper()
	n, err := node.New(root, name, posix.SignalHandlingDisabled)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

func TestSendReceiveRoundTrip(t *testing.T) {
	svc := openTestService(t, 0)
	pubNode := newNode(t, svc.root, "pub-node")
	subNode := newNode(t, svc.root, "sub-node")

	pub, err := svc.NewPublisher(pubNode)
	require.NoError(t, err)
	defer pub.Close()
	sub, err := svc.NewSubscriber(subNode)
	require.NoError(t, err)
	defer sub.Close()

	loan, err := pub.LoanUninit()
	require.NoError(t, err)
	copy(loan.PayloadMut(), []byte("hello-world-12.."))
	require.NoError(t, loan.Send())

	smp, err := sub.Receive()
	require.NoError(t, err)
	payload, err := smp.Payload()
	require.NoError(t, err)
	require.Equal(t, []byte("hello-world-12.."), payload[:16])
	require.NoError(t, smp.Close())
}

func TestHistoryReplayOnLateJoin(t *testing.T) {
	svc := openTestService(t, 5)
	pubNode := newNode(t, svc.root, "pub-node")

	pub, err := svc.NewPublisher(pubNode)
	require.NoError(t, err)
	defer pub.Close()

	for i := 0; i < 3; i++ {
		loan, err := pub.LoanUninit()
		require.NoError(t, err)
		copy(loan.PayloadMut(), []byte{byte(i)})
		require.NoError(t, loan.Send())
	}

	subNode := newNode(t, svc.root, "sub-node")
	sub, err := svc.NewSubscriber(subNode)
	require.NoError(t, err)
	defer sub.Close()

	pub.UpdateConnections()

	for i := 0; i < 3; i++ {
		smp, err := sub.Receive()
		require.NoError(t, err)
		payload, err := smp.Payload()
		require.NoError(t, err)
		require.Equal(t, byte(i), payload[0])
		require.NoError(t, smp.Close())
	}
}

func TestReceiveEmptyQueueWouldBlock(t *testing.T) {
	svc := openTestService(t, 0)
	subNode := newNode(t, svc.root, "sub-node")
	sub, err := svc.NewSubscriber(subNode)
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.Receive()
	require.Error(t, err)
}

func TestBorrowCapExceeded(t *testing.T) {
	svc := openTestService(t, 0)
	pubNode := newNode(t, svc.root, "pub-node")
	subNode := newNode(t, svc.root, "sub-node")

	pub, err := svc.NewPublisher(pubNode)
	require.NoError(t, err)
	defer pub.Close()
	sub, err := svc.NewSubscriber(subNode)
	require.NoError(t, err)
	defer sub.Close()
	sub.borrowCap = 1

	loan, err := pub.LoanUninit()
	require.NoError(t, err)
	require.NoError(t, loan.Send())
	loan2, err := pub.LoanUninit()
	require.NoError(t, err)
	require.NoError(t, loan2.Send())

	_, err = sub.Receive()
	require.NoError(t, err)
	_, err = sub.Receive()
	require.Error(t, err)
}
