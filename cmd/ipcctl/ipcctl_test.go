package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/posix"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/registry"
	"code.hybscloud.com/ipc/status"
)

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, exitCode(nil))
	require.Equal(t, 2, exitCode(status.New("op", status.KindDoesNotExist)))
	require.Equal(t, 2, exitCode(status.New("op", status.KindIsMarkedForDestruction)))
	require.Equal(t, 3, exitCode(status.New("op", status.KindInsufficientPermissions)))
	require.Equal(t, 4, exitCode(status.New("op", status.KindServiceInCorruptedState)))
	require.Equal(t, 5, exitCode(status.New("op", status.KindVersionMismatch)))
	require.Equal(t, 1, exitCode(status.New("op", status.KindContractViolation)))
}

func TestListAndDetailsAgainstRealRegistry(t *testing.T) {
	root := t.TempDir()
	rootPath, prefix = root, "test"

	reg, err := registry.Open(root, prefix)
	require.NoError(t, err)
	_, err = reg.Create(registry.Request{
		Name:    "pubsub/cli-smoke",
		Pattern: registry.PublishSubscribe,
		Types: []registry.TypeDetail{
			{Name: "payload", Size: 16, Align: 8},
		},
		Capacities: portset.Capacities{portset.Publisher: 2, portset.Subscriber: 2},
		Limits: registry.Limits{
			MaxPublishers: 2, MaxSubscribers: 2,
			SubscriberBufferSize: 8, BorrowedSampleCap: 4,
		},
	})
	require.NoError(t, err)

	require.NoError(t, newCmdList().RunE(nil, nil))
	require.NoError(t, newCmdDetails().RunE(nil, []string{"pubsub/cli-smoke"}))

	err = newCmdDetails().RunE(nil, []string{"no-such-service"})
	require.Error(t, err)
	require.True(t, status.Is(err, status.KindDoesNotExist))
	require.Equal(t, 2, exitCode(err))
}

func TestReapRejectsMalformedID(t *testing.T) {
	root := t.TempDir()
	rootPath, prefix = root, "test"

	err := newCmdReap().RunE(nil, []string{"not-a-uuid"})
	require.Error(t, err)
	require.Equal(t, 1, exitCode(err))
}

func TestReapRefusesAliveNode(t *testing.T) {
	root := t.TempDir()
	rootPath, prefix = root, "test"

	n, err := node.New(root, "alive", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	defer n.Close()

	err = newCmdReap().RunE(nil, []string{n.ID().String()})
	require.Error(t, err)
	require.True(t, status.Is(err, status.KindContractViolation))
}
