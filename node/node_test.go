package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/ipc/internal/posix"
)

func TestNewAndClassifyAlive(t *testing.T) {
	root := t.TempDir()

	n, err := New(root, "test-node", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	defer n.Close()

	infos, err := List(root)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, Alive, infos[0].State)
	require.Equal(t, "test-node", infos[0].Name)
	require.Equal(t, n.ID(), infos[0].ID)
}

func TestCloseRemovesMarker(t *testing.T) {
	root := t.TempDir()

	n, err := New(root, "gone", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	id := n.ID()

	require.NoError(t, n.Close())

	// The marker file itself is removed on a clean Close, so List sees
	// nothing at all rather than a Dead entry — this distinguishes an
	// orderly shutdown from a crash for any caller that cares.
	infos, err := List(root)
	require.NoError(t, err)
	require.Empty(t, infos)
	require.Equal(t, Undefined, Classify(root, id))
}

func TestNextPortIDMonotonic(t *testing.T) {
	root := t.TempDir()
	n, err := New(root, "", posix.SignalHandlingDisabled)
	require.NoError(t, err)
	defer n.Close()

	a := n.NextPortID(PortKindPublisher)
	b := n.NextPortID(PortKindPublisher)
	require.NotEqual(t, a.Seq, b.Seq)
	require.NotEqual(t, a.Pack(), b.Pack())
}
