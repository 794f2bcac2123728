package reqres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/ipc/internal/portset"
	"code.hybscloud.com/ipc/internal/posix"
	"code.hybscloud.com/ipc/internal/transport"
	"code.hybscloud.com/ipc/node"
	"code.hybscloud.com/ipc/registry"
)

func openTestService(t *testing.T) *Service {
	t.Helper()
	root := t.TempDir()
	reg, err := registry.Open(root, "test")
	require.NoError(t, err)

	h, err := reg.Create(registry.Request{
		Name:    "reqres/smoke",
		Pattern: registry.RequestResponse,
		Types: []registry.TypeDetail{
			{Name: "request", Size: 16, Align: 8},
			{Name: "response", Size: 16, Align: 8},
		},
		Capacities: portset.Capacities{
			portset.Client: 4,
			portset.Server: 4,
		},
		Limits: registry.Limits{
			MaxClients: 4,
			MaxServers: 4,
		},
	})
	require.NoError(t, err)
	return Open(h, root, Limits{
		ClientMaxLoans:                         4,
		ServerMaxLoans:                         4,
		RequestQueueCapacity:                   8,
		ResponseQueueCapacity:                  8,
		MaxActiveRequestsPerClient:              4,
		MaxBorrowedResponsesPerPendingResponse:  4,
	})
}

func newNode(t *testing.T, root, name string) *node.Node {
	t.Helper()
	n, err := node.New(root, name, posix.SignalHandlingDisabled)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

func TestRequestResponseRoundTrip(t *testing.T) {
	svc := openTestService(t)
	cliNode := newNode(t, svc.root, "cli-node")
	srvNode := newNode(t, svc.root, "srv-node")

	cli, err := svc.NewClient(cliNode)
	require.NoError(t, err)
	defer cli.Close()
	srv, err := svc.NewServer(srvNode)
	require.NoError(t, err)
	defer srv.Close()

	req, err := cli.LoanUninit()
	require.NoError(t, err)
	copy(req.PayloadMut(), []byte("ping-1234567890."))
	pending, err := req.Send(false)
	require.NoError(t, err)
	require.NotNil(t, pending)

	active, err := srv.ReceiveRequest()
	require.NoError(t, err)
	payload, err := active.Payload()
	require.NoError(t, err)
	require.Equal(t, []byte("ping-1234567890."), payload[:16])

	resp, err := srv.LoanUninit()
	require.NoError(t, err)
	copy(resp.PayloadMut(), []byte("pong-1234567890."))
	require.NoError(t, active.SendResponse(resp))
	require.NoError(t, active.Close())

	got, err := pending.Receive()
	require.NoError(t, err)
	payload, err = got.Payload()
	require.NoError(t, err)
	require.Equal(t, []byte("pong-1234567890."), payload[:16])
	require.NoError(t, got.Close())

	_, err = pending.Receive()
	require.Error(t, err)
	require.True(t, pending.EndOfStream())
	require.NoError(t, pending.Close())
}

func TestFireAndForget(t *testing.T) {
	svc := openTestService(t)
	cliNode := newNode(t, svc.root, "cli-node")
	srvNode := newNode(t, svc.root, "srv-node")

	cli, err := svc.NewClient(cliNode)
	require.NoError(t, err)
	defer cli.Close()
	srv, err := svc.NewServer(srvNode)
	require.NoError(t, err)
	defer srv.Close()

	req, err := cli.LoanUninit()
	require.NoError(t, err)
	pending, err := req.Send(true)
	require.NoError(t, err)
	require.Nil(t, pending)

	active, err := srv.ReceiveRequest()
	require.NoError(t, err)
	require.True(t, active.FireAndForget())

	resp, err := srv.LoanUninit()
	require.NoError(t, err)
	require.NoError(t, active.SendResponse(resp))
	require.NoError(t, active.Close())
}

func TestReceiveRequestEmptyQueueWouldBlock(t *testing.T) {
	svc := openTestService(t)
	srvNode := newNode(t, svc.root, "srv-node")
	srv, err := svc.NewServer(srvNode)
	require.NoError(t, err)
	defer srv.Close()

	_, err = srv.ReceiveRequest()
	require.ErrorIs(t, err, transport.ErrWouldBlock)
}

func TestMaxActiveRequestsPerClientExceeded(t *testing.T) {
	svc := openTestService(t)
	cliNode := newNode(t, svc.root, "cli-node")
	cli, err := svc.NewClient(cliNode)
	require.NoError(t, err)
	defer cli.Close()
	cli.activeCap = 1

	req, err := cli.LoanUninit()
	require.NoError(t, err)
	_, err = req.Send(false)
	require.NoError(t, err)

	req2, err := cli.LoanUninit()
	require.NoError(t, err)
	_, err = req2.Send(false)
	require.Error(t, err)
}
