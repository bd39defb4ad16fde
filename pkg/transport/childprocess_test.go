package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transporterrors "github.com/turbomcp/turbomcp/pkg/transport/errors"
)

func TestChildProcessTransport_EmptyCommandRejected(t *testing.T) {
	t.Parallel()

	_, err := StartChildProcess(context.Background(), "", nil, NewConfig())
	assert.ErrorIs(t, err, transporterrors.ErrCommandNotSet)
}

func TestChildProcessTransport_EchoRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := StartChildProcess(ctx, "cat", nil, NewConfig())
	require.NoError(t, err)
	assert.Equal(t, TypeChildProcess, tr.Type())
	t.Cleanup(func() { _ = tr.Close() })

	payload := Message{Data: []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)}
	require.NoError(t, tr.Send(ctx, payload))

	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(got.Data), `"method":"ping"`)
}

func TestChildProcessTransport_CloseWaitsForExit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := StartChildProcess(ctx, "cat", nil, NewConfig())
	require.NoError(t, err)
	require.NoError(t, tr.Close())
}
