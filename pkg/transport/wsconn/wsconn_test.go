package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp/pkg/transport"
)

func newTestServer(t *testing.T, handler func(*Transport)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		tr, err := Upgrade(w, r, transport.NewConfig())
		require.NoError(t, err)
		handler(tr)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTransport_SendReceive(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	srv := newTestServer(t, func(tr *Transport) {
		defer close(done)
		msg, err := tr.Receive(context.Background())
		require.NoError(t, err)
		require.NoError(t, tr.Send(context.Background(), msg))
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	client, err := Dial(context.Background(), wsURL, transport.NewConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, transport.TypeWebSocket, client.Type())

	payload := transport.Message{Data: []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)}
	require.NoError(t, client.Send(context.Background(), payload))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	echoed, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload.Data, echoed.Data)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server handler did not complete")
	}
}

func TestTransport_CloseIdempotent(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(tr *Transport) {
		_, _ = tr.Receive(context.Background())
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	client, err := Dial(context.Background(), wsURL, transport.NewConfig())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
