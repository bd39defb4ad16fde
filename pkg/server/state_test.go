package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/reqcontext"
	"github.com/turbomcp/turbomcp/pkg/router"
	"github.com/turbomcp/turbomcp/pkg/session"
)

func TestStateBeforeInitialize(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer()

	st := srv.State()
	assert.Equal(t, "sess-1", st.SessionID)
	assert.False(t, st.Initialized)
	assert.False(t, st.ServerRequestsEnabled)
	assert.Empty(t, st.PendingServerRequests)
	assert.Empty(t, st.InFlightRequests)
}

func TestStateReflectsClientCapabilities(t *testing.T) {
	t.Parallel()
	srv, pt := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	pt.feed(t, protocol.NewRequest(protocol.NumberID(1), protocol.MethodInitialize,
		json.RawMessage(`{"protocolVersion":"2025-06-18","capabilities":{"sampling":{}},"clientInfo":{"name":"c","version":"1"}}`)))
	_ = pt.awaitResponse(t)

	st := srv.State()
	assert.True(t, st.Initialized)
	assert.True(t, st.ServerRequestsEnabled)
}

func TestStateListsInFlightRequests(t *testing.T) {
	t.Parallel()
	pt := newPipeTransport()
	entered := make(chan struct{})
	release := make(chan struct{})
	reg := router.NewRegistry().WithTool(router.ToolEntry{
		Tool: protocol.Tool{Name: "slow", InputSchema: json.RawMessage(`{}`)},
		Handler: func(_ *reqcontext.RequestContext, _ json.RawMessage) (protocol.ToolsCallResult, error) {
			close(entered)
			<-release
			return protocol.ToolsCallResult{}, nil
		},
	})
	mgr := session.NewManager(time.Hour, func(id string) *session.Record { return session.NewRecord(id, "stdio") })
	srv := New(pt, reg, nil, mgr, "sess-state")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	pt.feed(t, protocol.NewRequest(protocol.NumberID(1), protocol.MethodInitialize,
		json.RawMessage(`{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}`)))
	_ = pt.awaitResponse(t)

	pt.feed(t, protocol.NewRequest(protocol.NumberID(7), protocol.MethodToolsCall,
		json.RawMessage(`{"name":"slow","arguments":{}}`)))

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never entered")
	}

	st := srv.State()
	require.Len(t, st.InFlightRequests, 1)
	assert.True(t, st.InFlightRequests[0].Equal(protocol.NumberID(7)))

	close(release)
	resp := pt.awaitResponse(t)
	require.Nil(t, resp.Err)
	assert.Empty(t, srv.State().InFlightRequests)
}
