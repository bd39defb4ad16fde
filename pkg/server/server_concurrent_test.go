package server

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/reqcontext"
	"github.com/turbomcp/turbomcp/pkg/router"
	"github.com/turbomcp/turbomcp/pkg/session"
)

// TestConcurrentToolCallsAllComplete fires a batch of distinct tools/call
// requests at a running Server, feeding them concurrently through an
// errgroup.Group, then awaits the responses one by one and checks that no
// id is answered twice or left unanswered. It asserts invariant 2 (every outbound-from-the-
// client's-perspective request gets exactly one matching response) holds
// under concurrent dispatch, not just sequential calls.
func TestConcurrentToolCallsAllComplete(t *testing.T) {
	t.Parallel()
	pt := newPipeTransport()
	reg := router.NewRegistry().WithTool(router.ToolEntry{
		Tool: protocol.Tool{Name: "double", InputSchema: json.RawMessage(`{}`)},
		Handler: func(_ *reqcontext.RequestContext, args json.RawMessage) (protocol.ToolsCallResult, error) {
			var n int
			_ = json.Unmarshal(args, &n)
			return protocol.ToolsCallResult{Content: []protocol.ContentBlock{
				protocol.NewTextContent(fmt.Sprintf("%d", n*2)),
			}}, nil
		},
	})
	mgr := session.NewManager(time.Hour, func(id string) *session.Record { return session.NewRecord(id, "stdio") })
	srv := New(pt, reg, nil, mgr, "sess-concurrent")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	pt.feed(t, protocol.NewRequest(protocol.NumberID(1), protocol.MethodInitialize,
		json.RawMessage(`{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}`)))
	_ = pt.awaitResponse(t)

	const n = 8
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		id := int64(100 + i)
		arg := i
		g.Go(func() error {
			pt.feed(t, protocol.NewRequest(protocol.NumberID(id), protocol.MethodToolsCall,
				json.RawMessage(fmt.Sprintf(`{"name":"double","arguments":%d}`, arg))))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		resp := pt.awaitResponse(t)
		numID, ok := resp.ID.Number()
		require.True(t, ok)
		assert.False(t, seen[numID], "duplicate response id %d", numID)
		seen[numID] = true
		require.Nil(t, resp.Err)
	}
	assert.Len(t, seen, n)
}
