package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/reqcontext"
)

func echoTool() ToolEntry {
	return ToolEntry{
		Tool: protocol.Tool{Name: "echo", InputSchema: json.RawMessage(`{}`)},
		Handler: func(_ *reqcontext.RequestContext, args json.RawMessage) (protocol.ToolsCallResult, error) {
			return protocol.ToolsCallResult{Content: []protocol.ContentBlock{protocol.NewTextContent(string(args))}}, nil
		},
	}
}

func panicTool() ToolEntry {
	return ToolEntry{
		Tool: protocol.Tool{Name: "boom", InputSchema: json.RawMessage(`{}`)},
		Handler: func(_ *reqcontext.RequestContext, _ json.RawMessage) (protocol.ToolsCallResult, error) {
			panic("handler exploded")
		},
	}
}

func TestDispatchToolsListEmpty(t *testing.T) {
	t.Parallel()
	rt := New(NewRegistry(), nil)
	resp, err := rt.Dispatch(context.Background(), protocol.NewRequest(protocol.NumberID(2), protocol.MethodToolsList, nil))
	require.NoError(t, err)
	require.NotNil(t, resp)

	var result protocol.ToolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Empty(t, result.Tools)
}

func TestDispatchToolsCallNotFound(t *testing.T) {
	t.Parallel()
	rt := New(NewRegistry(), nil)
	resp, err := rt.Dispatch(context.Background(), protocol.NewRequest(
		protocol.NumberID(3), protocol.MethodToolsCall,
		json.RawMessage(`{"name":"nope","arguments":{}}`)))
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Err)
	assert.Equal(t, protocol.CodeMethodNotFound, resp.Err.Code)
}

func TestDispatchToolsCallInvokesHandler(t *testing.T) {
	t.Parallel()
	reg := NewRegistry().WithTool(echoTool())
	rt := New(reg, nil)

	resp, err := rt.Dispatch(context.Background(), protocol.NewRequest(
		protocol.NumberID(1), protocol.MethodToolsCall,
		json.RawMessage(`{"name":"echo","arguments":"hi"}`)))
	require.NoError(t, err)
	require.Nil(t, resp.Err)

	var result protocol.ToolsCallResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, `"hi"`, result.Content[0].Text)
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	t.Parallel()
	reg := NewRegistry().WithTool(panicTool())
	rt := New(reg, nil)

	resp, err := rt.Dispatch(context.Background(), protocol.NewRequest(
		protocol.NumberID(1), protocol.MethodToolsCall,
		json.RawMessage(`{"name":"boom","arguments":{}}`)))
	require.NoError(t, err, "a panicking handler must not surface as a Dispatch error")
	require.NotNil(t, resp)
	require.NotNil(t, resp.Err)
	assert.Equal(t, protocol.CodeInternalError, resp.Err.Code)

	// The router (and the goroutine it runs in) must survive the panic:
	// a second request on the same Router still dispatches normally.
	resp2, err := rt.Dispatch(context.Background(), protocol.NewRequest(protocol.NumberID(2), protocol.MethodPing, nil))
	require.NoError(t, err)
	require.Nil(t, resp2.Err)
}

func TestDispatchUnknownMethod(t *testing.T) {
	t.Parallel()
	rt := New(NewRegistry(), nil)
	resp, err := rt.Dispatch(context.Background(), protocol.NewRequest(protocol.NumberID(5), "bogus/method", nil))
	require.NoError(t, err)
	require.NotNil(t, resp.Err)
	assert.Equal(t, protocol.CodeMethodNotFound, resp.Err.Code)
}

func TestDispatchNotificationProducesNoResponse(t *testing.T) {
	t.Parallel()
	rt := New(NewRegistry(), nil)
	resp, err := rt.Dispatch(context.Background(), protocol.NewNotification(protocol.MethodInitialized, nil))
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestDispatchPingDefaultsToEmptyResult(t *testing.T) {
	t.Parallel()
	rt := New(NewRegistry(), nil)
	resp, err := rt.Dispatch(context.Background(), protocol.NewRequest(protocol.NumberID(9), protocol.MethodPing, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(resp.Result))
}

func TestDispatchToolsListPagination(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		reg.WithTool(ToolEntry{Tool: protocol.Tool{Name: name, InputSchema: json.RawMessage(`{}`)}})
	}
	rt := New(reg, nil).WithPageSize(2)

	resp, err := rt.Dispatch(context.Background(), protocol.NewRequest(protocol.NumberID(1), protocol.MethodToolsList, nil))
	require.NoError(t, err)
	var page1 protocol.ToolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &page1))
	assert.Len(t, page1.Tools, 2)
	require.NotEmpty(t, page1.NextCursor)

	resp2, err := rt.Dispatch(context.Background(), protocol.NewRequest(
		protocol.NumberID(2), protocol.MethodToolsList, json.RawMessage(`{"cursor":"`+page1.NextCursor+`"}`)))
	require.NoError(t, err)
	var page2 protocol.ToolsListResult
	require.NoError(t, json.Unmarshal(resp2.Result, &page2))
	assert.Len(t, page2.Tools, 1)
	assert.Empty(t, page2.NextCursor)
}

func TestMiddlewareBeforeHookCanAbort(t *testing.T) {
	t.Parallel()
	chain := NewChain().Use("deny", func(_ *reqcontext.RequestContext, _ protocol.Envelope) error {
		return assert.AnError
	})
	rt := New(NewRegistry().WithTool(echoTool()), chain)

	resp, err := rt.Dispatch(context.Background(), protocol.NewRequest(
		protocol.NumberID(1), protocol.MethodToolsCall, json.RawMessage(`{"name":"echo"}`)))
	require.NoError(t, err)
	require.NotNil(t, resp.Err)
}

func TestMiddlewareBypassesInitialize(t *testing.T) {
	t.Parallel()
	called := false
	chain := NewChain().Use("track", func(_ *reqcontext.RequestContext, _ protocol.Envelope) error {
		called = true
		return nil
	})
	rt := New(NewRegistry(), chain)
	_, _ = rt.Dispatch(context.Background(), protocol.NewRequest(protocol.NumberID(1), protocol.MethodInitialize, nil))
	assert.False(t, called, "bypass_methods must shortcut the chain")
}

func TestMiddlewareAfterHookRunsInReverseOrder(t *testing.T) {
	t.Parallel()
	var order []string
	chain := NewChain().
		UseAfter("first", func(_ *reqcontext.RequestContext, _ protocol.Envelope, _ *protocol.Envelope) error {
			order = append(order, "first")
			return nil
		}).
		UseAfter("second", func(_ *reqcontext.RequestContext, _ protocol.Envelope, _ *protocol.Envelope) error {
			order = append(order, "second")
			return nil
		})
	rt := New(NewRegistry(), chain)
	_, err := rt.Dispatch(context.Background(), protocol.NewRequest(protocol.NumberID(1), protocol.MethodToolsList, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestServerCapabilitiesReflectRegistrations(t *testing.T) {
	t.Parallel()
	reg := NewRegistry().WithTool(echoTool()).WithToolsListChanged()
	caps := reg.ServerCapabilities()
	require.NotNil(t, caps.Tools)
	assert.True(t, caps.Tools.ListChanged)
	assert.Nil(t, caps.Prompts)
}
