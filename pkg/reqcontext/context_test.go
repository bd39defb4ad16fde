package reqcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp/pkg/protocol"
)

type stubDispatcher struct {
	method string
	params any
	resp   protocol.Envelope
	err    error
}

func (s *stubDispatcher) Request(_ context.Context, method string, params any) (protocol.Envelope, error) {
	s.method = method
	s.params = params
	return s.resp, s.err
}

func TestNewCarriesIdentifiers(t *testing.T) {
	t.Parallel()
	rc := New(context.Background(), protocol.NumberID(7))
	assert.True(t, rc.RequestID.Equal(protocol.NumberID(7)))
	assert.False(t, rc.CreatedAt.IsZero())
}

func TestMetadataSetAndReadIsolated(t *testing.T) {
	t.Parallel()
	rc := New(context.Background(), protocol.NumberID(1))
	rc.Set("trace_id", "abc")

	v, ok := rc.Value2("trace_id")
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	snap := rc.Metadata()
	snap["trace_id"] = "mutated"
	v2, _ := rc.Value2("trace_id")
	assert.Equal(t, "abc", v2, "Metadata() must return a copy, not the live map")
}

func TestCancelPropagatesToContext(t *testing.T) {
	t.Parallel()
	rc := New(context.Background(), protocol.NumberID(1))
	rc.Cancel(context.Canceled)

	select {
	case <-rc.Done():
	default:
		t.Fatal("expected context to be cancelled")
	}
	assert.ErrorIs(t, context.Cause(rc.Context), context.Canceled)
}

func TestRequestWithoutDispatcherFails(t *testing.T) {
	t.Parallel()
	rc := New(context.Background(), protocol.NumberID(1))
	assert.False(t, rc.CanIssueRequests())

	_, err := rc.Request(context.Background(), protocol.MethodPing, nil)
	assert.ErrorIs(t, err, errNoDispatcher)
}

func TestRequestDelegatesToDispatcher(t *testing.T) {
	t.Parallel()
	stub := &stubDispatcher{resp: protocol.NewResultResponse(protocol.NumberID(9), nil)}
	rc := New(context.Background(), protocol.NumberID(1)).WithDispatcher(stub)

	assert.True(t, rc.CanIssueRequests())
	resp, err := rc.Request(context.Background(), protocol.MethodPing, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.True(t, resp.ID.Equal(protocol.NumberID(9)))
	assert.Equal(t, protocol.MethodPing, stub.method)
}

func TestNewAdoptsDispatcherAndSessionFromParentContext(t *testing.T) {
	t.Parallel()
	stub := &stubDispatcher{resp: protocol.NewResultResponse(protocol.NumberID(2), nil)}
	parent := WithDispatcherValue(context.Background(), stub)
	parent = WithSessionValue(parent, "sess-9", "user-9", "tenant-9")

	rc := New(parent, protocol.NumberID(1))
	assert.True(t, rc.CanIssueRequests())
	assert.Equal(t, "sess-9", rc.SessionID)
	assert.Equal(t, "user-9", rc.UserID)
	assert.Equal(t, "tenant-9", rc.TenantID)

	_, err := rc.Request(context.Background(), protocol.MethodPing, nil)
	require.NoError(t, err)
}

func TestWithSessionSetsIdentifiers(t *testing.T) {
	t.Parallel()
	rc := New(context.Background(), protocol.NumberID(1)).WithSession("sess-1", "user-1", "tenant-1")
	assert.Equal(t, "sess-1", rc.SessionID)
	assert.Equal(t, "user-1", rc.UserID)
	assert.Equal(t, "tenant-1", rc.TenantID)
}
