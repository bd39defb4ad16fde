package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tmcperrors "github.com/turbomcp/turbomcp/pkg/tmcperrors"
)

func TestEncode_Request(t *testing.T) {
	t.Parallel()

	env := NewRequest(NumberID(1), "tools/list", nil)
	b, err := Encode(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, string(b))
}

func TestEncode_Notification(t *testing.T) {
	t.Parallel()

	env := NewNotification("notifications/initialized", nil)
	b, err := Encode(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, string(b))
}

func TestEncode_ResultResponse(t *testing.T) {
	t.Parallel()

	env := NewResultResponse(StringID("r1"), json.RawMessage(`{"ok":true}`))
	b, err := Encode(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"r1","result":{"ok":true}}`, string(b))
}

func TestEncode_ResultResponse_DefaultsEmptyResult(t *testing.T) {
	t.Parallel()

	env := NewResultResponse(NumberID(2), nil)
	b, err := Encode(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":{}}`, string(b))
}

func TestEncode_ErrorResponse(t *testing.T) {
	t.Parallel()

	env := NewErrorResponse(NumberID(3), &ErrorObject{Code: CodeMethodNotFound, Message: "not found"})
	b, err := Encode(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"not found"}}`, string(b))
}

func TestDecode_SingleMessage(t *testing.T) {
	t.Parallel()

	envs, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), 0)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, KindRequest, envs[0].Kind)
	assert.True(t, envs[0].IsCall())
	assert.Equal(t, "ping", envs[0].Method)
}

func TestDecode_Notification(t *testing.T) {
	t.Parallel()

	envs, err := Decode([]byte(`{"jsonrpc":"2.0","method":"notifications/cancelled"}`), 0)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, KindNotification, envs[0].Kind)
	assert.False(t, envs[0].IsCall())
}

func TestDecode_Batch(t *testing.T) {
	t.Parallel()

	input := `[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"notifications/cancelled"}]`
	envs, err := Decode([]byte(input), 0)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, KindRequest, envs[0].Kind)
	assert.Equal(t, KindNotification, envs[1].Kind)
}

func TestDecode_EmptyBatchRejected(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`[]`), 0)
	require.Error(t, err)
	var tErr *tmcperrors.Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, tmcperrors.ErrInvalidRequest, tErr.Type)
}

func TestDecode_OversizeRejected(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), 4)
	require.Error(t, err)
	var tErr *tmcperrors.Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, tmcperrors.ErrResourceLimit, tErr.Type)
}

func TestDecode_EmptyMessageRejected(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(``), 0)
	require.Error(t, err)
	var tErr *tmcperrors.Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, tmcperrors.ErrParse, tErr.Type)
}

func TestDecode_BadJSONRPCMarker(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`), 0)
	require.Error(t, err)
	var tErr *tmcperrors.Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, tmcperrors.ErrInvalidRequest, tErr.Type)
}

func TestDecode_ResponseWithoutIdRejected(t *testing.T) {
	t.Parallel()

	tests := []string{
		`{"jsonrpc":"2.0","result":{}}`,
		`{"jsonrpc":"2.0","error":{"code":-32603,"message":"x"}}`,
	}
	for _, in := range tests {
		in := in
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(in), 0)
			require.Error(t, err)
		})
	}
}

func TestDecode_ParseErrorResponseWithNullIdAccepted(t *testing.T) {
	t.Parallel()

	tests := []string{
		`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`,
		`{"jsonrpc":"2.0","error":{"code":-32600,"message":"invalid request"}}`,
	}
	for _, in := range tests {
		in := in
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			envs, err := Decode([]byte(in), 0)
			require.NoError(t, err)
			require.Len(t, envs, 1)
			assert.Equal(t, KindResponse, envs[0].Kind)
			assert.False(t, envs[0].ID.IsValid())
			require.NotNil(t, envs[0].Err)
		})
	}
}

func TestDecode_NeitherMethodResultNorErrorRejected(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"jsonrpc":"2.0","id":1}`), 0)
	require.Error(t, err)
}

func TestEncodeBatch(t *testing.T) {
	t.Parallel()

	envs := []Envelope{
		NewRequest(NumberID(1), "ping", nil),
		NewNotification("notifications/cancelled", nil),
	}
	b, err := EncodeBatch(envs)
	require.NoError(t, err)

	decoded, err := Decode(b, 0)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.True(t, decoded[0].ID.Equal(NumberID(1)))
}

func TestRoundTrip_PreservesIdKind(t *testing.T) {
	t.Parallel()

	for _, id := range []MessageId{NumberID(9), StringID("s9")} {
		id := id
		env := NewRequest(id, "ping", nil)
		b, err := Encode(env)
		require.NoError(t, err)
		decoded, err := Decode(b, 0)
		require.NoError(t, err)
		require.Len(t, decoded, 1)
		assert.True(t, id.Equal(decoded[0].ID))
	}
}
