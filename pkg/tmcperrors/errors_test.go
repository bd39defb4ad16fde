package tmcperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err:  &Error{Type: ErrInvalidArgument, Message: "test message", Cause: errors.New("underlying error")},
			want: "invalid_argument: test message: underlying error",
		},
		{
			name: "error without cause",
			err:  &Error{Type: ErrInternal, Message: "test message"},
			want: "internal: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := NewError(ErrInternal, "test message", cause)
	assert.Equal(t, cause, err.Unwrap())

	noCause := NewError(ErrInternal, "test message", nil)
	assert.Nil(t, noCause.Unwrap())

	assert.True(t, errors.Is(err, cause))
}

func TestNewErrorConstructors(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	tests := []struct {
		name        string
		constructor func(string, error) *Error
		wantType    Type
	}{
		{"NewInvalidArgumentError", NewInvalidArgumentError, ErrInvalidArgument},
		{"NewTimeoutError", NewTimeoutError, ErrTimeout},
		{"NewCancelledError", NewCancelledError, ErrCancelled},
		{"NewNotFoundError", NewNotFoundError, ErrNotFound},
		{"NewCapabilityError", NewCapabilityError, ErrCapability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.constructor("msg", cause)
			assert.Equal(t, tt.wantType, err.Type)
			assert.Equal(t, "msg", err.Message)
			assert.Equal(t, cause, err.Cause)
		})
	}
}

func TestRetryInfo_Exhausted(t *testing.T) {
	t.Parallel()

	r := NewRetryInfo(3)
	assert.False(t, r.Exhausted())
	r.Attempts = 3
	assert.True(t, r.Exhausted())

	withDelay := NewRetryInfo(2).WithDelay(500)
	if assert.NotNil(t, withDelay.RetryAfterMs) {
		assert.Equal(t, uint64(500), *withDelay.RetryAfterMs)
	}
}

func TestError_WithData(t *testing.T) {
	t.Parallel()

	err := NewRateLimitedError("slow down", nil).WithData(NewRetryInfo(3).WithDelay(100))
	ri, ok := err.Data.(RetryInfo)
	assert.True(t, ok)
	assert.Equal(t, uint32(3), ri.MaxAttempts)
}
