package protocol

import (
	"errors"
	"net/http"

	tmcperrors "github.com/turbomcp/turbomcp/pkg/tmcperrors"
)

// JSON-RPC reserved error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Application-defined codes occupy the -32000..-32099 band.
	CodeCapability     = -32000
	CodeNotFound       = -32001
	CodeTimeout        = -32002
	CodeCancelled      = -32003
	CodeTransport      = -32004
	CodeResourceLimit  = -32005
	CodeUnauthorized   = -32006
	CodePermission     = -32007
	CodeUnavailable    = -32008
	CodeRateLimited    = -32009
)

var typeToCode = map[tmcperrors.Type]int{
	tmcperrors.ErrParse:            CodeParseError,
	tmcperrors.ErrInvalidRequest:   CodeInvalidRequest,
	tmcperrors.ErrMethodNotFound:   CodeMethodNotFound,
	tmcperrors.ErrInvalidArgument:  CodeInvalidParams,
	tmcperrors.ErrInternal:         CodeInternalError,
	tmcperrors.ErrCapability:       CodeCapability,
	tmcperrors.ErrNotFound:         CodeNotFound,
	tmcperrors.ErrTimeout:          CodeTimeout,
	tmcperrors.ErrCancelled:        CodeCancelled,
	tmcperrors.ErrTransport:        CodeTransport,
	tmcperrors.ErrResourceLimit:    CodeResourceLimit,
	tmcperrors.ErrUnauthenticated:  CodeUnauthorized,
	tmcperrors.ErrPermission:       CodePermission,
	tmcperrors.ErrUnavailable:      CodeUnavailable,
	tmcperrors.ErrRateLimited:      CodeRateLimited,
}

var typeToHTTPStatus = map[tmcperrors.Type]int{
	tmcperrors.ErrParse:            http.StatusBadRequest,
	tmcperrors.ErrInvalidRequest:   http.StatusBadRequest,
	tmcperrors.ErrMethodNotFound:   http.StatusNotFound,
	tmcperrors.ErrInvalidArgument:  http.StatusBadRequest,
	tmcperrors.ErrInternal:         http.StatusInternalServerError,
	tmcperrors.ErrCapability:       http.StatusBadRequest,
	tmcperrors.ErrNotFound:         http.StatusNotFound,
	tmcperrors.ErrTimeout:          http.StatusRequestTimeout,
	tmcperrors.ErrCancelled:        http.StatusRequestTimeout,
	tmcperrors.ErrTransport:        http.StatusInternalServerError,
	tmcperrors.ErrResourceLimit:    http.StatusRequestEntityTooLarge,
	tmcperrors.ErrUnauthenticated:  http.StatusUnauthorized,
	tmcperrors.ErrPermission:       http.StatusForbidden,
	tmcperrors.ErrUnavailable:      http.StatusServiceUnavailable,
	tmcperrors.ErrRateLimited:      http.StatusTooManyRequests,
}

// CodeForType returns the JSON-RPC error code for a taxonomy type, falling
// back to CodeInternalError for an unrecognized type.
func CodeForType(t tmcperrors.Type) int {
	if code, ok := typeToCode[t]; ok {
		return code
	}
	return CodeInternalError
}

// HTTPStatusForType returns the HTTP status a Streamable HTTP transport
// should report for a taxonomy type, falling back to 500.
func HTTPStatusForType(t tmcperrors.Type) int {
	if status, ok := typeToHTTPStatus[t]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorObjectFromError converts any error into a wire ErrorObject. A
// *tmcperrors.Error is mapped through the taxonomy; any other error is
// reported as an internal error without leaking its message verbatim data.
func ErrorObjectFromError(err error) *ErrorObject {
	var tErr *tmcperrors.Error
	if errors.As(err, &tErr) {
		return &ErrorObject{
			Code:    CodeForType(tErr.Type),
			Message: tErr.Message,
			Data:    tErr.Data,
		}
	}
	return &ErrorObject{
		Code:    CodeInternalError,
		Message: "internal error",
	}
}
