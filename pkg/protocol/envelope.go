// Package protocol implements the JSON-RPC 2.0 / MCP wire format: message
// ids, envelopes (request/response/notification/batch), the typed protocol
// model, capability records, and the error taxonomy's wire mapping.
//
// This is deliberately a from-scratch implementation rather than a wrapper
// around an existing JSON-RPC library (golang.org/x/exp/jsonrpc2 and
// mark3labs/mcp-go both exist in the wider ecosystem and are used only as
// reading references): framing, envelope typing, and size enforcement are
// exactly the subject matter this module exists to provide.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	tmcperrors "github.com/turbomcp/turbomcp/pkg/tmcperrors"
)

// Version is the fixed JSON-RPC marker every envelope carries.
const Version = "2.0"

// DefaultMaxMessageSize is the default hard decode-time size limit (10 MiB),
//
const DefaultMaxMessageSize = 10 * 1024 * 1024

// Kind tags which concrete shape an Envelope holds.
type Kind int

const (
	// KindRequest is a Request: has id, method, optional params.
	KindRequest Kind = iota
	// KindResponse is a Response: has id, exactly one of result/error.
	KindResponse
	// KindNotification is a Notification: has method, optional params, no id.
	KindNotification
)

// ErrorObject is the JSON-RPC error object carried by a Response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Envelope is a single parsed JSON-RPC message: a Request, Response, or
// Notification. Exactly one of the Kind-appropriate fields is meaningful;
// callers branch on Kind.
type Envelope struct {
	Kind Kind

	// ID is set for Request and Response (may be NoID only on a ParseError or InvalidRequest error Response).
	ID MessageId

	// Method is set for Request and Notification.
	Method string

	// Params is set for Request and Notification when present.
	Params json.RawMessage

	// Result is set for a successful Response.
	Result json.RawMessage

	// Err is set for a failed Response.
	Err *ErrorObject
}

// NewRequest builds a Request envelope with the given params already
// marshaled to JSON (or nil).
func NewRequest(id MessageId, method string, params json.RawMessage) Envelope {
	return Envelope{Kind: KindRequest, ID: id, Method: method, Params: params}
}

// NewNotification builds a Notification envelope.
func NewNotification(method string, params json.RawMessage) Envelope {
	return Envelope{Kind: KindNotification, Method: method, Params: params}
}

// NewResultResponse builds a successful Response envelope.
func NewResultResponse(id MessageId, result json.RawMessage) Envelope {
	return Envelope{Kind: KindResponse, ID: id, Result: result}
}

// NewErrorResponse builds a failed Response envelope.
func NewErrorResponse(id MessageId, errObj *ErrorObject) Envelope {
	return Envelope{Kind: KindResponse, ID: id, Err: errObj}
}

// IsCall reports whether a Request envelope expects a Response (i.e. has a valid id). Only meaningful for KindRequest.
func (e Envelope) IsCall() bool {
	return e.Kind == KindRequest && e.ID.IsValid()
}

// wireEnvelope is the on-the-wire JSON shape. jsonrpc is emitted first,
// then id/method, then params/result/error, matching the canonical minimal
// emission order used across the ecosystem.
type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// Encode emits the canonical, minimal-whitespace JSON form of an Envelope.
func Encode(e Envelope) ([]byte, error) {
	wire := wireEnvelope{JSONRPC: Version}

	switch e.Kind {
	case KindRequest:
		if e.ID.IsValid() {
			idBytes, err := e.ID.MarshalJSON()
			if err != nil {
				return nil, err
			}
			wire.ID = idBytes
		}
		wire.Method = e.Method
		wire.Params = e.Params
	case KindNotification:
		wire.Method = e.Method
		wire.Params = e.Params
	case KindResponse:
		idBytes, err := e.ID.MarshalJSON()
		if err != nil {
			return nil, err
		}
		wire.ID = idBytes
		if e.Err != nil {
			wire.Error = e.Err
		} else {
			wire.Result = e.Result
			if wire.Result == nil {
				wire.Result = json.RawMessage("{}")
			}
		}
	default:
		return nil, tmcperrors.NewInternalError(fmt.Sprintf("protocol: unknown envelope kind %d", e.Kind), nil)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&wire); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; trim it so callers
	// control framing (stdio appends its own line terminator, HTTP does not want one at all).
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EncodeBatch emits a JSON array of canonically-encoded envelopes.
func EncodeBatch(envs []Envelope) ([]byte, error) {
	parts := make([]json.RawMessage, len(envs))
	for i, e := range envs {
		b, err := Encode(e)
		if err != nil {
			return nil, err
		}
		parts[i] = b
	}
	return json.Marshal(parts)
}

// Decode parses a single byte slice into one or more Envelopes. The input
// may be a single JSON object (one envelope) or a JSON array (a batch).
// Empty input or malformed JSON yields a *tmcperrors.Error of type
// ErrParse, an empty batch or a missing/incorrect jsonrpc marker yields
// ErrInvalidRequest, and a frame larger than maxSize yields
// ErrResourceLimit; callers building a Response should map these per the
// taxonomy in section 6.2.
func Decode(data []byte, maxSize int) ([]Envelope, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if len(data) > maxSize {
		return nil, tmcperrors.NewResourceLimitError(
			fmt.Sprintf("message of %d bytes exceeds limit of %d bytes", len(data), maxSize), nil)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, tmcperrors.NewParseError("empty message", nil)
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, tmcperrors.NewParseError("invalid JSON batch", err)
		}
		if len(raw) == 0 {
			return nil, tmcperrors.NewInvalidRequestError("batch must not be empty", nil)
		}
		envs := make([]Envelope, len(raw))
		for i, item := range raw {
			e, err := decodeOne(item)
			if err != nil {
				return nil, err
			}
			envs[i] = e
		}
		return envs, nil
	}

	e, err := decodeOne(trimmed)
	if err != nil {
		return nil, err
	}
	return []Envelope{e}, nil
}

func decodeOne(data json.RawMessage) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, tmcperrors.NewParseError("invalid JSON message", err)
	}
	if wire.JSONRPC != Version {
		return Envelope{}, tmcperrors.NewInvalidRequestError(
			fmt.Sprintf(`missing or incorrect "jsonrpc" marker (got %q)`, wire.JSONRPC), nil)
	}

	var id MessageId
	if len(wire.ID) > 0 {
		if err := id.UnmarshalJSON(wire.ID); err != nil {
			return Envelope{}, tmcperrors.NewInvalidRequestError("invalid message id", err)
		}
	}

	switch {
	case wire.Method != "" && !id.IsValid():
		return Envelope{Kind: KindNotification, Method: wire.Method, Params: wire.Params}, nil
	case wire.Method != "":
		return Envelope{Kind: KindRequest, ID: id, Method: wire.Method, Params: wire.Params}, nil
	case wire.Error != nil:
		// A null id is legal only when the sender could not read the
		// request's id in the first place (parse error / invalid request).
		if !id.IsValid() && wire.Error.Code != CodeParseError && wire.Error.Code != CodeInvalidRequest {
			return Envelope{}, tmcperrors.NewInvalidRequestError("error response must carry an id", nil)
		}
		return Envelope{Kind: KindResponse, ID: id, Err: wire.Error}, nil
	case wire.Result != nil:
		if !id.IsValid() {
			return Envelope{}, tmcperrors.NewInvalidRequestError("result response must carry an id", nil)
		}
		return Envelope{Kind: KindResponse, ID: id, Result: wire.Result}, nil
	default:
		return Envelope{}, tmcperrors.NewInvalidRequestError("message has neither method, result, nor error", nil)
	}
}
