// Package transport defines the pluggable connection contract MCP runs
// over, plus the concrete STDIO, child-process, and length-prefixed socket
// implementations. Streamable HTTP and WebSocket live in their own
// subpackages since each carries its own substantial third-party stack.
package transport

import (
	"context"
	"strings"

	transporterrors "github.com/turbomcp/turbomcp/pkg/transport/errors"
)

// Type identifies a concrete transport implementation.
type Type string

const (
	TypeStdio          Type = "stdio"
	TypeChildProcess   Type = "child-process"
	TypeSocket         Type = "socket"
	TypeWebSocket      Type = "websocket"
	TypeStreamableHTTP Type = "streamable-http"
)

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// ParseType accepts a transport name in either all-lowercase or
// all-uppercase form (e.g. "stdio" or "STDIO") but rejects mixed case,
// matching the strictness of the rest of the wire-facing parsing in this
// module.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{TypeStdio, TypeChildProcess, TypeSocket, TypeWebSocket, TypeStreamableHTTP} {
		canonical := string(t)
		if s == canonical || s == strings.ToUpper(canonical) {
			return t, nil
		}
	}
	return "", transporterrors.ErrUnsupportedTransport
}

// MaxMetadataEntries bounds how many metadata entries a single Message may
// carry, so a peer cannot balloon per-message bookkeeping.
const MaxMetadataEntries = 64

// Message is one framed, undecoded wire message moving across a Transport:
// an opaque payload plus an optional correlation id and metadata map.
// Keeping the payload as raw bytes here lets package protocol own all
// envelope decoding; a Transport only ever needs to deliver and accept
// frames. ID and Metadata never travel on the wire for the framed
// transports (STDIO, socket, WebSocket) — they carry transport-local
// bookkeeping such as an SSE event id or trace fields a middleware stamped
// on the frame.
type Message struct {
	Data     []byte
	ID       string
	Metadata map[string]string
}

// NewMessage builds a Message around payload data.
func NewMessage(data []byte) Message {
	return Message{Data: data}
}

// SetMetadata records one metadata entry, allocating the map on first use.
// Once MaxMetadataEntries distinct keys exist, new keys are rejected
// (existing keys may still be overwritten); it reports whether the entry
// was stored.
func (m *Message) SetMetadata(key, value string) bool {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	if _, exists := m.Metadata[key]; !exists && len(m.Metadata) >= MaxMetadataEntries {
		return false
	}
	m.Metadata[key] = value
	return true
}

// Transport is the contract every concrete connection implementation
// satisfies: a duplex channel of framed messages plus a lifecycle Send and Receive may be called concurrently by a single
// reader goroutine and a single writer goroutine respectively; callers
// wanting concurrent writers must serialize their own calls to Send.
type Transport interface {
	// Send writes one frame. It blocks until the frame is queued or ctx is
	// done.
	Send(ctx context.Context, msg Message) error

	// Receive reads the next frame. It blocks until a frame arrives, ctx is
	// done, or the transport is closed (io.EOF-equivalent via transporterrors.ErrConnectionClosed).
	Receive(ctx context.Context) (Message, error)

	// Close shuts the transport down. It is safe to call more than once.
	Close() error

	// Type reports which concrete transport this is, for logging and
	// capability-gated behavior (e.g. size limits differ by transport).
	Type() Type
}
