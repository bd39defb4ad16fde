// Package reqcontext implements the per-request context carried alongside
// every dispatched Request: identifiers, a mutable metadata bag middleware
// can attach fields to, a cancellation token shared with any task the
// handler spawns, and an optional back-channel for server-initiated
// requests issued from inside a handler
package reqcontext

import (
	"context"
	"sync"
	"time"

	"github.com/turbomcp/turbomcp/pkg/protocol"
)

// Dispatcher is the narrow interface a RequestContext uses to issue a
// server-to-client (or client-to-server) Request through whichever
// correlator owns the connection. pkg/server implements this by wrapping
// Server.RequestClient; holding only the interface here avoids a
// context-to-connection ownership cycle
//
type Dispatcher interface {
	Request(ctx context.Context, method string, params any) (protocol.Envelope, error)
}

// RequestContext is the per-inbound-request value threaded through
// middleware and into a handler. Identifiers are immutable once created;
// Metadata is a mutable bag middleware may add fields to (trace ids, auth claims). It is not safe to reuse across requests.
type RequestContext struct {
	context.Context

	RequestID protocol.MessageId
	SessionID string
	UserID    string
	TenantID  string
	CreatedAt time.Time

	cancel context.CancelCauseFunc

	mu       sync.RWMutex
	metadata map[string]any

	// dispatcher is a weak handle: the context observes the connection's
	// ability to send requests back to the peer, without owning it.
	dispatcher Dispatcher
}

type ctxKey int

const (
	dispatcherKey ctxKey = iota
	sessionKey
)

type sessionIdentifiers struct {
	sessionID, userID, tenantID string
}

// WithDispatcherValue attaches a back-channel a later reqcontext.New call
// on a descendant of ctx will pick up automatically. Connection-layer code
// (pkg/server, pkg/client) stamps this once per connection onto the
// context handed to the router, rather than threading a *RequestContext
// through the router's generic Dispatch signature.
func WithDispatcherValue(ctx context.Context, d Dispatcher) context.Context {
	return context.WithValue(ctx, dispatcherKey, d)
}

// WithSessionValue attaches session/user/tenant identifiers a later
// reqcontext.New call on a descendant of ctx will pick up automatically.
func WithSessionValue(ctx context.Context, sessionID, userID, tenantID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionIdentifiers{sessionID, userID, tenantID})
}

// New builds a RequestContext deriving its cancellation from parent. If
// parent carries a dispatcher or session identifiers attached via
// WithDispatcherValue/WithSessionValue, they are adopted automatically so
// every request on a connection doesn't need its own explicit wiring.
// Calling the returned context's Cancel (or cancelling parent) tears down
// the request and every context derived from it; Cancel does not cancel
// parent itself.
func New(parent context.Context, requestID protocol.MessageId) *RequestContext {
	ctx, cancel := context.WithCancelCause(parent)
	rc := &RequestContext{
		Context:   ctx,
		RequestID: requestID,
		CreatedAt: time.Now(),
		cancel:    cancel,
		metadata:  make(map[string]any),
	}
	if d, ok := parent.Value(dispatcherKey).(Dispatcher); ok {
		rc.dispatcher = d
	}
	if ids, ok := parent.Value(sessionKey).(sessionIdentifiers); ok {
		rc.SessionID, rc.UserID, rc.TenantID = ids.sessionID, ids.userID, ids.tenantID
	}
	return rc
}

// WithDispatcher attaches the back-channel used for server-initiated
// requests (sampling, elicitation, roots/list, ping) issued from within a
// handler, and returns the same RequestContext for chaining.
func (r *RequestContext) WithDispatcher(d Dispatcher) *RequestContext {
	r.dispatcher = d
	return r
}

// WithSession attaches session/user/tenant identifiers and returns the same
// RequestContext for chaining.
func (r *RequestContext) WithSession(sessionID, userID, tenantID string) *RequestContext {
	r.SessionID = sessionID
	r.UserID = userID
	r.TenantID = tenantID
	return r
}

// Set stores a metadata field. Safe for concurrent use by middleware
// running before and after a handler.
func (r *RequestContext) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[key] = value
}

// Value2 looks up a metadata field set by Set. It does not shadow the
// embedded context.Context's Value method (context.Context.Value is used for ambient deadlines/cancellation keys); callers needing a metadata
// field should call this explicitly.
func (r *RequestContext) Value2(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.metadata[key]
	return v, ok
}

// Metadata returns a shallow copy of the metadata bag, safe to range over
// without holding the context's lock.
func (r *RequestContext) Metadata() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.metadata))
	for k, v := range r.metadata {
		out[k] = v
	}
	return out
}

// Cancel cancels the request and every subtask sharing its token, with
// cause recorded so callers downstream can distinguish cancellation from
// timeout via context.Cause.
func (r *RequestContext) Cancel(cause error) {
	r.cancel(cause)
}

// CanIssueRequests reports whether a handler running under this context may
// issue server-to-client/client-to-server requests (i.e. a dispatcher back -channel was attached by the connection that created it).
func (r *RequestContext) CanIssueRequests() bool {
	return r.dispatcher != nil
}

// Request issues a server-initiated Request (sampling/createMessage, elicitation/create, roots/list, ping) through the owning connection's
// correlator. Callers must check the peer's advertised capability before
// calling; this method does not itself gate on capability, since the
// capability set differs by method and direction
func (r *RequestContext) Request(ctx context.Context, method string, params any) (protocol.Envelope, error) {
	if r.dispatcher == nil {
		return protocol.Envelope{}, errNoDispatcher
	}
	return r.dispatcher.Request(ctx, method, params)
}
