// Package correlator implements the bidirectional request correlator: it
// allocates outbound request ids, tracks a one-shot delivery slot per
// pending outbound request, and resolves each slot exactly once with a
// Response, a Timeout, a Cancellation, or ConnectionClosed.
//
// Inbound Request/Notification dispatch is the router's job (see
// pkg/server); this package only owns the outbound half plus the
// bookkeeping needed to deliver inbound Responses back to their callers.
package correlator

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/tmcperrors"
)

// DefaultRequestTimeout bounds a single outbound request absent an explicit
// deadline on ctx or a configured default
const DefaultRequestTimeout = 60 * time.Second

// Sender is the narrow write-side the correlator needs from whichever
// transport or session owns the connection.
type Sender interface {
	Send(ctx context.Context, env protocol.Envelope) error
}

// pendingEntry is one outbound request awaiting its Response.
type pendingEntry struct {
	id        protocol.MessageId
	method    string
	done      chan struct{}
	result    protocol.Envelope
	err       error
	delivered atomic.Bool
	timer     *time.Timer
	createdAt time.Time
}

// Correlator owns the pending-request table for one connection. It is safe
// for concurrent use: outbound registration, inbound delivery, cancellation,
// and close may all run from different goroutines.
type Correlator struct {
	sender         Sender
	defaultTimeout time.Duration

	mu      sync.Mutex
	pending map[protocol.MessageId]*pendingEntry
	nextID  int64
	closed  bool
}

// Option configures a Correlator at construction.
type Option func(*Correlator)

// WithDefaultTimeout overrides DefaultRequestTimeout for requests issued
// without an explicit deadline on their context.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Correlator) { c.defaultTimeout = d }
}

// New builds a Correlator writing outbound envelopes through sender.
func New(sender Sender, opts ...Option) *Correlator {
	c := &Correlator{
		sender:         sender,
		defaultTimeout: DefaultRequestTimeout,
		pending:        make(map[protocol.MessageId]*pendingEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NextID allocates a fresh monotonic outbound id. Wraps back to 1 rather
// than going negative, since MCP ids are conventionally non-negative
// integers; wrapping this rarely matters within one connection's lifetime.
func (c *Correlator) NextID() protocol.MessageId {
	n := atomic.AddInt64(&c.nextID, 1)
	if n <= 0 {
		atomic.StoreInt64(&c.nextID, 1)
		n = 1
	}
	return protocol.NumberID(n)
}

// Request allocates an id, registers a pending slot, sends the Request
// through sender, and blocks until a Response arrives, ctx is done, the
// per-request deadline elapses, or the correlator is closed. Exactly one
// outcome is ever delivered to the slot
func (c *Correlator) Request(ctx context.Context, method string, params json.RawMessage) (protocol.Envelope, error) {
	id := c.NextID()
	entry := &pendingEntry{id: id, method: method, done: make(chan struct{}), createdAt: time.Now()}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Envelope{}, tmcperrors.NewTransportError("correlator is closed", nil)
	}
	c.pending[id] = entry
	c.mu.Unlock()

	deadline := c.defaultTimeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until > 0 {
			deadline = until
		}
	}
	entry.timer = time.AfterFunc(deadline, func() {
		c.resolve(id, protocol.Envelope{}, tmcperrors.NewTimeoutError("request "+method+" timed out", nil))
	})

	env := protocol.NewRequest(id, method, params)
	if err := c.sender.Send(ctx, env); err != nil {
		c.resolve(id, protocol.Envelope{}, tmcperrors.NewTransportError("failed to send request", err))
	}

	select {
	case <-entry.done:
		return entry.result, entry.err
	case <-ctx.Done():
		c.resolve(id, protocol.Envelope{}, tmcperrors.NewCancelledError("context cancelled: "+ctx.Err().Error(), ctx.Err()))
		<-entry.done
		return entry.result, entry.err
	}
}

// HandleResponse delivers an inbound Response envelope to its matching
// pending slot. If no pending entry exists for the Response's id (a late arrival after timeout/cancel, or an unmatched id), it is dropped silently
// step 2.
func (c *Correlator) HandleResponse(env protocol.Envelope) {
	if env.Kind != protocol.KindResponse {
		return
	}
	if env.Err != nil {
		c.resolve(env.ID, env, nil)
		return
	}
	c.resolve(env.ID, env, nil)
}

// Cancel resolves the pending slot for id as Cancelled, if one exists. The
// caller is responsible for emitting notifications/cancelled to the peer;
// the correlator itself has no opinion on whether the peer needs telling.
func (c *Correlator) Cancel(id protocol.MessageId) bool {
	c.mu.Lock()
	_, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.resolve(id, protocol.Envelope{}, tmcperrors.NewCancelledError("request cancelled", nil))
	return true
}

// Close resolves every still-pending request as ConnectionClosed and
// prevents new requests from being registered.
func (c *Correlator) Close() {
	c.mu.Lock()
	c.closed = true
	ids := make([]protocol.MessageId, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.resolve(id, protocol.Envelope{}, tmcperrors.NewTransportError("connection closed", nil))
	}
}

// Pending reports how many outbound requests are awaiting a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// PendingIDs returns a snapshot of the outbound request ids still awaiting
// a response, for diagnostics. Order is unspecified.
func (c *Correlator) PendingIDs() []protocol.MessageId {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]protocol.MessageId, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}

// resolve delivers result/err to id's pending slot exactly once and
// removes it from the table. A second call for the same id (e.g. a timeout firing after a Response already arrived) is a no-op, guaranteeing
// at-most-once delivery
func (c *Correlator) resolve(id protocol.MessageId, result protocol.Envelope, err error) {
	c.mu.Lock()
	entry, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if !entry.delivered.CompareAndSwap(false, true) {
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.result = result
	entry.err = err
	close(entry.done)
}
