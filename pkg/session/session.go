// Package session implements the session manager: one record per connected
// client, tracking capability snapshot, in-flight elicitations and active
// completions, and best-effort analytics counters, with idle expiry
package session

import (
	"sync"
	"time"

	"github.com/turbomcp/turbomcp/pkg/protocol"
)

// ElicitationState is the lifecycle state of one in-flight elicitation
//
type ElicitationState string

const (
	ElicitationPending   ElicitationState = "pending"
	ElicitationAccepted  ElicitationState = "accepted"
	ElicitationDeclined  ElicitationState = "declined"
	ElicitationCancelled ElicitationState = "cancelled"
	ElicitationTimedOut  ElicitationState = "timed_out"
)

// terminalElicitationStates are states a resolved elicitation may never
// leave once reached.
var terminalElicitationStates = map[ElicitationState]bool{
	ElicitationAccepted:  true,
	ElicitationDeclined:  true,
	ElicitationCancelled: true,
	ElicitationTimedOut:  true,
}

// Elicitation tracks one outstanding elicitation/create round trip issued
// by the server toward this client.
type Elicitation struct {
	ID        string
	CreatedAt time.Time
	State     ElicitationState
}

// Completion tracks one outstanding completion/complete exchange.
type Completion struct {
	ID        string
	CreatedAt time.Time
}

// Counters are best-effort analytics; they must never gate correctness
//
type Counters struct {
	ElicitationsStarted  uint64
	ElicitationsResolved uint64
	CompletionsStarted   uint64
	CompletionsResolved  uint64
}

// Record is the per-client session state the manager stores and hands out
// to handlers via the request context's SessionID
type Record struct {
	id            string
	transportType string
	createdAt     time.Time

	mu           sync.Mutex
	lastActivity time.Time
	capabilities *protocol.ClientCapabilities
	elicitations map[string]*Elicitation
	completions  map[string]*Completion
	counters     Counters
}

// NewRecord builds a session record for a client connected over
// transportType.
func NewRecord(id, transportType string) *Record {
	now := time.Now()
	return &Record{
		id:            id,
		transportType: transportType,
		createdAt:     now,
		lastActivity:  now,
		elicitations:  make(map[string]*Elicitation),
		completions:   make(map[string]*Completion),
	}
}

// ID returns the session's stable client id.
func (r *Record) ID() string { return r.id }

// TransportType reports which transport the client connected over.
func (r *Record) TransportType() string { return r.transportType }

// CreatedAt reports when the session was created.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// Touch records activity, resetting the idle-expiry clock.
func (r *Record) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now()
}

// IdleSince reports how long the session has gone without activity.
func (r *Record) IdleSince() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastActivity)
}

// SetCapabilities stores the client's capability snapshot taken at
// initialize.
func (r *Record) SetCapabilities(caps *protocol.ClientCapabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities = caps
}

// Capabilities returns the stored client capability snapshot, or nil if
// initialize has not completed for this session.
func (r *Record) Capabilities() *protocol.ClientCapabilities {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capabilities
}

// StartElicitation records a newly issued elicitation as Pending.
func (r *Record) StartElicitation(id string) *Elicitation {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &Elicitation{ID: id, CreatedAt: time.Now(), State: ElicitationPending}
	r.elicitations[id] = e
	r.counters.ElicitationsStarted++
	return e
}

// ResolveElicitation transitions an in-flight elicitation to a terminal
// state. It reports false if the id is unknown or already terminal.
func (r *Record) ResolveElicitation(id string, state ElicitationState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.elicitations[id]
	if !ok || terminalElicitationStates[e.State] {
		return false
	}
	e.State = state
	if terminalElicitationStates[state] {
		r.counters.ElicitationsResolved++
	}
	return true
}

// Elicitation looks up an in-flight or resolved elicitation by id.
func (r *Record) Elicitation(id string) (*Elicitation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.elicitations[id]
	return e, ok
}

// RemoveElicitation discards an elicitation's bookkeeping entirely.
func (r *Record) RemoveElicitation(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.elicitations, id)
}

// StartCompletion records a newly issued completion exchange.
func (r *Record) StartCompletion(id string) *Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Completion{ID: id, CreatedAt: time.Now()}
	r.completions[id] = c
	r.counters.CompletionsStarted++
	return c
}

// RemoveCompletion discards a completion's bookkeeping, marking it
// resolved in the counters.
func (r *Record) RemoveCompletion(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.completions[id]; !ok {
		return false
	}
	delete(r.completions, id)
	r.counters.CompletionsResolved++
	return true
}

// ActiveElicitations reports how many elicitations are still pending.
func (r *Record) ActiveElicitations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.elicitations {
		if e.State == ElicitationPending {
			n++
		}
	}
	return n
}

// ActiveCompletions reports how many completions are in flight.
func (r *Record) ActiveCompletions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completions)
}

// Counters returns a snapshot of the session's analytics counters.
func (r *Record) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// Clear discards all in-flight elicitation and completion state, e.g. on
// connection close or explicit termination
func (r *Record) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elicitations = make(map[string]*Elicitation)
	r.completions = make(map[string]*Completion)
}
