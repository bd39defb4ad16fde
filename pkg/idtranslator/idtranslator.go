// Package idtranslator implements the bidirectional MessageId map a proxy
// uses when forwarding one MCP connection onto another: upstream and
// downstream each allocate ids from their own independent space, so a
// forwarded Request needs a fresh local id recorded alongside the original
// remote one, resolved back when the matching Response arrives.
package idtranslator

import (
	"sync"
	"time"

	"github.com/turbomcp/turbomcp/pkg/protocol"
)

// DefaultCapacity bounds how many in-flight translations a single Table
// tracks before the oldest unresolved entry is evicted to bound memory on
// a proxy that never sees some upstream responses.
const DefaultCapacity = 4096

// DefaultTTL bounds how long an allocated id may go unresolved before
// eviction, independent of capacity pressure.
const DefaultTTL = 5 * time.Minute

// Table is a one-directional id map: it allocates a fresh local id for
// each remote id handed to Allocate, and resolves a local id back to its
// original remote id exactly once (Resolve removes the entry, matching a
// Response consuming its Request's mapping).
type Table struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration

	nextLocal int64
	byLocal   map[protocol.MessageId]tableEntry
	order     []protocol.MessageId // insertion order, oldest first, for capacity eviction
}

type tableEntry struct {
	remote    protocol.MessageId
	expiresAt time.Time
}

// NewTable builds a Table evicting entries older than ttl or past
// capacity. A non-positive capacity or ttl falls back to the package
// defaults.
func NewTable(capacity int, ttl time.Duration) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Table{
		capacity: capacity,
		ttl:      ttl,
		byLocal:  make(map[protocol.MessageId]tableEntry),
	}
}

// Allocate records remote and returns a fresh local id for it. Callers
// substitute the returned id into the forwarded Request before sending it
// on, and keep remote only in this table.
func (t *Table) Allocate(remote protocol.MessageId) protocol.MessageId {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpiredLocked()
	for len(t.order) >= t.capacity {
		t.evictOldestLocked()
	}

	t.nextLocal++
	local := protocol.NumberID(t.nextLocal)
	t.byLocal[local] = tableEntry{remote: remote, expiresAt: time.Now().Add(t.ttl)}
	t.order = append(t.order, local)
	return local
}

// Resolve looks up and removes the mapping for local, returning the
// original remote id. It reports false if local is unknown (already
// resolved, evicted, or never allocated) — callers should drop the
// Response in that case rather than forward it nowhere.
func (t *Table) Resolve(local protocol.MessageId) (protocol.MessageId, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.byLocal[local]
	if !ok {
		return protocol.MessageId{}, false
	}
	delete(t.byLocal, local)
	if time.Now().After(entry.expiresAt) {
		return protocol.MessageId{}, false
	}
	return entry.remote, true
}

// Release discards a mapping without resolving it, e.g. when a forwarded
// Request was cancelled before any Response arrived.
func (t *Table) Release(local protocol.MessageId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byLocal, local)
}

// Len reports how many translations are currently outstanding.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byLocal)
}

// EvictExpired removes every entry past its deadline, returning how many
// were removed. Exposed for callers driving eviction on a schedule rather
// than relying solely on Allocate's lazy sweep.
func (t *Table) EvictExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	before := len(t.byLocal)
	t.evictExpiredLocked()
	return before - len(t.byLocal)
}

func (t *Table) evictExpiredLocked() {
	if len(t.byLocal) == 0 {
		return
	}
	now := time.Now()
	kept := t.order[:0]
	for _, id := range t.order {
		entry, ok := t.byLocal[id]
		if !ok {
			continue
		}
		if now.After(entry.expiresAt) {
			delete(t.byLocal, id)
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}

func (t *Table) evictOldestLocked() {
	if len(t.order) == 0 {
		return
	}
	oldest := t.order[0]
	t.order = t.order[1:]
	delete(t.byLocal, oldest)
}

// Translator is the pair of Tables a proxy keeps per forwarded connection:
// Upstream translates a downstream-originated Request into a fresh id in
// the upstream connection's id space; Downstream does the reverse for
// Requests the upstream peer issues back (sampling, elicitation, roots,
// ping). Responses flowing in either direction resolve through the
// matching table so they carry the original id back to whichever side
// issued the Request.
type Translator struct {
	Upstream   *Table
	Downstream *Table
}

// New builds a Translator with both directions sharing the same capacity
// and ttl.
func New(capacity int, ttl time.Duration) *Translator {
	return &Translator{
		Upstream:   NewTable(capacity, ttl),
		Downstream: NewTable(capacity, ttl),
	}
}
