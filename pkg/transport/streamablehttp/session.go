package streamablehttp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultEventBacklog bounds how many SSE events a session retains for
// Last-Event-ID replay before the oldest are dropped.
const defaultEventBacklog = 256

// httpSession tracks one Streamable HTTP client: its SSE backlog for replay
// and its last-activity time for idle expiry
type httpSession struct {
	id string

	mu         sync.Mutex
	events     []*SSEMessage
	nextID     int64
	lastActive time.Time
	closed     bool
}

func newHTTPSession() *httpSession {
	return &httpSession{
		id:         uuid.NewString(),
		lastActive: time.Now(),
	}
}

// touch records activity, resetting the idle-expiry clock.
func (s *httpSession) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// idleSince reports how long the session has gone without activity.
func (s *httpSession) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive)
}

// append assigns the next event id to msg, retains it in the backlog
// (evicting the oldest entry once defaultEventBacklog is exceeded), and
// returns the id-stamped message.
func (s *httpSession) append(msg *SSEMessage) *SSEMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.WithID(s.nextID)
	s.events = append(s.events, msg)
	if len(s.events) > defaultEventBacklog {
		s.events = s.events[len(s.events)-defaultEventBacklog:]
	}
	return msg
}

// replayAfter returns every retained event with id > lastEventID, in order.
func (s *httpSession) replayAfter(lastEventID int64) []*SSEMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*SSEMessage
	for _, e := range s.events {
		if e.ID > lastEventID {
			out = append(out, e)
		}
	}
	return out
}

// sessionStore is the in-memory registry of active Streamable HTTP
// sessions. A pluggable storage backend for distributed deployments would
// replace this but is out of scope for this in-process server.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*httpSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*httpSession)}
}

// create allocates and registers a new session.
func (s *sessionStore) create() *httpSession {
	sess := newHTTPSession()
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

// get returns the session for id, or nil if it doesn't exist.
func (s *sessionStore) get(id string) *httpSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// delete removes a session, reporting whether it existed.
func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// expireIdle removes every session idle for longer than maxIdle, returning
// how many were removed.
func (s *sessionStore) expireIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.idleSince() > maxIdle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
