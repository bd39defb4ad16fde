// Package streamablehttp implements the server and client sides of the
// Streamable HTTP transport: a single MCP endpoint accepting POST
// (request/response, optionally upgraded to an SSE stream) and GET (a
// standing SSE stream for server-initiated traffic), session identified
// by the Mcp-Session-Id header, and a closed-by-default CORS origin
// allow-list.
package streamablehttp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/turbomcp/turbomcp/pkg/logger"
	"github.com/turbomcp/turbomcp/pkg/protocol"
)

// StreamableHTTPEndpoint is the single path every MCP request and SSE
// stream is served from.
const StreamableHTTPEndpoint = "/mcp"

// SessionIDHeader is the header carrying the Streamable HTTP session id in
// both directions.
const SessionIDHeader = "Mcp-Session-Id"

// SessionIDQueryParam is accepted as a fallback for clients (e.g. plain EventSource implementations) that cannot set custom headers on GET.
const SessionIDQueryParam = "session_id"

// DefaultIdleSessionTimeout is how long a session may go without activity
// before it is reclaimed
const DefaultIdleSessionTimeout = time.Hour

// Dispatcher handles one decoded envelope and returns its response
// envelope, or nil for a Notification (which has none). router.Router
// implements this interface; streamablehttp only depends on the interface
// so the transport has no import-cycle back to the router.
type Dispatcher interface {
	Dispatch(ctx context.Context, env protocol.Envelope) (*protocol.Envelope, error)
}

// Server is the http.Handler serving the Streamable HTTP endpoint.
type Server struct {
	router     chi.Router
	dispatcher Dispatcher
	sessions   *sessionStore

	allowedOrigins map[string]bool
	maxMessageSize int
	idleTimeout    time.Duration

	pushMu     sync.RWMutex
	pushChans  map[string]chan *SSEMessage
	stopExpiry chan struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAllowedOrigins sets the CORS/WebSocket-style origin allow-list. An
// empty or unset list means no cross-origin requests are permitted; this
// transport is closed to browser origins by default.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		for _, o := range origins {
			s.allowedOrigins[o] = true
		}
	}
}

// WithMaxMessageSize overrides the maximum accepted request body size.
func WithMaxMessageSize(n int) ServerOption {
	return func(s *Server) { s.maxMessageSize = n }
}

// WithIdleSessionTimeout overrides how long an idle session survives.
func WithIdleSessionTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.idleTimeout = d }
}

// NewServer builds a Streamable HTTP server dispatching decoded requests to
// dispatcher.
func NewServer(dispatcher Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		dispatcher:     dispatcher,
		sessions:       newSessionStore(),
		allowedOrigins: make(map[string]bool),
		maxMessageSize: protocol.DefaultMaxMessageSize,
		idleTimeout:    DefaultIdleSessionTimeout,
		pushChans:      make(map[string]chan *SSEMessage),
	}

	r := chi.NewRouter()
	r.Use(s.corsMiddleware)
	r.Post(StreamableHTTPEndpoint, s.handlePost)
	r.Get(StreamableHTTPEndpoint, s.handleGet)
	r.Delete(StreamableHTTPEndpoint, s.handleDelete)
	s.router = r

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartIdleReaper launches a background goroutine that periodically expires
// idle sessions until ctx is done.
func (s *Server) StartIdleReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.sessions.expireIdle(s.idleTimeout); n > 0 {
					logger.Info("expired idle streamable http sessions", "count", n)
				}
			}
		}
	}()
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.allowedOrigins[origin] {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionIDFrom(r *http.Request) string {
	if id := r.Header.Get(SessionIDHeader); id != "" {
		return id
	}
	return r.URL.Query().Get(SessionIDQueryParam)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, int64(s.maxMessageSize))
	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	envs, err := protocol.Decode(data, s.maxMessageSize)
	if err != nil {
		s.writeDecodeError(w, err)
		return
	}

	sessID := s.sessionIDFrom(r)
	sess := s.sessions.get(sessID)
	isInitialize := len(envs) == 1 && envs[0].Kind == protocol.KindRequest && envs[0].Method == protocol.MethodInitialize

	if sess == nil {
		if sessID != "" && !isInitialize {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		sess = s.sessions.create()
	}
	sess.touch()

	responses := make([]protocol.Envelope, 0, len(envs))
	for _, env := range envs {
		resp, err := s.dispatcher.Dispatch(r.Context(), env)
		if err != nil {
			errObj := protocol.ErrorObjectFromError(err)
			responses = append(responses, protocol.NewErrorResponse(env.ID, errObj))
			continue
		}
		if resp != nil {
			responses = append(responses, *resp)
		}
	}

	w.Header().Set(SessionIDHeader, sess.id)

	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var out []byte
	if len(envs) > 1 {
		out, err = protocol.EncodeBatch(responses)
	} else {
		out, err = protocol.Encode(responses[0])
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if !strings.Contains(accept, "text/event-stream") {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessID := s.sessionIDFrom(r)
	sess := s.sessions.get(sessID)
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	sess.touch()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	lastEventID := ParseLastEventID(r.Header.Get("Last-Event-ID"))
	for _, msg := range sess.replayAfter(lastEventID) {
		_, _ = w.Write([]byte(msg.ToSSEString()))
	}
	flusher.Flush()

	ch := s.registerPushChannel(sess.id)
	defer s.unregisterPushChannel(sess.id)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			sess.append(msg)
			_, _ = w.Write([]byte(msg.ToSSEString()))
			flusher.Flush()
		}
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessID := s.sessionIDFrom(r)
	if sessID == "" || !s.sessions.delete(sessID) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Push delivers a server-initiated message (a request or notification) to
// sessionID's open SSE stream, if one exists. It returns false if the
// session has no active GET stream to deliver through.
func (s *Server) Push(sessionID string, eventType, data string) bool {
	s.pushMu.RLock()
	ch, ok := s.pushChans[sessionID]
	s.pushMu.RUnlock()
	if !ok {
		return false
	}
	select {
	case ch <- NewSSEMessage(eventType, data):
		return true
	default:
		return false
	}
}

func (s *Server) registerPushChannel(sessionID string) chan *SSEMessage {
	ch := make(chan *SSEMessage, 64)
	s.pushMu.Lock()
	s.pushChans[sessionID] = ch
	s.pushMu.Unlock()
	return ch
}

func (s *Server) unregisterPushChannel(sessionID string) {
	s.pushMu.Lock()
	delete(s.pushChans, sessionID)
	s.pushMu.Unlock()
}

func (s *Server) writeDecodeError(w http.ResponseWriter, err error) {
	errObj := protocol.ErrorObjectFromError(err)
	http.Error(w, errObj.Message, httpStatusForErrorObject(errObj))
}

func httpStatusForErrorObject(obj *protocol.ErrorObject) int {
	switch obj.Code {
	case protocol.CodeParseError, protocol.CodeInvalidRequest, protocol.CodeInvalidParams:
		return http.StatusBadRequest
	case protocol.CodeResourceLimit:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
