// Package server wires a transport, a router, a bidirectional correlator,
// and the session manager into a single MCP server connection: the
// initialize handshake, per-request dispatch (spawned concurrently),
// inbound cancellation, and server-initiated requests (sampling,
// elicitation, roots/list, ping) issued back to the client through the
// same correlator.
package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/turbomcp/turbomcp/pkg/correlator"
	"github.com/turbomcp/turbomcp/pkg/logger"
	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/reqcontext"
	"github.com/turbomcp/turbomcp/pkg/router"
	"github.com/turbomcp/turbomcp/pkg/session"
	"github.com/turbomcp/turbomcp/pkg/tmcperrors"
	"github.com/turbomcp/turbomcp/pkg/transport"
)

// Server serves one MCP connection over a framed transport.Transport
// (STDIO, socket, WebSocket): it decodes inbound frames into envelopes,
// dispatches Requests/Notifications through a router.Router, delivers
// inbound Responses to the correlator, and serializes outbound writes.
type Server struct {
	transport  transport.Transport
	router     *router.Router
	registry   *router.Registry
	sessions   *session.Manager
	correlator *correlator.Correlator
	maxSize    int

	writeMu sync.Mutex

	initMu      sync.RWMutex
	initialized bool
	clientCaps  *protocol.ClientCapabilities
	sessionID   string

	inFlightMu sync.Mutex
	inFlight   map[protocol.MessageId]context.CancelFunc
}

// New builds a Server for one connection. sessionID identifies this
// client in the session manager (callers typically derive it from the transport or assign a fresh uuid before calling New).
func New(t transport.Transport, reg *router.Registry, chain *router.Chain, sessions *session.Manager, sessionID string) *Server {
	s := &Server{
		transport: t,
		registry:  reg,
		sessions:  sessions,
		sessionID: sessionID,
		maxSize:   protocol.DefaultMaxMessageSize,
		inFlight:  make(map[protocol.MessageId]context.CancelFunc),
	}
	s.router = router.New(reg, chain)
	s.correlator = correlator.New(senderFunc(s.sendEnvelope))
	return s
}

type senderFunc func(ctx context.Context, env protocol.Envelope) error

func (f senderFunc) Send(ctx context.Context, env protocol.Envelope) error { return f(ctx, env) }

func (s *Server) sendEnvelope(ctx context.Context, env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.transport.Send(ctx, transport.Message{Data: data})
}

// Serve runs the receive loop until ctx is done or the transport closes.
// Each inbound Request is dispatched in its own goroutine so handler
// invocations may be multiplexed; Notifications and
// Responses are handled inline since they never block on a handler.
func (s *Server) Serve(ctx context.Context) error {
	defer s.correlator.Close()
	logger.Info("server connection started", "session", s.sessionID, "transport", s.transport.Type())
	for {
		msg, err := s.transport.Receive(ctx)
		if err != nil {
			logger.Info("server connection ended", "session", s.sessionID, "error", err)
			return err
		}
		s.handleFrame(ctx, msg.Data)
	}
}

func (s *Server) handleFrame(ctx context.Context, data []byte) {
	envs, err := protocol.Decode(data, s.maxSize)
	if err != nil {
		logger.Warn("discarding unparsable frame", "session", s.sessionID, "error", err)
		errObj := protocol.ErrorObjectFromError(err)
		_ = s.sendEnvelope(ctx, protocol.NewErrorResponse(protocol.NoID, errObj))
		return
	}

	var wg sync.WaitGroup
	responses := make([]*protocol.Envelope, len(envs))
	for i, env := range envs {
		switch env.Kind {
		case protocol.KindResponse:
			s.correlator.HandleResponse(env)
		case protocol.KindNotification:
			s.handleNotification(ctx, env)
		case protocol.KindRequest:
			// A lone Request is answered from its own goroutine so the receive
			// loop keeps reading (a notifications/cancelled or a further Request
			// can arrive while its handler runs); initialize and batches are
			// answered before the next frame is read.
			if len(envs) == 1 && env.Method != protocol.MethodInitialize {
				go func(env protocol.Envelope) {
					if r := s.handleRequest(ctx, env); r != nil {
						_ = s.sendEnvelope(ctx, *r)
					}
				}(env)
				continue
			}
			wg.Add(1)
			go func(i int, env protocol.Envelope) {
				defer wg.Done()
				responses[i] = s.handleRequest(ctx, env)
			}(i, env)
		}
	}
	wg.Wait()

	var out []protocol.Envelope
	for _, r := range responses {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		return
	}
	if len(out) == 1 && len(envs) == 1 {
		_ = s.sendEnvelope(ctx, out[0])
		return
	}
	data2, err := protocol.EncodeBatch(out)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	_ = s.transport.Send(ctx, transport.Message{Data: data2})
	s.writeMu.Unlock()
}

func (s *Server) handleNotification(ctx context.Context, env protocol.Envelope) {
	if env.Method == protocol.MethodCancelled {
		var p protocol.CancelledParams
		if err := json.Unmarshal(env.Params, &p); err == nil {
			s.cancelInFlight(p.RequestID)
		}
		return
	}
	if env.Method == protocol.MethodInitialized {
		return
	}
	_, _ = s.router.Dispatch(ctx, env)
}

func (s *Server) handleRequest(ctx context.Context, env protocol.Envelope) *protocol.Envelope {
	if env.Method == protocol.MethodInitialize {
		return s.handleInitialize(ctx, env)
	}

	if !s.isInitialized() && !protocol.AllowedBeforeInitialize(env.Method) {
		resp := protocol.NewErrorResponse(env.ID, protocol.ErrorObjectFromError(
			tmcperrors.NewCapabilityError("client session not yet initialized", nil)))
		return &resp
	}

	reqCtx, cancel := context.WithCancel(ctx)
	if !s.trackInFlight(env.ID, cancel) {
		cancel()
		resp := protocol.NewErrorResponse(env.ID, protocol.ErrorObjectFromError(
			tmcperrors.NewInvalidRequestError("duplicate in-flight request id", nil)))
		return &resp
	}
	defer s.untrackInFlight(env.ID)
	defer cancel()

	reqCtx = reqcontext.WithDispatcherValue(reqCtx, dispatcherFunc(s.RequestClient))
	reqCtx = reqcontext.WithSessionValue(reqCtx, s.sessionID, "", "")

	resp, err := s.router.Dispatch(reqCtx, env)
	if err != nil {
		errResp := protocol.NewErrorResponse(env.ID, protocol.ErrorObjectFromError(err))
		return &errResp
	}
	return resp
}

type dispatcherFunc func(ctx context.Context, method string, params any) (protocol.Envelope, error)

func (f dispatcherFunc) Request(ctx context.Context, method string, params any) (protocol.Envelope, error) {
	return f(ctx, method, params)
}

func (s *Server) handleInitialize(ctx context.Context, env protocol.Envelope) *protocol.Envelope {
	var p protocol.InitializeParams
	if err := json.Unmarshal(env.Params, &p); err != nil {
		resp := protocol.NewErrorResponse(env.ID, protocol.ErrorObjectFromError(
			tmcperrors.NewInvalidArgumentError("invalid initialize params", err)))
		return &resp
	}

	resp, _ := s.router.Dispatch(ctx, env)

	s.initMu.Lock()
	s.initialized = true
	caps := p.Capabilities
	s.clientCaps = &caps
	s.initMu.Unlock()

	rec := session.NewRecord(s.sessionID, string(s.transport.Type()))
	rec.SetCapabilities(&caps)
	if err := s.sessions.AddRecord(rec); err != nil {
		// Re-initialization on an already-known id: refresh the snapshot.
		if existing, ok := s.sessions.Get(s.sessionID); ok {
			existing.SetCapabilities(&caps)
		}
	}
	return resp
}

func (s *Server) isInitialized() bool {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initialized
}

// ClientCapabilities returns the capability snapshot the client declared
// at initialize, or nil if initialize has not completed.
func (s *Server) ClientCapabilities() *protocol.ClientCapabilities {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.clientCaps
}

// trackInFlight registers an inbound request id, reporting false if the id
// is already in flight (a duplicate id on the same direction is a protocol
// error the caller must reject).
func (s *Server) trackInFlight(id protocol.MessageId, cancel context.CancelFunc) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if _, exists := s.inFlight[id]; exists {
		return false
	}
	s.inFlight[id] = cancel
	return true
}

func (s *Server) untrackInFlight(id protocol.MessageId) {
	s.inFlightMu.Lock()
	delete(s.inFlight, id)
	s.inFlightMu.Unlock()
}

func (s *Server) cancelInFlight(id protocol.MessageId) {
	s.inFlightMu.Lock()
	cancel, ok := s.inFlight[id]
	s.inFlightMu.Unlock()
	if ok {
		cancel()
	}
}

// RequestClient issues a server-initiated Request (sampling/createMessage, elicitation/create, roots/list, or ping) to the client through the
// correlator, gated on the client having advertised the matching
// capability
func (s *Server) RequestClient(ctx context.Context, method string, params any) (protocol.Envelope, error) {
	caps := s.ClientCapabilities()
	switch method {
	case protocol.MethodSamplingCreateMessage:
		if !caps.HasSampling() {
			return protocol.Envelope{}, tmcperrors.NewCapabilityError("client did not advertise sampling", nil)
		}
	case protocol.MethodElicitationCreate:
		if !caps.HasElicitation() {
			return protocol.Envelope{}, tmcperrors.NewCapabilityError("client did not advertise elicitation", nil)
		}
	case protocol.MethodRootsList:
		if !caps.HasRoots() {
			return protocol.Envelope{}, tmcperrors.NewCapabilityError("client did not advertise roots", nil)
		}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return protocol.Envelope{}, tmcperrors.NewInternalError("failed to marshal request params", err)
	}
	return s.correlator.Request(ctx, method, raw)
}

// NotifyListChanged sends a notifications/*/list_changed notification to
// the client, e.g. after registering a new tool at runtime It is the caller's responsibility to only call this when the
// matching capability was advertised with list_changed=true.
func (s *Server) NotifyListChanged(ctx context.Context, method string) error {
	return s.sendEnvelope(ctx, protocol.NewNotification(method, nil))
}

// Log emits a notifications/log notification.
func (s *Server) Log(ctx context.Context, level protocol.LoggingLevel, loggerName string, data any) error {
	raw, err := json.Marshal(protocol.LogMessageParams{Level: level, Logger: loggerName, Data: data})
	if err != nil {
		return err
	}
	return s.sendEnvelope(ctx, protocol.NewNotification(protocol.MethodNotificationsLog, raw))
}
