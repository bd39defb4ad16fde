package server

import (
	"github.com/turbomcp/turbomcp/pkg/protocol"
)

// ConnectionState is a read-only diagnostic snapshot of one server
// connection: whether the handshake completed, whether server-initiated
// requests are possible against the client's advertised capabilities, and
// which request ids are currently in motion in each direction.
type ConnectionState struct {
	SessionID   string
	Initialized bool

	// ServerRequestsEnabled reports whether the client advertised at least
	// one capability (sampling, elicitation, roots) that a server-initiated
	// Request could target.
	ServerRequestsEnabled bool

	// PendingServerRequests lists outbound server-to-client request ids
	// still awaiting a client Response.
	PendingServerRequests []protocol.MessageId

	// InFlightRequests lists inbound client request ids whose handlers are
	// still running.
	InFlightRequests []protocol.MessageId

	// ActiveElicitations counts this session's unresolved elicitations.
	ActiveElicitations int
}

// State captures the connection's current diagnostic snapshot. The snapshot
// is consistent per field, not across fields; it is for observability, not
// for gating behavior.
func (s *Server) State() ConnectionState {
	caps := s.ClientCapabilities()

	s.inFlightMu.Lock()
	inFlight := make([]protocol.MessageId, 0, len(s.inFlight))
	for id := range s.inFlight {
		inFlight = append(inFlight, id)
	}
	s.inFlightMu.Unlock()

	st := ConnectionState{
		SessionID:             s.sessionID,
		Initialized:           s.isInitialized(),
		ServerRequestsEnabled: caps != nil && (caps.HasSampling() || caps.HasElicitation() || caps.HasRoots()),
		PendingServerRequests: s.correlator.PendingIDs(),
		InFlightRequests:      inFlight,
	}
	if rec, ok := s.sessions.Get(s.sessionID); ok {
		st.ActiveElicitations = rec.ActiveElicitations()
	}
	return st
}
