// Package errors holds sentinel errors shared across transport
// implementations, checked with errors.Is rather than string matching.
package errors

import "errors"

var (
	// ErrUnsupportedTransport is returned by ParseTransportType for any
	// input that does not name a known transport.
	ErrUnsupportedTransport = errors.New("unsupported transport type")

	// ErrConnectionClosed is returned by Send/Receive once a transport's
	// connection has been closed.
	ErrConnectionClosed = errors.New("transport connection closed")

	// ErrFrameTooLarge is returned when a frame exceeds the configured
	// max_request_size/max_response_size.
	ErrFrameTooLarge = errors.New("frame exceeds configured size limit")

	// ErrNotConnected is returned when an operation needs an established
	// session that does not exist yet (the Streamable HTTP client's
	// OpenStream before the server has assigned a session id).
	ErrNotConnected = errors.New("transport is not connected")

	// ErrCommandNotSet is returned by the child-process transport when no
	// command name was supplied to spawn.
	ErrCommandNotSet = errors.New("child process command not set")

	// ErrHandshakeTimeout is returned when dialing a socket does not
	// complete within the configured connect timeout.
	ErrHandshakeTimeout = errors.New("transport connect timed out")
)
