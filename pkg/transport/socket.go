package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	transporterrors "github.com/turbomcp/turbomcp/pkg/transport/errors"
)

// SocketTransport frames messages over a raw net.Conn (TCP or Unix domain socket) with a 4-byte big-endian length prefix, the framing used when no
// higher-level protocol (HTTP, WebSocket) is available
type SocketTransport struct {
	conn net.Conn
	cfg  Config

	writeMu sync.Mutex
	readMu  sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// DialSocket connects to a TCP or Unix socket address. network is "tcp" or
// "unix", matching net.Dial's convention.
func DialSocket(ctx context.Context, network, address string, cfg Config) (*SocketTransport, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}

	var conn net.Conn
	var err error
	if cfg.TLS != nil {
		tlsCfg, tlsErr := cfg.TLS.StdTLSConfig()
		if tlsErr != nil {
			return nil, fmt.Errorf("transport: dial %s %s: %w", network, address, tlsErr)
		}
		tlsDialer := tls.Dialer{NetDialer: &dialer, Config: tlsCfg}
		conn, err = tlsDialer.DialContext(ctx, network, address)
	} else {
		conn, err = dialer.DialContext(ctx, network, address)
	}
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("transport: dial %s %s: %w", network, address, transporterrors.ErrHandshakeTimeout)
		}
		return nil, fmt.Errorf("transport: dial %s %s: %w", network, address, err)
	}
	return NewSocketTransport(conn, cfg), nil
}

// NewSocketTransport wraps an already-established connection.
func NewSocketTransport(conn net.Conn, cfg Config) *SocketTransport {
	return &SocketTransport{conn: conn, cfg: cfg}
}

// Type implements Transport.
func (*SocketTransport) Type() Type { return TypeSocket }

// Send writes the frame's length prefix followed by its bytes.
func (t *SocketTransport) Send(ctx context.Context, msg Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else if t.cfg.RequestTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.RequestTimeout))
	}
	defer t.conn.SetWriteDeadline(time.Time{})

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(msg.Data)))
	if _, err := t.conn.Write(header[:]); err != nil {
		return transporterrors.ErrConnectionClosed
	}
	if _, err := t.conn.Write(msg.Data); err != nil {
		return transporterrors.ErrConnectionClosed
	}
	return nil
}

// Receive reads one length-prefixed frame, rejecting any frame whose
// declared length exceeds the configured maximum before reading its body.
func (t *SocketTransport) Receive(ctx context.Context) (Message, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	} else if t.cfg.ReadTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	}
	defer t.conn.SetReadDeadline(time.Time{})

	var header [4]byte
	if _, err := io.ReadFull(t.conn, header[:]); err != nil {
		return Message{}, transporterrors.ErrConnectionClosed
	}
	size := binary.BigEndian.Uint32(header[:])

	maxSize := t.cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if int(size) > maxSize {
		_ = t.Close()
		return Message{}, transporterrors.ErrFrameTooLarge
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(t.conn, data); err != nil {
		return Message{}, transporterrors.ErrConnectionClosed
	}
	return Message{Data: data}, nil
}

// Close closes the underlying connection. Safe to call more than once.
func (t *SocketTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
