// Package wsconn implements the Transport contract over a WebSocket
// connection using gorilla/websocket. MCP messages are carried as text
// frames only; a peer sending a binary frame is treated as a protocol
// violation and closes the connection, since MCP's wire format is always
// UTF-8 JSON
package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/turbomcp/turbomcp/pkg/transport"
	transporterrors "github.com/turbomcp/turbomcp/pkg/transport/errors"
)

// Transport adapts a *websocket.Conn to transport.Transport.
type Transport struct {
	conn *websocket.Conn
	cfg  transport.Config

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

var upgrader = websocket.Upgrader{
	// Upgrade performs no origin check: every Origin is accepted, and the
	// Streamable HTTP server's allow-list does not sit in front of this
	// transport.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Dial connects to a ws:// or wss:// URL as a client.
func Dial(ctx context.Context, rawURL string, cfg transport.Config) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("wsconn: invalid url: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
	}
	if cfg.TLS != nil {
		tlsCfg, err := cfg.TLS.StdTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("wsconn: tls config: %w", err)
		}
		dialer.TLSClientConfig = tlsCfg
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: dial %s: %w", rawURL, err)
	}
	return New(conn, cfg), nil
}

// Upgrade promotes an inbound HTTP request to a WebSocket connection,
// returning a server-side Transport.
func Upgrade(w http.ResponseWriter, r *http.Request, cfg transport.Config) (*Transport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: upgrade: %w", err)
	}
	return New(conn, cfg), nil
}

// New wraps an already-established *websocket.Conn.
func New(conn *websocket.Conn, cfg transport.Config) *Transport {
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	return &Transport{conn: conn, cfg: cfg}
}

// Type implements transport.Transport.
func (*Transport) Type() transport.Type { return transport.TypeWebSocket }

// Send writes msg as a single text frame.
func (t *Transport) Send(ctx context.Context, msg transport.Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else if t.cfg.RequestTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.RequestTimeout))
	}
	defer t.conn.SetWriteDeadline(time.Time{})

	if err := t.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
		return transporterrors.ErrConnectionClosed
	}
	return nil
}

// Receive reads the next text frame. A binary frame closes the connection
// and returns transporterrors.ErrConnectionClosed, since binary frames are
// never valid MCP traffic.
func (t *Transport) Receive(ctx context.Context) (transport.Message, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	} else if t.cfg.ReadTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	}
	defer t.conn.SetReadDeadline(time.Time{})

	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		return transport.Message{}, transporterrors.ErrConnectionClosed
	}
	if kind != websocket.TextMessage {
		_ = t.Close()
		return transport.Message{}, transporterrors.ErrConnectionClosed
	}
	return transport.Message{Data: data}, nil
}

// Close sends a close frame and closes the underlying connection. Safe to
// call more than once.
func (t *Transport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return t.conn.Close()
}
