package streamablehttp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/turbomcp/turbomcp/pkg/logger"
	"github.com/turbomcp/turbomcp/pkg/transport"
	transporterrors "github.com/turbomcp/turbomcp/pkg/transport/errors"
)

// Client is the client side of the Streamable HTTP transport: it POSTs
// framed envelopes to the server's MCP endpoint and surfaces whatever comes
// back — a single JSON body or a stream of SSE events — as inbound frames
// on Receive. It satisfies transport.Transport so a pkg/client.Client can
// run over it unchanged.
type Client struct {
	endpoint string
	cfg      transport.Config

	postClient   *http.Client
	streamClient *http.Client

	mu          sync.Mutex
	sessionID   string
	lastEventID int64
	closed      bool

	recv    chan transport.Message
	closeCh chan struct{}

	streamWG sync.WaitGroup
}

// NewClient builds a Client POSTing to endpoint (the server's full MCP URL,
// e.g. "https://host:8080/mcp"). TLS and timeout behavior come from cfg;
// the standing GET stream is read through a client with no timeout, so
// cfg.RequestTimeout does not apply to it and no read-inactivity limit ends it.
func NewClient(endpoint string, cfg transport.Config) (*Client, error) {
	tr := &http.Transport{}
	if cfg.TLS != nil {
		tlsCfg, err := cfg.TLS.StdTLSConfig()
		if err != nil {
			return nil, err
		}
		tr.TLSClientConfig = tlsCfg
	}
	return &Client{
		endpoint: endpoint,
		cfg:      cfg,
		postClient: &http.Client{
			Transport: tr,
			Timeout:   cfg.RequestTimeout,
		},
		// No overall timeout: an SSE response body outlives any single
		// request deadline.
		streamClient: &http.Client{Transport: tr},
		recv:         make(chan transport.Message, 64),
		closeCh:      make(chan struct{}),
	}, nil
}

// Type implements transport.Transport.
func (*Client) Type() transport.Type { return transport.TypeStreamableHTTP }

// SessionID returns the session id the server assigned on the first
// response, or "" before any exchange has completed.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// LastEventID returns the highest SSE event id observed so far, the value a
// reconnect sends as Last-Event-ID to request replay.
func (c *Client) LastEventID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

// Send implements transport.Transport: it POSTs one frame to the MCP
// endpoint. A JSON response body becomes one inbound frame; a
// text/event-stream response is consumed in the background, each event
// becoming one inbound frame; 202 Accepted (a notification with no
// response) produces nothing.
func (c *Client) Send(ctx context.Context, msg transport.Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transporterrors.ErrConnectionClosed
	}
	sessID := c.sessionID
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(msg.Data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessID != "" {
		req.Header.Set(SessionIDHeader, sessID)
	}

	resp, err := c.postClient.Do(req)
	if err != nil {
		return err
	}

	c.adoptSessionID(resp.Header.Get(SessionIDHeader))

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		resp.Body.Close()
		return transporterrors.ErrFrameTooLarge
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		// Protocol-level errors arrive as JSON-RPC error envelopes with a
		// 2xx status; anything else here is the HTTP layer refusing us.
		logger.Warn("streamable http request rejected",
			"status", resp.StatusCode, "body", strings.TrimSpace(string(body)))
		return transporterrors.ErrConnectionClosed
	}

	switch {
	case resp.StatusCode == http.StatusAccepted:
		resp.Body.Close()
		return nil
	case strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"):
		c.streamWG.Add(1)
		go func() {
			defer c.streamWG.Done()
			defer resp.Body.Close()
			c.consumeSSE(resp.Body)
		}()
		return nil
	default:
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.cfg.MaxMessageSize)+1))
		if err != nil {
			return err
		}
		if len(data) > c.cfg.MaxMessageSize {
			return transporterrors.ErrFrameTooLarge
		}
		if len(data) == 0 {
			return nil
		}
		return c.deliver(transport.Message{Data: data})
	}
}

// Receive implements transport.Transport: it yields the next inbound frame,
// whether it arrived as a POST response body, a POST-upgraded SSE event, or
// an event on the standing GET stream.
func (c *Client) Receive(ctx context.Context) (transport.Message, error) {
	select {
	case msg := <-c.recv:
		return msg, nil
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	case <-c.closeCh:
		// Drain anything already queued before reporting closed.
		select {
		case msg := <-c.recv:
			return msg, nil
		default:
			return transport.Message{}, transporterrors.ErrConnectionClosed
		}
	}
}

// OpenStream opens the standing GET SSE stream carrying server-initiated
// requests and notifications, reconnecting with Last-Event-ID on stream
// failure until ctx is done or the client is closed. It requires a session
// id, so it must follow the first successful Send.
func (c *Client) OpenStream(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transporterrors.ErrConnectionClosed
	}
	if c.sessionID == "" {
		c.mu.Unlock()
		return transporterrors.ErrNotConnected
	}
	c.mu.Unlock()

	c.streamWG.Add(1)
	go func() {
		defer c.streamWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closeCh:
				return
			default:
			}
			if err := c.runStream(ctx); err != nil {
				logger.Debug("streamable http stream ended", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-c.closeCh:
				return
			case <-time.After(time.Second):
			}
		}
	}()
	return nil
}

func (c *Client) runStream(ctx context.Context) error {
	c.mu.Lock()
	sessID := c.sessionID
	lastID := c.lastEventID
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(SessionIDHeader, sessID)
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return transporterrors.ErrConnectionClosed
	}
	c.consumeSSE(resp.Body)
	return nil
}

// consumeSSE reads text/event-stream framing off r, recording event ids and
// delivering each event's data payload as one inbound frame. Returns when r
// is exhausted or the client closes.
func (c *Client) consumeSSE(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), c.cfg.MaxMessageSize)

	var (
		id       int64
		dataSeen bool
		data     strings.Builder
	)
	flush := func() {
		if !dataSeen {
			return
		}
		if id > 0 {
			c.mu.Lock()
			if id > c.lastEventID {
				c.lastEventID = id
			}
			c.mu.Unlock()
		}
		_ = c.deliver(transport.Message{Data: []byte(data.String())})
		id, dataSeen = 0, false
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "id:"):
			id = ParseLastEventID(strings.TrimSpace(line[len("id:"):]))
		case strings.HasPrefix(line, "data:"):
			if dataSeen {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line[len("data:"):], " "))
			dataSeen = true
		}
		// "event:" and comment lines need no handling: every payload is a
		// JSON envelope regardless of event name.
	}
	flush()
}

func (c *Client) deliver(msg transport.Message) error {
	select {
	case c.recv <- msg:
		return nil
	case <-c.closeCh:
		return transporterrors.ErrConnectionClosed
	}
}

func (c *Client) adoptSessionID(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	if c.sessionID == "" {
		c.sessionID = id
	}
	c.mu.Unlock()
}

// Close implements transport.Transport: it terminates the server-side
// session with a best-effort DELETE, stops all streams, and unblocks any
// pending Receive. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sessID := c.sessionID
	c.mu.Unlock()

	close(c.closeCh)

	if sessID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint, nil)
		if err == nil {
			req.Header.Set(SessionIDHeader, sessID)
			if resp, err := c.postClient.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}

	c.streamWG.Wait()
	return nil
}
