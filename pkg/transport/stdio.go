package transport

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/turbomcp/turbomcp/pkg/logger"
	transporterrors "github.com/turbomcp/turbomcp/pkg/transport/errors"
)

// StdioTransport frames MCP messages as newline-delimited JSON over a pair
// of byte streams, the shape used when a server is launched as a child
// process and talks to its parent over its own stdin/stdout
type StdioTransport struct {
	in  *bufio.Reader
	out io.Writer

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
	closer  io.Closer

	maxMessageSize int
}

// NewStdioTransport wraps an input/output stream pair. If out also
// implements io.Closer, Close will close it.
func NewStdioTransport(in io.Reader, out io.Writer, cfg Config) *StdioTransport {
	t := &StdioTransport{
		in:             bufio.NewReaderSize(in, 64*1024),
		out:            out,
		maxMessageSize: cfg.MaxMessageSize,
	}
	if c, ok := out.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// Type implements Transport.
func (*StdioTransport) Type() Type { return TypeStdio }

// Send writes one frame followed by a newline. Concurrent Send calls are
// serialized.
func (t *StdioTransport) Send(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if t.isClosed() {
		return transporterrors.ErrConnectionClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.out.Write(msg.Data); err != nil {
		return transporterrors.ErrConnectionClosed
	}
	if _, err := t.out.Write([]byte{'\n'}); err != nil {
		return transporterrors.ErrConnectionClosed
	}
	return nil
}

// Receive reads the next newline-delimited, sanitized JSON line. Lines that
// sanitize down to nothing (stray control bytes, partial fragments a misbehaving child process may emit on stdout before its first real message) are skipped rather than surfaced as an error. A line exceeding the
// configured max size fails the connection with ErrFrameTooLarge.
func (t *StdioTransport) Receive(ctx context.Context) (Message, error) {
	for {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		default:
		}
		if t.isClosed() {
			return Message{}, transporterrors.ErrConnectionClosed
		}

		line, err := t.in.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" {
				return Message{}, transporterrors.ErrConnectionClosed
			}
			if err != io.EOF {
				return Message{}, transporterrors.ErrConnectionClosed
			}
		}

		clean := sanitizeJSONString(line)
		if clean == "" {
			if err == io.EOF {
				return Message{}, transporterrors.ErrConnectionClosed
			}
			continue
		}

		if t.maxMessageSize > 0 && len(clean) > t.maxMessageSize {
			logger.Warn("stdio transport received oversize frame", slog.Int("size", len(clean)))
			_ = t.Close()
			return Message{}, transporterrors.ErrFrameTooLarge
		}

		return Message{Data: []byte(clean)}, nil
	}
}

func (t *StdioTransport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}

// Close shuts down the underlying writer, if closable, and fails any
// subsequent Send/Receive. Safe to call more than once.
func (t *StdioTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// isSpace reports whether r is a space or newline; stdio framing treats
// only those two as insignificant whitespace to trim, preserving tabs and
// carriage returns as potential JSON payload noise worth stripping
// explicitly rather than silently losing via a broader trim set.
func isSpace(r rune) bool {
	return r == ' ' || r == '\n'
}

// sanitizeJSONString strips the Unicode replacement character and ASCII
// control bytes a misbehaving child process can interleave with valid JSON
// on a shared stdout stream, then extracts the outermost {...} object if
// the line carries leading or trailing noise around it.
func sanitizeJSONString(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '�' || (r < 0x20 && r != '\t' && r != '\r') {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimFunc(b.String(), isSpace)
	if cleaned == "" || cleaned == "[]" {
		return ""
	}

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return cleaned[start : end+1]
}
