package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/turbomcp/turbomcp/pkg/logger"
	transporterrors "github.com/turbomcp/turbomcp/pkg/transport/errors"
)

// DefaultShutdownTimeout bounds how long Close waits for a child to exit
// after its stdin closes before killing it.
const DefaultShutdownTimeout = 10 * time.Second

// ChildProcessTransport launches a subprocess and frames MCP messages over
// its stdin/stdout, the shape used to run an MCP server as a managed child
// rather than connect to one already listening Stderr
// is drained to the logger rather than surfaced on the Transport, matching
// the convention that MCP traffic never touches stderr.
type ChildProcessTransport struct {
	cmd             *exec.Cmd
	stdio           *StdioTransport
	shutdownTimeout time.Duration

	waitOnce sync.Once
	waitErr  error
}

// StartChildProcess spawns name with args and wires its stdio into a
// StdioTransport. The returned transport owns the process: Close waits for
// it to exit, killing it once DefaultShutdownTimeout elapses.
func StartChildProcess(ctx context.Context, name string, args []string, cfg Config) (*ChildProcessTransport, error) {
	if name == "" {
		return nil, transporterrors.ErrCommandNotSet
	}
	cmd := exec.CommandContext(ctx, name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: child process stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: child process stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: child process stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: start child process %q: %w", name, err)
	}

	go drainStderr(name, stderr)

	t := &ChildProcessTransport{
		cmd:             cmd,
		stdio:           NewStdioTransport(stdout, stdin, cfg),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	return t, nil
}

func drainStderr(name string, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			logger.Warn("child process stderr", slog.String("process", name), slog.String("line", string(buf[:n])))
		}
		if err != nil {
			return
		}
	}
}

// Type implements Transport.
func (*ChildProcessTransport) Type() Type { return TypeChildProcess }

// Send implements Transport by delegating to the underlying stdio framing.
func (t *ChildProcessTransport) Send(ctx context.Context, msg Message) error {
	return t.stdio.Send(ctx, msg)
}

// Receive implements Transport by delegating to the underlying stdio framing.
func (t *ChildProcessTransport) Receive(ctx context.Context) (Message, error) {
	return t.stdio.Receive(ctx)
}

// Close closes the child's stdin (signaling it to exit) and waits for the
// process to terminate, killing it if it has not exited within the
// shutdown timeout. Safe to call more than once; the process's exit error
// is remembered and returned to every caller.
func (t *ChildProcessTransport) Close() error {
	_ = t.stdio.Close()
	t.waitOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- t.cmd.Wait() }()
		select {
		case t.waitErr = <-done:
		case <-time.After(t.shutdownTimeout):
			logger.Warn("child process did not exit in time, killing it",
				slog.Duration("timeout", t.shutdownTimeout))
			_ = t.cmd.Process.Kill()
			t.waitErr = <-done
		}
	})
	if t.waitErr != nil {
		return fmt.Errorf("%w: %s", transporterrors.ErrConnectionClosed, t.waitErr)
	}
	return nil
}
