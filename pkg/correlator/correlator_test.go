package correlator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/tmcperrors"
)

// recordingSender captures every envelope handed to Send and lets a test
// drive a matching response back through the correlator.
type recordingSender struct {
	mu   sync.Mutex
	sent []protocol.Envelope
	fail error
}

func (s *recordingSender) Send(_ context.Context, env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *recordingSender) last() protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func TestRequestDeliversMatchingResponse(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}
	c := New(sender)

	var resp protocol.Envelope
	var err error
	done := make(chan struct{})
	go func() {
		resp, err = c.Request(context.Background(), protocol.MethodPing, nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(sender.sent) == 1 }, time.Second, time.Millisecond)
	outbound := sender.last()
	assert.Equal(t, protocol.MethodPing, outbound.Method)

	c.HandleResponse(protocol.NewResultResponse(outbound.ID, nil))

	<-done
	require.NoError(t, err)
	assert.True(t, resp.ID.Equal(outbound.ID))
}

func TestUnmatchedResponseIsDroppedSilently(t *testing.T) {
	t.Parallel()
	c := New(&recordingSender{})
	assert.NotPanics(t, func() {
		c.HandleResponse(protocol.NewResultResponse(protocol.NumberID(999), nil))
	})
}

func TestRequestTimesOut(t *testing.T) {
	t.Parallel()
	c := New(&recordingSender{}, WithDefaultTimeout(10*time.Millisecond))

	_, err := c.Request(context.Background(), protocol.MethodPing, nil)
	require.Error(t, err)
	var tErr *tmcperrors.Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, tmcperrors.ErrTimeout, tErr.Type)
	assert.Equal(t, 0, c.Pending())
}

func TestCancelResolvesWaiterAndDropsLateResponse(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}
	c := New(sender, WithDefaultTimeout(time.Minute))

	var err error
	done := make(chan struct{})
	go func() {
		_, err = c.Request(context.Background(), protocol.MethodPing, nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(sender.sent) == 1 }, time.Second, time.Millisecond)
	id := sender.last().ID

	require.True(t, c.Cancel(id))
	<-done
	var tErr *tmcperrors.Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, tmcperrors.ErrCancelled, tErr.Type)

	// A late response for the same id must not panic or deliver twice.
	assert.NotPanics(t, func() {
		c.HandleResponse(protocol.NewResultResponse(id, nil))
	})
}

func TestContextCancellationResolvesWaiter(t *testing.T) {
	t.Parallel()
	c := New(&recordingSender{}, WithDefaultTimeout(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())

	var err error
	done := make(chan struct{})
	go func() {
		_, err = c.Request(ctx, protocol.MethodPing, nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
	assert.Error(t, err)
}

func TestCloseResolvesAllPendingAsClosed(t *testing.T) {
	t.Parallel()
	c := New(&recordingSender{}, WithDefaultTimeout(time.Minute))

	errs := make([]error, 3)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Request(context.Background(), protocol.MethodPing, nil)
		}(i)
	}

	require.Eventually(t, func() bool { return c.Pending() == 3 }, time.Second, time.Millisecond)
	c.Close()
	wg.Wait()

	for _, err := range errs {
		assert.Error(t, err)
	}

	_, err := c.Request(context.Background(), protocol.MethodPing, nil)
	assert.Error(t, err, "correlator must refuse new requests after Close")
}

func TestNextIDIsMonotonicAndUnique(t *testing.T) {
	t.Parallel()
	c := New(&recordingSender{})
	seen := make(map[protocol.MessageId]bool)
	for i := 0; i < 100; i++ {
		id := c.NextID()
		assert.False(t, seen[id], "duplicate id allocated")
		seen[id] = true
	}
}
