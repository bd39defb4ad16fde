package streamablehttp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SSEMessage is one server-sent event queued for delivery on a session's
// event stream, carrying an id so a reconnecting client can resume via
// Last-Event-ID
type SSEMessage struct {
	ID        int64
	EventType string
	Data      string
	CreatedAt time.Time
}

// NewSSEMessage builds an SSEMessage with id 0; callers assign the final id
// when appending it to a session's event store.
func NewSSEMessage(eventType, data string) *SSEMessage {
	return &SSEMessage{
		EventType: eventType,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// WithID sets the message's event id and returns it, for fluent construction
// when appending to the store.
func (m *SSEMessage) WithID(id int64) *SSEMessage {
	m.ID = id
	return m
}

// ToSSEString renders the message in the text/event-stream wire format:
// an "id:" line when ID is non-zero, one "event:" line, one "data:" line
// per line of Data (a multi-line payload becomes multiple data: lines per the SSE spec), and a trailing blank line.
func (m *SSEMessage) ToSSEString() string {
	var b strings.Builder
	if m.ID != 0 {
		fmt.Fprintf(&b, "id: %d\n", m.ID)
	}
	fmt.Fprintf(&b, "event: %s\n", m.EventType)
	for _, line := range strings.Split(m.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}

// ParseLastEventID parses the Last-Event-ID header/query value a
// reconnecting client supplies. An empty or unparsable value yields 0,
// meaning "replay everything retained".
func ParseLastEventID(raw string) int64 {
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
