package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory() (Factory, *int32) {
	var created int32
	f := func(id string) *Record {
		created++
		return NewRecord(id, "test")
	}
	return f, &created
}

func TestAddAndGet(t *testing.T) {
	t.Parallel()
	factory, _ := newTestFactory()
	m := NewManager(time.Hour, factory)
	defer m.Stop()

	require.NoError(t, m.AddWithID("foo"))
	rec, ok := m.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "foo", rec.ID())
}

func TestAddDuplicateFails(t *testing.T) {
	t.Parallel()
	factory, _ := newTestFactory()
	m := NewManager(time.Hour, factory)
	defer m.Stop()

	require.NoError(t, m.AddWithID("dup"))
	err := m.AddWithID("dup")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()
	factory, _ := newTestFactory()
	m := NewManager(time.Hour, factory)
	defer m.Stop()

	require.NoError(t, m.AddWithID("del"))
	m.Delete("del")

	_, ok := m.Get("del")
	assert.False(t, ok)
}

func TestGetTouchesActivity(t *testing.T) {
	t.Parallel()
	factory, _ := newTestFactory()
	m := NewManager(time.Hour, factory)
	defer m.Stop()

	require.NoError(t, m.AddWithID("touch"))
	rec, _ := m.Get("touch")
	idle0 := rec.IdleSince()

	time.Sleep(5 * time.Millisecond)
	_, _ = m.Get("touch")
	idle1 := rec.IdleSince()
	assert.Less(t, idle1, idle0+5*time.Millisecond)
}

func TestCleanupExpiredOnceRemovesIdleSessions(t *testing.T) {
	t.Parallel()
	factory, _ := newTestFactory()
	ttl := 20 * time.Millisecond
	m := NewManager(ttl, factory)
	m.Stop() // halt the ticker so only the explicit cleanupExpiredOnce call below removes sessions

	require.NoError(t, m.AddWithID("old"))
	rec, _ := m.Get("old")
	time.Sleep(ttl * 2)

	removed := m.cleanupExpiredOnce()
	assert.Equal(t, 1, removed)
	_, ok := m.Get("old")
	assert.False(t, ok)
	_ = rec
}

func TestStopHaltsBackgroundCleanup(t *testing.T) {
	t.Parallel()
	factory, _ := newTestFactory()
	ttl := 20 * time.Millisecond
	m := NewManager(ttl, factory)
	m.Stop()

	require.NoError(t, m.AddWithID("stay"))
	time.Sleep(ttl * 3)

	_, ok := m.Get("stay")
	assert.True(t, ok, "Stop must halt the background cleanup goroutine")
}

func TestCountAndRange(t *testing.T) {
	t.Parallel()
	factory, _ := newTestFactory()
	m := NewManager(time.Hour, factory)
	defer m.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.AddWithID(id))
	}
	assert.Equal(t, 3, m.Count())

	var collected []string
	m.Range(func(id string, _ *Record) bool {
		collected = append(collected, id)
		return true
	})
	assert.ElementsMatch(t, []string{"a", "b", "c"}, collected)
}

func TestRangeEarlyStop(t *testing.T) {
	t.Parallel()
	factory, _ := newTestFactory()
	m := NewManager(time.Hour, factory)
	defer m.Stop()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.AddWithID(id))
	}

	count := 0
	m.Range(func(string, *Record) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestAddRecordValidatesInput(t *testing.T) {
	t.Parallel()
	factory, _ := newTestFactory()
	m := NewManager(time.Hour, factory)
	defer m.Stop()

	assert.Error(t, m.AddRecord(nil))
	assert.Error(t, m.AddRecord(&Record{}))

	require.NoError(t, m.AddRecord(NewRecord("custom-1", "ws")))
	rec, ok := m.Get("custom-1")
	require.True(t, ok)
	assert.Equal(t, "ws", rec.TransportType())
}
