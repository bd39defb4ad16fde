package streamablehttp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStoreCreateGetDelete(t *testing.T) {
	t.Parallel()
	store := newSessionStore()

	sess := store.create()
	require.NotEmpty(t, sess.id)

	got := store.get(sess.id)
	require.NotNil(t, got)
	assert.Equal(t, sess.id, got.id)

	assert.True(t, store.delete(sess.id))
	assert.Nil(t, store.get(sess.id))
	assert.False(t, store.delete(sess.id), "deleting twice should report false the second time")
}

func TestSessionAppendAssignsMonotonicIDs(t *testing.T) {
	t.Parallel()
	sess := newHTTPSession()

	m1 := sess.append(NewSSEMessage("message", "one"))
	m2 := sess.append(NewSSEMessage("message", "two"))

	assert.Equal(t, int64(1), m1.ID)
	assert.Equal(t, int64(2), m2.ID)
}

func TestSessionReplayAfterFiltersByID(t *testing.T) {
	t.Parallel()
	sess := newHTTPSession()
	sess.append(NewSSEMessage("message", "one"))
	sess.append(NewSSEMessage("message", "two"))
	sess.append(NewSSEMessage("message", "three"))

	replayed := sess.replayAfter(1)
	require.Len(t, replayed, 2)
	assert.Equal(t, "two", replayed[0].Data)
	assert.Equal(t, "three", replayed[1].Data)
}

func TestSessionEventBacklogIsBounded(t *testing.T) {
	t.Parallel()
	sess := newHTTPSession()
	for i := 0; i < defaultEventBacklog+10; i++ {
		sess.append(NewSSEMessage("message", "x"))
	}
	assert.Len(t, sess.events, defaultEventBacklog)
	// oldest retained event should be the 11th appended (ids are 1-based).
	assert.Equal(t, int64(11), sess.events[0].ID)
}

func TestSessionIdleSinceAndTouch(t *testing.T) {
	t.Parallel()
	sess := newHTTPSession()
	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, sess.idleSince(), time.Duration(0))

	sess.touch()
	assert.Less(t, sess.idleSince(), 5*time.Millisecond)
}

func TestSessionStoreExpireIdle(t *testing.T) {
	t.Parallel()
	store := newSessionStore()
	sess := store.create()

	removed := store.expireIdle(time.Hour)
	assert.Equal(t, 0, removed, "a fresh session must not expire under a generous ttl")

	time.Sleep(5 * time.Millisecond)
	removed = store.expireIdle(time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Nil(t, store.get(sess.id))
}
