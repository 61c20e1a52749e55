// ABOUTME: Tests for the online-user registry.
// ABOUTME: Covers replacement, stale unregister guards, idempotency, and concurrent access.

package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndSnapshot(t *testing.T) {
	r := New(nil)

	_, replaced := r.Register("alice", "sess-1")
	assert.False(t, replaced)

	_, replaced = r.Register("bob", "sess-2")
	assert.False(t, replaced)

	assert.Equal(t, []string{"alice", "bob"}, r.Snapshot())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_RegisterReplacesSameUser(t *testing.T) {
	r := New(nil)

	r.Register("alice", "sess-1")
	prev, replaced := r.Register("alice", "sess-2")

	require.True(t, replaced)
	assert.Equal(t, "sess-1", prev)

	// Still exactly one entry for alice.
	assert.Equal(t, []string{"alice"}, r.Snapshot())

	sessionID, ok := r.SessionFor("alice")
	require.True(t, ok)
	assert.Equal(t, "sess-2", sessionID)
}

func TestRegistry_Unregister(t *testing.T) {
	r := New(nil)
	r.Register("alice", "sess-1")

	assert.True(t, r.Unregister("alice", "sess-1"))
	assert.Empty(t, r.Snapshot())

	// Idempotent: second call with the same arguments is a no-op.
	assert.False(t, r.Unregister("alice", "sess-1"))
}

func TestRegistry_StaleUnregisterKeepsNewerEntry(t *testing.T) {
	r := New(nil)

	r.Register("bob", "sess-old")
	r.Register("bob", "sess-new")

	// The old session's disconnect fires after the reconnect.
	removed := r.Unregister("bob", "sess-old")
	assert.False(t, removed)
	assert.Equal(t, []string{"bob"}, r.Snapshot())

	// The current session can still be removed normally.
	assert.True(t, r.Unregister("bob", "sess-new"))
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_UnregisterUnknownUser(t *testing.T) {
	r := New(nil)
	assert.False(t, r.Unregister("ghost", "sess-1"))
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := New(nil)
	r.Register("alice", "sess-1")

	snap := r.Snapshot()
	snap[0] = "mutated"

	assert.Equal(t, []string{"alice"}, r.Snapshot())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n)
			sessionID := fmt.Sprintf("sess-%d", n)
			r.Register(userID, sessionID)
			r.Snapshot()
			r.Unregister(userID, sessionID)
		}(i)
	}
	wg.Wait()

	// Every register was paired with a matching unregister.
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_ConnectDisconnectSequenceSettles(t *testing.T) {
	r := New(nil)

	// Arbitrary sequence of connects and disconnects; after it settles the
	// snapshot must equal exactly the set of users with a live session.
	r.Register("a", "a1")
	r.Register("b", "b1")
	r.Unregister("a", "a1")
	r.Register("a", "a2")
	r.Register("c", "c1")
	r.Unregister("b", "b1")
	r.Unregister("c", "c1")

	assert.Equal(t, []string{"a"}, r.Snapshot())
}
