// ABOUTME: Tests for the SQLite connection audit log
// ABOUTME: Covers append, filtered listing, ordering, and limits

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndListConnectionEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &ConnectionEvent{
		UserID:    "alice",
		SessionID: "sess-1",
		Action:    ActionConnected,
	}
	require.NoError(t, s.AppendConnectionEvent(ctx, e))

	// ID and timestamp are generated when unset.
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())

	events, err := s.ListConnectionEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].UserID)
	assert.Equal(t, ActionConnected, events[0].Action)
}

func TestListConnectionEvents_FilterByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, user := range []string{"alice", "bob", "alice"} {
		require.NoError(t, s.AppendConnectionEvent(ctx, &ConnectionEvent{
			UserID:    user,
			SessionID: "sess",
			Action:    ActionConnected,
		}))
	}

	alice := "alice"
	events, err := s.ListConnectionEvents(ctx, EventFilter{UserID: &alice})
	require.NoError(t, err)
	assert.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "alice", e.UserID)
	}
}

func TestListConnectionEvents_FilterBySince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := &ConnectionEvent{
		UserID:    "alice",
		SessionID: "sess-1",
		Action:    ActionConnected,
		Timestamp: time.Now().UTC().Add(-time.Hour),
	}
	recent := &ConnectionEvent{
		UserID:    "alice",
		SessionID: "sess-1",
		Action:    ActionDisconnected,
		Reason:    "transport failure",
	}
	require.NoError(t, s.AppendConnectionEvent(ctx, old))
	require.NoError(t, s.AppendConnectionEvent(ctx, recent))

	since := time.Now().UTC().Add(-time.Minute)
	events, err := s.ListConnectionEvents(ctx, EventFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionDisconnected, events[0].Action)
	assert.Equal(t, "transport failure", events[0].Reason)
}

func TestListConnectionEvents_NewestFirstAndLimited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendConnectionEvent(ctx, &ConnectionEvent{
			UserID:    "alice",
			SessionID: fmt.Sprintf("sess-%d", i),
			Action:    ActionConnected,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := s.ListConnectionEvents(ctx, EventFilter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "sess-9", events[0].SessionID)
	assert.Equal(t, "sess-8", events[1].SessionID)
	assert.Equal(t, "sess-7", events[2].SessionID)
}

func TestListConnectionEvents_Empty(t *testing.T) {
	s := newTestStore(t)

	events, err := s.ListConnectionEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}
