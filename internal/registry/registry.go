// ABOUTME: Authoritative online-user table mapping user IDs to session IDs.
// ABOUTME: Single source of truth for who is currently connected.

package registry

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry tracks which users currently hold an active connection.
// It maps each user ID to at most one session ID; a new connection from the
// same user replaces the previous mapping (last-connected-wins). The
// underlying map is never exposed — all access goes through Register,
// Unregister, and Snapshot, serialized by a single mutex.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]string // userID -> sessionID
	logger   *slog.Logger
}

// New creates an empty Registry. Pass nil logger for default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]string),
		logger:   logger.With("component", "registry"),
	}
}

// Register inserts or overwrites the mapping for userID.
// Returns the previous session ID and whether an entry was replaced, so the
// caller can decide what to do with the superseded connection.
func (r *Registry) Register(userID, sessionID string) (prev string, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced = r.sessions[userID]
	r.sessions[userID] = sessionID

	r.logger.Info("user registered",
		"user_id", userID,
		"session_id", sessionID,
		"replaced", replaced,
		"online", len(r.sessions),
	)
	return prev, replaced
}

// Unregister removes the mapping for userID only if the currently stored
// session ID equals sessionID. This guards against a stale disconnect racing
// a newer connect: the old session's teardown cannot remove the new entry.
// Returns true if an entry was removed. Calling it again with the same
// arguments is a no-op, so disconnect handling is idempotent by construction.
func (r *Registry) Unregister(userID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current != sessionID {
		return false
	}

	delete(r.sessions, userID)
	r.logger.Info("user unregistered",
		"user_id", userID,
		"session_id", sessionID,
		"online", len(r.sessions),
	)
	return true
}

// Snapshot returns the current online-user set as a sorted slice.
// The result is a consistent point-in-time view: it is built under the lock
// and never aliases internal state.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// SessionFor returns the session ID currently mapped to userID, if any.
// Used to route direct events to a specific online user.
func (r *Registry) SessionFor(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.sessions[userID]
	return sessionID, ok
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
