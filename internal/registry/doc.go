// Package registry maintains the authoritative table of online users.
//
// The registry maps each user ID to the session ID of its live connection.
// Keys are unique: at most one entry per user, with last-connected-wins
// replacement when the same user opens a second connection. Entries are
// created on successful authenticated connect and removed on disconnect of
// the currently mapped session — removal is purely event-driven, nothing
// expires on a timer.
//
// Unregister only removes an entry when the stored session ID matches the
// caller's, so a stale disconnect arriving after a newer connect for the same
// user is a self-healing no-op rather than an error.
//
// Any component that needs the current online set (the presence broadcaster,
// the REST layer) reads it through Snapshot, which returns a consistent
// point-in-time copy under the registry's lock.
package registry
