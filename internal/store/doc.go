// Package store persists the connection audit log for presence-gateway.
//
// The audit log records connection lifecycle transitions (connected,
// disconnected, rejected, superseded, resumed) with user, session, reason,
// and timestamp. It exists for debugging and the /api/history endpoint, and
// intentionally stores no application payloads — relayed events never touch
// the database.
//
// The implementation uses modernc.org/sqlite (pure Go, no cgo) with WAL mode
// enabled and schema auto-creation on open. Use ":memory:" as the path for
// tests.
package store
