// ABOUTME: Store types for the presence-gateway connection audit log
// ABOUTME: Defines ConnectionEvent and filtering options for history queries

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ConnectionAction represents a recorded connection lifecycle action.
type ConnectionAction string

const (
	ActionConnected    ConnectionAction = "connected"
	ActionDisconnected ConnectionAction = "disconnected"
	ActionRejected     ConnectionAction = "rejected"
	ActionSuperseded   ConnectionAction = "superseded"
	ActionResumed      ConnectionAction = "resumed"
)

// ConnectionEvent records one connection lifecycle transition for audit and
// debugging. Presence history is not message persistence: no application
// payloads are ever stored.
type ConnectionEvent struct {
	ID        string // UUID v4
	UserID    string // empty for rejected handshakes with no valid identity
	SessionID string
	Action    ConnectionAction
	Reason    string // close reason, reject cause, etc.
	Timestamp time.Time
}

// EventFilter specifies filtering options for listing connection events.
type EventFilter struct {
	UserID *string    // filter by user
	Since  *time.Time // events after this time
	Limit  int        // max results (default 100, max 1000)
}
