// ABOUTME: Package doc for the connection gateway
// ABOUTME: Authenticated WebSocket acceptance, presence, and reconnection

// Package gateway accepts authenticated WebSocket connections and keeps the
// presence registry in sync with them.
//
// Every handshake is verified before the upgrade, so a bad credential is a
// plain 401 and never reaches the registry. Accepted connections register
// under a last-connected-wins policy: a newer connection from the same user
// closes the older one with the superseded close code. Transport-level
// drops park the session for a reconnection grace window during which the
// user stays in the presence set; a resume with the same session ID
// reattaches without re-verification, and only an expired window or a
// deliberate close unregisters the user and broadcasts the change.
package gateway
