// ABOUTME: Package doc for the consumer-side connection manager
// ABOUTME: Bounded reconnection, terminal auth failures, presence tracking

// Package wsclient maintains a consumer's connection to the presence
// gateway.
//
// A client connects with a stored credential, tracks the online-user set
// from presence snapshots, and survives transport failures with a bounded
// reconnection loop that resumes its previous session. Two outcomes are
// terminal: a rejected credential (which is cleared, so the consumer must
// log in again) and a server-initiated close. Disconnect detaches event
// delivery before closing the connection, so consumers never observe
// events from a connection they already tore down.
package wsclient
