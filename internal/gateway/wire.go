// ABOUTME: Wire frame types and close codes for the WebSocket contract
// ABOUTME: Defines welcome, presence, and event frames exchanged with clients

package gateway

import "encoding/json"

// Frame types exchanged over the WebSocket connection.
const (
	// FrameWelcome is sent once by the server when a connection is accepted
	// or resumed. It carries the session ID the client must present to
	// resume after a transport drop, plus the current online set so a
	// resumed client catches up without a broadcast.
	FrameWelcome = "welcome"

	// FramePresence carries the complete online-user set. Sent to every
	// connection on each registry change; clients replace their local set
	// verbatim.
	FramePresence = "presence"

	// FrameEvent is an opaque application event relayed between clients.
	// The gateway only reads the envelope's "to" field for routing.
	FrameEvent = "event"
)

// Close codes used for server-initiated closes. Clients treat both as
// authoritative session termination and must not reconnect.
const (
	// CloseSuperseded is sent to a connection that was replaced by a newer
	// connection from the same user.
	CloseSuperseded = 4000

	// CloseServerShutdown is sent to all connections during shutdown.
	CloseServerShutdown = 4001
)

// Frame is the JSON envelope for all server->client messages and for the
// routing fields of client->server event frames. Application payloads ride
// in Payload untouched.
type Frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Users     []string        `json:"users,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// marshalFrame encodes a frame, panicking on failure. Frames are built from
// plain strings and slices, so marshaling cannot fail at runtime.
func marshalFrame(f Frame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		panic("gateway: marshaling frame: " + err.Error())
	}
	return data
}
