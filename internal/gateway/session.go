// ABOUTME: Session represents one live WebSocket connection with its pumps
// ABOUTME: Tracks lifecycle state and classifies why the connection ended

package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// SessionState tracks where a connection is in its lifecycle.
type SessionState int32

const (
	// StateAuthenticated means the credential was verified but the session
	// is not yet registered for presence.
	StateAuthenticated SessionState = iota

	// StateActive means the session is registered and pumping frames.
	StateActive

	// StateClosed means the session has been torn down.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason classifies why a session's transport ended.
type CloseReason string

const (
	// ReasonClient means the client sent a normal close frame.
	ReasonClient CloseReason = "client"

	// ReasonServer means the server deliberately closed the connection
	// (superseded or shutdown).
	ReasonServer CloseReason = "server"

	// ReasonTransport means the connection dropped without a close
	// handshake. Transport drops are eligible for the reconnection grace
	// window.
	ReasonTransport CloseReason = "transport"
)

const (
	// sendBufferSize bounds the per-session outbound queue. A session that
	// cannot drain this many frames is dropped rather than allowed to
	// stall the rest of the gateway.
	sendBufferSize = 64

	maxMessageSize = 32 * 1024
)

// Session is one accepted WebSocket connection for a verified user.
type Session struct {
	ID     string
	UserID string

	conn   *websocket.Conn
	send   chan []byte
	state  atomic.Int32
	logger *slog.Logger

	// reason records a server-initiated close before the read pump
	// observes the connection error, so teardown classifies it correctly.
	reasonMu sync.Mutex
	reason   CloseReason

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id, userID string, conn *websocket.Conn, logger *slog.Logger) *Session {
	s := &Session{
		ID:     id,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("session_id", id, "user_id", userID),
	}
	s.state.Store(int32(StateAuthenticated))
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Send queues a frame for delivery. If the session's buffer is full the
// frame is dropped; a stalled client must not block anyone else.
func (s *Session) Send(data []byte) {
	select {
	case <-s.done:
	case s.send <- data:
	default:
		s.logger.Warn("dropping frame for slow session")
	}
}

// closeWithCode records a server-initiated close reason, sends the close
// frame, and closes the transport. The read pump unblocks with an error and
// teardown proceeds with the recorded reason.
func (s *Session) closeWithCode(code int, text string) {
	s.setReason(ReasonServer)
	msg := websocket.FormatCloseMessage(code, text)
	deadline := time.Now().Add(time.Second)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.logger.Debug("writing close frame", "error", err)
	}
	s.conn.Close()
}

func (s *Session) setReason(r CloseReason) {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	if s.reason == "" {
		s.reason = r
	}
}

// closeReason returns the recorded reason, or classifies err when no
// server-initiated close happened first.
func (s *Session) closeReason(err error) CloseReason {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	if s.reason != "" {
		return s.reason
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.reason = ReasonClient
	} else {
		s.reason = ReasonTransport
	}
	return s.reason
}

// readPump consumes inbound frames until the connection ends, then reports
// the close reason to onClose. Runs in its own goroutine; one per session.
func (s *Session) readPump(pongTimeout time.Duration, onMessage func(*Session, []byte), onClose func(*Session, CloseReason)) {
	defer func() {
		s.closeOnce.Do(func() { close(s.done) })
		s.conn.Close()
		onClose(s, s.closeReason(nil))
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.closeReason(err)
			return
		}
		onMessage(s, data)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings. The ping interval stays under the read deadline on the peer side.
func (s *Session) writePump(writeTimeout, pongTimeout time.Duration) {
	ticker := time.NewTicker(pongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("write failed", "error", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
