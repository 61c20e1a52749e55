// ABOUTME: Consumer-side connection manager for the presence gateway
// ABOUTME: Handles bounded reconnection, terminal closes, and presence state

package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quicktalk/presence-gateway/internal/config"
)

var (
	// ErrNoCredential is returned by Connect when no token has been set.
	ErrNoCredential = errors.New("wsclient: no credential set")

	// ErrAuthRejected means the gateway refused the handshake credential.
	// The stored credential is cleared; the caller must obtain a new one.
	ErrAuthRejected = errors.New("wsclient: authentication rejected")

	// ErrAlreadyConnected is returned by Connect on a live client.
	ErrAlreadyConnected = errors.New("wsclient: already connected")

	// ErrClosed is returned after Disconnect.
	ErrClosed = errors.New("wsclient: client closed")

	// ErrNotConnected is returned by SendEvent without a live connection.
	ErrNotConnected = errors.New("wsclient: not connected")
)

// EventType identifies a lifecycle or data event delivered to the consumer.
type EventType string

const (
	// EventConnected fires when a connection is established or resumed.
	EventConnected EventType = "connected"

	// EventPresence fires when the online-user set changes. Users carries
	// the complete replacement set.
	EventPresence EventType = "presence"

	// EventMessage fires for a relayed application event.
	EventMessage EventType = "message"

	// EventReconnecting fires before each reconnection attempt.
	EventReconnecting EventType = "reconnecting"

	// EventAuthFailed fires when the gateway rejects the credential. The
	// credential has already been cleared; no reconnection follows.
	EventAuthFailed EventType = "auth_failed"

	// EventDisconnected fires when the connection ends for good. Reason is
	// "client", "server", or "transport".
	EventDisconnected EventType = "disconnected"
)

// Event is delivered on the Events channel.
type Event struct {
	Type    EventType
	Reason  string
	Code    int
	Attempt int
	Users   []string
	From    string
	Payload json.RawMessage
}

// serverFrame mirrors the gateway's wire envelope.
type serverFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Users     []string        `json:"users,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Close codes the gateway uses for terminal, server-initiated closes.
const (
	closeSuperseded     = 4000
	closeServerShutdown = 4001
)

const eventBufferSize = 64

// Options configures a Client. Zero values fall back to the shared
// defaults: 5 reconnection attempts at a fixed 1.5s delay.
type Options struct {
	// URL is the gateway WebSocket endpoint, e.g. "ws://host:8080/ws".
	URL string

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration

	Logger *slog.Logger
}

// Client maintains one authenticated connection to the gateway, reconnecting
// on transport failures and tracking the online-user set.
type Client struct {
	opts   Options
	logger *slog.Logger

	events chan Event

	mu        sync.RWMutex
	token     string
	sessionID string
	userID    string
	conn      *websocket.Conn
	connected bool
	closed    bool
	// detached stops event delivery ahead of a deliberate disconnect so
	// teardown never races a late frame into the consumer.
	detached bool
	online   []string

	writeMu sync.Mutex
}

// New creates a Client. Connect must be called separately; a client with no
// credential refuses to connect.
func New(opts Options) *Client {
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = config.DefaultReconnectAttempts
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = config.DefaultReconnectDelay
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = config.DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		opts:   opts,
		logger: opts.Logger.With("component", "wsclient"),
		events: make(chan Event, eventBufferSize),
	}
}

// SetToken stores the credential used for the next Connect.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Events returns the channel lifecycle and data events are delivered on.
// The channel is closed after Disconnect.
func (c *Client) Events() <-chan Event {
	return c.events
}

// IsConnected reports whether a live connection exists.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SessionID returns the session identifier assigned by the gateway, empty
// before the first welcome frame.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// UserID returns the identity the gateway bound to this connection, empty
// before the first welcome frame.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// OnlineUsers returns the most recent presence snapshot.
func (c *Client) OnlineUsers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.online))
	copy(out, c.online)
	return out
}

// Connect establishes the connection. It is a no-op error if the client is
// already connected, and refuses to dial without a credential. A handshake
// rejection clears the credential and returns ErrAuthRejected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.connected:
		c.mu.Unlock()
		return ErrAlreadyConnected
	case c.token == "":
		c.mu.Unlock()
		return ErrNoCredential
	}
	c.mu.Unlock()

	return c.dial(ctx, "")
}

// dial performs one handshake, optionally resuming a previous session.
func (c *Client) dial(ctx context.Context, resumeSession string) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	endpoint, err := c.buildURL(token, resumeSession)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.handleAuthRejected(resp.StatusCode)
			return fmt.Errorf("%w (status %d)", ErrAuthRejected, resp.StatusCode)
		}
		return fmt.Errorf("dialing gateway: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		// Disconnect landed while the handshake was in flight; the fresh
		// connection must not outlive the client.
		c.mu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *Client) buildURL(token, resumeSession string) (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parsing gateway URL: %w", err)
	}
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	if resumeSession != "" {
		q.Set("session", resumeSession)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// handleAuthRejected clears the credential so a retry cannot loop on a bad
// token; the consumer must log in again.
func (c *Client) handleAuthRejected(status int) {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.logger.Warn("credential rejected by gateway", "status", status)
	c.emit(Event{Type: EventAuthFailed, Code: status})
}

// SendEvent relays an application payload to another user via the gateway.
func (c *Client) SendEvent(to string, payload json.RawMessage) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(serverFrame{Type: "event", To: to, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Disconnect tears the client down deterministically: event delivery is
// detached first, then the connection closes with a normal close frame.
// No reconnection follows and the events channel is closed.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.conn = nil
	// The final lifecycle event goes out before delivery detaches; frames
	// from the dying connection can no longer follow it.
	select {
	case c.events <- Event{Type: EventDisconnected, Reason: "client"}:
	default:
	}
	c.detached = true
	c.mu.Unlock()

	var err error
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = conn.Close()
	}

	close(c.events)
	return err
}

// emit delivers an event unless delivery has been detached. Slow consumers
// drop events rather than stall the read loop.
func (c *Client) emit(ev Event) {
	// The read lock is held through the send so Disconnect cannot close
	// the channel between the detached check and the send.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.detached {
		return
	}

	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event buffer full, dropping event", "type", ev.Type)
	}
}

// readLoop consumes frames until the connection ends, then decides whether
// the close is terminal or eligible for reconnection.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleConnectionEnd(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Debug("discarding malformed frame", "error", err)
		return
	}

	switch frame.Type {
	case "welcome":
		c.mu.Lock()
		c.sessionID = frame.SessionID
		c.userID = frame.UserID
		c.online = append([]string(nil), frame.Users...)
		c.mu.Unlock()
		c.emit(Event{Type: EventConnected, Users: frame.Users})

	case "presence":
		// The snapshot replaces the local set verbatim.
		c.mu.Lock()
		c.online = append([]string(nil), frame.Users...)
		c.mu.Unlock()
		c.emit(Event{Type: EventPresence, Users: frame.Users})

	case "event":
		c.emit(Event{Type: EventMessage, From: frame.From, Payload: frame.Payload})

	default:
		c.logger.Debug("ignoring unknown frame type", "type", frame.Type)
	}
}

// handleConnectionEnd classifies the read error. Server-initiated closes
// and client teardown are terminal; anything else is a transport failure
// that enters the bounded reconnection loop.
func (c *Client) handleConnectionEnd(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	sessionID := c.sessionID
	c.mu.Unlock()

	if closeErr := asCloseError(err); closeErr != nil {
		switch closeErr.Code {
		case closeSuperseded, closeServerShutdown, websocket.CloseNormalClosure:
			c.logger.Info("server closed connection", "code", closeErr.Code, "text", closeErr.Text)
			c.emit(Event{Type: EventDisconnected, Reason: "server", Code: closeErr.Code})
			return
		}
	}

	c.logger.Warn("connection lost", "error", err)
	c.reconnect(sessionID)
}

func asCloseError(err error) *websocket.CloseError {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr
	}
	return nil
}

// reconnect retries the handshake a bounded number of times at a fixed
// delay, resuming the previous session. A credential rejection aborts the
// loop; exhausting the attempts gives up with a transport disconnect.
func (c *Client) reconnect(sessionID string) {
	attempts := c.opts.ReconnectAttempts

	for attempt := 1; attempt <= attempts; attempt++ {
		time.Sleep(c.opts.ReconnectDelay)

		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return
		}

		c.emit(Event{Type: EventReconnecting, Attempt: attempt})
		c.logger.Info("reconnecting", "attempt", attempt, "max", attempts)

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
		err := c.dial(ctx, sessionID)
		cancel()

		if err == nil {
			return
		}
		if errors.Is(err, ErrAuthRejected) {
			// handleAuthRejected already emitted and cleared the token.
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
	}

	c.logger.Error("reconnection attempts exhausted", "attempts", attempts)
	c.emit(Event{Type: EventDisconnected, Reason: "transport"})
}
