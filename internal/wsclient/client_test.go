// ABOUTME: Tests for the connection manager against a scripted stub gateway
// ABOUTME: Covers reconnection bounds, terminal closes, and presence state

package wsclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway is a scripted WebSocket server standing in for the gateway.
type stubGateway struct {
	server  *httptest.Server
	dials   atomic.Int32
	handler func(conn *websocket.Conn, r *http.Request)
}

func newStubGateway(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *stubGateway {
	t.Helper()

	s := &stubGateway{handler: handler}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.handler(conn, r)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubGateway) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
}

func sendFrame(conn *websocket.Conn, frame serverFrame) {
	data, _ := json.Marshal(frame)
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func newTestClient(url string, mutate func(*Options)) *Client {
	opts := Options{
		URL:              url,
		ReconnectDelay:   20 * time.Millisecond,
		HandshakeTimeout: 2 * time.Second,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func waitForEvent(t *testing.T, c *Client, want EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestConnectRequiresCredential(t *testing.T) {
	c := newTestClient("ws://127.0.0.1:0/ws", nil)
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestConnectIsNoOpWhenConnected(t *testing.T) {
	stub := newStubGateway(t, func(conn *websocket.Conn, r *http.Request) {
		sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1", UserID: "alice"})
		conn.ReadMessage() // hold until client goes away
	})

	c := newTestClient(stub.url(), nil)
	c.SetToken("tok")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	waitForEvent(t, c, EventConnected)
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
	assert.Equal(t, int32(1), stub.dials.Load())
}

func TestWelcomeSetsSessionAndPresence(t *testing.T) {
	stub := newStubGateway(t, func(conn *websocket.Conn, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1", UserID: "alice", Users: []string{"alice", "bob"}})
		conn.ReadMessage()
	})

	c := newTestClient(stub.url(), nil)
	c.SetToken("tok")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	ev := waitForEvent(t, c, EventConnected)
	assert.Equal(t, []string{"alice", "bob"}, ev.Users)
	assert.Equal(t, "s1", c.SessionID())
	assert.True(t, c.IsConnected())
	assert.Equal(t, []string{"alice", "bob"}, c.OnlineUsers())
}

func TestPresenceSnapshotReplacesLocalSet(t *testing.T) {
	stub := newStubGateway(t, func(conn *websocket.Conn, r *http.Request) {
		sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1", Users: []string{"alice"}})
		sendFrame(conn, serverFrame{Type: "presence", Users: []string{"alice", "bob", "carol"}})
		sendFrame(conn, serverFrame{Type: "presence", Users: []string{"carol"}})
		conn.ReadMessage()
	})

	c := newTestClient(stub.url(), nil)
	c.SetToken("tok")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	waitForEvent(t, c, EventConnected)
	ev := waitForEvent(t, c, EventPresence)
	assert.Equal(t, []string{"alice", "bob", "carol"}, ev.Users)

	ev = waitForEvent(t, c, EventPresence)
	assert.Equal(t, []string{"carol"}, ev.Users)
	assert.Equal(t, []string{"carol"}, c.OnlineUsers())
}

func TestAuthRejectionIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	c.SetToken("bad-token")

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrAuthRejected)

	ev := waitForEvent(t, c, EventAuthFailed)
	assert.Equal(t, http.StatusUnauthorized, ev.Code)

	// The credential was cleared; reconnecting needs a fresh login.
	assert.ErrorIs(t, c.Connect(context.Background()), ErrNoCredential)
}

func TestServerCloseIsTerminal(t *testing.T) {
	stub := newStubGateway(t, func(conn *websocket.Conn, r *http.Request) {
		sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1"})
		msg := websocket.FormatCloseMessage(closeSuperseded, "superseded by newer connection")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.ReadMessage() // wait for the close response
		conn.Close()
	})

	c := newTestClient(stub.url(), nil)
	c.SetToken("tok")
	require.NoError(t, c.Connect(context.Background()))

	waitForEvent(t, c, EventConnected)
	ev := waitForEvent(t, c, EventDisconnected)
	assert.Equal(t, "server", ev.Reason)
	assert.Equal(t, closeSuperseded, ev.Code)

	// No reconnection after a server-initiated close.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), stub.dials.Load())
	assert.False(t, c.IsConnected())
}

func TestReconnectResumesSession(t *testing.T) {
	stub := newStubGateway(t, nil)
	stub.handler = func(conn *websocket.Conn, r *http.Request) {
		switch stub.dials.Load() {
		case 1:
			sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1", Users: []string{"alice"}})
			conn.Close() // drop without a close handshake
		default:
			assert.Equal(t, "s1", r.URL.Query().Get("session"))
			sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1", Users: []string{"alice"}})
			conn.ReadMessage()
		}
	}

	c := newTestClient(stub.url(), nil)
	c.SetToken("tok")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	waitForEvent(t, c, EventConnected)
	waitForEvent(t, c, EventReconnecting)
	waitForEvent(t, c, EventConnected)

	assert.Equal(t, "s1", c.SessionID())
	assert.True(t, c.IsConnected())
	assert.Equal(t, int32(2), stub.dials.Load())
}

func TestReconnectGivesUpAfterBoundedAttempts(t *testing.T) {
	stub := newStubGateway(t, func(conn *websocket.Conn, r *http.Request) {
		sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1"})
		conn.Close()
	})

	c := newTestClient(stub.url(), func(o *Options) {
		o.ReconnectAttempts = 3
		o.HandshakeTimeout = 200 * time.Millisecond
	})
	c.SetToken("tok")
	require.NoError(t, c.Connect(context.Background()))

	waitForEvent(t, c, EventConnected)

	// Take the gateway away so every reconnection attempt fails.
	stub.server.CloseClientConnections()
	stub.server.Close()

	// Count reconnecting events until the terminal disconnect arrives.
	attempts := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "events channel closed early")
			switch ev.Type {
			case EventReconnecting:
				attempts++
			case EventDisconnected:
				assert.Equal(t, "transport", ev.Reason)
				assert.Equal(t, 3, attempts)
				assert.False(t, c.IsConnected())
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal disconnect")
		}
	}
}

func TestDisconnectDetachesEventDelivery(t *testing.T) {
	stub := newStubGateway(t, func(conn *websocket.Conn, r *http.Request) {
		sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1"})
		conn.ReadMessage()
	})

	c := newTestClient(stub.url(), nil)
	c.SetToken("tok")
	require.NoError(t, c.Connect(context.Background()))

	waitForEvent(t, c, EventConnected)
	require.NoError(t, c.Disconnect())

	// The channel drains to a single final client-initiated disconnect,
	// then closes; nothing from the dying connection follows it.
	var final []Event
	for ev := range c.Events() {
		final = append(final, ev)
	}
	require.Len(t, final, 1)
	assert.Equal(t, EventDisconnected, final[0].Type)
	assert.Equal(t, "client", final[0].Reason)

	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}

func TestDisconnectDuringDialClosesFreshConnection(t *testing.T) {
	stub := newStubGateway(t, func(conn *websocket.Conn, r *http.Request) {
		sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1"})
		conn.ReadMessage()
	})

	c := newTestClient(stub.url(), nil)
	c.SetToken("tok")
	require.NoError(t, c.Disconnect())

	// A dial completing after teardown must not resurrect the client.
	err := c.dial(context.Background(), "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, c.IsConnected())
	assert.Empty(t, c.SessionID())
}

func TestSendEventRequiresConnection(t *testing.T) {
	c := newTestClient("ws://127.0.0.1:0/ws", nil)
	err := c.SendEvent("bob", json.RawMessage(`{"text":"hi"}`))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendEventWritesFrame(t *testing.T) {
	received := make(chan serverFrame, 1)
	stub := newStubGateway(t, func(conn *websocket.Conn, r *http.Request) {
		sendFrame(conn, serverFrame{Type: "welcome", SessionID: "s1"})
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f serverFrame
		_ = json.Unmarshal(data, &f)
		received <- f
	})

	c := newTestClient(stub.url(), nil)
	c.SetToken("tok")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	waitForEvent(t, c, EventConnected)
	require.NoError(t, c.SendEvent("bob", json.RawMessage(`{"text":"hi"}`)))

	select {
	case f := <-received:
		assert.Equal(t, "event", f.Type)
		assert.Equal(t, "bob", f.To)
		assert.JSONEq(t, `{"text":"hi"}`, string(f.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received by gateway")
	}
}
