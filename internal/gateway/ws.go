// ABOUTME: WebSocket handshake, presence registration, and teardown flow
// ABOUTME: Credentials are verified before the upgrade; rejects are plain 401s

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quicktalk/presence-gateway/internal/auth"
	"github.com/quicktalk/presence-gateway/internal/store"
)

// handleWS accepts a WebSocket connection. The handshake carries the
// credential as a token query parameter and, on reconnect, the previous
// session ID. Verification happens before the upgrade so a rejected
// connection never transitions past authenticating.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	token := query.Get("token")
	resumeID := query.Get("session")

	var userID string
	resumed := false

	if resumeID != "" {
		if parkedUser, ok := g.unpark(resumeID); ok {
			// Resuming within the grace window skips re-verification;
			// the session was already authenticated.
			userID = parkedUser
			resumed = true
		}
	}

	if !resumed {
		verified, err := g.verifier.Verify(token)
		if err != nil {
			g.rejectHandshake(w, r, err)
			return
		}
		userID = verified
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own error response. A claimed parked session
		// goes back with a fresh grace timer so its eventual unregister
		// still fires.
		if resumed {
			g.parkSession(userID, resumeID, g.config.Presence.ReconnectGracePeriod)
		}
		g.logger.Warn("upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sessionID := resumeID
	if !resumed {
		sessionID = uuid.New().String()
	}

	sess := newSession(sessionID, userID, conn, g.logger)
	g.hub.add(sess)

	if resumed {
		g.metrics.resumes.Inc()
		g.audit(r.Context(), userID, sessionID, store.ActionResumed, "")
		sess.logger.Info("session resumed within grace window")
	} else {
		g.registerPresence(sess)
		g.metrics.connects.Inc()
		g.audit(r.Context(), userID, sessionID, store.ActionConnected, "")
		sess.logger.Info("session connected")
	}

	// Presence snapshots for this session flow through its broadcaster
	// subscription; the forwarder exits when the subscription is closed.
	updates := g.broadcaster.Subscribe(sessionID)
	go func() {
		for users := range updates {
			sess.Send(marshalFrame(Frame{Type: FramePresence, Users: users}))
		}
	}()

	sess.setState(StateActive)
	sess.Send(marshalFrame(Frame{
		Type:      FrameWelcome,
		SessionID: sessionID,
		UserID:    userID,
		Users:     g.registry.Snapshot(),
	}))

	go sess.writePump(g.config.Presence.WriteTimeout, g.config.Presence.PongTimeout)
	go sess.readPump(g.config.Presence.PongTimeout, g.handleMessage, g.handleDisconnect)
}

// rejectHandshake answers a failed verification with a 401 before any
// upgrade happens. Rejections never touch the registry or the broadcaster.
func (g *Gateway) rejectHandshake(w http.ResponseWriter, r *http.Request, err error) {
	g.metrics.rejects.Inc()
	g.audit(r.Context(), "", "", store.ActionRejected, err.Error())
	g.logger.Warn("rejecting handshake", "error", err, "remote", r.RemoteAddr)

	msg := "invalid token"
	if errors.Is(err, auth.ErrMissingToken) {
		msg = "missing token"
	} else if errors.Is(err, auth.ErrExpiredToken) {
		msg = "token expired"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// registerPresence records the session in the registry and broadcasts the
// updated snapshot. If an older connection for the same user exists it is
// closed with the superseded code; its later teardown finds the registry
// already pointing at the new session and stays silent.
func (g *Gateway) registerPresence(sess *Session) {
	g.presenceMu.Lock()
	defer g.presenceMu.Unlock()

	prev, replaced := g.registry.Register(sess.UserID, sess.ID)
	if replaced {
		g.supersede(sess.UserID, prev)
	}
	g.broadcaster.Publish(g.registry.Snapshot())
	g.metrics.onlineUsers.Set(float64(g.registry.Len()))
}

// supersede evicts the previous session for a user, whether it is live or
// parked in the grace window.
func (g *Gateway) supersede(userID, prevSessionID string) {
	g.metrics.supersedes.Inc()
	g.audit(context.Background(), userID, prevSessionID, store.ActionSuperseded, "newer connection registered")

	if old, ok := g.hub.get(prevSessionID); ok {
		old.closeWithCode(CloseSuperseded, "superseded by newer connection")
		return
	}

	g.parkedMu.Lock()
	if p, ok := g.parked[prevSessionID]; ok {
		p.timer.Stop()
		delete(g.parked, prevSessionID)
	}
	g.parkedMu.Unlock()
}

// handleDisconnect runs when a session's read pump exits. Transport-level
// drops park the session for the grace window with the registry entry
// retained; deliberate closes unregister immediately. Either way the
// unregister and its broadcast happen exactly once.
func (g *Gateway) handleDisconnect(sess *Session, reason CloseReason) {
	sess.setState(StateClosed)
	g.hub.remove(sess)
	g.broadcaster.Unsubscribe(sess.ID)

	grace := g.config.Presence.ReconnectGracePeriod
	if reason == ReasonTransport && grace > 0 {
		g.parkSession(sess.UserID, sess.ID, grace)
		return
	}

	g.finalizeUnregister(sess.UserID, sess.ID, string(reason))
}

// parkSession retains the session's presence entry and schedules the
// unregister for when the grace window lapses without a resume.
func (g *Gateway) parkSession(userID, sessionID string, grace time.Duration) {
	g.parkedMu.Lock()
	defer g.parkedMu.Unlock()

	g.parked[sessionID] = &parkedSession{
		userID: userID,
		timer: time.AfterFunc(grace, func() {
			g.parkedMu.Lock()
			_, pending := g.parked[sessionID]
			delete(g.parked, sessionID)
			g.parkedMu.Unlock()
			if pending {
				g.finalizeUnregister(userID, sessionID, "grace window expired")
			}
		}),
	}
	g.logger.Info("session parked for reconnection",
		"user_id", userID, "session_id", sessionID, "grace", grace)
}

// unpark claims a parked session for resumption. Returns false when the
// session is unknown or its grace window already fired.
func (g *Gateway) unpark(sessionID string) (string, bool) {
	g.parkedMu.Lock()
	defer g.parkedMu.Unlock()

	p, ok := g.parked[sessionID]
	if !ok {
		return "", false
	}
	if !p.timer.Stop() {
		return "", false
	}
	delete(g.parked, sessionID)
	return p.userID, true
}

// finalizeUnregister removes the session from the registry and broadcasts
// the shrunk snapshot. A stale session (already replaced by a newer one)
// removes nothing and broadcasts nothing.
func (g *Gateway) finalizeUnregister(userID, sessionID, reason string) {
	g.presenceMu.Lock()
	removed := g.registry.Unregister(userID, sessionID)
	if removed {
		g.broadcaster.Publish(g.registry.Snapshot())
		g.metrics.onlineUsers.Set(float64(g.registry.Len()))
	}
	g.presenceMu.Unlock()

	if removed {
		g.metrics.disconnects.Inc()
		g.audit(context.Background(), userID, sessionID, store.ActionDisconnected, reason)
		g.logger.Info("session unregistered", "user_id", userID, "session_id", sessionID, "reason", reason)
	}
}

// handleMessage relays event frames between connected clients. The payload
// passes through verbatim; the gateway only reads the envelope for routing.
func (g *Gateway) handleMessage(sess *Session, data []byte) {
	var envelope Frame
	if err := json.Unmarshal(data, &envelope); err != nil {
		sess.logger.Debug("discarding malformed frame", "error", err)
		return
	}
	if envelope.Type != FrameEvent || envelope.To == "" {
		return
	}

	targetSession, online := g.registry.SessionFor(envelope.To)
	if !online {
		sess.logger.Debug("dropping event for offline user", "to", envelope.To)
		return
	}
	target, ok := g.hub.get(targetSession)
	if !ok {
		// Target is parked in the grace window; events are not queued.
		sess.logger.Debug("dropping event for parked session", "to", envelope.To)
		return
	}

	envelope.From = sess.UserID
	target.Send(marshalFrame(envelope))
}

func (g *Gateway) audit(ctx context.Context, userID, sessionID string, action store.ConnectionAction, reason string) {
	event := &store.ConnectionEvent{
		UserID:    userID,
		SessionID: sessionID,
		Action:    action,
		Reason:    reason,
	}
	if err := g.store.AppendConnectionEvent(ctx, event); err != nil {
		g.logger.Warn("recording connection event", "action", action, "error", err)
	}
}
