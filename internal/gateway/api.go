// ABOUTME: Authenticated REST endpoints for presence snapshots and history
// ABOUTME: JSON responses mirror the frames the WebSocket surface sends

package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quicktalk/presence-gateway/internal/store"
)

// presenceResponse is the REST view of the online-user set.
type presenceResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// historyEvent is the REST view of a connection audit event.
type historyEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handlePresence returns the current online-user set. Same snapshot the
// WebSocket broadcast carries, for clients that only need a one-shot read.
func (g *Gateway) handlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	users := g.registry.Snapshot()
	writeJSON(w, http.StatusOK, presenceResponse{Users: users, Count: len(users)}, g.logger)
}

// handleHistory lists connection audit events, newest first. Supports
// ?user=, ?since= (RFC 3339), and ?limit= query parameters.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter := store.EventFilter{}

	if user := r.URL.Query().Get("user"); user != "" {
		filter.UserID = &user
	}
	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter: expected RFC 3339 timestamp")
			return
		}
		filter.Since = &ts
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		filter.Limit = n
	}

	events, err := g.store.ListConnectionEvents(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing connection events", "error", err)
		writeError(w, http.StatusInternalServerError, "listing events failed")
		return
	}

	out := make([]historyEvent, 0, len(events))
	for _, e := range events {
		out = append(out, historyEvent{
			ID:        e.ID,
			UserID:    e.UserID,
			SessionID: e.SessionID,
			Action:    string(e.Action),
			Reason:    e.Reason,
			Timestamp: e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out}, g.logger)
}
