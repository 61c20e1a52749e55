// ABOUTME: hub tracks live sessions by session ID for routing and shutdown
// ABOUTME: Pure bookkeeping; presence semantics live in the registry

package gateway

import "sync"

type hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newHub() *hub {
	return &hub{sessions: make(map[string]*Session)}
}

func (h *hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
}

// remove deletes the session only if it is still the one stored under its
// ID, so a late teardown cannot evict a resumed session.
func (h *hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[s.ID] == s {
		delete(h.sessions, s.ID)
	}
}

func (h *hub) get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *hub) list() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
