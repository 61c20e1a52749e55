// ABOUTME: Origin validation for WebSocket upgrade requests
// ABOUTME: Normalizes configured origins and request origins before comparing

package gateway

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originChecker validates the Origin header on upgrade requests against the
// configured allow list. Requests without an Origin header (non-browser
// clients) are always allowed.
type originChecker struct {
	allowed  map[string]struct{}
	allowAll bool
	logger   *slog.Logger
}

func newOriginChecker(origins []string, logger *slog.Logger) *originChecker {
	c := &originChecker{
		allowed: make(map[string]struct{}, len(origins)),
		logger:  logger,
	}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			c.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		c.allowed[normalized] = struct{}{}
	}
	return c
}

func (c *originChecker) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return true
	}
	if c.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		c.logger.Warn("blocked connection with malformed origin", "origin", header)
		return false
	}
	if _, exists := c.allowed[normalized]; exists {
		return true
	}
	c.logger.Warn("blocked connection from disallowed origin", "origin", header)
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
