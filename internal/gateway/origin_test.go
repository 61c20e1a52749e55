// ABOUTME: Tests for origin normalization and allow-list checking
// ABOUTME: Covers wildcard, case folding, and malformed origin handling

package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginChecker(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"exact match", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"case insensitive", []string{"https://App.Example.com"}, "https://app.example.com", true},
		{"not in list", []string{"https://app.example.com"}, "https://evil.example.com", false},
		{"wildcard allows all", []string{"*"}, "https://anywhere.example.com", true},
		{"no origin header allowed", []string{"https://app.example.com"}, "", true},
		{"malformed origin blocked", []string{"https://app.example.com"}, "not a url", false},
		{"scheme matters", []string{"https://app.example.com"}, "http://app.example.com", false},
		{"invalid config entry ignored", []string{"%%%", "https://app.example.com"}, "https://app.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newOriginChecker(tt.allowed, logger)
			assert.Equal(t, tt.want, checker.check(requestWithOrigin(tt.origin)))
		})
	}
}

func TestNormalizeOrigin(t *testing.T) {
	normalized, ok := normalizeOrigin("HTTPS://App.Example.COM:8443")
	assert.True(t, ok)
	assert.Equal(t, "https://app.example.com:8443", normalized)

	_, ok = normalizeOrigin("app.example.com")
	assert.False(t, ok)
}
