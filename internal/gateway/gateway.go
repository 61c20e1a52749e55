// ABOUTME: Gateway orchestrator wiring auth, registry, broadcaster, and store
// ABOUTME: Manages the HTTP server lifecycle and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quicktalk/presence-gateway/internal/auth"
	"github.com/quicktalk/presence-gateway/internal/config"
	"github.com/quicktalk/presence-gateway/internal/presence"
	"github.com/quicktalk/presence-gateway/internal/registry"
	"github.com/quicktalk/presence-gateway/internal/store"
)

// Gateway orchestrates the presence-gateway server components: the token
// verifier, the connection registry, the presence broadcaster, and the
// connection audit store, all behind one HTTP server.
type Gateway struct {
	config      *config.Config
	verifier    *auth.JWTVerifier
	registry    *registry.Registry
	broadcaster *presence.Broadcaster
	store       *store.SQLiteStore
	httpServer  *http.Server
	logger      *slog.Logger
	metrics     *metrics

	upgrader websocket.Upgrader
	hub      *hub

	// presenceMu serializes registry mutation, snapshot, and publish so
	// every broadcast reflects exactly one change and snapshots go out in
	// mutation order.
	presenceMu sync.Mutex

	parkedMu sync.Mutex
	parked   map[string]*parkedSession
}

// parkedSession holds a session whose transport dropped but whose presence
// entry is retained until the reconnection grace window expires.
type parkedSession struct {
	userID string
	timer  *time.Timer
}

// initStore creates the audit store based on config and environment.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("PRESENCE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:      cfg,
		verifier:    verifier,
		registry:    registry.New(logger.With("component", "registry")),
		broadcaster: presence.NewBroadcaster(logger.With("component", "broadcaster")),
		store:       s,
		logger:      logger.With("component", "gateway"),
		metrics:     newMetrics(),
		hub:         newHub(),
		parked:      make(map[string]*parkedSession),
	}

	checker := newOriginChecker(cfg.Server.AllowedOrigins, gw.logger)
	gw.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checker.check,
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the gateway's HTTP handler with all routes registered.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", g.handleWS)

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	authMiddleware := auth.HTTPAuthMiddleware(g.verifier)
	mux.Handle("/api/presence", authMiddleware(http.HandlerFunc(g.handlePresence)))
	mux.Handle("/api/history", authMiddleware(http.HandlerFunc(g.handleHistory)))

	if g.config.Metrics.Enabled {
		mux.Handle(g.config.Metrics.Path, g.metrics.handler())
	}

	return mux
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown closes every live connection with the shutdown close code,
// stops the HTTP server, and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	for _, sess := range g.hub.list() {
		sess.closeWithCode(CloseServerShutdown, "server shutting down")
	}

	g.parkedMu.Lock()
	for id, p := range g.parked {
		p.timer.Stop()
		delete(g.parked, id)
	}
	g.parkedMu.Unlock()

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.broadcaster.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// OnlineUsers returns the current sorted online-user set.
func (g *Gateway) OnlineUsers() []string {
	return g.registry.Snapshot()
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the gateway can accept connections.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d online)", g.registry.Len())
}
