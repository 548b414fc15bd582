package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"pulseroom/internal/api"
	"pulseroom/internal/auth"
	"pulseroom/internal/config"
	"pulseroom/internal/database"
	"pulseroom/internal/hub"
	"pulseroom/internal/router"
	"pulseroom/internal/session"
	"pulseroom/internal/websocket"
	pkgdatabase "pulseroom/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config         *config.Config
	dbManager      *database.Manager
	sessionManager *session.Manager
	registry       *websocket.Registry
	messageRouter  *router.Router
	persistence    *hub.Hub
	signer         *auth.Signer
	wsHandler      *websocket.Handler
	apiServer      *api.Server
	httpServer     *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Registry → Session → Hub → Router → Gateway → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Auth.Secret == config.DefaultSecret {
		log.Printf("WARNING: signing credentials with the built-in development secret; set PULSEROOM_AUTH_SECRET")
	}

	// STEP 1: Initialize database manager (foundation layer)
	dbConfig := cfg.Database.StoreConfig()
	dbConfig.ConnMaxLifetime = cfg.Database.Timeout
	dbConfig.ConnMaxIdleTime = cfg.Database.Timeout / 3

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 1.5: Apply database migrations to ensure schema is up to date
	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbManager.Dialect())
	if err := migrationManager.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrationManager.ValidateSchema(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("database schema invalid: %w", err)
	}
	log.Printf("Database migrations applied successfully (%s)", dbManager.Dialect())

	// STEP 2: Initialize WebSocket registry for connection tracking
	registry := websocket.NewRegistry()

	// STEP 3: Initialize session lifecycle handler
	sessionManager := session.NewManager(dbManager, dbManager, registry)

	// STEP 4: Initialize persistence hub and message router
	persistence := hub.NewHub(cfg.Feedback.QueueSize)
	limiter := router.NewRateLimiter(cfg.Feedback.RateLimitPerMinute, time.Minute)
	messageRouter := router.NewRouter(registry, dbManager, dbManager, sessionManager, persistence, limiter)

	// STEP 5: Initialize credential signer and WebSocket gateway
	signer := auth.NewSigner([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL)
	wsHandler := websocket.NewHandler(registry, signer, sessionManager, messageRouter, websocket.Options{
		PingInterval:  cfg.WebSocket.PingInterval,
		ReadTimeout:   cfg.WebSocket.ReadTimeout,
		WriteTimeout:  cfg.WebSocket.WriteTimeout,
		SendBuffer:    cfg.WebSocket.BufferSize,
		EnforceExpiry: cfg.Auth.EnforceExpiry,
		CheckOrigin:   originChecker(cfg.HTTP.AllowedOrigins),
	})

	// STEP 6: Initialize API server; it also mounts the gateway at /ws
	apiServer := api.NewServer(dbManager, signer, registry, persistence, http.HandlerFunc(wsHandler.HandleWebSocket))

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address(),
		Handler:      apiServer.Handler(cfg.HTTP.AllowedOrigins),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		dbManager:      dbManager,
		sessionManager: sessionManager,
		registry:       registry,
		messageRouter:  messageRouter,
		persistence:    persistence,
		signer:         signer,
		wsHandler:      wsHandler,
		apiServer:      apiServer,
		httpServer:     httpServer,
	}, nil
}

// originChecker accepts handshakes from the configured origins. No origins,
// or a "*" entry, accepts every origin.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		allowed[strings.TrimRight(origin, "/")] = true
	}
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// Start listens on the configured address and serves until Stop.
func (app *Application) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ctx, listener)
}

// Serve starts background processing and serves HTTP on listener.
// Startup coordination ensures all components ready before serving
func (app *Application) Serve(ctx context.Context, listener net.Listener) error {
	log.Printf("Starting Pulseroom application on %s", listener.Addr())

	runCtx, cancel := context.WithCancel(context.Background())

	// STEP 1: Start persistence hub (background feedback writes)
	if err := app.persistence.Start(runCtx); err != nil {
		cancel()
		_ = listener.Close()
		return fmt.Errorf("failed to start persistence hub: %w", err)
	}
	app.messageRouter.StartCleanup(runCtx, time.Minute)

	app.mu.Lock()
	app.listener = listener
	app.cancel = cancel
	app.mu.Unlock()

	// STEP 2: Start HTTP server (accepts connections)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Verify server is ready before returning
	select {
	case err := <-serverErrCh:
		_ = app.persistence.Stop()
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Pulseroom application started successfully")
		return nil
	case <-ctx.Done():
		_ = app.httpServer.Close()
		_ = app.persistence.Stop()
		cancel()
		return ctx.Err()
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → WebSocket connections → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down Pulseroom application")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// STEP 2: Close live sockets so their memberships are closed out
	if err := app.wsHandler.Shutdown(ctx); err != nil {
		log.Printf("WebSocket shutdown error: %v", err)
	}

	// STEP 3: Drain pending feedback writes
	if err := app.persistence.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Persistence hub shutdown error: %v", err)
	}

	app.mu.Lock()
	if app.cancel != nil {
		app.cancel()
	}
	app.mu.Unlock()

	// STEP 4: Close database connections
	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Pulseroom application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler returns the full HTTP handler, middleware included.
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

// Signer returns the credential signer shared by the API and the gateway.
func (app *Application) Signer() *auth.Signer {
	return app.signer
}
