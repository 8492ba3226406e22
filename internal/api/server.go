// Package api serves edit sessions over HTTP. Clients open a session on a
// stored document, send edits as JSON and receive every change to that
// session over a WebSocket.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/FocuswithJustin/soramimi/core/cache"
	"github.com/FocuswithJustin/soramimi/internal/logging"
	"github.com/FocuswithJustin/soramimi/internal/session"
	"github.com/FocuswithJustin/soramimi/internal/store"
)

// Server wires the session manager, the store and the WebSocket hub.
type Server struct {
	cfg      Config
	store    store.Store
	sessions *session.Manager
	hub      *Hub
	limiter  *WebSocketRateLimiter
	started  time.Time

	// summaries caches parsed document details by content revision.
	summaries cache.Cache[string, DocumentInfo]
}

// New builds a server on st. Call Run or ListenAndServe to start it.
func New(cfg Config, st store.Store) *Server {
	def := DefaultConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxMessageRate <= 0 {
		cfg.MaxMessageRate = def.MaxMessageRate
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		sessions: session.NewManager(st, cfg.SessionTTL),
		hub:      NewHub(),
		limiter:  NewWebSocketRateLimiter(),
		started:  time.Now(),

		summaries: cache.NewLRU[string, DocumentInfo](cache.DefaultConfig()),
	}
	s.sessions.OnEvent(s.hub.Publish)
	return s
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run starts the hub and the idle-session sweeper. They stop with ctx.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)
	go s.sessions.Run(ctx, s.cfg.SweepInterval)
}

// Handler returns the HTTP handler with logging, CORS and security
// header middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.routes()
	h = CORSMiddleware(s.cfg.AllowedOrigins, h)
	h = SecurityHeadersMiddleware(h)
	return logging.CombinedMiddleware(h)
}

// routes configures all HTTP routes.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("GET /documents/{name...}", s.handleGetDocument)
	mux.HandleFunc("PUT /documents/{name...}", s.handlePutDocument)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleOpenSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /sessions/{id}/edits", s.handleEdit)
	mux.HandleFunc("POST /sessions/{id}/save", s.handleSave)
	mux.HandleFunc("POST /sessions/{id}/convert", s.handleConvert)
	mux.HandleFunc("GET /sessions/{id}/at", s.handleAt)
	mux.HandleFunc("GET /sessions/{id}/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleNotFound)

	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.Run(ctx)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logging.ServerStartup("http", s.cfg.Addr,
		"websocket_path", "/sessions/{id}/ws",
		"store", s.store.Backend(),
		"session_ttl", s.cfg.SessionTTL.String())
	if len(s.cfg.AllowedOrigins) == 0 {
		logging.Info("websocket origins restricted to same host")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	logging.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}
