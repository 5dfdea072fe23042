// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/session"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = "127.0.0.1:8501"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

//go:embed static/index.html
var indexHTML []byte

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	Addr         string
	RateLimit    float64 // submissions per second per client; 0 disables
	RateBurst    int
	HistoryLimit int
	Export       *export.Options
}

// Server serves the single-page web surface over one session State.
type Server struct {
	state        *session.State
	addr         string
	historyLimit int
	exportOpts   *export.Options
	limiter      *RateLimiter
	router       *mux.Router
	httpServer   *http.Server
	now          func() time.Time
}

// New creates a Server for state.
func New(state *session.State, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	if opts.Export == nil {
		opts.Export = export.DefaultOptions()
	}

	s := &Server{
		state:        state,
		addr:         opts.Addr,
		historyLimit: opts.HistoryLimit,
		exportOpts:   opts.Export,
		limiter:      NewRateLimiter(opts.RateLimit, opts.RateBurst),
		router:       mux.NewRouter(),
		now:          time.Now,
	}
	s.setupRoutes()
	return s
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPost)
	api.HandleFunc("/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/clear", s.handleClear).Methods(http.MethodPost)
	api.HandleFunc("/templates", s.handleTemplates).Methods(http.MethodGet)
	api.HandleFunc("/template", s.handleLoadTemplate).Methods(http.MethodPost)
	api.HandleFunc("/prompt", s.handleQuickPrompt).Methods(http.MethodPost)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}/load", s.handleLoadRecord).Methods(http.MethodPost)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)

	// Submissions cost money; only they are rate limited.
	api.Handle("/submit", RateLimitMiddleware(s.limiter)(http.HandlerFunc(s.handleSubmit))).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
	)(s.router)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves until ctx is done, then shuts down gracefully.
// ready, when non-nil, receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, ready func(addr string)) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: a streamed answer may run for minutes.
	}

	log.Printf("SERVER_START | addr=%s", ln.Addr())
	if ready != nil {
		ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	s.state.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
