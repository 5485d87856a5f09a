package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/panelrun/engine"
	"github.com/hupe1980/panelrun/logging"
)

// AccountResolver extracts the verified account identity from a request.
// Implementations typically validate a session or bearer token; the default
// trusts a header, suitable behind an authenticating proxy.
type AccountResolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderAccountResolver reads the account id from a request header.
type HeaderAccountResolver struct {
	// Header defaults to X-Account-ID.
	Header string
}

// Resolve implements AccountResolver.
func (h HeaderAccountResolver) Resolve(r *http.Request) (string, error) {
	header := h.Header
	if header == "" {
		header = "X-Account-ID"
	}
	account := r.Header.Get(header)
	if account == "" {
		return "", fmt.Errorf("missing %s header", header)
	}
	return account, nil
}

// Options configures the HTTP server.
type Options struct {
	// Addr is the listen address.
	Addr string
	// Accounts resolves the caller identity. Defaults to HeaderAccountResolver.
	Accounts AccountResolver
	// Logger defaults to a NoOp logger.
	Logger logging.Logger
	// MaxRequestBytes caps the multipart request body as a whole.
	MaxRequestBytes int64
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Server wires the engine to chi routes.
type Server struct {
	engine   *engine.Engine
	accounts AccountResolver
	logger   logging.Logger
	opts     Options
	router   chi.Router
}

// New builds a server around an engine.
func New(e *engine.Engine, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:            ":8080",
		Accounts:        HeaderAccountResolver{},
		Logger:          logging.NoOpLogger{},
		MaxRequestBytes: 256 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		engine:   e,
		accounts: opts.Accounts,
		logger:   opts.Logger,
		opts:     opts,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.handleCreateRun)
		r.Get("/runs/{runID}/events", s.handleEvents)
		r.Post("/runs/{runID}/cancel", s.handleCancel)
	})
	s.router = r

	return s
}

// Handler returns the root HTTP handler, useful for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.opts.Addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
