// Package ui provides the playground's HTTP server.
package ui

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/quarrylabs/policypad/internal/registry"
	"github.com/quarrylabs/policypad/internal/samples"
	"github.com/quarrylabs/policypad/internal/ui/notifier"
	"github.com/quarrylabs/policypad/internal/ui/router"
)

// Server serves the playground API and its SSE update stream.
type Server struct {
	reg          *registry.Registry
	catalog      *samples.Catalog
	sessionStore *sessions.CookieStore
	port         int
	logger       *slog.Logger
	notifier     *notifier.Notifier
	dev          bool
}

// Config holds configuration for the playground server.
type Config struct {
	Registry *registry.Registry
	Catalog  *samples.Catalog
	Port     int

	// SessionSecret signs browser session cookies. A process-local random
	// secret is generated when empty.
	SessionSecret string

	Logger *slog.Logger

	// Notifier receives a Broadcast on every registry commit. Defaults to a
	// fresh instance.
	Notifier *notifier.Notifier

	// Dev mounts the live-reload endpoints.
	Dev bool
}

// NewServer creates a playground server.
func NewServer(cfg Config) *Server {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}

	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	n := cfg.Notifier
	if n == nil {
		n = notifier.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		reg:          cfg.Registry,
		catalog:      cfg.Catalog,
		sessionStore: sessionStore,
		port:         cfg.Port,
		logger:       logger,
		notifier:     n,
		dev:          cfg.Dev,
	}
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// Handler builds the full route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	router.SetupRoutes(r, s.reg, s.catalog, s.sessionStore, s.notifier, s.IsDev())
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// IsDev reports whether dev-mode live reload endpoints are mounted.
func (s *Server) IsDev() bool {
	return s.dev
}
