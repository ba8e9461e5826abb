// Package server exposes the extraction pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/straja-ai/piiscan/internal/auth"
	"github.com/straja-ai/piiscan/internal/console"
	"github.com/straja-ai/piiscan/internal/extract"
)

// Options configures the HTTP surface.
type Options struct {
	Addr            string
	APIKeys         []string
	AllowedOrigins  []string // CORS; empty disables
	MaxBodyBytes    int64
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Version         string
}

// Server is the piiscan HTTP server.
type Server struct {
	pipeline *extract.Pipeline
	auth     *auth.Auth
	log      zerolog.Logger
	opts     Options
	router   chi.Router
}

// New builds the router around a ready pipeline.
func New(pipeline *extract.Pipeline, log zerolog.Logger, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		pipeline: pipeline,
		auth:     auth.New(opts.APIKeys),
		log:      log.With().Str("component", "server").Logger(),
		opts:     opts,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}))
	}
	if s.opts.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(s.opts.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/console", console.Handler())
	r.Handle("/", http.RedirectHandler("/console", http.StatusFound))

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/categories", s.handleCategories)
		r.With(s.limitBody).Post("/extract_entities", s.handleExtract)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Bool("auth", s.auth.Enabled()).Msg("piiscan listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("graceful shutdown failed")
		if cerr := srv.Close(); cerr != nil {
			s.log.Error().Err(cerr).Msg("forced shutdown failed")
		}
		return err
	}
	s.log.Info().Msg("server stopped")
	return nil
}
