// Package server exposes the queue and the generator relay over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/ineyio/imagegate"
	"github.com/ineyio/imagegate/cache"
)

const shutdownTimeout = 10 * time.Second

// Generator produces images for a request. *imagegate.Relay satisfies it.
type Generator interface {
	Generate(ctx context.Context, req imagegate.GenerateRequest) (imagegate.GenerateResponse, error)
}

// Server serves the image generation API.
type Server struct {
	cfg       imagegate.ServerConfig
	queue     *imagegate.Queue
	generator Generator
	images    *cache.ImageCache
	fetcher   *cache.Fetcher
	clock     clockwork.Clock
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithImageCache stores inline generated images so they can be served by
// id. Without it inline images are returned as data URLs.
func WithImageCache(c *cache.ImageCache) Option {
	return func(s *Server) { s.images = c }
}

// WithFetcher sets the fetcher used by the proxy and download endpoints.
func WithFetcher(f *cache.Fetcher) Option {
	return func(s *Server) { s.fetcher = f }
}

// WithClock sets the clock driving the queue status stream.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server. Every generation goes through queue before it
// reaches generator.
func New(cfg imagegate.ServerConfig, queue *imagegate.Queue, generator Generator, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		queue:     queue,
		generator: generator,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.fetcher == nil {
		s.fetcher = cache.NewFetcher(cache.WithCache(s.images), cache.WithLogger(s.logger))
	}
	if s.cfg.DownloadFilename == "" {
		s.cfg.DownloadFilename = "kira-image.png"
	}
	return s
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/proxy-image", s.handleProxyImage)
	mux.HandleFunc("POST /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/images/{id}", s.handleImage)
	mux.HandleFunc("GET /api/queue", s.handleQueueStatus)
	mux.HandleFunc("GET /api/queue/ws", s.handleQueueStream)
	if s.cfg.StaticDir != "" {
		mux.Handle("GET "+staticPrefix, http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	if s.cfg.EnableReset {
		mux.HandleFunc("POST /api/queue/reset", s.handleQueueReset)
	}
	return s.logRequests(mux)
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("imagegate/server: listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("imagegate/server: shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "imagegate"})
}
