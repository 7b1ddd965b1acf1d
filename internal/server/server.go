// Package server exposes an engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/ossbrowse/internal/observability"
	"github.com/3leaps/ossbrowse/internal/server/handlers"
	"github.com/3leaps/ossbrowse/internal/server/middleware"
)

// Server is the ossbrowse HTTP server.
type Server struct {
	host    string
	port    int
	router  chi.Router
	browser handlers.Browser
	version handlers.VersionInfo
	srv     *http.Server

	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithBrowser mounts the /v1 API over b. Without it only the health and
// version endpoints are served.
func WithBrowser(b handlers.Browser) Option {
	return func(s *Server) { s.browser = b }
}

// WithVersion sets the payload of /version.
func WithVersion(info handlers.VersionInfo) Option {
	return func(s *Server) { s.version = info }
}

// WithTimeouts sets the HTTP server timeouts. Zero values keep the
// defaults.
func WithTimeouts(read, write, idle, shutdown time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if idle > 0 {
			s.idleTimeout = idle
		}
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// New creates a server listening on host:port.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:            host,
		port:            port,
		version:         handlers.VersionInfo{Version: "dev"},
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		idleTimeout:     120 * time.Second,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler(s.version))

	if s.browser != nil {
		api := handlers.NewAPI(s.browser)
		r.Route("/v1", func(r chi.Router) {
			r.Get("/nodes", api.Nodes)
			r.Get("/objects/head", api.Head)
			r.Get("/objects/url", api.URL)
			r.Delete("/objects", api.Delete)
			r.Post("/folders", api.CreateFolder)
		})
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.ServerLogger.Info("Server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	observability.ServerLogger.Info("Shutting down server")
	return s.srv.Shutdown(shutdownCtx)
}
