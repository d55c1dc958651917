// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/artfolio/artfolio-sync/internal/frameworks/service"
	"github.com/artfolio/artfolio-sync/internal/platform/config"
	"github.com/artfolio/artfolio-sync/internal/platform/deps"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

var ErrMissingSharedDeps = errors.New("shared deps not initialized: call deps.SetDeps() before server.New()")

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	services   map[string]service.Service // keyed by service name

	// mountedServices tracks services for lifecycle management (Close on shutdown).
	// Stored in mount order; closed in reverse order during shutdown.
	mountedServices []service.Service
}

// NewServices constructs every core service from its [http.services.<name>]
// section. Services already built are closed when a later one fails.
func NewServices(cfg *config.Config, logger *slog.Logger) (map[string]service.Service, error) {
	logger = logutil.NoopIfNil(logger)
	out := make(map[string]service.Service, len(service.CoreServices))
	for _, name := range service.CoreServices {
		newFunc := service.Get(name)
		if newFunc == nil {
			closeAll(out)
			return nil, fmt.Errorf("service %q not registered (registered: %v)", name, service.RegisteredServices())
		}
		svc, err := newFunc(cfg.HTTP.ServiceConfig(name), logger.With("service", name))
		if err != nil {
			closeAll(out)
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		out[name] = svc
	}
	return out, nil
}

func closeAll(services map[string]service.Service) {
	for _, svc := range services {
		svc.Close()
	}
}

// New creates a new Server with the given configuration.
// Services are passed as a name->service map; nil entries are safe (skipped at mount time).
// All dependencies are obtained from deps.GetDeps().
func New(cfg *config.Config, logger *slog.Logger, services map[string]service.Service) (*Server, error) {
	logger = logutil.NoopIfNil(logger)

	// Fail fast: shared deps must be initialized before server creation
	if deps.GetDeps() == nil {
		return nil, ErrMissingSharedDeps
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		services: services,
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down and
// returns http.ErrServerClosed after a graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server",
		"addr", ln.Addr().String(),
		"mode", s.cfg.Mode,
		"namespace", s.cfg.Namespace,
		"store_driver", s.cfg.Store.Driver,
	)
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and all mounted services.
// Hijacked websocket streams are not tracked by http.Server; closing the
// services ends them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	httpErr := s.httpServer.Shutdown(ctx)

	// Close services in reverse mount order (last mounted = first closed)
	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		if err := svc.Close(); err != nil {
			s.logger.Warn("service close error",
				"service", svc.Prefix(),
				"error", err,
			)
			// Continue closing other services (best-effort)
		} else {
			s.logger.Debug("service closed", "service", svc.Prefix())
		}
	}

	return httpErr
}
