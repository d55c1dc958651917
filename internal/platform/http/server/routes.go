package server

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/artfolio/artfolio-sync/internal/components/api"
	"github.com/artfolio/artfolio-sync/internal/frameworks/service"
	"github.com/artfolio/artfolio-sync/internal/platform/deps"
	"github.com/artfolio/artfolio-sync/internal/platform/http/auth"
	httpmw "github.com/artfolio/artfolio-sync/internal/platform/http/middleware"
)

// mountOrder returns core services first, in registration order, followed by
// any other configured service sorted by name.
func (s *Server) mountOrder() []string {
	order := make([]string, 0, len(s.services))
	for _, name := range service.CoreServices {
		if _, ok := s.services[name]; ok {
			order = append(order, name)
		}
	}
	var extra []string
	for name := range s.services {
		if !slices.Contains(service.CoreServices, name) {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	return append(order, extra...)
}

// mountService mounts a service and tracks it for lifecycle management.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	prefix := svc.Prefix()
	if prefix == "" {
		r.Mount("/", svc.Handler())
	} else {
		r.Mount("/"+prefix, svc.Handler())
	}
	s.mountedServices = append(s.mountedServices, svc)
}

// setupRoutes creates the chi router with every service mounted.
func (s *Server) setupRoutes() chi.Router {
	d := deps.GetDeps()
	r := chi.NewRouter()

	// Always-on transport middleware (order is invariant):
	// RequestID -> RealIP (opt-in) -> request-scoped logger -> access log ->
	// metrics -> recoverer -> actor resolution
	r.Use(chimw.RequestID)
	if s.cfg.HTTP.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(httpmw.RequestLoggerMiddleware(s.logger))
	r.Use(httpmw.AccessLogMiddleware(s.logger))
	r.Use(httpmw.MetricsMiddleware(d.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(auth.NewActorMiddleware(auth.ActorConfig{
		Tokens:    d.Tokens,
		DevHeader: s.cfg.Auth.DevHeader,
		Log:       s.logger,
	}))

	r.Get("/healthz", api.HealthHandler)
	if mc := s.cfg.HTTP.Metrics; mc.Enabled && d.Metrics != nil {
		r.Method(http.MethodGet, mc.Path, d.Metrics.Handler())
	}

	for _, name := range s.mountOrder() {
		s.mountService(r, s.services[name])
	}
	return r
}
