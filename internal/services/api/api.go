// Package api provides the /api/* endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	artistsapi "github.com/artfolio/artfolio-sync/internal/components/api/artists"
	eventsapi "github.com/artfolio/artfolio-sync/internal/components/api/events"
	notificationsapi "github.com/artfolio/artfolio-sync/internal/components/api/notifications"
	requestsapi "github.com/artfolio/artfolio-sync/internal/components/api/requests"
	socialapi "github.com/artfolio/artfolio-sync/internal/components/api/social"
	"github.com/artfolio/artfolio-sync/internal/frameworks/service"
	svccfg "github.com/artfolio/artfolio-sync/internal/frameworks/service/cfg"
	"github.com/artfolio/artfolio-sync/internal/platform/deps"
	"github.com/artfolio/artfolio-sync/internal/platform/http/ratelimit"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration ([http.services.api]).
type Config struct {
	// ListLimit caps every list response. Default: 100.
	ListLimit int `mapstructure:"list_limit"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.ListLimit <= 0 {
		c.ListLimit = 100
	}
}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	events *eventsapi.Handler // nil when the forwarder is disabled
	log    *slog.Logger
}

// New creates the API service over the shared deps.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	if err := svccfg.Decode(m, &c); err != nil {
		return nil, err
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}

	socialHandler := socialapi.NewHandler(d.Graph, c.ListLimit, log)
	requestsHandler := requestsapi.NewHandler(d.Requests, c.ListLimit, log)
	notificationsHandler := notificationsapi.NewHandler(d.Ledger, c.ListLimit, log)
	artistsHandler := artistsapi.NewHandler(d.Artists, log)

	// Mutating routes share one limiter keyed by caller.
	limited := func(h http.HandlerFunc) http.Handler { return h }
	if rl := d.Config.HTTP.RateLimit; rl.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
		}, log.With("component", "ratelimit"))
		limited = func(h http.HandlerFunc) http.Handler { return limiter.Wrap(h) }
	}

	r := chi.NewRouter()

	r.Route("/follows/{userId}", func(r chi.Router) {
		r.Get("/", socialHandler.HandleFollowStatus)
		r.Method(http.MethodPost, "/", limited(socialHandler.HandleFollow))
		r.Method(http.MethodDelete, "/", limited(socialHandler.HandleUnfollow))
	})

	r.Route("/users/{userId}", func(r chi.Router) {
		r.Get("/followers", socialHandler.HandleFollowers)
		r.Get("/following", socialHandler.HandleFollowing)
		r.Get("/favorites", socialHandler.HandleListFavorites)
	})

	r.Route("/favorites/{itemType}/{itemId}", func(r chi.Router) {
		r.Get("/", socialHandler.HandleFavoriteStatus)
		r.Method(http.MethodPut, "/", limited(socialHandler.HandleFavorite))
		r.Method(http.MethodDelete, "/", limited(socialHandler.HandleUnfavorite))
	})

	r.Route("/requests/{kind}", func(r chi.Router) {
		r.Method(http.MethodPost, "/", limited(requestsHandler.HandleCreate))
		r.Get("/status", requestsHandler.HandleStatus)
		r.Get("/incoming", requestsHandler.HandleIncoming)
		r.Get("/outgoing", requestsHandler.HandleOutgoing)
		r.Get("/{requestId}", requestsHandler.HandleGet)
		r.Method(http.MethodPost, "/{requestId}/approve", limited(requestsHandler.HandleApprove))
		r.Method(http.MethodPost, "/{requestId}/deny", limited(requestsHandler.HandleDeny))
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", notificationsHandler.HandleList)
		r.Get("/unread-count", notificationsHandler.HandleUnreadCount)
		r.Method(http.MethodPost, "/read-all", limited(notificationsHandler.HandleMarkAllRead))
		r.Method(http.MethodPost, "/{id}/read", limited(notificationsHandler.HandleMarkRead))
		r.Method(http.MethodDelete, "/{id}", limited(notificationsHandler.HandleDelete))
	})

	r.Get("/artists/{userId}", artistsHandler.HandleSummary)
	r.Get("/artists/{userId}/profile", artistsHandler.HandleProfile)
	r.Method(http.MethodPut, "/profile", limited(artistsHandler.HandleSetProfile))

	var eventsHandler *eventsapi.Handler
	if ev := d.Config.HTTP.Events; ev.Enabled {
		eventsHandler = eventsapi.NewHandler(d.Bus, eventsapi.Config{
			AllowedOrigins: ev.AllowedOrigins,
		}, d.Metrics, log.With("component", "events"))
		r.Get("/events", eventsHandler.HandleEvents)
	}

	return &Service{router: r, conf: &c, events: eventsHandler, log: log}, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Close ends open event streams.
func (s *Service) Close() error {
	if s.events != nil {
		s.events.Close()
	}
	return nil
}
