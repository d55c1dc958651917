// Package deps provides shared dependencies for all services.
package deps

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/artfolio/artfolio-sync/internal/components/artists"
	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/components/notifications"
	"github.com/artfolio/artfolio-sync/internal/components/requests"
	"github.com/artfolio/artfolio-sync/internal/components/social"
	"github.com/artfolio/artfolio-sync/internal/platform/cache"
	"github.com/artfolio/artfolio-sync/internal/platform/config"
	"github.com/artfolio/artfolio-sync/internal/platform/inflight"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps holds the components shared by every service of one process. All of
// them publish on the same bus and write through the same store.
type Deps struct {
	Config *config.Config

	// Infrastructure
	Store   store.Store
	Cache   cache.Cache
	Bus     *eventbus.Bus
	Guard   *inflight.Guard
	Metrics *metrics.Metrics

	// Domain
	Ledger   *notifications.Ledger
	Graph    *social.Graph
	Requests *requests.Set
	Artists  *artists.Directory

	// Tokens verifies bearer tokens. Nil when none are configured.
	Tokens *identity.TokenAuth
}

// Options are the inputs of New that are opened by the caller.
type Options struct {
	Config  *config.Config
	Store   store.Store // already scoped to the namespace
	Cache   cache.Cache
	Metrics *metrics.Metrics // optional
	Log     *slog.Logger
}

// New wires the domain components over an opened store and cache. The
// artist directory is started, so Close must be called on shutdown.
func New(o Options) (*Deps, error) {
	if o.Config == nil || o.Store == nil || o.Cache == nil {
		return nil, errors.New("deps: config, store and cache are required")
	}
	log := logutil.NoopIfNil(o.Log)

	bus := eventbus.New(log.With("component", "eventbus"), eventbus.WithMetrics(o.Metrics))
	guard := inflight.New(o.Config.InFlight.MaxHold, log.With("component", "inflight"))
	ledger := notifications.New(o.Store, bus, log.With("component", "notifications"))

	graph := social.New(social.Deps{
		Store:   o.Store,
		Actors:  identity.ContextProvider{},
		Bus:     bus,
		Ledger:  ledger,
		Guard:   guard,
		Metrics: o.Metrics,
		Log:     log.With("component", "social"),
	})

	reqs, err := requests.NewSet(requests.Deps{
		Store:   o.Store,
		Ledger:  ledger,
		Bus:     bus,
		Guard:   guard,
		Metrics: o.Metrics,
		Log:     log.With("component", "requests"),
	})
	if err != nil {
		return nil, err
	}

	dir, err := artists.New(artists.Deps{
		Store:   o.Store,
		Cache:   cache.Scope(o.Cache, o.Config.Namespace),
		Counts:  graph,
		Bus:     bus,
		TTL:     o.Config.Cache.TTL,
		Metrics: o.Metrics,
		Log:     log.With("component", "artists"),
	})
	if err != nil {
		return nil, err
	}
	dir.Start()

	var tokens *identity.TokenAuth
	if len(o.Config.Auth.Tokens) > 0 {
		entries := make([]identity.TokenEntry, 0, len(o.Config.Auth.Tokens))
		for _, t := range o.Config.Auth.Tokens {
			entries = append(entries, identity.TokenEntry{ActorID: t.ActorID, Hash: t.Hash})
		}
		if tokens, err = identity.NewTokenAuth(entries); err != nil {
			dir.Stop()
			return nil, fmt.Errorf("auth tokens: %w", err)
		}
	}

	return &Deps{
		Config:   o.Config,
		Store:    o.Store,
		Cache:    o.Cache,
		Bus:      bus,
		Guard:    guard,
		Metrics:  o.Metrics,
		Ledger:   ledger,
		Graph:    graph,
		Requests: reqs,
		Artists:  dir,
		Tokens:   tokens,
	}, nil
}

// Close stops the artist directory and closes the cache. The store is owned
// by the caller.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	if d.Artists != nil {
		d.Artists.Stop()
	}
	if d.Cache != nil {
		return d.Cache.Close()
	}
	return nil
}

// SetDeps sets the shared dependencies. Must be called once at startup
// before any services are constructed.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the shared dependencies.
// Returns nil if SetDeps has not been called.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps is for testing only. Resets the singleton.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}
