package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/artfolio/artfolio-sync/internal/platform/cache"
	"github.com/artfolio/artfolio-sync/internal/platform/config"
	"github.com/artfolio/artfolio-sync/internal/platform/deps"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
	"github.com/artfolio/artfolio-sync/internal/platform/store"

	// Register cache and store drivers
	_ "github.com/artfolio/artfolio-sync/internal/platform/cache/loader"
	_ "github.com/artfolio/artfolio-sync/internal/platform/store/loader"
)

// runtime is the process state opened by a command: configuration, logger,
// the store driver and the shared deps over it.
type runtime struct {
	cfg     *config.Config
	log     *slog.Logger
	driver  store.Driver
	store   store.Store // namespace scoped
	metrics *metrics.Metrics
	deps    *deps.Deps
}

// loadConfig loads configuration and builds the process logger. Config
// loading errors are reported through a bootstrap logger on w.
func loadConfig(opts *RootOptions, w io.Writer) (*config.Config, *slog.Logger, error) {
	bootstrap := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))

	lo := opts.loaderOptions()
	lo.Logger = bootstrap
	cfg, err := config.Load(lo)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logutil.New(w, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openStore opens the configured driver and scopes it to the namespace.
func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (store.Driver, store.Store, error) {
	driver, err := store.New(cfg.Store.Driver, cfg.Store.DriverConfig(), log.With("component", "store"))
	if err != nil {
		return nil, nil, err
	}
	if err := driver.Init(ctx); err != nil {
		driver.Close()
		return nil, nil, fmt.Errorf("init store %s: %w", driver.Name(), err)
	}
	return driver, store.Scope(metrics.InstrumentStore(driver, m), cfg.Namespace), nil
}

// openRuntime opens the store and, when withDeps is set, wires the shared
// deps and installs them with deps.SetDeps.
func openRuntime(ctx context.Context, opts *RootOptions, w io.Writer, withDeps bool) (*runtime, error) {
	cfg, log, err := loadConfig(opts, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	rt := &runtime{cfg: cfg, log: log}
	if cfg.HTTP.Metrics.Enabled {
		rt.metrics = metrics.New()
	}

	rt.driver, rt.store, err = openStore(ctx, cfg, rt.metrics, log)
	if err != nil {
		return nil, err
	}
	log.Info("store opened", "driver", rt.driver.Name(), "namespace", cfg.Namespace)

	if !withDeps {
		return rt, nil
	}

	c, err := cache.New(cfg.Cache.Driver, cfg.Cache.DriverConfig(), log.With("component", "cache"))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	rt.deps, err = deps.New(deps.Options{
		Config:  cfg,
		Store:   rt.store,
		Cache:   c,
		Metrics: rt.metrics,
		Log:     log,
	})
	if err != nil {
		c.Close()
		rt.Close()
		return nil, err
	}
	deps.SetDeps(rt.deps)
	return rt, nil
}

// Close releases the deps and then the store driver.
func (rt *runtime) Close() error {
	var errs []error
	if rt.deps != nil {
		errs = append(errs, rt.deps.Close())
	}
	if rt.driver != nil {
		errs = append(errs, rt.driver.Close())
	}
	return errors.Join(errs...)
}
