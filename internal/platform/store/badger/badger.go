// Package badger implements an embedded BadgerDB persistence driver.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/artfolio/artfolio-sync/internal/frameworks/service/cfg"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

func init() {
	store.Register("badger", NewDriver)
}

// Config is the [store.drivers.badger] section.
type Config struct {
	Path           string        `mapstructure:"path"`
	InMemory       bool          `mapstructure:"in_memory"`
	SyncWrites     bool          `mapstructure:"sync_writes"`
	GCInterval     time.Duration `mapstructure:"gc_interval"`
	GCDiscardRatio float64       `mapstructure:"gc_discard_ratio"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.GCInterval == 0 && !c.InMemory {
		c.GCInterval = 5 * time.Minute
	}
	if c.GCDiscardRatio == 0 {
		c.GCDiscardRatio = 0.5
	}
}

// badgerLogger routes badger's internal logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Driver implements store.Driver on a badger database.
type Driver struct {
	conf   Config
	log    *slog.Logger
	db     *badger.DB
	stopGC chan struct{}
	gcDone chan struct{}
}

// NewDriver creates a badger driver. The database is opened in Init.
func NewDriver(conf map[string]any, log *slog.Logger) (store.Driver, error) {
	var c Config
	if err := cfg.Decode(conf, &c); err != nil {
		return nil, fmt.Errorf("badger driver config: %w", err)
	}
	if !c.InMemory && c.Path == "" {
		return nil, errors.New("path is required for persistent badger database")
	}
	if c.GCDiscardRatio < 0 || c.GCDiscardRatio > 1 {
		return nil, errors.New("gc_discard_ratio must be between 0 and 1")
	}
	return &Driver{conf: c, log: logutil.NoopIfNil(log)}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "badger"
}

// Init opens the database and starts value-log GC for on-disk databases.
func (d *Driver) Init(ctx context.Context) error {
	var opts badger.Options
	if d.conf.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(d.conf.Path, 0750); err != nil {
			return fmt.Errorf("create database directory %s: %w", d.conf.Path, err)
		}
		opts = badger.DefaultOptions(d.conf.Path)
	}
	opts = opts.WithSyncWrites(d.conf.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: d.log})

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	d.db = db

	if d.conf.GCInterval > 0 && !d.conf.InMemory {
		d.stopGC = make(chan struct{})
		d.gcDone = make(chan struct{})
		go d.gcLoop()
	}
	return nil
}

func (d *Driver) gcLoop() {
	defer close(d.gcDone)

	ticker := time.NewTicker(d.conf.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			err := d.db.RunValueLogGC(d.conf.GCDiscardRatio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				d.log.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

// Close stops GC and closes the database.
func (d *Driver) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
		<-d.gcDone
		d.stopGC = nil
	}
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *Driver) Get(ctx context.Context, key string) (string, bool, error) {
	if d.db == nil {
		return "", false, store.Fail("badger", "get", key, store.ErrClosed)
	}

	var (
		val   []byte
		found bool
	)
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", false, store.Fail("badger", "get", key, err)
	}
	return string(val), found, nil
}

func (d *Driver) Set(ctx context.Context, key, value string) error {
	if d.db == nil {
		return store.Fail("badger", "set", key, store.ErrClosed)
	}

	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	return store.Fail("badger", "set", key, err)
}

func (d *Driver) Remove(ctx context.Context, key string) error {
	if d.db == nil {
		return store.Fail("badger", "remove", key, store.ErrClosed)
	}

	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return store.Fail("badger", "remove", key, err)
}

func (d *Driver) Keys(ctx context.Context) ([]string, error) {
	if d.db == nil {
		return nil, store.Fail("badger", "keys", "", store.ErrClosed)
	}

	var keys []string
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, store.Fail("badger", "keys", "", err)
	}
	return keys, nil
}

var _ store.Driver = (*Driver)(nil)
