// Package json implements a single-file JSON persistence driver.
// Every write rewrites the whole file atomically (temp file + fsync + rename).
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/artfolio/artfolio-sync/internal/frameworks/service/cfg"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

func init() {
	store.Register("json", NewDriver)
}

// Config is the [store.drivers.json] section.
type Config struct {
	DataDir string `mapstructure:"data_dir"`
	File    string `mapstructure:"file"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.File == "" {
		c.File = "kv.json"
	}
}

// Driver keeps the whole key space in memory and mirrors it to one file.
type Driver struct {
	path   string
	log    *slog.Logger
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// NewDriver creates a JSON driver from its config section.
func NewDriver(conf map[string]any, log *slog.Logger) (store.Driver, error) {
	var c Config
	if err := cfg.Decode(conf, &c); err != nil {
		return nil, fmt.Errorf("json driver config: %w", err)
	}
	if c.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		path: filepath.Join(c.DataDir, c.File),
		log:  logutil.NoopIfNil(log),
		data: make(map[string]string),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init creates the data directory and loads the file if it exists.
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	raw, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", d.path, err)
	}
	if err := json.Unmarshal(raw, &d.data); err != nil {
		return fmt.Errorf("failed to decode %s: %w", d.path, err)
	}
	if d.data == nil {
		d.data = make(map[string]string)
	}

	d.log.Debug("json store loaded", "path", d.path, "keys", len(d.data))
	return nil
}

// Close marks the driver closed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) Get(ctx context.Context, key string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return "", false, store.Fail("json", "get", key, store.ErrClosed)
	}
	v, ok := d.data[key]
	return v, ok, nil
}

func (d *Driver) Set(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.Fail("json", "set", key, store.ErrClosed)
	}

	prev, had := d.data[key]
	d.data[key] = value
	if err := d.flush(); err != nil {
		// Keep memory consistent with disk
		if had {
			d.data[key] = prev
		} else {
			delete(d.data, key)
		}
		return store.Fail("json", "set", key, err)
	}
	return nil
}

func (d *Driver) Remove(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.Fail("json", "remove", key, store.ErrClosed)
	}

	prev, had := d.data[key]
	if !had {
		return nil
	}
	delete(d.data, key)
	if err := d.flush(); err != nil {
		d.data[key] = prev
		return store.Fail("json", "remove", key, err)
	}
	return nil
}

func (d *Driver) Keys(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.Fail("json", "keys", "", store.ErrClosed)
	}
	keys := make([]string, 0, len(d.data))
	for k := range d.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// flush atomically rewrites the file. Caller must hold d.mu.
func (d *Driver) flush() error {
	tempPath := d.path + ".tmp"

	raw, err := json.MarshalIndent(d.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, d.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

var _ store.Driver = (*Driver)(nil)
