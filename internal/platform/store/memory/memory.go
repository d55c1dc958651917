// Package memory implements an in-process store driver.
// Data lives only as long as the process; it backs tests and dev mode.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

func init() {
	store.Register("memory", func(conf map[string]any, log *slog.Logger) (store.Driver, error) {
		return New(), nil
	})
}

// Driver is a map-backed store.Driver.
type Driver struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// New creates an empty in-memory driver. It is usable without Init.
func New() *Driver {
	return &Driver{data: make(map[string]string)}
}

// Name returns the driver name.
func (d *Driver) Name() string { return "memory" }

// Init is a no-op.
func (d *Driver) Init(ctx context.Context) error { return nil }

// Close marks the driver closed; later calls fail with store.ErrClosed.
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
		return "", false, store.Fail("memory", "get", key, store.ErrClosed)
	}
	v, ok := d.data[key]
	return v, ok, nil
}

func (d *Driver) Set(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.Fail("memory", "set", key, store.ErrClosed)
	}
	d.data[key] = value
	return nil
}

func (d *Driver) Remove(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.Fail("memory", "remove", key, store.ErrClosed)
	}
	delete(d.data, key)
	return nil
}

func (d *Driver) Keys(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.Fail("memory", "keys", "", store.ErrClosed)
	}
	keys := make([]string, 0, len(d.data))
	for k := range d.data {
		keys = append(keys, k)
	}
	return keys, nil
}

var _ store.Driver = (*Driver)(nil)
