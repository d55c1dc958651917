// Package memory is the process-local cache driver. Entries live in one map
// behind a mutex; expired entries are dropped on read and by a janitor.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/artfolio/artfolio-sync/internal/frameworks/service/cfg"
	"github.com/artfolio/artfolio-sync/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(conf map[string]any, log *slog.Logger) (cache.Cache, error) {
		var c Config
		if err := cfg.Decode(conf, &c); err != nil {
			return nil, fmt.Errorf("memory cache config: %w", err)
		}
		return New(c.DefaultTTL, c.CleanupInterval), nil
	})
}

// Config is the [cache.drivers.memory] section.
type Config struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = cache.DefaultTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
}

type entry struct {
	data     []byte
	deadline time.Time
}

func (e entry) live(now time.Time) bool { return now.Before(e.deadline) }

// Cache is a map-backed cache.Cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration

	stop     chan struct{}
	janitor  sync.WaitGroup
	stopOnce sync.Once
}

// New returns an empty cache. A positive sweepEvery starts a janitor that
// drops expired entries at that interval until Close.
func New(defaultTTL, sweepEvery time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = cache.DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     defaultTTL,
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		c.janitor.Add(1)
		go c.sweepLoop(sweepEvery)
	}
	return c
}

func (c *Cache) sweepLoop(every time.Duration) {
	defer c.janitor.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			c.sweep(now)
		case <-c.stop:
			return
		}
	}
}

// sweep drops entries that are no longer live at now.
func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if !e.live(now) {
			delete(c.entries, k)
		}
	}
}

// Get returns a copy of the value under key. An expired entry is removed and
// reported as cache.ErrExpired.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	switch {
	case !ok:
		return nil, cache.ErrNotFound
	case !e.live(time.Now()):
		delete(c.entries, key)
		return nil, cache.ErrExpired
	}
	return append([]byte(nil), e.data...), nil
}

// Set stores a copy of value. ttl <= 0 uses the cache default.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	e := entry{data: append([]byte(nil), value...), deadline: time.Now().Add(ttl)}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.live(time.Now()), nil
}

// DeletePrefix drops every entry whose key starts with prefix.
func (c *Cache) DeletePrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

// Len counts stored entries, expired ones not yet swept included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the janitor and waits for it. It is safe to call twice.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.janitor.Wait()
	return nil
}

var (
	_ cache.Cache         = (*Cache)(nil)
	_ cache.PrefixDeleter = (*Cache)(nil)
)
