// Package valkey provides a Valkey/Redis cache driver.
// Instances sharing one server share cached projections, so an invalidation
// on one instance is seen by all.
package valkey

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/artfolio/artfolio-sync/internal/frameworks/service/cfg"
	"github.com/artfolio/artfolio-sync/internal/platform/cache"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

func init() {
	cache.RegisterDriver("valkey", func(conf map[string]any, log *slog.Logger) (cache.Cache, error) {
		var c Config
		if err := cfg.Decode(conf, &c); err != nil {
			return nil, fmt.Errorf("valkey cache config: %w", err)
		}
		return New(&c, log)
	})
}

// Config holds Valkey connection configuration.
type Config struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "artfolio-cache:"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = cache.DefaultTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// DefaultConfig returns the defaults for a local server.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Cache is a cache.Cache on a Valkey server.
type Cache struct {
	client valkey.Client
	conf   Config
}

// New connects and fails fast when the server is unreachable.
func New(c *Config, log *slog.Logger) (*Cache, error) {
	if c == nil {
		c = DefaultConfig()
	}
	log = logutil.NoopIfNil(log)

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{c.Addr},
		Password:     c.Password,
		SelectDB:     c.DB,
		Dialer:       net.Dialer{Timeout: c.DialTimeout},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", c.Addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.DialTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey health check failed: %w", err)
	}

	log.Info("valkey cache connected", "addr", c.Addr, "prefix", c.KeyPrefix)
	return &Cache{client: client, conf: *c}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := c.client.Do(ctx, c.client.B().Get().Key(c.conf.KeyPrefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Set stores a value; the server expires it after ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.conf.DefaultTTL
	}
	cmd := c.client.B().Set().Key(c.conf.KeyPrefix + key).Value(valkey.BinaryString(value)).
		PxMilliseconds(ttl.Milliseconds()).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(c.conf.KeyPrefix+key).Build()).Error()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(c.conf.KeyPrefix+key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// globEscaper quotes the glob metacharacters of a SCAN MATCH pattern.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// DeletePrefix scans for keys starting with prefix and deletes them in
// batches. Keys written while the scan runs may survive.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := globEscaper.Replace(c.conf.KeyPrefix+prefix) + "*"
	removed := 0
	var cursor uint64
	for {
		entry, err := c.client.Do(ctx, c.client.B().Scan().Cursor(cursor).Match(pattern).Count(256).Build()).AsScanEntry()
		if err != nil {
			return removed, err
		}
		if len(entry.Elements) > 0 {
			n, err := c.client.Do(ctx, c.client.B().Del().Key(entry.Elements...).Build()).AsInt64()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		if entry.Cursor == 0 {
			return removed, nil
		}
		cursor = entry.Cursor
	}
}

// Close closes the client.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

var (
	_ cache.Cache         = (*Cache)(nil)
	_ cache.PrefixDeleter = (*Cache)(nil)
)
