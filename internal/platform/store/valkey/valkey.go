// Package valkey implements a Valkey/Redis persistence driver.
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
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

func init() {
	store.Register("valkey", NewDriver)
}

// Config is the [store.drivers.valkey] section.
type Config struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	ScanCount   int64         `mapstructure:"scan_count"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "artfolio:"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ScanCount == 0 {
		c.ScanCount = 100
	}
}

// Driver stores every key as a plain string under KeyPrefix.
type Driver struct {
	conf   Config
	log    *slog.Logger
	client valkey.Client
}

// NewDriver creates a valkey driver. The connection is made in Init.
func NewDriver(conf map[string]any, log *slog.Logger) (store.Driver, error) {
	var c Config
	if err := cfg.Decode(conf, &c); err != nil {
		return nil, fmt.Errorf("valkey driver config: %w", err)
	}
	return &Driver{conf: c, log: logutil.NoopIfNil(log)}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "valkey"
}

// Init connects and fails fast when the server is unreachable.
func (d *Driver) Init(ctx context.Context) error {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{d.conf.Addr},
		Password:    d.conf.Password,
		SelectDB:    d.conf.DB,
		Dialer:      net.Dialer{Timeout: d.conf.DialTimeout},
		// Whole-value writes from other instances must be visible immediately.
		DisableCache: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to valkey at %s: %w", d.conf.Addr, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, d.conf.DialTimeout)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return fmt.Errorf("valkey health check failed: %w", err)
	}

	d.client = client
	d.log.Info("valkey store connected", "addr", d.conf.Addr, "db", d.conf.DB, "prefix", d.conf.KeyPrefix)
	return nil
}

// Close closes the client.
func (d *Driver) Close() error {
	if d.client != nil {
		d.client.Close()
	}
	return nil
}

func (d *Driver) Get(ctx context.Context, key string) (string, bool, error) {
	if d.client == nil {
		return "", false, store.Fail("valkey", "get", key, store.ErrClosed)
	}

	v, err := d.client.Do(ctx, d.client.B().Get().Key(d.conf.KeyPrefix+key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Fail("valkey", "get", key, err)
	}
	return v, true, nil
}

func (d *Driver) Set(ctx context.Context, key, value string) error {
	if d.client == nil {
		return store.Fail("valkey", "set", key, store.ErrClosed)
	}

	err := d.client.Do(ctx, d.client.B().Set().Key(d.conf.KeyPrefix+key).Value(value).Build()).Error()
	return store.Fail("valkey", "set", key, err)
}

func (d *Driver) Remove(ctx context.Context, key string) error {
	if d.client == nil {
		return store.Fail("valkey", "remove", key, store.ErrClosed)
	}

	err := d.client.Do(ctx, d.client.B().Del().Key(d.conf.KeyPrefix+key).Build()).Error()
	return store.Fail("valkey", "remove", key, err)
}

// Keys walks the key space with SCAN; it never blocks the server like KEYS.
func (d *Driver) Keys(ctx context.Context) ([]string, error) {
	if d.client == nil {
		return nil, store.Fail("valkey", "keys", "", store.ErrClosed)
	}

	var (
		keys   []string
		cursor uint64
	)
	for {
		entry, err := d.client.Do(ctx, d.client.B().Scan().Cursor(cursor).
			Match(d.conf.KeyPrefix+"*").Count(d.conf.ScanCount).Build()).AsScanEntry()
		if err != nil {
			return nil, store.Fail("valkey", "keys", "", err)
		}
		for _, k := range entry.Elements {
			keys = append(keys, strings.TrimPrefix(k, d.conf.KeyPrefix))
		}
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}
	return dedupe(keys), nil
}

// dedupe drops repeats; SCAN may return a key more than once.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

var _ store.Driver = (*Driver)(nil)
