// Package mirror implements a pass-through driver that exports a JSON mirror.
// The wrapped primary driver is the source of truth; the JSON file is a
// one-way export for operator visibility. The program MUST NOT read it back.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/artfolio/artfolio-sync/internal/frameworks/service/cfg"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

func init() {
	store.Register("mirror", NewDriver)
}

// Config is the [store.drivers.mirror] section.
type Config struct {
	Primary        string         `mapstructure:"primary"`
	PrimaryConfig  map[string]any `mapstructure:"primary_config"`
	ExportDir      string         `mapstructure:"export_dir"`
	ExportFile     string         `mapstructure:"export_file"`
	RedactPrefixes []string       `mapstructure:"redact_prefixes"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Primary == "" {
		c.Primary = "sqlite"
	}
	if c.ExportFile == "" {
		c.ExportFile = "mirror.json"
	}
}

// Driver delegates to a primary driver and re-exports after every write.
type Driver struct {
	conf    Config
	log     *slog.Logger
	primary store.Driver
	mu      sync.Mutex // serializes exports
}

// NewDriver creates the mirror and its primary driver.
func NewDriver(conf map[string]any, log *slog.Logger) (store.Driver, error) {
	var c Config
	if err := cfg.Decode(conf, &c); err != nil {
		return nil, fmt.Errorf("mirror driver config: %w", err)
	}
	if c.ExportDir == "" {
		return nil, fmt.Errorf("export_dir is required for mirror driver")
	}
	if c.Primary == "mirror" {
		return nil, fmt.Errorf("mirror driver cannot wrap itself")
	}

	log = logutil.NoopIfNil(log)
	primary, err := store.New(c.Primary, c.PrimaryConfig, log)
	if err != nil {
		return nil, fmt.Errorf("mirror primary: %w", err)
	}

	return &Driver{conf: c, log: log, primary: primary}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "mirror"
}

// Primary returns the wrapped driver.
func (d *Driver) Primary() store.Driver {
	return d.primary
}

// Init initializes the primary and writes the initial export.
func (d *Driver) Init(ctx context.Context) error {
	if err := d.primary.Init(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(d.conf.ExportDir, 0700); err != nil {
		return fmt.Errorf("failed to create mirror dir: %w", err)
	}
	if err := d.export(ctx); err != nil {
		return fmt.Errorf("failed to export mirror: %w", err)
	}
	return nil
}

// Close closes the primary.
func (d *Driver) Close() error {
	return d.primary.Close()
}

func (d *Driver) Get(ctx context.Context, key string) (string, bool, error) {
	return d.primary.Get(ctx, key)
}

func (d *Driver) Keys(ctx context.Context) ([]string, error) {
	return d.primary.Keys(ctx)
}

// Set writes through to the primary. A failed export is logged, not
// returned: the primary write already succeeded.
func (d *Driver) Set(ctx context.Context, key, value string) error {
	if err := d.primary.Set(ctx, key, value); err != nil {
		return err
	}
	d.exportOrWarn(ctx)
	return nil
}

func (d *Driver) Remove(ctx context.Context, key string) error {
	if err := d.primary.Remove(ctx, key); err != nil {
		return err
	}
	d.exportOrWarn(ctx)
	return nil
}

func (d *Driver) exportOrWarn(ctx context.Context) {
	if err := d.export(ctx); err != nil {
		d.log.Warn("mirror export failed", "path", d.path(), "error", err)
	}
}

func (d *Driver) path() string {
	return filepath.Join(d.conf.ExportDir, d.conf.ExportFile)
}

func (d *Driver) redacted(key string) bool {
	return slices.ContainsFunc(d.conf.RedactPrefixes, func(p string) bool {
		return strings.HasPrefix(key, p)
	})
}

// export snapshots the whole key space to the mirror file.
func (d *Driver) export(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys, err := d.primary.Keys(ctx)
	if err != nil {
		return err
	}

	snapshot := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if d.redacted(k) {
			snapshot[k] = json.RawMessage(`""`)
			continue
		}
		v, ok, err := d.primary.Get(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		// Values are usually JSON documents; keep them readable in the export.
		if json.Valid([]byte(v)) {
			snapshot[k] = json.RawMessage(v)
		} else {
			quoted, _ := json.Marshal(v)
			snapshot[k] = quoted
		}
	}

	return writeJSON(d.path(), snapshot)
}

// writeJSON atomically writes data to path.
func writeJSON(path string, data any) error {
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(jsonData); err != nil {
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

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

var _ store.Driver = (*Driver)(nil)
