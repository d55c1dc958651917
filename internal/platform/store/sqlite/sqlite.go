// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/artfolio/artfolio-sync/internal/frameworks/service/cfg"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Config is the [store.drivers.sqlite] section.
type Config struct {
	DataDir string `mapstructure:"data_dir"`
	File    string `mapstructure:"file"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.File == "" {
		c.File = "artfolio.db"
	}
}

// Entry is one row of the kv_entries table.
type Entry struct {
	Key       string `gorm:"column:key;primaryKey"`
	Value     string `gorm:"column:value;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (Entry) TableName() string { return "kv_entries" }

// Driver implements store.Driver on a single SQLite table.
type Driver struct {
	path string
	log  *slog.Logger
	db   *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(conf map[string]any, log *slog.Logger) (store.Driver, error) {
	var c Config
	if err := cfg.Decode(conf, &c); err != nil {
		return nil, fmt.Errorf("sqlite driver config: %w", err)
	}
	if c.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		path: filepath.Join(c.DataDir, c.File),
		log:  logutil.NoopIfNil(log),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens the database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(d.path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; keep a single connection so writers queue
	// in database/sql instead of failing with SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	d.db = db
	d.log.Debug("sqlite store opened", "path", d.path)
	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Driver) Get(ctx context.Context, key string) (string, bool, error) {
	if d.db == nil {
		return "", false, store.Fail("sqlite", "get", key, store.ErrClosed)
	}

	var e Entry
	err := d.db.WithContext(ctx).First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Fail("sqlite", "get", key, err)
	}
	return e.Value, true, nil
}

func (d *Driver) Set(ctx context.Context, key, value string) error {
	if d.db == nil {
		return store.Fail("sqlite", "set", key, store.ErrClosed)
	}

	e := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	return store.Fail("sqlite", "set", key, err)
}

func (d *Driver) Remove(ctx context.Context, key string) error {
	if d.db == nil {
		return store.Fail("sqlite", "remove", key, store.ErrClosed)
	}

	err := d.db.WithContext(ctx).Delete(&Entry{}, "key = ?", key).Error
	return store.Fail("sqlite", "remove", key, err)
}

func (d *Driver) Keys(ctx context.Context) ([]string, error) {
	if d.db == nil {
		return nil, store.Fail("sqlite", "keys", "", store.ErrClosed)
	}

	var keys []string
	if err := d.db.WithContext(ctx).Model(&Entry{}).Pluck("key", &keys).Error; err != nil {
		return nil, store.Fail("sqlite", "keys", "", err)
	}
	return keys, nil
}

var _ store.Driver = (*Driver)(nil)
