package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/artfolio/artfolio-sync/internal/platform/store"
	_ "github.com/artfolio/artfolio-sync/internal/platform/store/sqlite"
	"github.com/artfolio/artfolio-sync/internal/platform/store/storetest"
)

func TestSQLiteDriver(t *testing.T) {
	dir := t.TempDir()
	storetest.RunDriverTests(t, "sqlite", map[string]any{"data_dir": dir})

	if _, err := os.Stat(filepath.Join(dir, "artfolio.db")); os.IsNotExist(err) {
		t.Error("artfolio.db not created")
	}
}

func TestSQLiteDriverUpsertKeepsSingleRow(t *testing.T) {
	ctx := context.Background()
	d, err := store.New("sqlite", map[string]any{"data_dir": t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := d.Init(ctx); err != nil {
		t.Fatal(err)
	}

	for _, v := range []string{"one", "two", "three"} {
		if err := d.Set(ctx, "favorites", v); err != nil {
			t.Fatalf("Set(%q) failed: %v", v, err)
		}
	}

	keys, err := d.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one key after repeated upserts, got %v", keys)
	}
	got, _, _ := d.Get(ctx, "favorites")
	if got != "three" {
		t.Errorf("expected last write to win, got %q", got)
	}
}

func TestSQLiteDriverPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	conf := map[string]any{"data_dir": t.TempDir(), "file": "reopen.db"}

	first, err := store.New("sqlite", conf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Init(ctx); err != nil {
		t.Fatal(err)
	}
	first.Set(ctx, "notifications:u1", `[]`)
	first.Close()

	second, err := store.New("sqlite", conf, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if err := second.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := second.Get(ctx, "notifications:u1"); err != nil || !ok {
		t.Errorf("expected key after reopen, ok %v err %v", ok, err)
	}
}
