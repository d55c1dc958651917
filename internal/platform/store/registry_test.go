package store_test

import (
	"strings"
	"testing"

	"github.com/artfolio/artfolio-sync/internal/platform/store"
	_ "github.com/artfolio/artfolio-sync/internal/platform/store/loader"
)

func TestDriverRegistry(t *testing.T) {
	drivers := store.AvailableDrivers()

	expected := map[string]bool{
		"memory": true, "json": true, "sqlite": true,
		"valkey": true, "badger": true, "mirror": true,
	}
	for _, d := range drivers {
		if !expected[d] {
			t.Logf("unexpected driver registered: %s", d)
		}
		delete(expected, d)
	}

	for d := range expected {
		t.Errorf("expected driver %q not registered", d)
	}
}

func TestUnknownDriver(t *testing.T) {
	_, err := store.New("nope", nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !strings.Contains(err.Error(), "memory") {
		t.Errorf("expected error to list available drivers, got %v", err)
	}
}
