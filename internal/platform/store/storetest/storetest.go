// Package storetest provides the shared conformance suite for store drivers.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

// RunDriverTests runs the standard suite against a registered driver.
// Each subtest works inside its own namespace so drivers may share one backend.
func RunDriverTests(t *testing.T, driverName string, conf map[string]any) {
	t.Helper()
	ctx := context.Background()

	driver, err := store.New(driverName, conf, nil)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}

	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}

	t.Run("GetSetRemove", func(t *testing.T) {
		TestGetSetRemove(t, ctx, store.Scope(driver, "get-set-remove"))
	})

	t.Run("Keys", func(t *testing.T) {
		TestKeys(t, ctx, store.Scope(driver, "keys"))
	})

	t.Run("ScopeIsolation", func(t *testing.T) {
		TestScopeIsolation(t, ctx, store.Scope(driver, "isolation"))
	})

	t.Run("CollectionUpdates", func(t *testing.T) {
		TestCollectionUpdates(t, ctx, store.Scope(driver, "collection"))
	})

	t.Run("Purge", func(t *testing.T) {
		TestPurge(t, ctx, store.Scope(driver, "purge"))
	})
}

// TestGetSetRemove covers the single-key contract.
func TestGetSetRemove(t *testing.T, ctx context.Context, s store.Store) {
	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want ok false, nil error", ok, err)
	}

	if err := s.Set(ctx, "greeting", "hello"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, err := s.Get(ctx, "greeting")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok %v, err %v", ok, err)
	}
	if got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}

	// Whole-value overwrite
	if err := s.Set(ctx, "greeting", `{"text":"hi"}`); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	got, _, _ = s.Get(ctx, "greeting")
	if got != `{"text":"hi"}` {
		t.Errorf("expected overwritten value, got %q", got)
	}

	// Empty value is a value, not an absence
	if err := s.Set(ctx, "empty", ""); err != nil {
		t.Fatalf("Set empty failed: %v", err)
	}
	if _, ok, err := s.Get(ctx, "empty"); err != nil || !ok {
		t.Errorf("expected empty value to be present, ok %v err %v", ok, err)
	}

	if err := s.Remove(ctx, "greeting"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "greeting"); ok {
		t.Error("expected key to be gone after Remove")
	}

	// Removing an absent key is not an error
	if err := s.Remove(ctx, "greeting"); err != nil {
		t.Errorf("Remove of absent key returned %v", err)
	}

	s.Remove(ctx, "empty")
}

// TestKeys verifies Keys lists exactly the stored keys.
func TestKeys(t *testing.T, ctx context.Context, s store.Store) {
	want := []string{"a", "b", "c/d"}
	for _, k := range want {
		if err := s.Set(ctx, k, "v-"+k); err != nil {
			t.Fatalf("Set(%q) failed: %v", k, err)
		}
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, want) {
		t.Errorf("expected keys %v, got %v", want, keys)
	}

	for _, k := range want {
		s.Remove(ctx, k)
	}
}

// TestScopeIsolation verifies namespaces do not see each other's keys.
func TestScopeIsolation(t *testing.T, ctx context.Context, s store.Store) {
	alice := store.Scope(s, "alice")
	bob := store.Scope(s, "bob")

	if err := alice.Set(ctx, "follows", "[1]"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, _ := bob.Get(ctx, "follows"); ok {
		t.Error("bob's scope must not see alice's key")
	}

	keys, err := bob.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys in bob's scope, got %v", keys)
	}

	keys, _ = alice.Keys(ctx)
	if len(keys) != 1 || keys[0] != "follows" {
		t.Errorf("expected [follows] in alice's scope, got %v", keys)
	}

	alice.Remove(ctx, "follows")
}

type counterItem struct {
	N int `json:"n"`
}

// TestCollectionUpdates verifies read-modify-write does not lose in-process updates.
func TestCollectionUpdates(t *testing.T, ctx context.Context, s store.Store) {
	locks := store.NewKeyLocker()
	coll := store.NewCollection[counterItem](s, "items", locks)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- coll.Update(ctx, func(items []counterItem) ([]counterItem, error) {
				return append(items, counterItem{N: n}), nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	items, err := coll.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(items) != writers {
		t.Errorf("expected %d items, got %d", writers, len(items))
	}

	// A failing callback leaves the list untouched
	boom := errors.New("boom")
	err = coll.Update(ctx, func(items []counterItem) ([]counterItem, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	items, _ = coll.Load(ctx)
	if len(items) != writers {
		t.Errorf("expected list untouched after failed update, got %d items", len(items))
	}

	// Emptying the list removes the key
	if err := coll.Update(ctx, func([]counterItem) ([]counterItem, error) { return nil, nil }); err != nil {
		t.Fatalf("Update to empty failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "items"); ok {
		t.Error("expected key removed when list becomes empty")
	}
}

// TestPurge verifies Purge removes everything in scope and nothing outside.
func TestPurge(t *testing.T, ctx context.Context, s store.Store) {
	inside := store.Scope(s, "inside")
	outside := store.Scope(s, "outside")

	for i := 0; i < 3; i++ {
		inside.Set(ctx, fmt.Sprintf("k%d", i), "v")
	}
	outside.Set(ctx, "keep", "v")

	n, err := store.Purge(ctx, inside)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 keys purged, got %d", n)
	}
	if keys, _ := inside.Keys(ctx); len(keys) != 0 {
		t.Errorf("expected empty scope after purge, got %v", keys)
	}
	if _, ok, _ := outside.Get(ctx, "keep"); !ok {
		t.Error("purge must not touch keys outside the scope")
	}

	outside.Remove(ctx, "keep")
}
