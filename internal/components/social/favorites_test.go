package social_test

import (
	"context"
	"errors"
	"testing"

	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/components/social"
	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
)

func TestToggleFavorite_AnonymousThenRetry(t *testing.T) {
	f := newFixture(t)
	anon := context.Background()

	_, err := f.graph.ToggleFavorite(anon, social.ItemWork, "W", true)
	if !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Fatalf("expected AuthenticationRequired, got %v", err)
	}
	if n, _ := f.graph.FavoriteCount(anon, social.ItemWork, "W"); n != 0 {
		t.Fatal("anonymous attempt created an edge")
	}
	if len(f.favs) != 0 {
		t.Fatal("anonymous attempt published an event")
	}

	// The identical call succeeds once the actor is known.
	signedIn := identity.WithActor(anon, "u1")
	status, err := f.graph.ToggleFavorite(signedIn, social.ItemWork, "W", true)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !status.IsFavorited || status.FavoriteID == "" || status.Count != 1 {
		t.Errorf("unexpected status %+v", status)
	}

	check, err := f.graph.CheckFavoriteStatus(signedIn, social.ItemWork, "W")
	if err != nil {
		t.Fatal(err)
	}
	if !check.IsFavorited || check.FavoriteID != status.FavoriteID {
		t.Errorf("CheckFavoriteStatus = %+v, want favorited with id %s", check, status.FavoriteID)
	}
}

func TestToggleFavorite_SetAndClear(t *testing.T) {
	f := newFixture(t)
	u1 := identity.WithActor(context.Background(), "u1")
	u2 := identity.WithActor(context.Background(), "u2")

	first, _ := f.graph.ToggleFavorite(u1, social.ItemCollaboration, "c9", true)
	again, _ := f.graph.ToggleFavorite(u1, social.ItemCollaboration, "c9", true)
	if again.FavoriteID != first.FavoriteID || again.Count != 1 {
		t.Errorf("re-favoriting changed the edge: %+v vs %+v", again, first)
	}
	f.graph.ToggleFavorite(u2, social.ItemCollaboration, "c9", true)

	if n, _ := f.graph.FavoriteCount(u1, social.ItemCollaboration, "c9"); n != 2 {
		t.Errorf("FavoriteCount = %d, want 2", n)
	}
	if len(f.favs) != 2 {
		t.Errorf("expected 2 favorite:changed events, got %d", len(f.favs))
	}

	cleared, err := f.graph.ToggleFavorite(u1, social.ItemCollaboration, "c9", false)
	if err != nil || cleared.IsFavorited || cleared.Count != 1 {
		t.Fatalf("unfavorite = %+v, %v", cleared, err)
	}
	last := f.favs[len(f.favs)-1]
	if last.IsFavorited || last.UserID != "u1" || last.Count != 1 {
		t.Errorf("unexpected event %+v", last)
	}

	if _, err := f.graph.ToggleFavorite(u1, social.ItemCollaboration, "c9", false); err != nil {
		t.Fatal(err)
	}
	if len(f.favs) != 3 {
		t.Error("clearing an absent favorite must not publish")
	}
}

func TestToggleFavorite_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := identity.WithActor(context.Background(), "u1")

	if _, err := f.graph.ToggleFavorite(ctx, "portfolio", "x", true); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for item type, got %v", err)
	}
	if _, err := f.graph.ToggleFavorite(ctx, social.ItemWork, "", true); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for missing id, got %v", err)
	}
	if _, err := f.graph.CheckFavoriteStatus(ctx, social.ItemWork, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error on check, got %v", err)
	}
}

func TestCheckFavoriteStatus_Anonymous(t *testing.T) {
	f := newFixture(t)
	f.graph.ToggleFavorite(identity.WithActor(context.Background(), "u1"), social.ItemWork, "W", true)

	status, err := f.graph.CheckFavoriteStatus(context.Background(), social.ItemWork, "W")
	if err != nil {
		t.Fatal(err)
	}
	if status.IsFavorited || status.FavoriteID != "" || status.Count != 1 {
		t.Errorf("anonymous status = %+v", status)
	}
}

func TestListFavorites(t *testing.T) {
	f := newFixture(t)
	ctx := identity.WithActor(context.Background(), "u1")

	f.graph.ToggleFavorite(ctx, social.ItemWork, "w1", true)
	f.graph.ToggleFavorite(ctx, social.ItemCollaboration, "c1", true)
	f.graph.ToggleFavorite(ctx, social.ItemWork, "w2", true)

	all, err := f.graph.ListFavorites(ctx, "u1", "")
	if err != nil || len(all) != 3 || all[0].ItemID != "w2" {
		t.Fatalf("ListFavorites = %+v, %v", all, err)
	}
	works, _ := f.graph.ListFavorites(ctx, "u1", social.ItemWork)
	if len(works) != 2 {
		t.Errorf("expected 2 works, got %d", len(works))
	}
	if _, err := f.graph.ListFavorites(ctx, "u1", "bogus"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
