package social

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

var now = func() time.Time { return time.Now().UTC() }

func checkItem(op string, itemType ItemType, itemID string) error {
	if !itemType.Valid() {
		return apperr.Newf(apperr.KindValidation, op, "itemType must be %q or %q", ItemWork, ItemCollaboration)
	}
	if itemID == "" {
		return apperr.New(apperr.KindValidation, op, "itemId is required")
	}
	return nil
}

// ToggleFavorite sets the current actor's favorite on an item. An anonymous
// actor gets an authentication-required error and nothing is written, so the
// identical call can be retried after sign-in. Setting the state the item is
// already in publishes nothing.
func (g *Graph) ToggleFavorite(ctx context.Context, itemType ItemType, itemID string, shouldFavorite bool) (FavoriteStatus, error) {
	const op = "social.toggle_favorite"

	userID, ok := g.actors.CurrentActorID(ctx)
	if !ok {
		return FavoriteStatus{}, apperr.New(apperr.KindAuthenticationRequired, op, "sign in to save favorites")
	}
	if err := checkItem(op, itemType, itemID); err != nil {
		return FavoriteStatus{}, err
	}

	var status FavoriteStatus
	subject := []string{userID, string(itemType), itemID}
	err := g.guarded(ctx, op, "favorite", subject, func(ctx context.Context) error {
		changed := false
		favoriteID := ""

		err := g.favorites.Update(ctx, func(edges []FavoriteEdge) ([]FavoriteEdge, error) {
			i := indexFavorite(edges, userID, itemType, itemID)
			switch {
			case shouldFavorite && i >= 0:
				favoriteID = edges[i].ID
				return nil, store.ErrUnchanged
			case shouldFavorite:
				changed = true
				favoriteID = uuid.Must(uuid.NewV7()).String()
				return append(edges, FavoriteEdge{
					ID:        favoriteID,
					UserID:    userID,
					ItemType:  itemType,
					ItemID:    itemID,
					CreatedAt: now(),
				}), nil
			case i >= 0:
				changed = true
				return append(edges[:i], edges[i+1:]...), nil
			default:
				return nil, store.ErrUnchanged
			}
		})
		if err != nil {
			return apperr.Storage(op, err)
		}

		count, err := g.FavoriteCount(ctx, itemType, itemID)
		if err != nil {
			return err
		}
		status = FavoriteStatus{IsFavorited: shouldFavorite, FavoriteID: favoriteID, Count: count}

		if changed {
			g.log.Debug("favorite toggled",
				"user_id", userID,
				"item_type", itemType,
				"item_id", itemID,
				"favorited", shouldFavorite,
			)
			g.publish(ctx, eventbus.TopicFavoriteChanged, FavoriteChanged{
				ItemType:    itemType,
				ItemID:      itemID,
				UserID:      userID,
				IsFavorited: shouldFavorite,
				Count:       count,
			})
		}
		return nil
	})
	return status, err
}

// CheckFavoriteStatus reports whether the current actor favorited the item.
// Anonymous actors read as not favorited.
func (g *Graph) CheckFavoriteStatus(ctx context.Context, itemType ItemType, itemID string) (FavoriteStatus, error) {
	const op = "social.check_favorite"
	if err := checkItem(op, itemType, itemID); err != nil {
		return FavoriteStatus{}, err
	}

	edges, err := g.favorites.Load(ctx)
	if err != nil {
		return FavoriteStatus{}, apperr.Storage(op, err)
	}

	var status FavoriteStatus
	userID, signedIn := g.actors.CurrentActorID(ctx)
	for _, e := range edges {
		if e.ItemType != itemType || e.ItemID != itemID {
			continue
		}
		status.Count++
		if signedIn && e.UserID == userID {
			status.IsFavorited = true
			status.FavoriteID = e.ID
		}
	}
	return status, nil
}

// FavoriteCount counts the favorites of an item.
func (g *Graph) FavoriteCount(ctx context.Context, itemType ItemType, itemID string) (int, error) {
	edges, err := g.favorites.Load(ctx)
	if err != nil {
		return 0, apperr.Storage("social.favorite_count", err)
	}
	n := 0
	for _, e := range edges {
		if e.ItemType == itemType && e.ItemID == itemID {
			n++
		}
	}
	return n, nil
}

// ListFavorites returns userID's favorites, newest first. An empty itemType
// lists every type.
func (g *Graph) ListFavorites(ctx context.Context, userID string, itemType ItemType) ([]FavoriteEdge, error) {
	const op = "social.list_favorites"
	if itemType != "" && !itemType.Valid() {
		return nil, apperr.Newf(apperr.KindValidation, op, "unknown itemType %q", itemType)
	}

	edges, err := g.favorites.Load(ctx)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	out := []FavoriteEdge{}
	for i := len(edges) - 1; i >= 0; i-- {
		e := edges[i]
		if e.UserID == userID && (itemType == "" || e.ItemType == itemType) {
			out = append(out, e)
		}
	}
	return out, nil
}

func indexFavorite(edges []FavoriteEdge, userID string, itemType ItemType, itemID string) int {
	for i, e := range edges {
		if e.UserID == userID && e.ItemType == itemType && e.ItemID == itemID {
			return i
		}
	}
	return -1
}
