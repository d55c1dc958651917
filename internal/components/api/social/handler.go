// Package social implements the follow and favorite HTTP handlers.
package social

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artfolio/artfolio-sync/internal/components/api"
	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/components/social"
	"github.com/artfolio/artfolio-sync/internal/platform/appctx"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

// FollowView is the response of the follow endpoints.
type FollowView struct {
	UserID         string `json:"userId"`
	IsFollowing    bool   `json:"isFollowing"`
	FollowerCount  int    `json:"followerCount"`
	FollowingCount int    `json:"followingCount"`
}

// EdgeListView lists the user ids on one side of a user's follow edges.
// Total is the full cardinality even when Users is truncated.
type EdgeListView struct {
	UserID string   `json:"userId"`
	Users  []string `json:"users"`
	Total  int      `json:"total"`
}

// Handler serves the social graph.
type Handler struct {
	graph     *social.Graph
	listLimit int
	log       *slog.Logger
}

// NewHandler creates a social handler. listLimit caps follower lists.
func NewHandler(graph *social.Graph, listLimit int, log *slog.Logger) *Handler {
	return &Handler{graph: graph, listLimit: listLimit, log: logutil.NoopIfNil(log)}
}

// HandleFollow handles POST /api/follows/{userId}.
func (h *Handler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	h.writeFollow(w, r, true)
}

// HandleUnfollow handles DELETE /api/follows/{userId}.
func (h *Handler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	h.writeFollow(w, r, false)
}

func (h *Handler) writeFollow(w http.ResponseWriter, r *http.Request, follow bool) {
	ctx := r.Context()
	log := appctx.GetLogger(ctx, h.log)
	actorID, _ := identity.ActorFromContext(ctx)
	userID := chi.URLParam(r, "userId")

	var err error
	if follow {
		_, err = h.graph.Follow(ctx, actorID, userID)
	} else {
		_, err = h.graph.Unfollow(ctx, actorID, userID)
	}
	if err != nil {
		api.WriteAppError(w, log, err)
		return
	}
	h.writeFollowStatus(w, r, actorID, userID)
}

// HandleFollowStatus handles GET /api/follows/{userId}. Anonymous callers
// see the counts with isFollowing false.
func (h *Handler) HandleFollowStatus(w http.ResponseWriter, r *http.Request) {
	actorID, _ := identity.ActorFromContext(r.Context())
	h.writeFollowStatus(w, r, actorID, chi.URLParam(r, "userId"))
}

func (h *Handler) writeFollowStatus(w http.ResponseWriter, r *http.Request, actorID, userID string) {
	ctx := r.Context()
	log := appctx.GetLogger(ctx, h.log)

	view := FollowView{UserID: userID}
	var err error
	if actorID != "" && actorID != userID {
		if view.IsFollowing, err = h.graph.IsFollowing(ctx, actorID, userID); err != nil {
			api.WriteAppError(w, log, err)
			return
		}
	}
	if view.FollowerCount, err = h.graph.FollowerCount(ctx, userID); err != nil {
		api.WriteAppError(w, log, err)
		return
	}
	if view.FollowingCount, err = h.graph.FollowingCount(ctx, userID); err != nil {
		api.WriteAppError(w, log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

// HandleFollowers handles GET /api/users/{userId}/followers.
func (h *Handler) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	h.writeEdges(w, r, h.graph.Followers)
}

// HandleFollowing handles GET /api/users/{userId}/following.
func (h *Handler) HandleFollowing(w http.ResponseWriter, r *http.Request) {
	h.writeEdges(w, r, h.graph.Following)
}

func (h *Handler) writeEdges(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, userID string) ([]string, error)) {
	limit, ok := api.Limit(w, r, h.listLimit)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userId")
	users, err := list(r.Context(), userID)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, EdgeListView{
		UserID: userID,
		Users:  api.Truncate(users, limit),
		Total:  len(users),
	})
}

// HandleFavorite handles PUT /api/favorites/{itemType}/{itemId}.
func (h *Handler) HandleFavorite(w http.ResponseWriter, r *http.Request) {
	h.toggleFavorite(w, r, true)
}

// HandleUnfavorite handles DELETE /api/favorites/{itemType}/{itemId}.
func (h *Handler) HandleUnfavorite(w http.ResponseWriter, r *http.Request) {
	h.toggleFavorite(w, r, false)
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request, favorite bool) {
	itemType := social.ItemType(chi.URLParam(r, "itemType"))
	status, err := h.graph.ToggleFavorite(r.Context(), itemType, chi.URLParam(r, "itemId"), favorite)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, status)
}

// HandleFavoriteStatus handles GET /api/favorites/{itemType}/{itemId}.
func (h *Handler) HandleFavoriteStatus(w http.ResponseWriter, r *http.Request) {
	itemType := social.ItemType(chi.URLParam(r, "itemType"))
	status, err := h.graph.CheckFavoriteStatus(r.Context(), itemType, chi.URLParam(r, "itemId"))
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, status)
}

// HandleListFavorites handles GET /api/users/{userId}/favorites?itemType=.
func (h *Handler) HandleListFavorites(w http.ResponseWriter, r *http.Request) {
	limit, ok := api.Limit(w, r, h.listLimit)
	if !ok {
		return
	}
	itemType := social.ItemType(r.URL.Query().Get("itemType"))
	edges, err := h.graph.ListFavorites(r.Context(), chi.URLParam(r, "userId"), itemType)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.Truncate(edges, limit))
}
