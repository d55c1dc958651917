// Package artists implements the artist summary and profile handlers.
package artists

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artfolio/artfolio-sync/internal/components/api"
	"github.com/artfolio/artfolio-sync/internal/components/artists"
	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/platform/appctx"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

// ProfileInput is the body of PUT /api/profile.
type ProfileInput struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	Bio         string `json:"bio"`
}

// Handler serves the artist directory.
type Handler struct {
	dir *artists.Directory
	log *slog.Logger
}

// NewHandler creates an artists handler.
func NewHandler(dir *artists.Directory, log *slog.Logger) *Handler {
	return &Handler{dir: dir, log: logutil.NoopIfNil(log)}
}

// HandleSummary handles GET /api/artists/{userId}.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.dir.Summary(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, s)
}

// HandleProfile handles GET /api/artists/{userId}/profile.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.dir.Profile(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

// HandleSetProfile handles PUT /api/profile, replacing the caller's profile.
func (h *Handler) HandleSetProfile(w http.ResponseWriter, r *http.Request) {
	var in ProfileInput
	if !api.DecodeJSON(w, r, &in) {
		return
	}
	actorID, _ := identity.ActorFromContext(r.Context())

	p, err := h.dir.SetProfile(r.Context(), artists.Profile{
		UserID:      actorID,
		DisplayName: in.DisplayName,
		AvatarURL:   in.AvatarURL,
		Bio:         in.Bio,
	})
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}
