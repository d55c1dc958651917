// Package notifications implements the caller's notification inbox handlers.
// Every endpoint is scoped to the authenticated actor; there is no append
// path over HTTP.
package notifications

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artfolio/artfolio-sync/internal/components/api"
	"github.com/artfolio/artfolio-sync/internal/components/notifications"
	"github.com/artfolio/artfolio-sync/internal/platform/appctx"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

// CountView carries a count.
type CountView struct {
	Count int `json:"count"`
}

// Handler serves the notification ledger.
type Handler struct {
	ledger    *notifications.Ledger
	listLimit int
	log       *slog.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(ledger *notifications.Ledger, listLimit int, log *slog.Logger) *Handler {
	return &Handler{ledger: ledger, listLimit: listLimit, log: logutil.NoopIfNil(log)}
}

// HandleList handles GET /api/notifications?unread=true&limit=N, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	limit, ok := api.Limit(w, r, h.listLimit)
	if !ok {
		return
	}

	items, err := h.ledger.ListFor(r.Context(), userID)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	if r.URL.Query().Get("unread") == "true" {
		unread := items[:0:0]
		for _, n := range items {
			if !n.IsRead {
				unread = append(unread, n)
			}
		}
		items = unread
	}
	api.WriteJSON(w, http.StatusOK, api.Truncate(items, limit))
}

// HandleUnreadCount handles GET /api/notifications/unread-count.
func (h *Handler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	n, err := h.ledger.UnreadCountFor(r.Context(), userID)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, CountView{Count: n})
}

// HandleMarkRead handles POST /api/notifications/{id}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	if err := h.ledger.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkAllRead handles POST /api/notifications/read-all and returns how
// many notices changed.
func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	n, err := h.ledger.MarkAllRead(r.Context(), userID)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, CountView{Count: n})
}

// HandleDelete handles DELETE /api/notifications/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
