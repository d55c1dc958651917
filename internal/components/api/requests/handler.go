// Package requests implements the collaboration and review request HTTP
// handlers. The {kind} URL parameter selects the workflow.
package requests

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artfolio/artfolio-sync/internal/components/api"
	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/components/requests"
	"github.com/artfolio/artfolio-sync/internal/platform/appctx"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

// StatusView is the response of the status endpoint.
type StatusView struct {
	ProjectID   string          `json:"projectId"`
	RequesterID string          `json:"requesterId"`
	Status      requests.Status `json:"status"`
}

// Handler serves both request workflows.
type Handler struct {
	set       *requests.Set
	listLimit int
	log       *slog.Logger
}

// NewHandler creates a requests handler.
func NewHandler(set *requests.Set, listLimit int, log *slog.Logger) *Handler {
	return &Handler{set: set, listLimit: listLimit, log: logutil.NoopIfNil(log)}
}

// workflow resolves {kind}. It writes the error response and returns nil
// for an unknown kind.
func (h *Handler) workflow(w http.ResponseWriter, r *http.Request) *requests.Workflow {
	wf, err := h.set.For(chi.URLParam(r, "kind"))
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return nil
	}
	return wf
}

// HandleCreate handles POST /api/requests/{kind}. The requester is always
// the caller; a requesterId in the body is ignored.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	wf := h.workflow(w, r)
	if wf == nil {
		return
	}
	var in requests.CreateInput
	if !api.DecodeJSON(w, r, &in) {
		return
	}
	in.RequesterID, _ = identity.ActorFromContext(r.Context())

	req, err := wf.Create(r.Context(), in)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, req)
}

// HandleApprove handles POST /api/requests/{kind}/{requestId}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*requests.Workflow).Approve)
}

// HandleDeny handles POST /api/requests/{kind}/{requestId}/deny.
func (h *Handler) HandleDeny(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*requests.Workflow).Deny)
}

type transitionFunc func(wf *requests.Workflow, ctx context.Context, requestID, actingUserID string) (*requests.Request, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	wf := h.workflow(w, r)
	if wf == nil {
		return
	}
	actorID, _ := identity.ActorFromContext(r.Context())
	req, err := fn(wf, r.Context(), chi.URLParam(r, "requestId"), actorID)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, req)
}

// HandleGet handles GET /api/requests/{kind}/{requestId}. Only the requester
// and the owner can read a request; anyone else gets a 404.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	wf := h.workflow(w, r)
	if wf == nil {
		return
	}
	actorID, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	req, err := wf.Get(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	if actorID != req.OwnerID && actorID != req.RequesterID {
		api.WriteNotFound(w, "request not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, req)
}

// HandleStatus handles GET /api/requests/{kind}/status?projectId=&requesterId=.
// requesterId defaults to the caller.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	wf := h.workflow(w, r)
	if wf == nil {
		return
	}
	q := r.URL.Query()
	projectID := q.Get("projectId")
	if projectID == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "projectId is required")
		return
	}
	requesterID := q.Get("requesterId")
	if requesterID == "" {
		var ok bool
		if requesterID, ok = api.RequireActor(w, r); !ok {
			return
		}
	}

	status, err := wf.StatusFor(r.Context(), projectID, requesterID)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, StatusView{ProjectID: projectID, RequesterID: requesterID, Status: status})
}

// HandleIncoming handles GET /api/requests/{kind}/incoming.
func (h *Handler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, (*requests.Workflow).ListIncoming)
}

// HandleOutgoing handles GET /api/requests/{kind}/outgoing.
func (h *Handler) HandleOutgoing(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, (*requests.Workflow).ListOutgoing)
}

type listFunc func(wf *requests.Workflow, ctx context.Context, userID string) ([]requests.Request, error)

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn listFunc) {
	wf := h.workflow(w, r)
	if wf == nil {
		return
	}
	actorID, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	limit, ok := api.Limit(w, r, h.listLimit)
	if !ok {
		return
	}
	items, err := fn(wf, r.Context(), actorID)
	if err != nil {
		api.WriteAppError(w, appctx.GetLogger(r.Context(), h.log), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.Truncate(items, limit))
}
