package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/notifications"
	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
	"github.com/artfolio/artfolio-sync/internal/platform/inflight"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
	"github.com/artfolio/artfolio-sync/internal/platform/validation"
)

// Deps wires a Workflow. Store and Ledger are required.
type Deps struct {
	Store   store.Store
	Ledger  *notifications.Ledger
	Bus     *eventbus.Bus
	Guard   *inflight.Guard
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// Workflow is the request state machine of one kind. Requests of the kind
// are stored together under "requests/<kind>".
type Workflow struct {
	kind    Kind
	list    *store.Collection[Request]
	ledger  *notifications.Ledger
	bus     *eventbus.Bus
	guard   *inflight.Guard
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New creates the workflow for kind.
func New(kind Kind, d Deps) (*Workflow, error) {
	if _, ok := ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("unknown request kind %q", kind)
	}
	if d.Store == nil || d.Ledger == nil {
		return nil, errors.New("requests: store and ledger are required")
	}
	guard := d.Guard
	if guard == nil {
		guard = inflight.New(0, d.Log)
	}
	return &Workflow{
		kind:    kind,
		list:    store.NewCollection[Request](d.Store, "requests/"+string(kind), nil),
		ledger:  d.Ledger,
		bus:     d.Bus,
		guard:   guard,
		metrics: d.Metrics,
		log:     logutil.NoopIfNil(d.Log).With("kind", string(kind)),
	}, nil
}

// Kind returns the request family of the workflow.
func (w *Workflow) Kind() Kind { return w.kind }

func (w *Workflow) publish(ctx context.Context, topic eventbus.Topic, detail any) {
	if w.bus != nil {
		w.bus.Publish(ctx, topic, detail)
	}
}

func (w *Workflow) guarded(ctx context.Context, op string, subject []string, fn func(ctx context.Context) error) error {
	err := w.guard.Do(ctx, inflight.Key("request:"+string(w.kind), subject...), fn)
	if errors.Is(err, inflight.ErrBusy) {
		w.metrics.InFlightRejected("transition")
		return apperr.New(apperr.KindInProgress, op, "this request is already being processed")
	}
	return err
}

// Create stores a pending request and notifies the owner. It fails with a
// duplicate-active-request error while another request of the same requester
// for the same project is pending; the existing request is left untouched.
func (w *Workflow) Create(ctx context.Context, in CreateInput) (*Request, error) {
	const op = "requests.create"
	if in.RequesterID == "" {
		return nil, apperr.New(apperr.KindAuthenticationRequired, op, "sign in to send requests")
	}
	if err := validation.Struct(op, in); err != nil {
		return nil, err
	}

	var created Request
	err := w.guarded(ctx, op, []string{"create", in.ProjectID, in.RequesterID}, func(ctx context.Context) error {
		ts := time.Now().UTC()
		created = Request{
			ID:            uuid.Must(uuid.NewV7()).String(),
			Kind:          w.kind,
			ProjectID:     in.ProjectID,
			ProjectName:   in.ProjectName,
			RequesterID:   in.RequesterID,
			RequesterName: in.RequesterName,
			OwnerID:       in.OwnerID,
			OwnerName:     in.OwnerName,
			Message:       in.Message,
			Status:        StatusPending,
			CreatedAt:     ts,
			UpdatedAt:     ts,
		}

		err := w.list.Update(ctx, func(items []Request) ([]Request, error) {
			for _, r := range items {
				if r.ProjectID == in.ProjectID && r.RequesterID == in.RequesterID && r.Status == StatusPending {
					return nil, apperr.New(apperr.KindDuplicateActiveRequest, op,
						"a pending request for this project already exists")
				}
			}
			return append(items, created), nil
		})
		if err != nil {
			return apperr.Storage(op, err)
		}

		if err := w.notify(ctx, created.OwnerID, &created); err != nil {
			w.undo(ctx, created.ID, func(items []Request, i int) []Request {
				return slices.Delete(items, i, i+1)
			})
			return apperr.Storage(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.log.Info("request created",
		"request_id", created.ID,
		"project_id", created.ProjectID,
		"requester_id", created.RequesterID,
		"owner_id", created.OwnerID,
	)
	w.metrics.Transition(string(w.kind), string(StatusPending))
	w.publish(ctx, eventbus.TopicRequestCreated, Created{Request: created})
	return &created, nil
}

// Approve resolves a pending request as approved.
func (w *Workflow) Approve(ctx context.Context, requestID, actingUserID string) (*Request, error) {
	return w.transition(ctx, "requests.approve", requestID, actingUserID, StatusApproved)
}

// Deny resolves a pending request as denied.
func (w *Workflow) Deny(ctx context.Context, requestID, actingUserID string) (*Request, error) {
	return w.transition(ctx, "requests.deny", requestID, actingUserID, StatusDenied)
}

// transition moves a request out of pending. Checks run in order: the
// request exists, the actor is its owner, it is still pending. On success the
// requester gets exactly one notice and exactly one request:statusChanged is
// published.
func (w *Workflow) transition(ctx context.Context, op, requestID, actingUserID string, to Status) (*Request, error) {
	if actingUserID == "" {
		return nil, apperr.New(apperr.KindAuthenticationRequired, op, "sign in to resolve requests")
	}
	if requestID == "" {
		return nil, apperr.New(apperr.KindValidation, op, "requestId is required")
	}

	var updated Request
	err := w.guarded(ctx, op, []string{requestID}, func(ctx context.Context) error {
		err := w.list.Update(ctx, func(items []Request) ([]Request, error) {
			i := slices.IndexFunc(items, func(r Request) bool { return r.ID == requestID })
			if i < 0 {
				return nil, apperr.New(apperr.KindNotFound, op, "request not found")
			}
			r := &items[i]
			if r.OwnerID != actingUserID {
				return nil, apperr.New(apperr.KindUnauthorized, op, "only the project owner may resolve this request")
			}
			if r.Status.Terminal() {
				return nil, apperr.Newf(apperr.KindAlreadyResolved, op, "request is already %s", r.Status)
			}
			r.Status = to
			r.UpdatedAt = time.Now().UTC()
			updated = *r
			return items, nil
		})
		if err != nil {
			return apperr.Storage(op, err)
		}

		if err := w.notify(ctx, updated.RequesterID, &updated); err != nil {
			w.undo(ctx, updated.ID, func(items []Request, i int) []Request {
				items[i].Status = StatusPending
				return items
			})
			return apperr.Storage(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.log.Info("request resolved",
		"request_id", updated.ID,
		"status", updated.Status,
		"owner_id", updated.OwnerID,
	)
	w.metrics.Transition(string(w.kind), string(to))
	w.publish(ctx, eventbus.TopicRequestStatusChanged, StatusChanged{
		RequestID: updated.ID,
		Status:    updated.Status,
		Request:   updated,
	})
	return &updated, nil
}

func (w *Workflow) notify(ctx context.Context, recipient string, r *Request) error {
	_, err := w.ledger.Append(ctx, notifications.NewNotice{
		UserID:    recipient,
		Type:      noticeTypes[w.kind][r.Status],
		ProjectID: r.ProjectID,
		Meta:      r.noticeMeta(),
	})
	return err
}

// undo reverts a write whose notice could not be appended, so a retry of the
// same call starts from the previous state.
func (w *Workflow) undo(ctx context.Context, requestID string, fn func(items []Request, i int) []Request) {
	err := w.list.Update(ctx, func(items []Request) ([]Request, error) {
		i := slices.IndexFunc(items, func(r Request) bool { return r.ID == requestID })
		if i < 0 {
			return nil, store.ErrUnchanged
		}
		return fn(items, i), nil
	})
	if err != nil {
		w.log.Error("failed to revert request after notice failure", "request_id", requestID, "error", err)
	}
}

// Get returns one request.
func (w *Workflow) Get(ctx context.Context, requestID string) (*Request, error) {
	const op = "requests.get"
	items, err := w.list.Load(ctx)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	i := slices.IndexFunc(items, func(r Request) bool { return r.ID == requestID })
	if i < 0 {
		return nil, apperr.New(apperr.KindNotFound, op, "request not found")
	}
	return &items[i], nil
}

// StatusFor reports the status of the requester's latest request for the
// project, or StatusNone.
func (w *Workflow) StatusFor(ctx context.Context, projectID, requesterID string) (Status, error) {
	items, err := w.list.Load(ctx)
	if err != nil {
		return "", apperr.Storage("requests.status_for", err)
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].ProjectID == projectID && items[i].RequesterID == requesterID {
			return items[i].Status, nil
		}
	}
	return StatusNone, nil
}

// ListIncoming returns requests addressed to ownerID, newest first.
func (w *Workflow) ListIncoming(ctx context.Context, ownerID string) ([]Request, error) {
	return w.filter(ctx, "requests.list_incoming", func(r Request) bool { return r.OwnerID == ownerID })
}

// ListOutgoing returns requests sent by requesterID, newest first.
func (w *Workflow) ListOutgoing(ctx context.Context, requesterID string) ([]Request, error) {
	return w.filter(ctx, "requests.list_outgoing", func(r Request) bool { return r.RequesterID == requesterID })
}

func (w *Workflow) filter(ctx context.Context, op string, keep func(Request) bool) ([]Request, error) {
	items, err := w.list.Load(ctx)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	out := []Request{}
	for i := len(items) - 1; i >= 0; i-- {
		if keep(items[i]) {
			out = append(out, items[i])
		}
	}
	return out, nil
}

// Reset removes every request of the kind and returns how many there were.
// Test and reset tooling only.
func (w *Workflow) Reset(ctx context.Context) (int, error) {
	n := 0
	err := w.list.Update(ctx, func(items []Request) ([]Request, error) {
		n = len(items)
		if n == 0 {
			return nil, store.ErrUnchanged
		}
		return nil, nil
	})
	if err != nil {
		return 0, apperr.Storage("requests.reset", err)
	}
	w.log.Warn("requests reset", "removed", n)
	return n, nil
}
