package requests_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/notifications"
	"github.com/artfolio/artfolio-sync/internal/components/requests"
	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
	"github.com/artfolio/artfolio-sync/internal/platform/inflight"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
	"github.com/artfolio/artfolio-sync/internal/platform/store/memory"
)

type fixture struct {
	set     *requests.Set
	ledger  *notifications.Ledger
	guard   *inflight.Guard
	created []requests.Created
	changed []requests.StatusChanged
}

func newFixture(t *testing.T, s store.Store) *fixture {
	t.Helper()
	if s == nil {
		s = memory.New()
	}
	bus := eventbus.New(nil)
	f := &fixture{
		ledger: notifications.New(s, bus, nil),
		guard:  inflight.New(0, nil),
	}
	set, err := requests.NewSet(requests.Deps{Store: s, Ledger: f.ledger, Bus: bus, Guard: f.guard})
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	f.set = set
	eventbus.On(bus, eventbus.TopicRequestCreated, func(ctx context.Context, d requests.Created) {
		f.created = append(f.created, d)
	})
	eventbus.On(bus, eventbus.TopicRequestStatusChanged, func(ctx context.Context, d requests.StatusChanged) {
		f.changed = append(f.changed, d)
	})
	return f
}

func input(project, requester, owner string) requests.CreateInput {
	return requests.CreateInput{
		ProjectID:     project,
		ProjectName:   "Project " + project,
		RequesterID:   requester,
		RequesterName: strings.ToUpper(requester),
		OwnerID:       owner,
		OwnerName:     strings.ToUpper(owner),
		Message:       "let's work together",
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wf := f.set.Collaboration()

	r, err := wf.Create(ctx, input("p1", "r1", "o1"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if r.Status != requests.StatusPending || r.ID == "" || r.Kind != requests.KindCollaboration {
		t.Errorf("unexpected request %+v", r)
	}
	if len(f.created) != 1 || f.created[0].Request.ID != r.ID {
		t.Errorf("expected one request:created, got %+v", f.created)
	}

	notes, _ := f.ledger.ListFor(ctx, "o1")
	if len(notes) != 1 || notes[0].Type != notifications.TypeCollaborationRequest {
		t.Fatalf("expected one collaboration_request notice for the owner, got %+v", notes)
	}
	if notes[0].Message != "R1 wants to collaborate on Project p1" {
		t.Errorf("unexpected notice text %q", notes[0].Message)
	}
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wf := f.set.Collaboration()

	tests := []struct {
		name string
		in   requests.CreateInput
		want error
	}{
		{"anonymous", input("p1", "", "o1"), apperr.ErrAuthenticationRequired},
		{"missing project", input("", "r1", "o1"), apperr.ErrValidation},
		{"missing owner", input("p1", "r1", ""), apperr.ErrValidation},
		{"own project", input("p1", "o1", "o1"), apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := wf.Create(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(f.created) != 0 {
		t.Error("rejected creates must not publish")
	}
}

func TestCreate_DuplicateActiveRequest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wf := f.set.Collaboration()

	first, err := wf.Create(ctx, input("p1", "r1", "o1"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = wf.Create(ctx, input("p1", "r1", "o1"))
	if !errors.Is(err, apperr.ErrDuplicateActiveRequest) {
		t.Fatalf("expected DuplicateActiveRequest, got %v", err)
	}

	got, _ := wf.Get(ctx, first.ID)
	if got.Status != requests.StatusPending || !got.UpdatedAt.Equal(first.UpdatedAt) || got.Message != first.Message {
		t.Errorf("existing request changed: %+v", got)
	}
	if out, _ := wf.ListOutgoing(ctx, "r1"); len(out) != 1 {
		t.Errorf("expected a single request, got %d", len(out))
	}
	if notes, _ := f.ledger.ListFor(ctx, "o1"); len(notes) != 1 {
		t.Errorf("duplicate attempt notified the owner again")
	}

	// Other projects, requesters and kinds are independent.
	if _, err := wf.Create(ctx, input("p2", "r1", "o1")); err != nil {
		t.Errorf("other project rejected: %v", err)
	}
	if _, err := wf.Create(ctx, input("p1", "r2", "o1")); err != nil {
		t.Errorf("other requester rejected: %v", err)
	}
	if _, err := f.set.Review().Create(ctx, input("p1", "r1", "o1")); err != nil {
		t.Errorf("other kind rejected: %v", err)
	}
}

func TestCreate_AllowedAgainAfterResolution(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, wf := range []*requests.Workflow{f.set.Collaboration(), f.set.Review()} {
		r, _ := wf.Create(ctx, input("p1", "r1", "o1"))
		if _, err := wf.Deny(ctx, r.ID, "o1"); err != nil {
			t.Fatal(err)
		}
		again, err := wf.Create(ctx, input("p1", "r1", "o1"))
		if err != nil {
			t.Fatalf("%s: new request after denial rejected: %v", wf.Kind(), err)
		}
		if st, _ := wf.StatusFor(ctx, "p1", "r1"); st != requests.StatusPending {
			t.Errorf("%s: StatusFor should follow the latest request, got %s", wf.Kind(), st)
		}
		if again.ID == r.ID {
			t.Error("expected a new request id")
		}
	}
}

func TestTransition_NonOwnerIsUnauthorized(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wf := f.set.Collaboration()
	r, _ := wf.Create(ctx, input("p1", "r1", "o1"))

	for _, actor := range []string{"r1", "someone"} {
		if _, err := wf.Approve(ctx, r.ID, actor); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("Approve by %s: expected Unauthorized, got %v", actor, err)
		}
		if _, err := wf.Deny(ctx, r.ID, actor); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("Deny by %s: expected Unauthorized, got %v", actor, err)
		}
	}

	got, _ := wf.Get(ctx, r.ID)
	if got.Status != requests.StatusPending {
		t.Errorf("status mutated to %s", got.Status)
	}
	if len(f.changed) != 0 {
		t.Error("unauthorized attempts must not publish")
	}
}

func TestTransition_TerminalStates(t *testing.T) {
	for _, first := range []requests.Status{requests.StatusApproved, requests.StatusDenied} {
		t.Run(string(first), func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			wf := f.set.Review()
			r, _ := wf.Create(ctx, input("p1", "r1", "o1"))

			resolve := wf.Approve
			if first == requests.StatusDenied {
				resolve = wf.Deny
			}
			if _, err := resolve(ctx, r.ID, "o1"); err != nil {
				t.Fatal(err)
			}

			if _, err := wf.Approve(ctx, r.ID, "o1"); !errors.Is(err, apperr.ErrAlreadyResolved) {
				t.Errorf("Approve: expected AlreadyResolved, got %v", err)
			}
			if _, err := wf.Deny(ctx, r.ID, "o1"); !errors.Is(err, apperr.ErrAlreadyResolved) {
				t.Errorf("Deny: expected AlreadyResolved, got %v", err)
			}
			if got, _ := wf.Get(ctx, r.ID); got.Status != first {
				t.Errorf("terminal status changed to %s", got.Status)
			}
			if len(f.changed) != 1 {
				t.Errorf("expected one statusChanged, got %d", len(f.changed))
			}
		})
	}
}

func TestTransition_UnknownRequest(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.set.Collaboration()

	if _, err := wf.Approve(context.Background(), "missing", "o1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if _, err := wf.Deny(context.Background(), "r", ""); !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("expected AuthenticationRequired, got %v", err)
	}
}

func TestTransition_OneNoticeOneEvent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wf := f.set.Collaboration()
	r, _ := wf.Create(ctx, input("p1", "r1", "o1"))

	before, _ := f.ledger.ListFor(ctx, "r1")
	updated, err := wf.Deny(ctx, r.ID, "o1")
	if err != nil {
		t.Fatal(err)
	}
	after, _ := f.ledger.ListFor(ctx, "r1")

	if len(after)-len(before) != 1 {
		t.Fatalf("expected exactly one new notice, got %d", len(after)-len(before))
	}
	if after[0].Type != notifications.TypeCollaborationDenied || after[0].Meta["status"] != "denied" {
		t.Errorf("unexpected notice %+v", after[0])
	}
	if len(f.changed) != 1 {
		t.Fatalf("expected exactly one statusChanged, got %d", len(f.changed))
	}
	ev := f.changed[0]
	if ev.RequestID != r.ID || ev.Status != requests.StatusDenied || ev.Request.Status != requests.StatusDenied {
		t.Errorf("unexpected event %+v", ev)
	}
	if updated.UpdatedAt.Before(r.CreatedAt) {
		t.Error("updatedAt went backwards")
	}
}

func TestEndToEnd_ApproveCollaboration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wf := f.set.Collaboration()

	r, err := wf.Create(ctx, requests.CreateInput{ProjectID: "p1", RequesterID: "r1", OwnerID: "o1"})
	if err != nil {
		t.Fatal(err)
	}
	if st, _ := wf.StatusFor(ctx, "p1", "r1"); st != requests.StatusPending {
		t.Fatalf("StatusFor = %s, want pending", st)
	}

	if _, err := wf.Approve(ctx, r.ID, "o1"); err != nil {
		t.Fatal(err)
	}
	if st, _ := wf.StatusFor(ctx, "p1", "r1"); st != requests.StatusApproved {
		t.Fatalf("StatusFor = %s, want approved", st)
	}

	notes, _ := f.ledger.ListFor(ctx, "r1")
	found := false
	for _, n := range notes {
		if n.Meta["status"] == "approved" && n.Meta["requestId"] == r.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("requester has no approved notice: %+v", notes)
	}
}

func TestStatusFor_None(t *testing.T) {
	f := newFixture(t, nil)
	st, err := f.set.Collaboration().StatusFor(context.Background(), "p1", "r1")
	if err != nil || st != requests.StatusNone {
		t.Errorf("StatusFor = %s, %v", st, err)
	}
}

func TestListIncomingOutgoing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wf := f.set.Collaboration()

	a, _ := wf.Create(ctx, input("p1", "r1", "o1"))
	b, _ := wf.Create(ctx, input("p2", "r2", "o1"))
	wf.Create(ctx, input("p3", "r1", "o2"))

	in, _ := wf.ListIncoming(ctx, "o1")
	if len(in) != 2 || in[0].ID != b.ID || in[1].ID != a.ID {
		t.Errorf("ListIncoming = %+v", in)
	}
	out, _ := wf.ListOutgoing(ctx, "r1")
	if len(out) != 2 {
		t.Errorf("ListOutgoing = %+v", out)
	}
	none, _ := wf.ListIncoming(ctx, "nobody")
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty list, got %v", none)
	}
}

func TestTransition_InProgressIsDropped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wf := f.set.Collaboration()
	r, _ := wf.Create(ctx, input("p1", "r1", "o1"))

	release, err := f.guard.Acquire(ctx, inflight.Key("request:collaboration", r.ID))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wf.Approve(ctx, r.ID, "o1"); !errors.Is(err, apperr.ErrInProgress) {
		t.Fatalf("expected InProgress, got %v", err)
	}
	release()

	if _, err := wf.Approve(ctx, r.ID, "o1"); err != nil {
		t.Fatalf("Approve after release failed: %v", err)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.set.Collaboration().Create(ctx, input("p1", "r1", "o1"))
	f.set.Review().Create(ctx, input("p1", "r1", "o1"))

	n, err := f.set.Reset(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Reset = %d, %v", n, err)
	}
	if st, _ := f.set.Review().StatusFor(ctx, "p1", "r1"); st != requests.StatusNone {
		t.Errorf("expected none after reset, got %s", st)
	}
}

func TestSetFor(t *testing.T) {
	f := newFixture(t, nil)
	if wf, err := f.set.For("review"); err != nil || wf.Kind() != requests.KindReview {
		t.Errorf("For(review) = %v, %v", wf, err)
	}
	if _, err := f.set.For("commission"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// ledgerDown fails every write to notification keys.
type ledgerDown struct{ store.Store }

func (s ledgerDown) Set(ctx context.Context, key, value string) error {
	if strings.HasPrefix(key, "notifications/") {
		return store.Fail("test", "set", key, errors.New("ledger unavailable"))
	}
	return s.Store.Set(ctx, key, value)
}

func TestNoticeFailureRollsBack(t *testing.T) {
	base := memory.New()
	down := newFixture(t, ledgerDown{base})
	ctx := context.Background()
	wf := down.set.Collaboration()

	if _, err := wf.Create(ctx, input("p1", "r1", "o1")); !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if st, _ := wf.StatusFor(ctx, "p1", "r1"); st != requests.StatusNone {
		t.Errorf("request kept after notice failure: %s", st)
	}
	if len(down.created) != 0 {
		t.Error("failed create published an event")
	}

	// Seed a pending request through a healthy ledger, then fail the approval notice.
	up := newFixture(t, base)
	r, err := up.set.Collaboration().Create(ctx, input("p1", "r1", "o1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wf.Approve(ctx, r.ID, "o1"); !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if st, _ := wf.StatusFor(ctx, "p1", "r1"); st != requests.StatusPending {
		t.Errorf("status after failed approval = %s, want pending", st)
	}
	if len(down.changed) != 0 {
		t.Error("failed approval published an event")
	}
	if down.guard.Len() != 0 {
		t.Error("guard left engaged")
	}
}
