package notifications_test

import (
	"context"
	"errors"
	"testing"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/notifications"
	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
	"github.com/artfolio/artfolio-sync/internal/platform/store/memory"
)

type fixture struct {
	ledger *notifications.Ledger
	store  store.Store
	unread map[string]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := eventbus.New(nil)
	s := memory.New()
	f := &fixture{
		ledger: notifications.New(s, bus, nil),
		store:  s,
		unread: make(map[string]int),
	}
	eventbus.On(bus, eventbus.TopicUnreadChanged, func(ctx context.Context, d notifications.UnreadChanged) {
		f.unread[d.UserID]++
	})
	return f
}

func (f *fixture) appendN(t *testing.T, userID string, n int) []*notifications.Notification {
	t.Helper()
	out := make([]*notifications.Notification, 0, n)
	for range n {
		got, err := f.ledger.Append(context.Background(), notifications.NewNotice{
			UserID: userID,
			Type:   notifications.TypeNewFollower,
			Meta:   map[string]string{notifications.MetaFollowerName: "Ada"},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		out = append(out, got)
	}
	return out
}

func TestAppend(t *testing.T) {
	f := newFixture(t)

	n := f.appendN(t, "u1", 1)[0]
	if n.ID == "" || n.CreatedAt.IsZero() || n.IsRead {
		t.Errorf("unexpected notice %+v", n)
	}
	if n.Title != "New follower" || n.Message != "Ada started following you" {
		t.Errorf("unexpected rendering %q / %q", n.Title, n.Message)
	}
	if f.unread["u1"] != 1 {
		t.Errorf("expected one unreadChanged event, got %d", f.unread["u1"])
	}
}

func TestAppend_KeepsExplicitText(t *testing.T) {
	f := newFixture(t)
	n, err := f.ledger.Append(context.Background(), notifications.NewNotice{
		UserID:  "u1",
		Type:    notifications.TypeNewComment,
		Title:   "Custom",
		Message: "Body",
	})
	if err != nil {
		t.Fatal(err)
	}
	if n.Title != "Custom" || n.Message != "Body" {
		t.Errorf("explicit text replaced: %q / %q", n.Title, n.Message)
	}
}

func TestAppend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []notifications.NewNotice{
		{Type: notifications.TypeNewFollower},
		{UserID: "u1"},
		{UserID: "u1", Type: "bogus"},
	}
	for _, in := range cases {
		if _, err := f.ledger.Append(ctx, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Append(%+v): expected validation error, got %v", in, err)
		}
	}
	if len(f.unread) != 0 {
		t.Error("rejected appends must not publish")
	}
}

func TestListFor_NewestFirst(t *testing.T) {
	f := newFixture(t)
	created := f.appendN(t, "u1", 3)
	f.appendN(t, "u2", 1)

	list, err := f.ledger.ListFor(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 notices, got %d", len(list))
	}
	for i := range list {
		if list[i].ID != created[2-i].ID {
			t.Fatalf("list not newest first at %d", i)
		}
	}

	empty, err := f.ledger.ListFor(context.Background(), "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %v (%v)", empty, err)
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notes := f.appendN(t, "u1", 2)
	f.unread["u1"] = 0

	if err := f.ledger.MarkRead(ctx, "u1", notes[0].ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if err := f.ledger.MarkRead(ctx, "u1", notes[0].ID); err != nil {
		t.Fatalf("second MarkRead should be a no-op, got %v", err)
	}
	if f.unread["u1"] != 1 {
		t.Errorf("expected exactly one event, got %d", f.unread["u1"])
	}

	count, _ := f.ledger.UnreadCountFor(ctx, "u1")
	if count != 1 {
		t.Errorf("expected 1 unread, got %d", count)
	}
}

func TestMarkRead_ScopedToRecipient(t *testing.T) {
	f := newFixture(t)
	note := f.appendN(t, "u1", 1)[0]

	err := f.ledger.MarkRead(context.Background(), "u2", note.ID)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound for another user's notice, got %v", err)
	}
	count, _ := f.ledger.UnreadCountFor(context.Background(), "u1")
	if count != 1 {
		t.Error("another user's call changed the notice")
	}
}

func TestMarkAllRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendN(t, "u1", 3)
	f.unread["u1"] = 0

	n, err := f.ledger.MarkAllRead(ctx, "u1")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 changed, got %d (%v)", n, err)
	}
	n, err = f.ledger.MarkAllRead(ctx, "u1")
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent no-op, got %d (%v)", n, err)
	}
	if f.unread["u1"] != 1 {
		t.Errorf("expected one event, got %d", f.unread["u1"])
	}
	if count, _ := f.ledger.UnreadCountFor(ctx, "u1"); count != 0 {
		t.Errorf("expected 0 unread, got %d", count)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notes := f.appendN(t, "u1", 2)
	f.ledger.MarkRead(ctx, "u1", notes[1].ID)
	f.unread["u1"] = 0

	if err := f.ledger.Delete(ctx, "u1", notes[1].ID); err != nil {
		t.Fatal(err)
	}
	if f.unread["u1"] != 0 {
		t.Error("deleting a read notice must not change the unread set")
	}

	if err := f.ledger.Delete(ctx, "u1", notes[0].ID); err != nil {
		t.Fatal(err)
	}
	if f.unread["u1"] != 1 {
		t.Error("deleting an unread notice should publish")
	}

	if err := f.ledger.Delete(ctx, "u1", notes[0].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}

	keys, _ := f.store.Keys(ctx)
	if len(keys) != 0 {
		t.Errorf("expected empty ledger key removed, got %v", keys)
	}
}

func TestClearFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendN(t, "u1", 2)
	f.appendN(t, "u2", 1)
	f.unread["u1"] = 0

	if err := f.ledger.ClearFor(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.ClearFor(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if f.unread["u1"] != 1 {
		t.Errorf("expected one event, got %d", f.unread["u1"])
	}
	if list, _ := f.ledger.ListFor(ctx, "u1"); len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
	if list, _ := f.ledger.ListFor(ctx, "u2"); len(list) != 1 {
		t.Error("clearing one recipient touched another")
	}
}

type failingStore struct{ store.Store }

var errDisk = errors.New("disk full")

func (failingStore) Set(ctx context.Context, key, value string) error {
	return store.Fail("test", "set", key, errDisk)
}

func TestAppend_StorageError(t *testing.T) {
	bus := eventbus.New(nil)
	published := 0
	bus.Subscribe(eventbus.TopicUnreadChanged, func(ctx context.Context, ev eventbus.Event) { published++ })

	l := notifications.New(failingStore{memory.New()}, bus, nil)
	_, err := l.Append(context.Background(), notifications.NewNotice{UserID: "u1", Type: notifications.TypeNewFollower})

	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if !errors.Is(err, errDisk) {
		t.Error("cause should stay in the chain")
	}
	if published != 0 {
		t.Error("failed append must not publish")
	}
}

func TestRender(t *testing.T) {
	title, msg := notifications.Render(notifications.TypeCollaborationApproved, map[string]string{
		notifications.MetaOwnerName:   "Olga",
		notifications.MetaProjectName: "Murals",
	})
	if title != "Collaboration request approved" || msg != "Olga approved your request to collaborate on Murals" {
		t.Errorf("unexpected rendering %q / %q", title, msg)
	}

	_, msg = notifications.Render(notifications.TypeReviewRequest, nil)
	if msg != "Someone asked to review your project" {
		t.Errorf("unexpected fallback rendering %q", msg)
	}
}
