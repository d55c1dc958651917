package notifications

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
	"github.com/artfolio/artfolio-sync/internal/platform/validation"
)

const keyPrefix = "notifications/"

// Ledger stores notices per recipient, oldest first under
// "notifications/<userId>". Every call that changes a recipient's unread set
// publishes exactly one notification:unreadChanged for that recipient.
type Ledger struct {
	store store.Store
	locks *store.KeyLocker
	bus   *eventbus.Bus
	log   *slog.Logger
}

// New creates a ledger over s. bus may be nil.
func New(s store.Store, bus *eventbus.Bus, log *slog.Logger) *Ledger {
	return &Ledger{
		store: s,
		locks: store.NewKeyLocker(),
		bus:   bus,
		log:   logutil.NoopIfNil(log),
	}
}

func (l *Ledger) list(userID string) *store.Collection[Notification] {
	return store.NewCollection[Notification](l.store, keyPrefix+userID, l.locks)
}

func (l *Ledger) unreadChanged(ctx context.Context, userID string) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(ctx, eventbus.TopicUnreadChanged, UnreadChanged{UserID: userID})
}

// Append adds an unread notice for in.UserID.
func (l *Ledger) Append(ctx context.Context, in NewNotice) (*Notification, error) {
	const op = "notifications.append"
	if err := validation.Struct(op, in); err != nil {
		return nil, err
	}

	title, message := in.Title, in.Message
	if title == "" || message == "" {
		dt, dm := Render(in.Type, in.Meta)
		if title == "" {
			title = dt
		}
		if message == "" {
			message = dm
		}
	}

	n := Notification{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    in.UserID,
		Type:      in.Type,
		Title:     title,
		Message:   message,
		ProjectID: in.ProjectID,
		Meta:      maps.Clone(in.Meta),
		CreatedAt: time.Now().UTC(),
	}

	err := l.list(in.UserID).Update(ctx, func(items []Notification) ([]Notification, error) {
		return append(items, n), nil
	})
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	l.log.Debug("notification appended", "user_id", n.UserID, "type", n.Type, "notification_id", n.ID)
	l.unreadChanged(ctx, n.UserID)
	return &n, nil
}

// ListFor returns the recipient's notices, newest first.
func (l *Ledger) ListFor(ctx context.Context, userID string) ([]Notification, error) {
	items, err := l.list(userID).Load(ctx)
	if err != nil {
		return nil, apperr.Storage("notifications.list", err)
	}
	slices.Reverse(items)
	if items == nil {
		items = []Notification{}
	}
	return items, nil
}

// UnreadCountFor counts the recipient's unread notices.
func (l *Ledger) UnreadCountFor(ctx context.Context, userID string) (int, error) {
	items, err := l.list(userID).Load(ctx)
	if err != nil {
		return 0, apperr.Storage("notifications.unread_count", err)
	}
	n := 0
	for _, it := range items {
		if !it.IsRead {
			n++
		}
	}
	return n, nil
}

// MarkRead flips one notice to read. Notices are addressed by recipient, so
// another user's notice id reads as not found. Marking a read notice is a
// no-op.
func (l *Ledger) MarkRead(ctx context.Context, userID, notificationID string) error {
	const op = "notifications.mark_read"
	changed := false

	err := l.list(userID).Update(ctx, func(items []Notification) ([]Notification, error) {
		i := slices.IndexFunc(items, func(n Notification) bool { return n.ID == notificationID })
		if i < 0 {
			return nil, apperr.New(apperr.KindNotFound, op, "notification not found")
		}
		if items[i].IsRead {
			return nil, store.ErrUnchanged
		}
		items[i].IsRead = true
		changed = true
		return items, nil
	})
	if err != nil {
		return apperr.Storage(op, err)
	}
	if changed {
		l.unreadChanged(ctx, userID)
	}
	return nil
}

// MarkAllRead flips every unread notice of the recipient and returns how many
// changed.
func (l *Ledger) MarkAllRead(ctx context.Context, userID string) (int, error) {
	const op = "notifications.mark_all_read"
	changed := 0

	err := l.list(userID).Update(ctx, func(items []Notification) ([]Notification, error) {
		for i := range items {
			if !items[i].IsRead {
				items[i].IsRead = true
				changed++
			}
		}
		if changed == 0 {
			return nil, store.ErrUnchanged
		}
		return items, nil
	})
	if err != nil {
		return 0, apperr.Storage(op, err)
	}
	if changed > 0 {
		l.unreadChanged(ctx, userID)
	}
	return changed, nil
}

// Delete permanently removes one notice.
func (l *Ledger) Delete(ctx context.Context, userID, notificationID string) error {
	const op = "notifications.delete"
	wasUnread := false

	err := l.list(userID).Update(ctx, func(items []Notification) ([]Notification, error) {
		i := slices.IndexFunc(items, func(n Notification) bool { return n.ID == notificationID })
		if i < 0 {
			return nil, apperr.New(apperr.KindNotFound, op, "notification not found")
		}
		wasUnread = !items[i].IsRead
		return slices.Delete(items, i, i+1), nil
	})
	if err != nil {
		return apperr.Storage(op, err)
	}
	if wasUnread {
		l.unreadChanged(ctx, userID)
	}
	return nil
}

// ClearFor removes every notice of the recipient. Reset tooling only.
func (l *Ledger) ClearFor(ctx context.Context, userID string) error {
	const op = "notifications.clear"
	hadUnread := false

	err := l.list(userID).Update(ctx, func(items []Notification) ([]Notification, error) {
		if len(items) == 0 {
			return nil, store.ErrUnchanged
		}
		hadUnread = slices.ContainsFunc(items, func(n Notification) bool { return !n.IsRead })
		return nil, nil
	})
	if err != nil {
		return apperr.Storage(op, err)
	}
	if hadUnread {
		l.unreadChanged(ctx, userID)
	}
	return nil
}
