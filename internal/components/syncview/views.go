package syncview

import (
	"context"
	"log/slog"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/notifications"
	"github.com/artfolio/artfolio-sync/internal/components/requests"
	"github.com/artfolio/artfolio-sync/internal/components/social"
)

// FollowReader is the part of the social graph a follow button reads.
type FollowReader interface {
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	FollowerCount(ctx context.Context, userID string) (int, error)
}

// StatusReader is the part of a request workflow a badge reads.
type StatusReader interface {
	StatusFor(ctx context.Context, projectID, requesterID string) (requests.Status, error)
}

// UnreadCounter is the part of the ledger a notification badge reads.
type UnreadCounter interface {
	UnreadCountFor(ctx context.Context, userID string) (int, error)
}

// FollowState is what a follow button renders.
type FollowState struct {
	IsFollowing   bool `json:"isFollowing"`
	FollowerCount int  `json:"followerCount"`
}

// FollowButton shows whether the viewer follows a subject and the subject's
// follower count.
type FollowButton struct {
	*view[FollowState]
	viewerID  string
	subjectID string
}

// NewFollowButton creates an unmounted button. An empty viewerID renders as
// not following.
func NewFollowButton(g FollowReader, bus *eventbus.Bus, viewerID, subjectID string, log *slog.Logger) *FollowButton {
	b := &FollowButton{viewerID: viewerID, subjectID: subjectID}
	b.view = newView("follow_button", bus, log, func(ctx context.Context) (FollowState, error) {
		var s FollowState
		n, err := g.FollowerCount(ctx, subjectID)
		if err != nil {
			return s, err
		}
		s.FollowerCount = n
		if viewerID != "" {
			if s.IsFollowing, err = g.IsFollowing(ctx, viewerID, subjectID); err != nil {
				return s, err
			}
		}
		return s, nil
	})
	return b
}

// Mount subscribes to follow:changed for the subject and loads the state.
func (b *FollowButton) Mount(ctx context.Context) error {
	return b.mount(ctx, func() []*eventbus.Subscription {
		return []*eventbus.Subscription{
			eventbus.On(b.bus, eventbus.TopicFollowChanged, func(ctx context.Context, ev social.FollowChanged) {
				if ev.FollowingID == b.subjectID {
					b.refreshOnEvent(ctx, eventbus.TopicFollowChanged)
				}
			}),
		}
	})
}

// RequestBadge shows the status of the requester's latest request for a
// project.
type RequestBadge struct {
	*view[requests.Status]
	projectID   string
	requesterID string
}

// NewRequestBadge creates an unmounted badge over one workflow.
func NewRequestBadge(wf StatusReader, bus *eventbus.Bus, projectID, requesterID string, log *slog.Logger) *RequestBadge {
	b := &RequestBadge{projectID: projectID, requesterID: requesterID}
	b.view = newView("request_badge", bus, log, func(ctx context.Context) (requests.Status, error) {
		return wf.StatusFor(ctx, projectID, requesterID)
	})
	return b
}

// Mount subscribes to request creation and status changes for the pair and
// loads the state.
func (b *RequestBadge) Mount(ctx context.Context) error {
	return b.mount(ctx, func() []*eventbus.Subscription {
		return []*eventbus.Subscription{
			eventbus.On(b.bus, eventbus.TopicRequestCreated, func(ctx context.Context, ev requests.Created) {
				if b.matches(ev.Request) {
					b.refreshOnEvent(ctx, eventbus.TopicRequestCreated)
				}
			}),
			eventbus.On(b.bus, eventbus.TopicRequestStatusChanged, func(ctx context.Context, ev requests.StatusChanged) {
				if b.matches(ev.Request) {
					b.refreshOnEvent(ctx, eventbus.TopicRequestStatusChanged)
				}
			}),
		}
	})
}

func (b *RequestBadge) matches(r requests.Request) bool {
	return r.ProjectID == b.projectID && r.RequesterID == b.requesterID
}

// NotificationBadge shows a user's unread notice count.
type NotificationBadge struct {
	*view[int]
	userID string
}

// NewNotificationBadge creates an unmounted badge.
func NewNotificationBadge(l UnreadCounter, bus *eventbus.Bus, userID string, log *slog.Logger) *NotificationBadge {
	b := &NotificationBadge{userID: userID}
	b.view = newView("notification_badge", bus, log, func(ctx context.Context) (int, error) {
		return l.UnreadCountFor(ctx, userID)
	})
	return b
}

// Mount subscribes to notification:unreadChanged for the user and loads the
// count.
func (b *NotificationBadge) Mount(ctx context.Context) error {
	return b.mount(ctx, func() []*eventbus.Subscription {
		return []*eventbus.Subscription{
			eventbus.On(b.bus, eventbus.TopicUnreadChanged, func(ctx context.Context, ev notifications.UnreadChanged) {
				if ev.UserID == b.userID {
					b.refreshOnEvent(ctx, eventbus.TopicUnreadChanged)
				}
			}),
		}
	})
}
