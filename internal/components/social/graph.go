package social

import (
	"context"
	"errors"
	"log/slog"

	"github.com/artfolio/artfolio-sync/internal/components/eventbus"
	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/components/notifications"
	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
	"github.com/artfolio/artfolio-sync/internal/platform/inflight"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
	"github.com/artfolio/artfolio-sync/internal/platform/metrics"
	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

const (
	followsKey   = "social/follows"
	favoritesKey = "social/favorites"
)

// Deps wires a Graph. Store and Actors are required.
type Deps struct {
	Store   store.Store
	Actors  identity.ActorProvider
	Bus     *eventbus.Bus
	Ledger  *notifications.Ledger
	Guard   *inflight.Guard
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// Graph is the social graph store.
type Graph struct {
	follows   *store.Collection[FollowEdge]
	favorites *store.Collection[FavoriteEdge]
	actors    identity.ActorProvider
	bus       *eventbus.Bus
	ledger    *notifications.Ledger
	guard     *inflight.Guard
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// New creates a Graph.
func New(d Deps) *Graph {
	locks := store.NewKeyLocker()
	guard := d.Guard
	if guard == nil {
		guard = inflight.New(0, d.Log)
	}
	actors := d.Actors
	if actors == nil {
		actors = identity.Static("")
	}
	return &Graph{
		follows:   store.NewCollection[FollowEdge](d.Store, followsKey, locks),
		favorites: store.NewCollection[FavoriteEdge](d.Store, favoritesKey, locks),
		actors:    actors,
		bus:       d.Bus,
		ledger:    d.Ledger,
		guard:     guard,
		metrics:   d.Metrics,
		log:       logutil.NoopIfNil(d.Log),
	}
}

func (g *Graph) publish(ctx context.Context, topic eventbus.Topic, detail any) {
	if g.bus != nil {
		g.bus.Publish(ctx, topic, detail)
	}
}

// guarded runs fn while holding the subject named by scope and ids. A
// concurrent call for the same subject is dropped with an in-progress error.
func (g *Graph) guarded(ctx context.Context, op, scope string, ids []string, fn func(ctx context.Context) error) error {
	err := g.guard.Do(ctx, inflight.Key(scope, ids...), fn)
	if errors.Is(err, inflight.ErrBusy) {
		g.metrics.InFlightRejected(scope)
		return apperr.New(apperr.KindInProgress, op, "a previous "+scope+" call for this subject is still in progress")
	}
	return err
}

func checkFollowArgs(op, followerID, followingID string) error {
	if followerID == "" {
		return apperr.New(apperr.KindAuthenticationRequired, op, "sign in to follow artists")
	}
	if followingID == "" {
		return apperr.New(apperr.KindValidation, op, "followingId is required")
	}
	if followerID == followingID {
		return apperr.New(apperr.KindValidation, op, "you cannot follow yourself")
	}
	return nil
}

// Follow adds the edge followerID -> followingID and returns the follower
// count of followingID. Following twice is a no-op that returns the current
// count and publishes nothing.
func (g *Graph) Follow(ctx context.Context, followerID, followingID string) (int, error) {
	const op = "social.follow"
	if err := checkFollowArgs(op, followerID, followingID); err != nil {
		return 0, err
	}

	var count int
	err := g.guarded(ctx, op, "follow", []string{followerID, followingID}, func(ctx context.Context) error {
		inserted := false
		err := g.follows.Update(ctx, func(edges []FollowEdge) ([]FollowEdge, error) {
			if indexFollow(edges, followerID, followingID) >= 0 {
				return nil, store.ErrUnchanged
			}
			inserted = true
			return append(edges, FollowEdge{
				FollowerID:  followerID,
				FollowingID: followingID,
				CreatedAt:   now(),
			}), nil
		})
		if err != nil {
			return apperr.Storage(op, err)
		}

		count, err = g.FollowerCount(ctx, followingID)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		g.log.Debug("follow added", "follower_id", followerID, "following_id", followingID, "count", count)
		g.publish(ctx, eventbus.TopicFollowChanged, FollowChanged{
			FollowerID:  followerID,
			FollowingID: followingID,
			IsFollowing: true,
			Count:       count,
		})
		g.notifyFollowed(ctx, followerID, followingID)
		return nil
	})
	return count, err
}

// notifyFollowed appends the new_follower notice. The edge is already
// committed, so a ledger failure is logged rather than failing the follow.
func (g *Graph) notifyFollowed(ctx context.Context, followerID, followingID string) {
	if g.ledger == nil {
		return
	}
	_, err := g.ledger.Append(ctx, notifications.NewNotice{
		UserID: followingID,
		Type:   notifications.TypeNewFollower,
		Meta:   map[string]string{notifications.MetaFollowerID: followerID},
	})
	if err != nil {
		g.log.Error("failed to append new follower notice",
			"follower_id", followerID,
			"following_id", followingID,
			"error", err)
	}
}

// Unfollow removes the edge if present and returns the follower count of
// followingID. Removing an absent edge is not an error and publishes nothing.
func (g *Graph) Unfollow(ctx context.Context, followerID, followingID string) (int, error) {
	const op = "social.unfollow"
	if err := checkFollowArgs(op, followerID, followingID); err != nil {
		return 0, err
	}

	var count int
	err := g.guarded(ctx, op, "follow", []string{followerID, followingID}, func(ctx context.Context) error {
		removed := false
		err := g.follows.Update(ctx, func(edges []FollowEdge) ([]FollowEdge, error) {
			i := indexFollow(edges, followerID, followingID)
			if i < 0 {
				return nil, store.ErrUnchanged
			}
			removed = true
			return append(edges[:i], edges[i+1:]...), nil
		})
		if err != nil {
			return apperr.Storage(op, err)
		}

		count, err = g.FollowerCount(ctx, followingID)
		if err != nil {
			return err
		}
		if removed {
			g.log.Debug("follow removed", "follower_id", followerID, "following_id", followingID, "count", count)
			g.publish(ctx, eventbus.TopicFollowChanged, FollowChanged{
				FollowerID:  followerID,
				FollowingID: followingID,
				IsFollowing: false,
				Count:       count,
			})
		}
		return nil
	})
	return count, err
}

// IsFollowing reports whether the edge exists.
func (g *Graph) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	edges, err := g.follows.Load(ctx)
	if err != nil {
		return false, apperr.Storage("social.is_following", err)
	}
	return indexFollow(edges, followerID, followingID) >= 0, nil
}

// FollowerCount counts edges pointing at userID.
func (g *Graph) FollowerCount(ctx context.Context, userID string) (int, error) {
	edges, err := g.follows.Load(ctx)
	if err != nil {
		return 0, apperr.Storage("social.follower_count", err)
	}
	n := 0
	for _, e := range edges {
		if e.FollowingID == userID {
			n++
		}
	}
	return n, nil
}

// FollowingCount counts edges leaving userID.
func (g *Graph) FollowingCount(ctx context.Context, userID string) (int, error) {
	edges, err := g.follows.Load(ctx)
	if err != nil {
		return 0, apperr.Storage("social.following_count", err)
	}
	n := 0
	for _, e := range edges {
		if e.FollowerID == userID {
			n++
		}
	}
	return n, nil
}

// Followers lists the ids following userID, newest first.
func (g *Graph) Followers(ctx context.Context, userID string) ([]string, error) {
	edges, err := g.follows.Load(ctx)
	if err != nil {
		return nil, apperr.Storage("social.followers", err)
	}
	ids := []string{}
	for i := len(edges) - 1; i >= 0; i-- {
		if edges[i].FollowingID == userID {
			ids = append(ids, edges[i].FollowerID)
		}
	}
	return ids, nil
}

// Following lists the ids userID follows, newest first.
func (g *Graph) Following(ctx context.Context, userID string) ([]string, error) {
	edges, err := g.follows.Load(ctx)
	if err != nil {
		return nil, apperr.Storage("social.following", err)
	}
	ids := []string{}
	for i := len(edges) - 1; i >= 0; i-- {
		if edges[i].FollowerID == userID {
			ids = append(ids, edges[i].FollowingID)
		}
	}
	return ids, nil
}

func indexFollow(edges []FollowEdge, followerID, followingID string) int {
	for i, e := range edges {
		if e.FollowerID == followerID && e.FollowingID == followingID {
			return i
		}
	}
	return -1
}
