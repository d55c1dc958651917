// Package social holds the follow and favorite edge sets.
//
// Counts are never stored. FollowerCount, FollowingCount and FavoriteCount
// are the cardinality of the matching edges at the time of the call, so a
// count cannot drift from the edge set under repeated or concurrent toggles.
package social

import "time"

// ItemType is the kind of a favoritable item.
type ItemType string

const (
	ItemWork          ItemType = "work"
	ItemCollaboration ItemType = "collaboration"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	return t == ItemWork || t == ItemCollaboration
}

// FollowEdge records that FollowerID follows FollowingID.
type FollowEdge struct {
	FollowerID  string    `json:"followerId"`
	FollowingID string    `json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FavoriteEdge records that UserID favorited an item. ID is the favoriteId.
type FavoriteEdge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ItemType  ItemType  `json:"itemType"`
	ItemID    string    `json:"itemId"`
	CreatedAt time.Time `json:"createdAt"`
}

// FavoriteStatus is the caller's view of one item.
type FavoriteStatus struct {
	IsFavorited bool   `json:"isFavorited"`
	FavoriteID  string `json:"favoriteId,omitempty"`
	Count       int    `json:"count"`
}

// FollowChanged is the detail of follow:changed.
type FollowChanged struct {
	FollowerID  string `json:"followerId"`
	FollowingID string `json:"followingId"`
	IsFollowing bool   `json:"isFollowing"`
	Count       int    `json:"count"`
}

// FavoriteChanged is the detail of favorite:changed.
type FavoriteChanged struct {
	ItemType    ItemType `json:"itemType"`
	ItemID      string   `json:"itemId"`
	UserID      string   `json:"userId"`
	IsFavorited bool     `json:"isFavorited"`
	Count       int      `json:"count"`
}
