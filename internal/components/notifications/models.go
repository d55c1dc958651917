// Package notifications is the per-recipient notification ledger.
package notifications

import "time"

// Type classifies a notice.
type Type string

const (
	TypeCollaborationRequest  Type = "collaboration_request"
	TypeCollaborationApproved Type = "collaboration_approved"
	TypeCollaborationDenied   Type = "collaboration_denied"
	TypeReviewRequest         Type = "review_request"
	TypeReviewApproved        Type = "review_approved"
	TypeReviewDenied          Type = "review_denied"
	TypeNewFollower           Type = "new_follower"
	TypeNewComment            Type = "new_comment"
)

// Notification is one notice addressed to UserID.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      Type              `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	ProjectID string            `json:"projectId,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	IsRead    bool              `json:"isRead"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewNotice is the input of Append. Empty Title and Message are rendered
// from Type and Meta.
type NewNotice struct {
	UserID    string            `json:"userId" validate:"required"`
	Type      Type              `json:"type" validate:"required,oneof=collaboration_request collaboration_approved collaboration_denied review_request review_approved review_denied new_follower new_comment"`
	Title     string            `json:"title" validate:"max=200"`
	Message   string            `json:"message" validate:"max=2000"`
	ProjectID string            `json:"projectId"`
	Meta      map[string]string `json:"meta"`
}

// UnreadChanged is the detail of notification:unreadChanged.
type UnreadChanged struct {
	UserID string `json:"userId"`
}
