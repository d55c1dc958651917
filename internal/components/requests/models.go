// Package requests implements the collaboration and review request workflow.
//
// A request starts pending and is resolved once, by its owner, to approved or
// denied. Both request families share the state machine and differ only in
// the storage key and the notice types they emit.
package requests

import (
	"time"

	"github.com/artfolio/artfolio-sync/internal/components/notifications"
)

// Kind is a request family.
type Kind string

const (
	KindCollaboration Kind = "collaboration"
	KindReview        Kind = "review"
)

// Kinds lists the request families in a stable order.
var Kinds = []Kind{KindCollaboration, KindReview}

// ParseKind validates a kind from user input.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindCollaboration, KindReview:
		return Kind(s), true
	}
	return "", false
}

// Status is the state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"

	// StatusNone is what StatusFor reports when no request exists.
	StatusNone Status = "none"
)

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Request is one collaboration or review request.
type Request struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	ProjectID     string    `json:"projectId"`
	ProjectName   string    `json:"projectName,omitempty"`
	RequesterID   string    `json:"requesterId"`
	RequesterName string    `json:"requesterName,omitempty"`
	OwnerID       string    `json:"ownerId"`
	OwnerName     string    `json:"ownerName,omitempty"`
	Message       string    `json:"message,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CreateInput is the input of Create.
type CreateInput struct {
	ProjectID     string `json:"projectId" validate:"required,trimmed,max=128"`
	ProjectName   string `json:"projectName" validate:"max=200"`
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName" validate:"max=200"`
	OwnerID       string `json:"ownerId" validate:"required,trimmed,max=128,nefield=RequesterID"`
	OwnerName     string `json:"ownerName" validate:"max=200"`
	Message       string `json:"message" validate:"max=2000"`
}

// Created is the detail of request:created.
type Created struct {
	Request Request `json:"request"`
}

// StatusChanged is the detail of request:statusChanged.
type StatusChanged struct {
	RequestID string  `json:"requestId"`
	Status    Status  `json:"status"`
	Request   Request `json:"request"`
}

// noticeTypes maps a kind to the notice emitted on creation and per outcome.
var noticeTypes = map[Kind]map[Status]notifications.Type{
	KindCollaboration: {
		StatusPending:  notifications.TypeCollaborationRequest,
		StatusApproved: notifications.TypeCollaborationApproved,
		StatusDenied:   notifications.TypeCollaborationDenied,
	},
	KindReview: {
		StatusPending:  notifications.TypeReviewRequest,
		StatusApproved: notifications.TypeReviewApproved,
		StatusDenied:   notifications.TypeReviewDenied,
	},
}

func (r *Request) noticeMeta() map[string]string {
	return map[string]string{
		notifications.MetaRequestID:     r.ID,
		notifications.MetaKind:          string(r.Kind),
		notifications.MetaStatus:        string(r.Status),
		notifications.MetaRequesterID:   r.RequesterID,
		notifications.MetaRequesterName: r.RequesterName,
		notifications.MetaOwnerID:       r.OwnerID,
		notifications.MetaOwnerName:     r.OwnerName,
		notifications.MetaProjectName:   r.ProjectName,
	}
}
