package requests

import (
	"context"

	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
)

// Set holds one workflow per kind, sharing storage, ledger and guard.
type Set struct {
	workflows map[Kind]*Workflow
}

// NewSet builds the workflows of every kind.
func NewSet(d Deps) (*Set, error) {
	s := &Set{workflows: make(map[Kind]*Workflow, len(Kinds))}
	for _, k := range Kinds {
		w, err := New(k, d)
		if err != nil {
			return nil, err
		}
		s.workflows[k] = w
	}
	return s, nil
}

// For returns the workflow of kind, or a validation error for an unknown kind.
func (s *Set) For(kind string) (*Workflow, error) {
	k, ok := ParseKind(kind)
	if !ok {
		return nil, apperr.Newf(apperr.KindValidation, "requests.kind", "unknown request kind %q", kind)
	}
	return s.workflows[k], nil
}

// Collaboration returns the collaboration request workflow.
func (s *Set) Collaboration() *Workflow { return s.workflows[KindCollaboration] }

// Review returns the review request workflow.
func (s *Set) Review() *Workflow { return s.workflows[KindReview] }

// Reset clears every kind.
func (s *Set) Reset(ctx context.Context) (int, error) {
	total := 0
	for _, k := range Kinds {
		n, err := s.workflows[k].Reset(ctx)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
