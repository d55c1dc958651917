// Package apperr defines the tagged error taxonomy shared by the social core.
//
// Expected conditions (bad input, duplicate request, wrong actor, ...) are returned
// as *Error values carrying a Kind. Callers branch with errors.Is against the
// sentinel values below or with KindOf.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for the HTTP edge.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindDuplicateActiveRequest Kind = "duplicate_active_request"
	KindNotFound               Kind = "not_found"
	KindUnauthorized           Kind = "unauthorized"
	KindAlreadyResolved        Kind = "already_resolved"
	KindAuthenticationRequired Kind = "authentication_required"
	KindStorage                Kind = "storage"
	KindInProgress             Kind = "in_progress"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrDuplicateActiveRequest = &Error{Kind: KindDuplicateActiveRequest}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrAlreadyResolved        = &Error{Kind: KindAlreadyResolved}
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrStorage                = &Error{Kind: KindStorage}
	ErrInProgress             = &Error{Kind: KindInProgress}
)

// Error is a classified error. Op names the operation that failed
// (e.g. "requests.approve"), Msg is safe to show to the caller.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New returns a classified error without a cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf is New with a formatted message.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps a backend failure. A nil err yields nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStorage, Op: op, Msg: "storage failure", Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Message returns the caller-safe message of err, falling back to the Kind.
func Message(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return ""
	}
	if ae.Msg != "" {
		return ae.Msg
	}
	return string(ae.Kind)
}
