package blog

import (
	"errors"
	"fmt"
)

// Kind classifies every failure this package surfaces. Collaborator
// failures are converted at the component boundary; raw transport errors
// never reach callers.
type Kind string

const (
	// KindUnauthorized: no authenticated actor, or the actor does not own
	// the resource. Non-fatal; the action is blocked.
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindValidation: a required field is empty. The form stays editable.
	KindValidation Kind = "VALIDATION_ERROR"
	// KindNotFound: the article does not exist or the identifier is
	// malformed.
	KindNotFound Kind = "NOT_FOUND"
	// KindStorage: an object-storage upload failed before any row write.
	KindStorage Kind = "STORAGE_ERROR"
	// KindPersistence: the relational store failed; no partial commit is
	// assumed.
	KindPersistence Kind = "PERSISTENCE_ERROR"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapf(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or "" for errors this package did not
// produce.
func KindOf(err error) Kind {
	var domain *Error
	if errors.As(err, &domain) {
		return domain.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
