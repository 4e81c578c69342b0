package services

import (
	"errors"
	"fmt"
)

// Kind classifies an expected domain failure.
type Kind string

const (
	KindSelfVote           Kind = "SelfVote"
	KindAlreadyVoted       Kind = "AlreadyVoted"
	KindVoteFailed         Kind = "VoteFailed"
	KindBlocked            Kind = "BlockedError"
	KindEmptyContent       Kind = "EmptyContent"
	KindNotAuthenticated   Kind = "NotAuthenticated"
	KindInsufficientPoints Kind = "InsufficientPoints"
	KindOutOfStock         Kind = "OutOfStock"
	KindInvalidStep        Kind = "InvalidStep"
	KindNotFound           Kind = "NotFound"
	KindInvalidCategory    Kind = "InvalidCategory"
	KindSelfBlock          Kind = "SelfBlock"
	KindUsernameTaken      Kind = "UsernameTaken"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindInvalidInput       Kind = "InvalidInput"
	KindInternal           Kind = "Internal"
)

// Error is the error type returned by every service for expected failures.
// Deficit is only set for KindInsufficientPoints.
type Error struct {
	Kind    Kind   `json:"kind"`
	Deficit int    `json:"deficit,omitempty"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindInsufficientPoints:
		return fmt.Sprintf("%s: need %d more points", e.Kind, e.Deficit)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// asError returns err as an *Error, or nil when it is something else.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
