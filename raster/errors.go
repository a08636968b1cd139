package raster

import "errors"

// Kind classifies why a file was rejected.
//
// Callers should branch on Kind rather than on error strings.
type Kind string

const (
	KindTooLarge   Kind = "TooLarge"
	KindWrongType  Kind = "WrongType"
	KindUnreadable Kind = "Unreadable"
)

// Error is a decode rejection. Message is meant for people.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func reject(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
